package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Manager turns (product, quantity) cart lines into concrete unit holds.
type Manager struct {
	Ledger ledger.Store
	// TTL is how long a cart hold lives before the sweeper reclaims it.
	TTL time.Duration
}

// bindAttempts bounds the optimistic retry against concurrent checkouts.
const bindAttempts = 3

// BindCartLine reserves qty distinct units of a product, oldest in stock
// first. All-or-nothing: if fewer than qty units can be claimed in one pass
// over the current listing, every unit claimed by the attempt is released
// and the listing is retried. Fewer than qty units in stock at any pass is
// ErrInsufficientStock.
func (m *Manager) BindCartLine(ctx context.Context, productID string, qty int) ([]ledger.Unit, error) {
	if qty <= 0 {
		return nil, ErrInsufficientStock
	}
	for attempt := 0; attempt < bindAttempts; attempt++ {
		avail, err := m.Ledger.ListAvailable(ctx, productID)
		if err != nil {
			return nil, err
		}
		if len(avail) < qty {
			return nil, ErrInsufficientStock
		}
		bound, err := m.bindOnce(ctx, avail, qty)
		if err != nil {
			return nil, err
		}
		if bound != nil {
			return bound, nil
		}
		// lost too many units to concurrent reservations; re-list
	}
	return nil, ErrInsufficientStock
}

// bindOnce claims up to qty units from one listing. A short claim is rolled
// back and reported as (nil, nil) so the caller can retry.
func (m *Manager) bindOnce(ctx context.Context, avail []ledger.Unit, qty int) ([]ledger.Unit, error) {
	expiresAt := time.Now().Add(m.TTL)
	bound := make([]ledger.Unit, 0, qty)
	for _, candidate := range avail {
		if len(bound) == qty {
			break
		}
		u, err := m.Ledger.Reserve(ctx, candidate.ID, expiresAt)
		if errors.Is(err, ledger.ErrAlreadyReserved) {
			continue // lost the race for this unit, try the next candidate
		}
		if err != nil {
			m.rollback(ctx, bound)
			return nil, err
		}
		bound = append(bound, u)
	}
	if len(bound) < qty {
		m.rollback(ctx, bound)
		return nil, nil
	}
	return bound, nil
}

// ReleaseCartLine returns previously bound units to stock.
func (m *Manager) ReleaseCartLine(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	return m.Ledger.Release(ctx, unitIDs)
}

func (m *Manager) rollback(ctx context.Context, bound []ledger.Unit) {
	if len(bound) == 0 {
		return
	}
	ids := make([]string, len(bound))
	for i, u := range bound {
		ids[i] = u.ID
	}
	_ = m.Ledger.Release(ctx, ids)
}
