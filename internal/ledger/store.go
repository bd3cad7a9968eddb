package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrUnitNotFound      = errors.New("unit not found")
	ErrAlreadyReserved   = errors.New("unit already reserved")
	ErrInvalidTransition = errors.New("invalid unit status transition")
	ErrUnitUnavailable   = errors.New("unit unavailable")
	ErrSerialExists      = errors.New("serial number already exists for product")
)

// Store owns every Unit.status transition. All other components request
// transitions through it; nothing else writes unit state.
type Store interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)

	GetUnit(ctx context.Context, unitID string) (Unit, error)
	GetUnitBySerial(ctx context.Context, productID, serial string) (Unit, error)

	// ListAvailable returns in_stock units oldest-first (created_at, then
	// serial) so reservation selection is deterministic.
	ListAvailable(ctx context.Context, productID string) ([]Unit, error)

	// Reserve moves one unit in_stock -> reserved with the given hold
	// expiry. It is the single enforcement point against double-booking:
	// a compare-and-swap on (unit, in_stock), so of two concurrent calls
	// exactly one succeeds and the other gets ErrAlreadyReserved.
	Reserve(ctx context.Context, unitID string, expiresAt time.Time) (Unit, error)

	// Release moves reserved units back to in_stock (cart abandonment).
	Release(ctx context.Context, unitIDs []string) error

	// PinReserved clears the hold expiry on reserved units so the sweeper
	// never reclaims units held by a Reserved transaction.
	PinReserved(ctx context.Context, unitIDs []string) error

	// MarkSold moves reserved -> sold for all units or none of them.
	MarkSold(ctx context.Context, unitIDs []string) error

	// RevertSold moves sold -> reserved. Commit-rollback only: used when a
	// transaction record fails to persist after its units were sold.
	RevertSold(ctx context.Context, unitIDs []string) error

	// MarkPendingRMA moves sold -> pending_rma.
	MarkPendingRMA(ctx context.Context, unitID string) error

	// CancelPendingRMA moves pending_rma -> sold (RMA rejected).
	CancelPendingRMA(ctx context.Context, unitID string) error

	// ResolveRefund moves pending_rma -> refunded (terminal).
	ResolveRefund(ctx context.Context, unitID string) error

	// ResolveReplacement atomically retires the old unit
	// (pending_rma -> replaced) and sells the new one, passing it through
	// reserved (in_stock -> reserved -> sold). ErrUnitUnavailable when the
	// replacement was concurrently claimed.
	ResolveReplacement(ctx context.Context, oldUnitID, newUnitID string) error

	// SweepExpired releases reserved units whose hold expired before now
	// and returns them.
	SweepExpired(ctx context.Context, now time.Time) ([]Unit, error)

	IncrementSales(ctx context.Context, productID string, delta int) error
	CountByStatus(ctx context.Context, productID string, status Status) (int, error)
}
