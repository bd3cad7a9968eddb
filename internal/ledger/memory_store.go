package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory state under a single mutex.
// Used by tests and by single-node deployments without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*Product
	units    map[string]*Unit

	events Publisher
}

func NewMemoryStore(events Publisher) *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*Product),
		units:    make(map[string]*Unit),
		events:   events,
	}
}

// SeedProduct registers a product. Units are created via AddUnit.
func (s *MemoryStore) SeedProduct(p Product) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Units = nil
	s.products[p.ID] = &p
	return p.ID
}

// AddUnit registers a new in_stock unit for a product.
func (s *MemoryStore) AddUnit(productID, serial string) (Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return Unit{}, ErrProductNotFound
	}
	for _, u := range s.units {
		if u.ProductID == productID && u.SerialNumber == serial {
			return Unit{}, fmt.Errorf("%w: %s", ErrSerialExists, serial)
		}
	}
	now := time.Now()
	u := &Unit{
		ID:           uuid.NewString(),
		ProductID:    productID,
		SerialNumber: serial,
		Status:       StatusInStock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.units[u.ID] = u
	return *u, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, s.withUnitsLocked(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, productID string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return s.withUnitsLocked(p), nil
}

func (s *MemoryStore) withUnitsLocked(p *Product) Product {
	cp := *p
	for _, u := range s.units {
		if u.ProductID == p.ID {
			cp.Units = append(cp.Units, *u)
		}
	}
	sortUnits(cp.Units)
	return cp
}

func (s *MemoryStore) GetUnit(ctx context.Context, unitID string) (Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[unitID]
	if !ok {
		return Unit{}, ErrUnitNotFound
	}
	return *u, nil
}

func (s *MemoryStore) GetUnitBySerial(ctx context.Context, productID, serial string) (Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.units {
		if u.ProductID == productID && u.SerialNumber == serial {
			return *u, nil
		}
	}
	return Unit{}, ErrUnitNotFound
}

func (s *MemoryStore) ListAvailable(ctx context.Context, productID string) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.products[productID]; !ok {
		return nil, ErrProductNotFound
	}
	var out []Unit
	for _, u := range s.units {
		if u.ProductID == productID && u.Status == StatusInStock {
			out = append(out, *u)
		}
	}
	sortUnits(out)
	return out, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, unitID string, expiresAt time.Time) (Unit, error) {
	s.mu.Lock()
	u, ok := s.units[unitID]
	if !ok {
		s.mu.Unlock()
		return Unit{}, ErrUnitNotFound
	}
	if u.Status != StatusInStock {
		s.mu.Unlock()
		return Unit{}, ErrAlreadyReserved
	}
	ch := s.transitionLocked(u, StatusReserved)
	exp := expiresAt
	u.ReserveExpiresAt = &exp
	out := *u
	s.mu.Unlock()

	s.publish(ctx, ch)
	return out, nil
}

func (s *MemoryStore) Release(ctx context.Context, unitIDs []string) error {
	changes, err := s.casAll(unitIDs, StatusReserved, StatusInStock)
	if err != nil {
		return err
	}
	s.publishAll(ctx, changes)
	return nil
}

func (s *MemoryStore) PinReserved(ctx context.Context, unitIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range unitIDs {
		u, ok := s.units[id]
		if !ok {
			return ErrUnitNotFound
		}
		if u.Status != StatusReserved {
			return fmt.Errorf("%w: unit %s is %s, want reserved", ErrInvalidTransition, id, u.Status)
		}
	}
	for _, id := range unitIDs {
		s.units[id].ReserveExpiresAt = nil
	}
	return nil
}

func (s *MemoryStore) MarkSold(ctx context.Context, unitIDs []string) error {
	changes, err := s.casAll(unitIDs, StatusReserved, StatusSold)
	if err != nil {
		return err
	}
	s.publishAll(ctx, changes)
	return nil
}

func (s *MemoryStore) RevertSold(ctx context.Context, unitIDs []string) error {
	s.mu.Lock()
	for _, id := range unitIDs {
		if u, ok := s.units[id]; ok && u.Status == StatusSold {
			u.Status = StatusReserved
			u.UpdatedAt = time.Now()
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MarkPendingRMA(ctx context.Context, unitID string) error {
	return s.casOne(ctx, unitID, StatusSold, StatusPendingRMA)
}

func (s *MemoryStore) CancelPendingRMA(ctx context.Context, unitID string) error {
	return s.casOne(ctx, unitID, StatusPendingRMA, StatusSold)
}

func (s *MemoryStore) ResolveRefund(ctx context.Context, unitID string) error {
	return s.casOne(ctx, unitID, StatusPendingRMA, StatusRefunded)
}

func (s *MemoryStore) ResolveReplacement(ctx context.Context, oldUnitID, newUnitID string) error {
	s.mu.Lock()
	oldU, ok := s.units[oldUnitID]
	if !ok {
		s.mu.Unlock()
		return ErrUnitNotFound
	}
	newU, ok := s.units[newUnitID]
	if !ok {
		s.mu.Unlock()
		return ErrUnitNotFound
	}
	if oldU.Status != StatusPendingRMA {
		s.mu.Unlock()
		return fmt.Errorf("%w: old unit is %s, want pending_rma", ErrInvalidTransition, oldU.Status)
	}
	if newU.Status != StatusInStock {
		s.mu.Unlock()
		return ErrUnitUnavailable
	}
	chOld := s.transitionLocked(oldU, StatusReplaced)
	// new unit passes through reserved on its way to sold
	chRes := s.transitionLocked(newU, StatusReserved)
	chSold := s.transitionLocked(newU, StatusSold)
	s.mu.Unlock()

	s.publishAll(ctx, []StatusChange{chOld, chRes, chSold})
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, now time.Time) ([]Unit, error) {
	s.mu.Lock()
	var released []Unit
	var changes []StatusChange
	for _, u := range s.units {
		if u.Status == StatusReserved && u.ReserveExpiresAt != nil && u.ReserveExpiresAt.Before(now) {
			changes = append(changes, s.transitionLocked(u, StatusInStock))
			released = append(released, *u)
		}
	}
	s.mu.Unlock()

	s.publishAll(ctx, changes)
	return released, nil
}

func (s *MemoryStore) IncrementSales(ctx context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.Sales += delta
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, productID string, status Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.products[productID]; !ok {
		return 0, ErrProductNotFound
	}
	n := 0
	for _, u := range s.units {
		if u.ProductID == productID && u.Status == status {
			n++
		}
	}
	return n, nil
}

// transitionLocked applies a transition already validated by the caller and
// records the change. Caller holds the write lock.
func (s *MemoryStore) transitionLocked(u *Unit, to Status) StatusChange {
	ch := StatusChange{
		ProductID:    u.ProductID,
		UnitID:       u.ID,
		SerialNumber: u.SerialNumber,
		From:         u.Status,
		To:           to,
		At:           time.Now(),
	}
	u.Status = to
	u.ReserveExpiresAt = nil
	u.UpdatedAt = ch.At
	return ch
}

func (s *MemoryStore) casOne(ctx context.Context, unitID string, from, to Status) error {
	changes, err := s.casAll([]string{unitID}, from, to)
	if err != nil {
		return err
	}
	s.publishAll(ctx, changes)
	return nil
}

// casAll transitions every unit from -> to, or none of them.
func (s *MemoryStore) casAll(unitIDs []string, from, to Status) ([]StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range unitIDs {
		u, ok := s.units[id]
		if !ok {
			return nil, ErrUnitNotFound
		}
		if u.Status != from {
			return nil, fmt.Errorf("%w: unit %s is %s, want %s", ErrInvalidTransition, id, u.Status, from)
		}
	}
	changes := make([]StatusChange, 0, len(unitIDs))
	for _, id := range unitIDs {
		changes = append(changes, s.transitionLocked(s.units[id], to))
	}
	return changes, nil
}

func (s *MemoryStore) publish(ctx context.Context, ch StatusChange) {
	if s.events != nil {
		s.events.UnitStatusChanged(ctx, ch)
	}
}

func (s *MemoryStore) publishAll(ctx context.Context, chs []StatusChange) {
	for _, ch := range chs {
		s.publish(ctx, ch)
	}
}

func sortUnits(us []Unit) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].CreatedAt.Equal(us[j].CreatedAt) {
			return us[i].SerialNumber < us[j].SerialNumber
		}
		return us[i].CreatedAt.Before(us[j].CreatedAt)
	})
}
