package transaction

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Transaction
	customers map[string]*Customer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Transaction),
		customers: make(map[string]*Customer),
	}
}

func (s *MemoryStore) Create(ctx context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ExternalID != "" {
		for _, x := range s.byID {
			if x.ExternalID == t.ExternalID {
				return ErrDuplicate
			}
		}
	}
	cp := *t
	cp.Lines = append([]Line(nil), t.Lines...)
	s.byID[t.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return cloneTxn(t), nil
}

func (s *MemoryStore) GetByTransactionID(ctx context.Context, txnID string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.byID {
		if t.TransactionID == txnID {
			return cloneTxn(t), nil
		}
	}
	return Transaction{}, ErrNotFound
}

func (s *MemoryStore) GetByExternalID(ctx context.Context, externalID string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if externalID != "" {
		for _, t := range s.byID {
			if t.ExternalID == externalID {
				return cloneTxn(t), nil
			}
		}
	}
	return Transaction{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, cloneTxn(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) Finalize(ctx context.Context, id string, paid, change decimal.Decimal, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusReserved {
		return ErrInvalidState
	}
	t.Status = StatusCompleted
	t.AmountPaid = paid
	t.Change = change
	t.PaymentMethod = method
	return nil
}

func (s *MemoryStore) MarkRefunded(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusCompleted {
		return ErrInvalidState
	}
	t.Status = StatusRefunded
	return nil
}

func (s *MemoryStore) ReplaceSerial(ctx context.Context, id, oldSerial, newSerial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	for li := range t.Lines {
		for si, sn := range t.Lines[li].SerialNumbers {
			if sn == oldSerial {
				t.Lines[li].SerialNumbers[si] = newSerial
				return nil
			}
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) UpsertCustomer(ctx context.Context, c Customer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.customers {
		if (c.Phone != "" && x.Phone == c.Phone) || (c.Email != "" && x.Email == c.Email) {
			x.Name = c.Name
			return x.ID, nil
		}
	}
	c.ID = uuid.NewString()
	s.customers[c.ID] = &c
	return c.ID, nil
}

func cloneTxn(t *Transaction) Transaction {
	cp := *t
	cp.Lines = make([]Line, len(t.Lines))
	for i, l := range t.Lines {
		cp.Lines[i] = l
		cp.Lines[i].SerialNumbers = append([]string(nil), l.SerialNumbers...)
	}
	return cp
}
