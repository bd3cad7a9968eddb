package rma

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.RWMutex
	rmas    map[string]*RMA    // keyed by RMAID
	refunds map[string]*Refund // keyed by RMAID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rmas:    make(map[string]*RMA),
		refunds: make(map[string]*Refund),
	}
}

func (s *MemoryStore) Create(ctx context.Context, r *RMA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rmas[r.RMAID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, rmaID string) (RMA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rmas[rmaID]
	if !ok {
		return RMA{}, ErrNotFound
	}
	return *r, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]RMA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RMA, 0, len(s.rmas))
	for _, r := range s.rmas {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Transition(ctx context.Context, rmaID string, from, to Status, process Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rmas[rmaID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != from {
		return ErrInvalidState
	}
	r.Status = to
	r.Process = process
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateRefund(ctx context.Context, r *Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.refunds[r.RMAID]; exists {
		return ErrRefundExists
	}
	cp := *r
	s.refunds[r.RMAID] = &cp
	return nil
}

func (s *MemoryStore) ListRefunds(ctx context.Context) ([]Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Refund, 0, len(s.refunds))
	for _, r := range s.refunds {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
