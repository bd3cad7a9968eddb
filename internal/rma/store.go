package rma

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("rma not found")
	ErrInvalidState = errors.New("invalid rma state")
	ErrRefundExists = errors.New("refund already recorded for rma")
)

type Store interface {
	Create(ctx context.Context, r *RMA) error
	Get(ctx context.Context, rmaID string) (RMA, error)
	List(ctx context.Context) ([]RMA, error)

	// Transition is a compare-and-swap on (rma, from) -> to, also setting
	// the process. ErrInvalidState when the RMA is no longer in from; this
	// is the idempotency guard that keeps a completed RMA from being
	// processed twice.
	Transition(ctx context.Context, rmaID string, from, to Status, process Process) error

	// CreateRefund records the terminal refund artifact. ErrRefundExists
	// if the RMA already has one.
	CreateRefund(ctx context.Context, r *Refund) error
	ListRefunds(ctx context.Context) ([]Refund, error)
}
