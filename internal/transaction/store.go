package transaction

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrDuplicate    = errors.New("transaction already exists")
	ErrInvalidState = errors.New("invalid transaction state")
)

type Store interface {
	Create(ctx context.Context, t *Transaction) error
	// Delete removes a record when a reservation is cancelled.
	Delete(ctx context.Context, id string) error

	Get(ctx context.Context, id string) (Transaction, error)
	GetByTransactionID(ctx context.Context, txnID string) (Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (Transaction, error)
	List(ctx context.Context) ([]Transaction, error)

	// Finalize moves Reserved -> Completed with the in-store payment.
	// ErrInvalidState if the transaction is not Reserved.
	Finalize(ctx context.Context, id string, paid, change decimal.Decimal, method string) error

	// MarkRefunded moves Completed -> Refunded. ErrInvalidState otherwise.
	MarkRefunded(ctx context.Context, id string) error

	// ReplaceSerial swaps one serial for another inside the stored lines.
	ReplaceSerial(ctx context.Context, id, oldSerial, newSerial string) error

	UpsertCustomer(ctx context.Context, c Customer) (string, error)
}
