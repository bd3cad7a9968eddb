package rma

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/transaction"
)

var (
	ErrUnitNotSold = errors.New("unit is not sold")
	ErrValidation  = errors.New("validation error")
)

// TransactionDirectory is the slice of the transaction recorder the RMA
// machine needs. *transaction.Service satisfies it.
type TransactionDirectory interface {
	GetByTransactionID(ctx context.Context, txnID string) (transaction.Transaction, error)
	MarkRefunded(ctx context.Context, id string) error
	ReplaceSerial(ctx context.Context, id, oldSerial, newSerial string) error
}

// Service drives a returned unit through request -> approval -> resolution.
// Resolution is dispatched through a table keyed by Process, one resolver
// per kind.
type Service struct {
	Ledger ledger.Store
	Store  Store
	Txns   TransactionDirectory
	Now    func() time.Time

	resolvers map[Process]resolverFunc
}

// ResolveInput carries the process-specific resolution arguments; each
// resolver reads only its own fields.
type ResolveInput struct {
	Amount          decimal.Decimal
	Method          string
	ReferenceNumber string
	NewSerial       string
}

type resolverFunc func(ctx context.Context, r RMA, in ResolveInput) (*Refund, error)

func NewService(l ledger.Store, s Store, txns TransactionDirectory) *Service {
	svc := &Service{Ledger: l, Store: s, Txns: txns, Now: time.Now}
	svc.resolvers = map[Process]resolverFunc{
		ProcessRefund:      svc.resolveRefund,
		ProcessReplacement: svc.resolveReplacement,
	}
	return svc
}

type CreateInput struct {
	TransactionID string `json:"transaction_id"` // human-readable id
	SerialNumber  string `json:"serial_number"`
	CustomerName  string `json:"customer_name"`
	Reason        string `json:"reason"`
	Condition     string `json:"condition"`
}

// Create opens an RMA against a sold unit and parks the unit in
// pending_rma. Warranty status is computed and reported but never blocks
// creation, even when expired.
func (s *Service) Create(ctx context.Context, in CreateInput) (RMA, error) {
	if in.TransactionID == "" || in.SerialNumber == "" {
		return RMA{}, fmt.Errorf("%w: missing transaction or serial", ErrValidation)
	}
	txn, err := s.Txns.GetByTransactionID(ctx, in.TransactionID)
	if err != nil {
		return RMA{}, err
	}
	line, ok := lineForSerial(txn, in.SerialNumber)
	if !ok {
		return RMA{}, fmt.Errorf("%w: serial %s not on transaction %s",
			ErrValidation, in.SerialNumber, in.TransactionID)
	}

	unit, err := s.Ledger.GetUnitBySerial(ctx, line.ProductID, in.SerialNumber)
	if err != nil {
		return RMA{}, err
	}
	if unit.Status != ledger.StatusSold {
		return RMA{}, fmt.Errorf("%w: unit %s is %s", ErrUnitNotSold, in.SerialNumber, unit.Status)
	}
	if err := s.Ledger.MarkPendingRMA(ctx, unit.ID); err != nil {
		return RMA{}, err
	}

	product, err := s.Ledger.GetProduct(ctx, line.ProductID)
	if err != nil {
		return RMA{}, err
	}
	now := s.Now()
	r := RMA{
		ID:            uuid.NewString(),
		RMAID:         "RMA-" + now.Format("20060102") + "-" + uuid.NewString()[:6],
		TransactionID: txn.TransactionID,
		ProductID:     line.ProductID,
		UnitID:        unit.ID,
		SerialNumber:  in.SerialNumber,
		CustomerName:  in.CustomerName,
		Reason:        in.Reason,
		Condition:     in.Condition,
		Status:        StatusPending,
		Process:       ProcessNone,
		Warranty:      StatusAt(product.WarrantyTerm, txn.Date, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Create(ctx, &r); err != nil {
		// undo the hold so the unit is not stranded in pending_rma
		_ = s.Ledger.CancelPendingRMA(ctx, unit.ID)
		return RMA{}, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, rmaID string) (RMA, error) {
	r, err := s.Store.Get(ctx, rmaID)
	if err != nil {
		return RMA{}, err
	}
	s.fillWarranty(ctx, &r)
	return r, nil
}

func (s *Service) List(ctx context.Context) ([]RMA, error) {
	rs, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rs {
		s.fillWarranty(ctx, &rs[i])
	}
	return rs, nil
}

// Approve moves a pending RMA to Approved with the chosen process.
func (s *Service) Approve(ctx context.Context, rmaID string, process Process) error {
	if process != ProcessRefund && process != ProcessReplacement {
		return fmt.Errorf("%w: process must be Refund or Replacement", ErrValidation)
	}
	return s.Store.Transition(ctx, rmaID, StatusPending, StatusApproved, process)
}

// Reject terminates a pending RMA and returns the unit to sold.
func (s *Service) Reject(ctx context.Context, rmaID string) error {
	r, err := s.Store.Get(ctx, rmaID)
	if err != nil {
		return err
	}
	if err := s.Store.Transition(ctx, rmaID, StatusPending, StatusRejected, r.Process); err != nil {
		return err
	}
	return s.Ledger.CancelPendingRMA(ctx, r.UnitID)
}

// ProcessRefund resolves an RMA by refund: the unit becomes refunded, a
// single Refund record is written, the transaction flips to Refunded and
// the RMA completes. A second call on the same RMA gets ErrInvalidState and
// no second Refund record exists.
func (s *Service) ProcessRefund(ctx context.Context, rmaID string, amount decimal.Decimal, method, referenceNumber string) (Refund, error) {
	ref, err := s.resolve(ctx, rmaID, ProcessRefund, ResolveInput{
		Amount: amount, Method: method, ReferenceNumber: referenceNumber,
	})
	if err != nil {
		return Refund{}, err
	}
	return *ref, nil
}

// ProcessReplacement resolves an RMA by swapping the returned unit for a
// fresh in_stock unit of the same product.
func (s *Service) ProcessReplacement(ctx context.Context, rmaID, newSerial string) error {
	_, err := s.resolve(ctx, rmaID, ProcessReplacement, ResolveInput{NewSerial: newSerial})
	return err
}

// resolve claims the RMA for completion (the CAS transition is the
// idempotency guard), then dispatches to the resolver for the process
// kind. If the resolver fails the claim is rolled back so the RMA can be
// retried.
func (s *Service) resolve(ctx context.Context, rmaID string, kind Process, in ResolveInput) (*Refund, error) {
	r, err := s.Store.Get(ctx, rmaID)
	if err != nil {
		return nil, err
	}
	if r.Process != ProcessNone && r.Process != kind {
		return nil, fmt.Errorf("%w: rma process is %s", ErrInvalidState, r.Process)
	}
	if !CanTransition(r.Status, StatusCompleted) {
		return nil, fmt.Errorf("%w: rma status is %s", ErrInvalidState, r.Status)
	}
	if err := s.Store.Transition(ctx, rmaID, r.Status, StatusCompleted, kind); err != nil {
		return nil, err
	}

	refund, err := s.resolvers[kind](ctx, r, in)
	if err != nil {
		_ = s.Store.Transition(ctx, rmaID, StatusCompleted, r.Status, r.Process)
		return nil, err
	}
	return refund, nil
}

func (s *Service) resolveRefund(ctx context.Context, r RMA, in ResolveInput) (*Refund, error) {
	if err := s.Ledger.ResolveRefund(ctx, r.UnitID); err != nil {
		return nil, err
	}
	product, err := s.Ledger.GetProduct(ctx, r.ProductID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	refund := &Refund{
		ID:              uuid.NewString(),
		RefundID:        "REF-" + now.Format("20060102") + "-" + uuid.NewString()[:6],
		RMAID:           r.RMAID,
		TransactionID:   r.TransactionID,
		ProductName:     product.Name,
		SerialNumber:    r.SerialNumber,
		Amount:          in.Amount,
		Method:          in.Method,
		ReferenceNumber: in.ReferenceNumber,
		CreatedAt:       now,
	}
	if err := s.Store.CreateRefund(ctx, refund); err != nil {
		if errors.Is(err, ErrRefundExists) {
			return nil, fmt.Errorf("%w: refund already issued", ErrInvalidState)
		}
		return nil, err
	}
	if txn, terr := s.Txns.GetByTransactionID(ctx, r.TransactionID); terr == nil {
		_ = s.Txns.MarkRefunded(ctx, txn.ID)
	}
	return refund, nil
}

func (s *Service) resolveReplacement(ctx context.Context, r RMA, in ResolveInput) (*Refund, error) {
	if in.NewSerial == "" {
		return nil, fmt.Errorf("%w: missing replacement serial", ErrValidation)
	}
	newUnit, err := s.Ledger.GetUnitBySerial(ctx, r.ProductID, in.NewSerial)
	if err != nil {
		return nil, err
	}
	if err := s.Ledger.ResolveReplacement(ctx, r.UnitID, newUnit.ID); err != nil {
		return nil, err
	}
	if txn, terr := s.Txns.GetByTransactionID(ctx, r.TransactionID); terr == nil {
		_ = s.Txns.ReplaceSerial(ctx, txn.ID, r.SerialNumber, in.NewSerial)
	}
	return nil, nil
}

func (s *Service) fillWarranty(ctx context.Context, r *RMA) {
	txn, err := s.Txns.GetByTransactionID(ctx, r.TransactionID)
	if err != nil {
		r.Warranty = WarrantyUnknown
		return
	}
	product, err := s.Ledger.GetProduct(ctx, r.ProductID)
	if err != nil {
		r.Warranty = WarrantyUnknown
		return
	}
	r.Warranty = StatusAt(product.WarrantyTerm, txn.Date, s.Now())
}

func lineForSerial(t transaction.Transaction, serial string) (transaction.Line, bool) {
	for _, l := range t.Lines {
		for _, sn := range l.SerialNumbers {
			if sn == serial {
				return l, true
			}
		}
	}
	return transaction.Line{}, false
}
