package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
)

var ErrValidation = errors.New("validation error")

// txnHumanID builds the operator-facing id printed on receipts.
func txnHumanID(now time.Time) string {
	return "TXN-" + now.Format("20060102") + "-" + uuid.NewString()[:6]
}

// Service is the transaction recorder. It owns the two commit paths: a sale
// commit that sells the bound units, and an online-reservation commit that
// pins them until in-store payment. These are distinct operations, not a
// flag on one.
type Service struct {
	Ledger ledger.Store
	Store  Store
	Now    func() time.Time
}

func NewService(l ledger.Store, s Store) *Service {
	return &Service{Ledger: l, Store: s, Now: time.Now}
}

type CommitLine struct {
	ProductID string   `json:"product_id"`
	UnitIDs   []string `json:"unit_ids"`
}

type CommitInput struct {
	ExternalID    string          `json:"external_id"`
	CustomerID    string          `json:"customer_id"`
	Lines         []CommitLine    `json:"lines"`
	Discount      decimal.Decimal `json:"discount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentMethod string          `json:"payment_method"`
}

func (in CommitInput) validate(requirePayment bool) error {
	if in.CustomerID == "" {
		return fmt.Errorf("%w: missing customer", ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: no cart lines", ErrValidation)
	}
	for _, l := range in.Lines {
		if l.ProductID == "" || len(l.UnitIDs) == 0 {
			return fmt.Errorf("%w: malformed cart line", ErrValidation)
		}
	}
	if requirePayment && in.PaymentMethod == "" {
		return fmt.Errorf("%w: missing payment method", ErrValidation)
	}
	if in.Discount.IsNegative() || in.AmountPaid.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrValidation)
	}
	return nil
}

// Commit records a completed sale. Every bound unit is re-validated as
// still reserved (the hold may have been swept), then sold all-or-nothing.
// On any failure no transaction record survives and the units keep
// whatever reservation they had, so the caller can retry.
func (s *Service) Commit(ctx context.Context, in CommitInput) (Transaction, error) {
	if err := in.validate(true); err != nil {
		return Transaction{}, err
	}
	if existing, err := s.Store.GetByExternalID(ctx, in.ExternalID); err == nil {
		return existing, nil
	}

	t, allUnits, err := s.build(ctx, in, StatusCompleted)
	if err != nil {
		return Transaction{}, err
	}

	if err := s.Ledger.MarkSold(ctx, allUnits); err != nil {
		return Transaction{}, err
	}
	if err := s.Store.Create(ctx, &t); err != nil {
		// units were already sold; put them back so the caller can retry
		_ = s.Ledger.RevertSold(ctx, allUnits)
		if errors.Is(err, ErrDuplicate) {
			// concurrent commit with the same external id won
			if existing, gerr := s.Store.GetByExternalID(ctx, in.ExternalID); gerr == nil {
				return existing, nil
			}
		}
		return Transaction{}, err
	}
	return t, nil
}

// CommitReservation records an online reservation: the transaction is
// persisted as Reserved and the units stay reserved, pinned against the
// expiry sweeper, until FinalizeReservation or cancellation.
func (s *Service) CommitReservation(ctx context.Context, in CommitInput) (Transaction, error) {
	if err := in.validate(false); err != nil {
		return Transaction{}, err
	}
	if existing, err := s.Store.GetByExternalID(ctx, in.ExternalID); err == nil {
		return existing, nil
	}

	t, allUnits, err := s.build(ctx, in, StatusReserved)
	if err != nil {
		return Transaction{}, err
	}
	if err := s.Ledger.PinReserved(ctx, allUnits); err != nil {
		return Transaction{}, err
	}
	if err := s.Store.Create(ctx, &t); err != nil {
		if errors.Is(err, ErrDuplicate) {
			if existing, gerr := s.Store.GetByExternalID(ctx, in.ExternalID); gerr == nil {
				return existing, nil
			}
		}
		return Transaction{}, err
	}
	return t, nil
}

type Payment struct {
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Method     string          `json:"payment_method"`
}

// FinalizeReservation completes a Reserved transaction at the counter:
// units go reserved -> sold and the record becomes Completed.
func (s *Service) FinalizeReservation(ctx context.Context, id string, pay Payment) (Transaction, error) {
	if pay.Method == "" {
		return Transaction{}, fmt.Errorf("%w: missing payment method", ErrValidation)
	}
	t, err := s.Store.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.Status != StatusReserved {
		return Transaction{}, fmt.Errorf("%w: status is %s", ErrInvalidState, t.Status)
	}

	unitIDs, err := s.unitIDs(ctx, t)
	if err != nil {
		return Transaction{}, err
	}
	if err := s.Ledger.MarkSold(ctx, unitIDs); err != nil {
		return Transaction{}, err
	}
	change := pay.AmountPaid.Sub(t.TotalPrice.Sub(t.Discount))
	if err := s.Store.Finalize(ctx, id, pay.AmountPaid, change, pay.Method); err != nil {
		_ = s.Ledger.RevertSold(ctx, unitIDs)
		return Transaction{}, err
	}
	return s.Store.Get(ctx, id)
}

// CancelReservation voids a Reserved transaction before payment: its
// pinned units return to stock and the record is removed.
func (s *Service) CancelReservation(ctx context.Context, id string) error {
	t, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != StatusReserved {
		return fmt.Errorf("%w: status is %s", ErrInvalidState, t.Status)
	}
	unitIDs, err := s.unitIDs(ctx, t)
	if err != nil {
		return err
	}
	if err := s.Ledger.Release(ctx, unitIDs); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

// MarkRefunded flips a completed transaction to Refunded when an RMA refund
// resolves against it.
func (s *Service) MarkRefunded(ctx context.Context, id string) error {
	return s.Store.MarkRefunded(ctx, id)
}

func (s *Service) ReplaceSerial(ctx context.Context, id, oldSerial, newSerial string) error {
	return s.Store.ReplaceSerial(ctx, id, oldSerial, newSerial)
}

func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) GetByTransactionID(ctx context.Context, txnID string) (Transaction, error) {
	return s.Store.GetByTransactionID(ctx, txnID)
}

func (s *Service) List(ctx context.Context) ([]Transaction, error) {
	return s.Store.List(ctx)
}

func (s *Service) UpsertCustomer(ctx context.Context, c Customer) (string, error) {
	if c.Name == "" {
		return "", fmt.Errorf("%w: missing customer name", ErrValidation)
	}
	return s.Store.UpsertCustomer(ctx, c)
}

// unitIDs resolves the units a stored transaction refers to via the serial
// numbers on its lines.
func (s *Service) unitIDs(ctx context.Context, t Transaction) ([]string, error) {
	var ids []string
	for _, l := range t.Lines {
		for _, sn := range l.SerialNumbers {
			u, err := s.Ledger.GetUnitBySerial(ctx, l.ProductID, sn)
			if err != nil {
				return nil, err
			}
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// build assembles the transaction record from live product and unit state,
// re-validating every bound unit along the way.
func (s *Service) build(ctx context.Context, in CommitInput, status Status) (Transaction, []string, error) {
	now := s.Now()
	gross := decimal.Zero
	lines := make([]Line, 0, len(in.Lines))
	var allUnits []string

	for _, cl := range in.Lines {
		p, err := s.Ledger.GetProduct(ctx, cl.ProductID)
		if err != nil {
			return Transaction{}, nil, err
		}
		serials := make([]string, 0, len(cl.UnitIDs))
		for _, uid := range cl.UnitIDs {
			u, err := s.Ledger.GetUnit(ctx, uid)
			if err != nil {
				return Transaction{}, nil, err
			}
			if u.ProductID != cl.ProductID {
				return Transaction{}, nil, fmt.Errorf("%w: unit %s does not belong to product %s",
					ErrValidation, uid, cl.ProductID)
			}
			if u.Status != ledger.StatusReserved {
				return Transaction{}, nil, fmt.Errorf("%w: unit %s is %s, want reserved",
					ledger.ErrInvalidTransition, uid, u.Status)
			}
			serials = append(serials, u.SerialNumber)
		}
		qty := len(cl.UnitIDs)
		gross = gross.Add(p.SellingPrice.Mul(decimal.NewFromInt(int64(qty))))
		lines = append(lines, Line{
			ProductID:     p.ID,
			ProductName:   p.Name,
			Quantity:      qty,
			UnitPrice:     p.SellingPrice,
			SerialNumbers: serials,
		})
		allUnits = append(allUnits, cl.UnitIDs...)
	}

	totals := ComputeTotals(gross, in.Discount, in.AmountPaid)
	return Transaction{
		ID:            uuid.NewString(),
		TransactionID: txnHumanID(now),
		ExternalID:    in.ExternalID,
		CustomerID:    in.CustomerID,
		Lines:         lines,
		TotalPrice:    totals.Gross,
		VAT:           totals.VAT,
		Discount:      in.Discount,
		AmountPaid:    in.AmountPaid,
		Change:        totals.Change,
		PaymentMethod: in.PaymentMethod,
		Status:        status,
		Date:          now,
	}, allUnits, nil
}
