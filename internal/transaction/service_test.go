package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
)

type fixture struct {
	svc       *Service
	ledger    *ledger.MemoryStore
	store     *MemoryStore
	productID string
	unitIDs   []string
}

// newFixture seeds one product with reserved units, ready to commit.
func newFixture(t *testing.T, serials ...string) *fixture {
	t.Helper()
	ls := ledger.NewMemoryStore(nil)
	pid := ls.SeedProduct(ledger.Product{
		Name:         "Receipt Printer RP-58",
		Category:     "Peripherals",
		SellingPrice: decimal.NewFromInt(560),
		WarrantyTerm: "12 Months",
	})
	ctx := context.Background()
	ids := make([]string, 0, len(serials))
	for _, sn := range serials {
		u, err := ls.AddUnit(pid, sn)
		require.NoError(t, err)
		_, err = ls.Reserve(ctx, u.ID, time.Now().Add(15*time.Minute))
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	ms := NewMemoryStore()
	return &fixture{
		svc:       NewService(ls, ms),
		ledger:    ls,
		store:     ms,
		productID: pid,
		unitIDs:   ids,
	}
}

func (f *fixture) commitInput(externalID string) CommitInput {
	paid := decimal.NewFromInt(int64(560 * len(f.unitIDs)))
	return CommitInput{
		ExternalID:    externalID,
		CustomerID:    "cust-1",
		Lines:         []CommitLine{{ProductID: f.productID, UnitIDs: f.unitIDs}},
		Discount:      decimal.Zero,
		AmountPaid:    paid,
		PaymentMethod: "cash",
	}
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1", "SN2")

	txn, err := f.svc.Commit(ctx, f.commitInput("pos-001"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, txn.Status)
	assert.Regexp(t, `^TXN-\d{8}-[0-9a-f\-]{6}$`, txn.TransactionID)
	assert.True(t, txn.TotalPrice.Equal(decimal.NewFromInt(1120)))
	assert.True(t, txn.VAT.Equal(decimal.NewFromInt(120)))
	assert.True(t, txn.Change.IsZero())
	require.Len(t, txn.Lines, 1)
	assert.Equal(t, []string{"SN1", "SN2"}, txn.Lines[0].SerialNumbers)

	for _, id := range f.unitIDs {
		u, err := f.ledger.GetUnit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusSold, u.Status)
	}
}

func TestCommitIdempotentByExternalID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")

	first, err := f.svc.Commit(ctx, f.commitInput("pos-001"))
	require.NoError(t, err)
	second, err := f.svc.Commit(ctx, f.commitInput("pos-001"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCommitRejectsUnreservedUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1", "SN2")

	// the hold on SN2 lapsed and was swept back to stock
	require.NoError(t, f.ledger.Release(ctx, []string{f.unitIDs[1]}))

	_, err := f.svc.Commit(ctx, f.commitInput("pos-001"))
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)

	// nothing was sold and no record survives
	u, err := f.ledger.GetUnit(ctx, f.unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReserved, u.Status)
	all, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

type createFailStore struct {
	Store
}

func (s createFailStore) Create(ctx context.Context, t *Transaction) error {
	return errors.New("store down")
}

func TestCommitRevertsUnitsWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")
	f.svc.Store = createFailStore{Store: f.store}

	_, err := f.svc.Commit(ctx, f.commitInput("pos-001"))
	require.Error(t, err)

	// units go back to reserved so the cashier can retry the same cart
	u, err := f.ledger.GetUnit(ctx, f.unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReserved, u.Status)
}

func TestCommitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")

	in := f.commitInput("pos-001")
	in.PaymentMethod = ""
	_, err := f.svc.Commit(ctx, in)
	assert.ErrorIs(t, err, ErrValidation)

	in = f.commitInput("pos-002")
	in.Discount = decimal.NewFromInt(-5)
	_, err = f.svc.Commit(ctx, in)
	assert.ErrorIs(t, err, ErrValidation)

	in = f.commitInput("pos-003")
	in.Lines = nil
	_, err = f.svc.Commit(ctx, in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCommitReservationAndFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")

	in := f.commitInput("web-001")
	in.PaymentMethod = "" // no payment yet for an online reservation
	in.AmountPaid = decimal.Zero

	txn, err := f.svc.CommitReservation(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, txn.Status)

	// the pinned unit carries no expiry, so sweeping cannot reclaim it
	u, err := f.ledger.GetUnit(ctx, f.unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReserved, u.Status)
	assert.Nil(t, u.ReserveExpiresAt)
	released, err := f.ledger.SweepExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, released)

	got, err := f.svc.FinalizeReservation(ctx, txn.ID, Payment{
		AmountPaid: decimal.NewFromInt(600),
		Method:     "card",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, got.Change.Equal(decimal.NewFromInt(40)))

	u, err = f.ledger.GetUnit(ctx, f.unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSold, u.Status)

	// finalizing twice is rejected
	_, err = f.svc.FinalizeReservation(ctx, txn.ID, Payment{
		AmountPaid: decimal.NewFromInt(600),
		Method:     "card",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")

	in := f.commitInput("web-001")
	in.PaymentMethod = ""
	in.AmountPaid = decimal.Zero
	txn, err := f.svc.CommitReservation(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelReservation(ctx, txn.ID))

	// unit back in stock, record gone
	u, err := f.ledger.GetUnit(ctx, f.unitIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusInStock, u.Status)
	_, err = f.svc.Get(ctx, txn.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelReservationRejectsCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")

	txn, err := f.svc.Commit(ctx, f.commitInput("pos-001"))
	require.NoError(t, err)

	err = f.svc.CancelReservation(ctx, txn.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFinalizeRequiresPaymentMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")
	_, err := f.svc.FinalizeReservation(ctx, "whatever", Payment{AmountPaid: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpsertCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "SN1")

	id1, err := f.svc.UpsertCustomer(ctx, Customer{Name: "Ana", Phone: "0812"})
	require.NoError(t, err)
	// same phone updates in place instead of duplicating
	id2, err := f.svc.UpsertCustomer(ctx, Customer{Name: "Ana Maria", Phone: "0812"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, err = f.svc.UpsertCustomer(ctx, Customer{Phone: "0813"})
	assert.ErrorIs(t, err, ErrValidation)
}
