package stockwatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurniawanc/pos-ledger/internal/events"
	kafkax "github.com/kurniawanc/pos-ledger/internal/kafka"
	"github.com/kurniawanc/pos-ledger/internal/ledger"
)

type recordSink struct {
	mu        sync.Mutex
	envelopes []events.Envelope
}

func (s *recordSink) Publish(key, value []byte, headers ...kafkago.Header) {
	var ev events.Envelope
	if err := json.Unmarshal(value, &ev); err != nil {
		return
	}
	s.mu.Lock()
	s.envelopes = append(s.envelopes, ev)
	s.mu.Unlock()
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envelopes)
}

func newService(t *testing.T, threshold, units int) (*Service, *ledger.MemoryStore, string, *recordSink) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ls := ledger.NewMemoryStore(nil)
	pid := ls.SeedProduct(ledger.Product{
		Name:              "POS Terminal T-200",
		SellingPrice:      decimal.NewFromInt(2240),
		LowStockThreshold: threshold,
	})
	serials := []string{"SN1", "SN2", "SN3", "SN4"}
	for i := 0; i < units; i++ {
		_, err := ls.AddUnit(pid, serials[i])
		require.NoError(t, err)
	}

	sink := &recordSink{}
	return &Service{
		Ledger:      ls,
		Redis:       rdb,
		Alerts:      sink,
		ServiceName: "pos-stockwatch-test",
	}, ls, pid, sink
}

func statusMessage(t *testing.T, productID string, to ledger.Status) kafkago.Message {
	t.Helper()
	env := events.Envelope{
		EventID:      uuid.NewString(),
		EventType:    events.EventUnitStatusChanged,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "pos-api",
		Payload: kafkax.MustMarshal(events.UnitStatusChangedPayload{
			ProductID: productID,
			UnitID:    uuid.NewString(),
			To:        string(to),
			At:        time.Now().UTC(),
		}),
	}
	return kafkago.Message{Key: []byte(productID), Value: kafkax.MustMarshal(env)}
}

func TestHandleUnitStatusCountsSales(t *testing.T) {
	ctx := context.Background()
	svc, ls, pid, _ := newService(t, 0, 2)

	require.NoError(t, svc.HandleUnitStatus(ctx, statusMessage(t, pid, ledger.StatusSold)))

	p, err := ls.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Sales)
}

func TestHandleUnitStatusDedupByEventID(t *testing.T) {
	ctx := context.Background()
	svc, ls, pid, _ := newService(t, 0, 2)

	m := statusMessage(t, pid, ledger.StatusSold)
	require.NoError(t, svc.HandleUnitStatus(ctx, m))
	// redelivery of the same event must not count twice
	require.NoError(t, svc.HandleUnitStatus(ctx, m))

	p, err := ls.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Sales)
}

func TestHandleUnitStatusIgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	svc, ls, pid, _ := newService(t, 0, 2)

	env := events.Envelope{
		EventID:   uuid.NewString(),
		EventType: events.EventTransactionCommitted,
		Payload:   kafkax.MustMarshal(events.TransactionCommittedPayload{}),
	}
	m := kafkago.Message{Value: kafkax.MustMarshal(env)}
	require.NoError(t, svc.HandleUnitStatus(ctx, m))

	p, err := ls.GetProduct(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Sales)
}

func TestLowStockAlertOncePerEpisode(t *testing.T) {
	ctx := context.Background()
	svc, ls, pid, sink := newService(t, 2, 3)

	// take one unit out of the pool for real so the count drops to 2
	u, err := ls.GetUnitBySerial(ctx, pid, "SN1")
	require.NoError(t, err)
	_, err = ls.Reserve(ctx, u.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, svc.HandleUnitStatus(ctx, statusMessage(t, pid, ledger.StatusReserved)))
	assert.Equal(t, 1, sink.count())

	// still low, but the episode was already announced
	require.NoError(t, svc.HandleUnitStatus(ctx, statusMessage(t, pid, ledger.StatusReserved)))
	assert.Equal(t, 1, sink.count())

	// stock recovery re-arms the alert
	require.NoError(t, ls.Release(ctx, []string{u.ID}))
	require.NoError(t, svc.HandleUnitStatus(ctx, statusMessage(t, pid, ledger.StatusInStock)))
	_, err = ls.Reserve(ctx, u.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, svc.HandleUnitStatus(ctx, statusMessage(t, pid, ledger.StatusReserved)))
	assert.Equal(t, 2, sink.count())
}

func TestNoAlertAboveThreshold(t *testing.T) {
	ctx := context.Background()
	svc, _, pid, sink := newService(t, 1, 4)

	require.NoError(t, svc.HandleUnitStatus(ctx, statusMessage(t, pid, ledger.StatusReserved)))
	assert.Equal(t, 0, sink.count())
}
