package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurniawanc/pos-ledger/internal/events"
	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/redisx"
	"github.com/kurniawanc/pos-ledger/internal/reservation"
	"github.com/kurniawanc/pos-ledger/internal/rma"
	"github.com/kurniawanc/pos-ledger/internal/transaction"
)

// recordSink collects published envelopes in place of a Kafka producer.
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

func (s *recordSink) byType(eventType string) []events.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Envelope
	for _, ev := range s.envelopes {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type apiFixture struct {
	srv       *httptest.Server
	rdb       *redis.Client
	mr        *miniredis.Miniredis
	sink      *recordSink
	ledger    *ledger.MemoryStore
	productID string
}

func newAPIFixture(t *testing.T, serials ...string) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := &recordSink{}
	ls := ledger.NewMemoryStore(&events.UnitStatusPublisher{Sink: sink, Service: "pos-api-test"})
	pid := ls.SeedProduct(ledger.Product{
		Name:         "Label Printer LP-42",
		Category:     "Peripherals",
		SellingPrice: decimal.NewFromInt(560),
		WarrantyTerm: "12 Months",
	})
	for _, sn := range serials {
		_, err := ls.AddUnit(pid, sn)
		require.NoError(t, err)
	}

	txnSvc := transaction.NewService(ls, transaction.NewMemoryStore())
	rmaSvc := rma.NewService(ls, rma.NewMemoryStore(), txnSvc)

	r := NewRouter()
	(&ProductsHandler{Ledger: ls, Cart: &reservation.Manager{Ledger: ls, TTL: 15 * time.Minute}}).Register(r)
	(&TransactionsHandler{Svc: txnSvc, Redis: rdb, Producer: sink, Service: "pos-api-test"}).Register(r)
	(&RMAHandler{Svc: rmaSvc, Producer: sink, Service: "pos-api-test"}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, rdb: rdb, mr: mr, sink: sink, ledger: ls, productID: pid}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (f *apiFixture) bindLine(t *testing.T, qty int) map[string]any {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/cart/line", map[string]any{
		"product_id": f.productID,
		"quantity":   qty,
	})
	require.Equal(t, http.StatusOK, code)
	return body
}

func strSlice(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		out = append(out, x.(string))
	}
	return out
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSaleFlow(t *testing.T) {
	f := newAPIFixture(t, "SN1", "SN2", "SN3")

	code, cust := f.do(t, http.MethodPost, "/customer", map[string]any{
		"name": "Ana", "phone": "0812",
	})
	require.Equal(t, http.StatusOK, code)
	customerID := cust["_id"].(string)

	line := f.bindLine(t, 2)
	unitIDs := strSlice(line["unit_ids"])
	require.Len(t, unitIDs, 2)
	assert.Equal(t, []string{"SN1", "SN2"}, strSlice(line["serial_numbers"]))

	code, txn := f.do(t, http.MethodPost, "/transaction", map[string]any{
		"external_id":    "pos-001",
		"customer_id":    customerID,
		"lines":          []map[string]any{{"product_id": f.productID, "unit_ids": unitIDs}},
		"amount_paid":    1200,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code, "body: %v", txn)
	assert.Equal(t, string(transaction.StatusCompleted), txn["status"])
	assert.Equal(t, "1120", txn["total_price"])
	assert.Equal(t, "120", txn["vat"])
	assert.Equal(t, "80", txn["change"])
	txnID := txn["id"].(string)

	// commit cached the record and the idempotency key
	assert.True(t, f.mr.Exists(fmt.Sprintf(redisx.KeyTxnStatus, txnID)))
	assert.True(t, f.mr.Exists(fmt.Sprintf(redisx.KeyIdemCommit, "pos-001")))

	code, got := f.do(t, http.MethodGet, "/transaction/"+txnID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, txnID, got["id"])

	// the sale emitted a commit event and per-unit status events
	assert.Len(t, f.sink.byType(events.EventTransactionCommitted), 1)
	assert.NotEmpty(t, f.sink.byType(events.EventUnitStatusChanged))
}

func TestBindCartLineInsufficientStock(t *testing.T) {
	f := newAPIFixture(t, "SN1")
	code, body := f.do(t, http.MethodPost, "/cart/line", map[string]any{
		"product_id": f.productID,
		"quantity":   5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code, "body: %v", body)
}

func TestReleaseCartLine(t *testing.T) {
	f := newAPIFixture(t, "SN1")
	line := f.bindLine(t, 1)
	code, body := f.do(t, http.MethodDelete, "/cart/line", map[string]any{
		"unit_ids": line["unit_ids"],
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["released"])

	avail, err := f.ledger.ListAvailable(context.Background(), f.productID)
	require.NoError(t, err)
	assert.Len(t, avail, 1)
}

func TestOnlineReservationFlow(t *testing.T) {
	f := newAPIFixture(t, "SN1")
	line := f.bindLine(t, 1)

	code, txn := f.do(t, http.MethodPost, "/transaction/online-reservation", map[string]any{
		"external_id": "web-001",
		"customer_id": "cust-1",
		"lines":       []map[string]any{{"product_id": f.productID, "unit_ids": line["unit_ids"]}},
	})
	require.Equal(t, http.StatusCreated, code, "body: %v", txn)
	assert.Equal(t, string(transaction.StatusReserved), txn["status"])
	txnID := txn["id"].(string)

	code, done := f.do(t, http.MethodPut, "/transaction/"+txnID+"/finalize", map[string]any{
		"amount_paid":    600,
		"payment_method": "card",
	})
	require.Equal(t, http.StatusOK, code, "body: %v", done)
	assert.Equal(t, string(transaction.StatusCompleted), done["status"])
	assert.Equal(t, "40", done["change"])

	// both the reservation and the finalization were announced
	assert.Len(t, f.sink.byType(events.EventTransactionCommitted), 2)
}

func TestCancelReservation(t *testing.T) {
	f := newAPIFixture(t, "SN1")
	line := f.bindLine(t, 1)

	code, txn := f.do(t, http.MethodPost, "/transaction/online-reservation", map[string]any{
		"customer_id": "cust-1",
		"lines":       []map[string]any{{"product_id": f.productID, "unit_ids": line["unit_ids"]}},
	})
	require.Equal(t, http.StatusCreated, code)
	txnID := txn["id"].(string)

	code, body := f.do(t, http.MethodDelete, "/transaction/"+txnID, nil)
	require.Equal(t, http.StatusOK, code, "body: %v", body)
	assert.Equal(t, "cancelled", body["status"])
	assert.False(t, f.mr.Exists(fmt.Sprintf(redisx.KeyTxnStatus, txnID)))

	avail, err := f.ledger.ListAvailable(context.Background(), f.productID)
	require.NoError(t, err)
	assert.Len(t, avail, 1)
}

func TestRefundFlow(t *testing.T) {
	f := newAPIFixture(t, "SN1")
	line := f.bindLine(t, 1)

	code, txn := f.do(t, http.MethodPost, "/transaction", map[string]any{
		"customer_id":    "cust-1",
		"lines":          []map[string]any{{"product_id": f.productID, "unit_ids": line["unit_ids"]}},
		"amount_paid":    560,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code)

	code, created := f.do(t, http.MethodPost, "/rma", map[string]any{
		"transaction_id": txn["transaction_id"],
		"serial_number":  "SN1",
		"customer_name":  "Ana",
		"reason":         "defective",
	})
	require.Equal(t, http.StatusCreated, code, "body: %v", created)
	rmaID := created["rma_id"].(string)
	assert.Equal(t, string(rma.StatusPending), created["status"])

	code, refund := f.do(t, http.MethodPost, "/refund", map[string]any{
		"rma_id":        rmaID,
		"refund_amount": 560,
		"refund_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code, "body: %v", refund)
	assert.Equal(t, rmaID, refund["rma_id"])

	// a second refund against the same RMA conflicts
	code, _ = f.do(t, http.MethodPost, "/refund", map[string]any{
		"rma_id":        rmaID,
		"refund_amount": 560,
		"refund_method": "cash",
	})
	assert.Equal(t, http.StatusConflict, code)

	assert.Len(t, f.sink.byType(events.EventRMAResolved), 1)
}

func TestReplacementFlow(t *testing.T) {
	f := newAPIFixture(t, "SN1", "SN2")
	line := f.bindLine(t, 1)

	code, txn := f.do(t, http.MethodPost, "/transaction", map[string]any{
		"customer_id":    "cust-1",
		"lines":          []map[string]any{{"product_id": f.productID, "unit_ids": line["unit_ids"]}},
		"amount_paid":    560,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, code)
	txnID := txn["id"].(string)

	code, created := f.do(t, http.MethodPost, "/rma", map[string]any{
		"transaction_id": txn["transaction_id"],
		"serial_number":  "SN1",
	})
	require.Equal(t, http.StatusCreated, code)
	rmaID := created["rma_id"].(string)

	code, body := f.do(t, http.MethodPut, "/transaction/"+txnID+"/replace-units", map[string]any{
		"rmaId": rmaID,
		"products": []map[string]any{{
			"old_serial_number": "SN1",
			"new_serial_number": "SN2",
		}},
	})
	require.Equal(t, http.StatusOK, code, "body: %v", body)

	ctx := context.Background()
	oldU, err := f.ledger.GetUnitBySerial(ctx, f.productID, "SN1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReplaced, oldU.Status)
	newU, err := f.ledger.GetUnitBySerial(ctx, f.productID, "SN2")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSold, newU.Status)
}

func TestUnknownTransactionIs404(t *testing.T) {
	f := newAPIFixture(t)
	code, _ := f.do(t, http.MethodGet, "/transaction/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
