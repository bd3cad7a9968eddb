package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kurniawanc/pos-ledger/internal/events"
	"github.com/kurniawanc/pos-ledger/internal/redisx"
	"github.com/kurniawanc/pos-ledger/internal/transaction"
)

type TransactionsHandler struct {
	Svc      *transaction.Service
	Redis    *redis.Client
	Producer events.Sink // pos.transaction.committed
	Service  string
}

func (h *TransactionsHandler) Register(r *chi.Mux) {
	r.Post("/customer", h.upsertCustomer)
	r.Post("/transaction", h.commit)
	r.Post("/transaction/online-reservation", h.commitReservation)
	r.Put("/transaction/{id}/finalize", h.finalize)
	r.Delete("/transaction/{id}", h.cancelReservation)
	r.Get("/transaction/{id}", h.getTransaction)
	r.Get("/transaction", h.listTransactions)
}

func (h *TransactionsHandler) upsertCustomer(w http.ResponseWriter, r *http.Request) {
	var c transaction.Customer
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := h.Svc.UpsertCustomer(ctx, c)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"_id": id})
}

func (h *TransactionsHandler) commit(w http.ResponseWriter, r *http.Request) {
	h.commitWith(w, r, h.Svc.Commit)
}

func (h *TransactionsHandler) commitReservation(w http.ResponseWriter, r *http.Request) {
	h.commitWith(w, r, h.Svc.CommitReservation)
}

func (h *TransactionsHandler) commitWith(w http.ResponseWriter, r *http.Request,
	commit func(context.Context, transaction.CommitInput) (transaction.Transaction, error)) {

	var in transaction.CommitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := commit(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, t)
	if in.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemCommit, in.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, t.ID, redisx.TTLIdempotency).Err()
	}
	h.publishCommitted(t)

	writeJSON(w, http.StatusCreated, t)
}

func (h *TransactionsHandler) finalize(w http.ResponseWriter, r *http.Request) {
	var pay transaction.Payment
	if err := json.NewDecoder(r.Body).Decode(&pay); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Svc.FinalizeReservation(ctx, chi.URLParam(r, "id"), pay)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, t)
	h.publishCommitted(t)
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionsHandler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.CancelReservation(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyTxnStatus, id)).Err()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *TransactionsHandler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// status reads are frequent on the register screen; try cache first
	key := fmt.Sprintf(redisx.KeyTxnStatus, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	t, err := h.Svc.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, t)
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionsHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ts, err := h.Svc.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *TransactionsHandler) cacheStatus(ctx context.Context, t transaction.Transaction) {
	key := fmt.Sprintf(redisx.KeyTxnStatus, t.ID)
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *TransactionsHandler) publishCommitted(t transaction.Transaction) {
	lines := make([]events.TransactionLine, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, events.TransactionLine{
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			SerialNumbers: l.SerialNumbers,
		})
	}
	events.Emit(h.Producer, h.Service, events.EventTransactionCommitted, t.ID, t.ID,
		events.TransactionCommittedPayload{
			TransactionID: t.TransactionID,
			Status:        string(t.Status),
			Lines:         lines,
			TotalPrice:    t.TotalPrice.String(),
		})
}
