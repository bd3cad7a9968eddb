package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kurniawanc/pos-ledger/internal/events"
	"github.com/kurniawanc/pos-ledger/internal/rma"
)

type RMAHandler struct {
	Svc      *rma.Service
	Producer events.Sink // pos.rma.resolved
	Service  string
}

func (h *RMAHandler) Register(r *chi.Mux) {
	r.Post("/rma", h.createRMA)
	r.Get("/rma", h.listRMAs)
	r.Get("/rma/{id}", h.getRMA)
	r.Put("/rma/{id}/approve", h.approveRMA)
	r.Put("/rma/{id}/reject", h.rejectRMA)
	r.Post("/refund", h.processRefund)
	r.Put("/transaction/{id}/replace-units", h.replaceUnits)
}

func (h *RMAHandler) createRMA(w http.ResponseWriter, r *http.Request) {
	var in rma.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	created, err := h.Svc.Create(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RMAHandler) listRMAs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rs, err := h.Svc.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *RMAHandler) getRMA(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	found, err := h.Svc.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

type approveReq struct {
	Process rma.Process `json:"process"`
}

func (h *RMAHandler) approveRMA(w http.ResponseWriter, r *http.Request) {
	var req approveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Approve(ctx, chi.URLParam(r, "id"), req.Process); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(rma.StatusApproved)})
}

func (h *RMAHandler) rejectRMA(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Reject(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(rma.StatusRejected)})
}

type processRefundReq struct {
	RMAID           string          `json:"rma_id"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundMethod    string          `json:"refund_method"`
	ReferenceNumber string          `json:"reference_number"`
}

func (h *RMAHandler) processRefund(w http.ResponseWriter, r *http.Request) {
	var req processRefundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.RMAID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing rma_id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	refund, err := h.Svc.ProcessRefund(ctx, req.RMAID, req.RefundAmount, req.RefundMethod, req.ReferenceNumber)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.publishResolved(refund.RMAID, refund.TransactionID, rma.ProcessRefund, refund.SerialNumber, "")
	writeJSON(w, http.StatusCreated, refund)
}

type replaceUnitsReq struct {
	RMAID    string `json:"rmaId"`
	Products []struct {
		OldSerialNumber string `json:"old_serial_number"`
		NewSerialNumber string `json:"new_serial_number"`
	} `json:"products"`
}

func (h *RMAHandler) replaceUnits(w http.ResponseWriter, r *http.Request) {
	var req replaceUnitsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.RMAID == "" || len(req.Products) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expect rmaId and exactly one unit swap"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	swap := req.Products[0]
	if err := h.Svc.ProcessReplacement(ctx, req.RMAID, swap.NewSerialNumber); err != nil {
		writeErr(w, err)
		return
	}
	h.publishResolved(req.RMAID, chi.URLParam(r, "id"), rma.ProcessReplacement,
		swap.OldSerialNumber, swap.NewSerialNumber)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(rma.StatusCompleted)})
}

func (h *RMAHandler) publishResolved(rmaID, txnID string, process rma.Process, serial, newSerial string) {
	events.Emit(h.Producer, h.Service, events.EventRMAResolved, rmaID, txnID,
		events.RMAResolvedPayload{
			RMAID:         rmaID,
			TransactionID: txnID,
			Process:       string(process),
			SerialNumber:  serial,
			NewSerial:     newSerial,
		})
}
