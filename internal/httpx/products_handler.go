package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/reservation"
)

type ProductsHandler struct {
	Ledger ledger.Store
	Cart   *reservation.Manager
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/product", h.listProducts)
	r.Get("/product/{id}", h.getProduct)
	r.Put("/product/bulk-update", h.bulkUpdateSales)
	r.Post("/cart/line", h.bindCartLine)
	r.Delete("/cart/line", h.releaseCartLine)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Ledger.ListProducts(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Ledger.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type bulkSalesReq []struct {
	ProductID string `json:"product_id"`
	Sales     int    `json:"sales"`
}

func (h *ProductsHandler) bulkUpdateSales(w http.ResponseWriter, r *http.Request) {
	var req bulkSalesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, item := range req {
		if item.ProductID == "" || item.Sales <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id or sales"})
			return
		}
		if err := h.Ledger.IncrementSales(ctx, item.ProductID, item.Sales); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(req)})
}

type bindCartLineReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type bindCartLineResp struct {
	ProductID     string   `json:"product_id"`
	UnitIDs       []string `json:"unit_ids"`
	SerialNumbers []string `json:"serial_numbers"`
}

func (h *ProductsHandler) bindCartLine(w http.ResponseWriter, r *http.Request) {
	var req bindCartLineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	units, err := h.Cart.BindCartLine(ctx, req.ProductID, req.Quantity)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := bindCartLineResp{ProductID: req.ProductID}
	for _, u := range units {
		resp.UnitIDs = append(resp.UnitIDs, u.ID)
		resp.SerialNumbers = append(resp.SerialNumbers, u.SerialNumber)
	}
	writeJSON(w, http.StatusOK, resp)
}

type releaseCartLineReq struct {
	UnitIDs []string `json:"unit_ids"`
}

func (h *ProductsHandler) releaseCartLine(w http.ResponseWriter, r *http.Request) {
	var req releaseCartLineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Cart.ReleaseCartLine(ctx, req.UnitIDs); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": len(req.UnitIDs)})
}
