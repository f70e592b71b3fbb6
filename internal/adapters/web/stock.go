package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"chequebook/internal/app"
)

// apiListStock handles GET /api/stock.
func (h *Handler) apiListStock(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetStockLevels(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiAddStock handles POST /api/stock/{category}/add.
// Body: { quantity, unit_cost?, notes? }. unit_cost accepts a number or a decimal string.
func (h *Handler) apiAddStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int64           `json:"quantity" validate:"required,gt=0"`
		UnitCost decimal.Decimal `json:"unit_cost"`
		Notes    string          `json:"notes" validate:"max=500"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if body.UnitCost.IsNegative() {
		writeError(w, r, "unit_cost cannot be negative", "VALIDATION", http.StatusBadRequest)
		return
	}

	result, err := h.svc.AddStock(r.Context(), app.AddStockRequest{
		Category:   chi.URLParam(r, "category"),
		Quantity:   body.Quantity,
		UnitCost:   body.UnitCost,
		OperatorID: operatorID(r),
		Notes:      body.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// apiStockTransactions handles GET /api/stock/{category}/transactions?limit=.
func (h *Handler) apiStockTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := h.svc.ListStockTransactions(r.Context(), chi.URLParam(r, "category"), int(limit))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiConservation handles GET /api/stock/{category}/conservation.
func (h *Handler) apiConservation(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CheckConservation(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
