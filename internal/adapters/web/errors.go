package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"chequebook/internal/core"
	"chequebook/internal/logger"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []validationDetail `json:"details,omitempty"`
	Conflict  *core.Conflict     `json:"conflict,omitempty"`
	Shortfall *shortfall         `json:"shortfall,omitempty"`
}

type shortfall struct {
	Category  core.StockCategory `json:"category"`
	Available int64              `json:"available"`
	Required  int64              `json:"required"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: logger.GetRequestID(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a service error to its HTTP status by kind.
// Unclassified errors are logged and reported without their message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: logger.GetRequestID(r.Context()),
	}

	var status int
	switch kind := core.KindOf(err); kind {
	case core.KindValidation:
		status = http.StatusBadRequest
	case core.KindConflict:
		status = http.StatusConflict
		var oe *core.OverlapError
		if errors.As(err, &oe) {
			resp.Conflict = &oe.Conflict
		}
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindInsufficientStock:
		status = http.StatusUnprocessableEntity
		var se *core.InsufficientStockError
		if errors.As(err, &se) {
			resp.Shortfall = &shortfall{Category: se.Category, Available: se.Available, Required: se.Required}
		}
	case core.KindTransient:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		resp.Error = "internal server error"
		resp.Code = "INTERNAL_ERROR"
		writeErrorResponse(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Code = string(core.KindOf(err))
	writeErrorResponse(w, status, resp)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
