package web

import (
	"net/http"

	"chequebook/internal/app"
)

type printBody struct {
	BranchID       int64  `json:"branch_id" validate:"required,gt=0"`
	InstrumentType string `json:"instrument_type" validate:"omitempty,oneof=individual corporate certified"`
	AccountRef     string `json:"account_ref" validate:"required,numeric,max=12"`
	UnitCount      int64  `json:"unit_count" validate:"required,gt=0,lte=1000000"`
	UnitsPerBook   int64  `json:"units_per_book" validate:"gte=0"`
	CustomStart    *int64 `json:"custom_start" validate:"omitempty,gt=0"`
	Notes          string `json:"notes" validate:"max=500"`
}

func (b printBody) toRequest(operatorID string) app.PrintBatchRequest {
	return app.PrintBatchRequest{
		BranchID:       b.BranchID,
		InstrumentType: b.InstrumentType,
		AccountRef:     b.AccountRef,
		UnitCount:      b.UnitCount,
		UnitsPerBook:   b.UnitsPerBook,
		CustomStart:    b.CustomStart,
		OperatorID:     operatorID,
		Notes:          b.Notes,
	}
}

// apiPrintBatch handles POST /api/prints.
// Body: { branch_id, account_ref, unit_count, instrument_type?, units_per_book?, custom_start?, notes? }
func (h *Handler) apiPrintBatch(w http.ResponseWriter, r *http.Request) {
	var body printBody
	if !h.decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.PrintBatch(r.Context(), body.toRequest(operatorID(r)))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// apiPreviewBatch handles POST /api/prints/preview. Nothing is committed.
func (h *Handler) apiPreviewBatch(w http.ResponseWriter, r *http.Request) {
	var body printBody
	if !h.decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.PreviewBatch(r.Context(), body.toRequest(operatorID(r)))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiValidateRange handles POST /api/prints/validate-range.
// Body: { first_serial, last_serial, exclude_entry_id? }
func (h *Handler) apiValidateRange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FirstSerial    int64  `json:"first_serial" validate:"required,gt=0"`
		LastSerial     int64  `json:"last_serial" validate:"required,gtefield=FirstSerial"`
		ExcludeEntryID *int64 `json:"exclude_entry_id" validate:"omitempty,gt=0"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.ValidateRange(r.Context(), app.ValidateRangeRequest{
		FirstSerial:    body.FirstSerial,
		LastSerial:     body.LastSerial,
		ExcludeEntryID: body.ExcludeEntryID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiReprintBatch handles POST /api/prints/{id}/reprints.
// Body: { first_serial, last_serial, reason, notes? }. reason has no default.
func (h *Handler) apiReprintBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		FirstSerial int64  `json:"first_serial" validate:"required,gt=0"`
		LastSerial  int64  `json:"last_serial" validate:"required,gtefield=FirstSerial"`
		Reason      string `json:"reason" validate:"required,oneof=damaged not_printed"`
		Notes       string `json:"notes" validate:"max=500"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.ReprintBatch(r.Context(), app.ReprintBatchRequest{
		OriginalEntryID: id,
		FirstSerial:     body.FirstSerial,
		LastSerial:      body.LastSerial,
		Reason:          body.Reason,
		OperatorID:      operatorID(r),
		Notes:           body.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// apiListEntries handles GET /api/prints?branch_id=&operation_type=&limit=.
func (h *Handler) apiListEntries(w http.ResponseWriter, r *http.Request) {
	branchID, ok := queryInt(w, r, "branch_id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := h.svc.ListEntries(r.Context(), app.ListEntriesRequest{
		BranchID:      branchID,
		OperationType: r.URL.Query().Get("operation_type"),
		Limit:         int(limit),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiGetEntry handles GET /api/prints/{id}.
func (h *Handler) apiGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetEntry(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiExpandEntry handles GET /api/prints/{id}/units.
func (h *Handler) apiExpandEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.ExpandEntry(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiTrackedUnits handles GET /api/prints/{id}/tracked-units.
func (h *Handler) apiTrackedUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.ListTrackedUnits(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiAllowUnitReprint handles POST /api/units/allow-reprint.
// Body: { account_ref, unit_number }
func (h *Handler) apiAllowUnitReprint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountRef string `json:"account_ref" validate:"required,numeric,max=12"`
		UnitNumber int64  `json:"unit_number" validate:"required,gt=0"`
	}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	err := h.svc.AllowUnitReprint(r.Context(), app.AllowUnitReprintRequest{
		AccountRef: body.AccountRef,
		UnitNumber: body.UnitNumber,
		OperatorID: operatorID(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiGetCounter handles GET /api/branches/{id}/counter.
func (h *Handler) apiGetCounter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetCounter(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
