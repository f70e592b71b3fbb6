package app

import (
	"github.com/shopspring/decimal"

	"chequebook/internal/core"
)

// PrintBatchRequest is the input for PrintBatch and PreviewBatch.
type PrintBatchRequest struct {
	BranchID       int64
	InstrumentType string // empty means individual
	AccountRef     string
	UnitCount      int64
	UnitsPerBook   int64 // 0 prints one book
	CustomStart    *int64
	OperatorID     string
	Notes          string
}

func (r PrintBatchRequest) toCore() (core.PrintRequest, error) {
	instrument := core.InstrumentIndividual
	if r.InstrumentType != "" {
		var err error
		if instrument, err = core.ParseInstrumentType(r.InstrumentType); err != nil {
			return core.PrintRequest{}, err
		}
	}
	return core.PrintRequest{
		BranchID:       r.BranchID,
		InstrumentType: instrument,
		AccountRef:     r.AccountRef,
		UnitCount:      r.UnitCount,
		UnitsPerBook:   r.UnitsPerBook,
		CustomStart:    r.CustomStart,
		OperatorID:     r.OperatorID,
		Notes:          r.Notes,
	}, nil
}

// ReprintBatchRequest is the input for ReprintBatch. Reason is required.
type ReprintBatchRequest struct {
	OriginalEntryID int64
	FirstSerial     int64
	LastSerial      int64
	Reason          string // damaged or not_printed
	OperatorID      string
	Notes           string
}

func (r ReprintBatchRequest) toCore() (core.ReprintRequest, error) {
	reason, err := core.ParseReprintReason(r.Reason)
	if err != nil {
		return core.ReprintRequest{}, err
	}
	return core.ReprintRequest{
		OriginalEntryID: r.OriginalEntryID,
		FirstSerial:     r.FirstSerial,
		LastSerial:      r.LastSerial,
		Reason:          reason,
		OperatorID:      r.OperatorID,
		Notes:           r.Notes,
	}, nil
}

// ValidateRangeRequest is the input for ValidateRange. ExcludeEntryID skips
// one entry, so an amended entry is not reported against itself.
type ValidateRangeRequest struct {
	FirstSerial    int64
	LastSerial     int64
	ExcludeEntryID *int64
}

// ListEntriesRequest filters ListEntries. Zero values mean "any".
type ListEntriesRequest struct {
	BranchID      int64
	OperationType string // print, reprint
	Limit         int
}

// AllowUnitReprintRequest is the input for AllowUnitReprint.
type AllowUnitReprintRequest struct {
	AccountRef string
	UnitNumber int64
	OperatorID string
}

// AddStockRequest is the input for recording a paper receipt.
type AddStockRequest struct {
	Category   string
	Quantity   int64
	UnitCost   decimal.Decimal // zero keeps the current average cost
	OperatorID string
	Notes      string
}
