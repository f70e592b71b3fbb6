package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// DefaultMaxBatchUnits bounds a print when no limit is configured.
	DefaultMaxBatchUnits int64 = 100_000
	// HardMaxBatchUnits bounds every configured limit.
	HardMaxBatchUnits int64 = 1_000_000
)

// PrintRequest asks for a new contiguous batch of serials for one branch.
type PrintRequest struct {
	BranchID       int64
	InstrumentType InstrumentType
	AccountRef     string
	UnitCount      int64
	UnitsPerBook   int64 // 0 prints the batch as a single book
	CustomStart    *int64
	OperatorID     string
	Notes          string
}

// Validate rejects malformed requests before any state is touched, using
// DefaultMaxBatchUnits as the batch limit.
func (r PrintRequest) Validate() error {
	return r.ValidateLimit(DefaultMaxBatchUnits)
}

// ValidateLimit is Validate with an explicit cap on the unit count.
func (r PrintRequest) ValidateLimit(maxUnits int64) error {
	if r.BranchID <= 0 {
		return validationf("branch id is required")
	}
	if !r.InstrumentType.IsValid() {
		return validationf("unknown instrument type %q", r.InstrumentType)
	}
	if _, err := padDigits("account", r.AccountRef, AccountWidth); err != nil {
		return err
	}
	if r.UnitCount < 1 {
		return validationf("unit count must be >= 1, got %d", r.UnitCount)
	}
	if r.UnitCount > maxUnits {
		return validationf("unit count %d exceeds the batch limit of %d units", r.UnitCount, maxUnits)
	}
	if r.UnitsPerBook < 0 {
		return validationf("units per book cannot be negative, got %d", r.UnitsPerBook)
	}
	if r.UnitsPerBook > 0 && r.UnitCount%r.UnitsPerBook != 0 {
		return validationf("unit count %d is not a whole number of books of %d units", r.UnitCount, r.UnitsPerBook)
	}
	if r.CustomStart != nil && *r.CustomStart < 1 {
		return validationf("custom start serial must be >= 1, got %d", *r.CustomStart)
	}
	if r.OperatorID == "" {
		return validationf("operator id is required")
	}
	return nil
}

func (r PrintRequest) unitsPerBook() int64 {
	if r.UnitsPerBook > 0 {
		return r.UnitsPerBook
	}
	return r.UnitCount
}

// ReprintRequest asks to print again a sub-range of a committed print.
type ReprintRequest struct {
	OriginalEntryID int64
	FirstSerial     int64
	LastSerial      int64
	Reason          ReprintReason
	OperatorID      string
	Notes           string
}

func (r ReprintRequest) Validate() error {
	if r.OriginalEntryID <= 0 {
		return validationf("original entry id is required")
	}
	if r.Reason == "" {
		return validationf("reprint reason is required (damaged or not_printed)")
	}
	if !r.Reason.IsValid() {
		return validationf("invalid reprint reason %q (expected damaged or not_printed)", r.Reason)
	}
	if err := r.Range().Validate(); err != nil {
		return err
	}
	if r.OperatorID == "" {
		return validationf("operator id is required")
	}
	return nil
}

func (r ReprintRequest) Range() SerialRange {
	return SerialRange{First: r.FirstSerial, Last: r.LastSerial}
}

// BatchResult is the outcome of a print or reprint.
type BatchResult struct {
	Entry LedgerEntry `json:"entry"`
	// Counter is the branch counter after a print; nil for reprints.
	Counter *BranchSerialCounter `json:"counter,omitempty"`
	// Stock is the category stock after a deduction; nil when nothing was deducted.
	Stock     *InventoryStock `json:"stock,omitempty"`
	Committed bool            `json:"committed"`
}

// errPreviewRollback unwinds a preview transaction after every step succeeded.
var errPreviewRollback = errors.New("preview rollback")

// PrintCoordinator runs allocation, overlap validation, ledger insert and
// inventory deduction as one all-or-nothing store transaction. The
// transaction takes the ledger lock first, so concurrent batches from any
// branch are serialized and cannot be granted overlapping ranges.
type PrintCoordinator struct {
	store     Store
	allocator SerialAllocator
	validator OverlapValidator
	inventory *InventoryLedger
	logger    *zap.Logger
	maxUnits  int64
}

// CoordinatorOption configures a PrintCoordinator.
type CoordinatorOption func(*PrintCoordinator)

// WithMaxBatchUnits caps the unit count of a print. n <= 0 keeps
// DefaultMaxBatchUnits and larger values are clamped to HardMaxBatchUnits.
func WithMaxBatchUnits(n int64) CoordinatorOption {
	return func(c *PrintCoordinator) {
		if n > 0 {
			c.maxUnits = min(n, HardMaxBatchUnits)
		}
	}
}

func NewPrintCoordinator(store Store, inventory *InventoryLedger, logger *zap.Logger, opts ...CoordinatorOption) *PrintCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inventory == nil {
		inventory = NewInventoryLedger(store, logger)
	}
	c := &PrintCoordinator{
		store:     store,
		inventory: inventory,
		logger:    logger.Named("print"),
		maxUnits:  DefaultMaxBatchUnits,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidatePrint checks req against the coordinator's batch limit.
func (c *PrintCoordinator) ValidatePrint(req PrintRequest) error {
	return req.ValidateLimit(c.maxUnits)
}

// PrintBatch commits a new print and returns the entry, the advanced counter
// and the remaining stock.
func (c *PrintCoordinator) PrintBatch(ctx context.Context, req PrintRequest) (*BatchResult, error) {
	return c.executePrint(ctx, req, true)
}

// PreviewBatch runs every step of PrintBatch against the current ledger and
// rolls back. The returned entry has no ID.
func (c *PrintCoordinator) PreviewBatch(ctx context.Context, req PrintRequest) (*BatchResult, error) {
	return c.executePrint(ctx, req, false)
}

func (c *PrintCoordinator) executePrint(ctx context.Context, req PrintRequest, commit bool) (*BatchResult, error) {
	if err := c.ValidatePrint(req); err != nil {
		return nil, err
	}
	category := req.InstrumentType.Category()

	var result BatchResult
	err := c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockLedger(ctx); err != nil {
			return err
		}
		if _, err := tx.GetBranch(ctx, req.BranchID); err != nil {
			return err
		}

		// 1. Propose.
		r, counter, err := c.allocator.AllocateRange(ctx, tx, req.BranchID, req.UnitCount, req.CustomStart)
		if err != nil {
			return err
		}

		// 2. Validate against every committed print.
		if err := c.validator.Check(ctx, tx, r, nil); err != nil {
			return err
		}

		// 3. Advance the counter.
		next := Advance(*counter, r, req.CustomStart)
		if err := tx.SaveCounter(ctx, next); err != nil {
			return err
		}

		// 4. Insert the ledger entry.
		perBook := req.unitsPerBook()
		entry := LedgerEntry{
			BranchID:          req.BranchID,
			InstrumentType:    req.InstrumentType,
			AccountRef:        req.AccountRef,
			FirstSerial:       r.First,
			LastSerial:        r.Last,
			TotalUnits:        r.Len(),
			UnitsPerBook:      perBook,
			NumberOfBooks:     r.Len() / perBook,
			OperationType:     OperationPrint,
			CustomStartSerial: req.CustomStart,
			OperatorID:        req.OperatorID,
			Notes:             req.Notes,
		}
		if err := tx.InsertEntry(ctx, &entry); err != nil {
			return err
		}

		// 5. Deduct paper for every unit. Runs before the tracked units are
		// built so a batch without stock fails without materializing them.
		stock, err := c.inventory.DeductStockTx(ctx, tx, DeductStockRequest{
			Category:      category,
			Quantity:      entry.TotalUnits,
			OperatorID:    req.OperatorID,
			Notes:         fmt.Sprintf("Print of entry %d, serials %s", entry.ID, r),
			Range:         &r,
			LedgerEntryID: int64Ptr(entry.ID),
		})
		if err != nil {
			return err
		}

		if req.InstrumentType.TracksUnits() {
			if err := tx.InsertUnits(ctx, newUnits(entry)); err != nil {
				return err
			}
		}

		result = BatchResult{Entry: entry, Counter: &next, Stock: stock, Committed: commit}
		if !commit {
			return errPreviewRollback
		}
		return nil
	})
	if errors.Is(err, errPreviewRollback) {
		result.Entry.ID = 0
		return &result, nil
	}
	if err != nil {
		c.logRejection("print rejected", err,
			zap.Int64("branch_id", req.BranchID),
			zap.Int64("unit_count", req.UnitCount),
			zap.String("operator_id", req.OperatorID),
		)
		return nil, err
	}

	c.logger.Info("print committed",
		zap.Int64("entry_id", result.Entry.ID),
		zap.Int64("branch_id", result.Entry.BranchID),
		zap.Int64("first_serial", result.Entry.FirstSerial),
		zap.Int64("last_serial", result.Entry.LastSerial),
		zap.String("category", string(category)),
		zap.String("operator_id", req.OperatorID),
	)
	return &result, nil
}

// ReprintBatch records a reprint of a sub-range of a committed print. The
// range must be contained in the original and is never clamped. Only a
// damaged reprint consumes paper.
func (c *PrintCoordinator) ReprintBatch(ctx context.Context, req ReprintRequest) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := req.Range()

	var result BatchResult
	err := c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockLedger(ctx); err != nil {
			return err
		}

		original, err := tx.GetEntry(ctx, req.OriginalEntryID)
		if err != nil {
			return err
		}
		if original.OperationType != OperationPrint {
			return validationf("entry %d is a reprint; reprint its original entry %s instead",
				original.ID, formatEntryRef(original.OriginalEntryID))
		}
		if !original.Range().Contains(r) {
			return conflictf("reprint range %s is outside the bounds %s of entry %d",
				r, original.Range(), original.ID)
		}

		tracked := original.InstrumentType.TracksUnits()
		if tracked {
			if err := checkUnitsReprintable(ctx, tx, original.AccountRef, r); err != nil {
				return err
			}
		}

		entry := LedgerEntry{
			BranchID:        original.BranchID,
			InstrumentType:  original.InstrumentType,
			AccountRef:      original.AccountRef,
			FirstSerial:     r.First,
			LastSerial:      r.Last,
			TotalUnits:      r.Len(),
			UnitsPerBook:    r.Len(),
			NumberOfBooks:   1,
			OperationType:   OperationReprint,
			ReprintReason:   req.Reason,
			OriginalEntryID: int64Ptr(original.ID),
			OperatorID:      req.OperatorID,
			Notes:           req.Notes,
		}
		if err := tx.InsertEntry(ctx, &entry); err != nil {
			return err
		}

		if tracked {
			if err := tx.ReassignUnits(ctx, entry.AccountRef, r.First, r.Last, entry.ID, true); err != nil {
				return err
			}
		}

		result = BatchResult{Entry: entry, Committed: true}
		if req.Reason.InventoryEffect() != EffectDeduct {
			return nil
		}
		stock, err := c.inventory.DeductStockTx(ctx, tx, DeductStockRequest{
			Category:      original.InstrumentType.Category(),
			Quantity:      entry.TotalUnits,
			OperatorID:    req.OperatorID,
			Notes:         fmt.Sprintf("Reprint (%s) of entry %d, serials %s", req.Reason, original.ID, r),
			Range:         &r,
			LedgerEntryID: int64Ptr(entry.ID),
		})
		if err != nil {
			return err
		}
		result.Stock = stock
		return nil
	})
	if err != nil {
		c.logRejection("reprint rejected", err,
			zap.Int64("original_entry_id", req.OriginalEntryID),
			zap.String("range", r.String()),
			zap.String("reason", string(req.Reason)),
		)
		return nil, err
	}

	c.logger.Info("reprint committed",
		zap.Int64("entry_id", result.Entry.ID),
		zap.Int64("original_entry_id", req.OriginalEntryID),
		zap.String("range", r.String()),
		zap.String("reason", string(req.Reason)),
		zap.Bool("stock_deducted", result.Stock != nil),
		zap.String("operator_id", req.OperatorID),
	)
	return &result, nil
}

// AllowUnitReprint is the administrative override that makes one tracked unit
// eligible for a reprint.
func (c *PrintCoordinator) AllowUnitReprint(ctx context.Context, accountRef string, unitNumber int64, operatorID string) error {
	err := validateUnitOverride(accountRef, unitNumber, operatorID)
	if err == nil {
		err = c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.LockLedger(ctx); err != nil {
				return err
			}
			return tx.SetUnitReprint(ctx, accountRef, unitNumber, true)
		})
	}
	if err != nil {
		c.logRejection("unit reprint rejected", err,
			zap.String("account_ref", accountRef),
			zap.Int64("unit_number", unitNumber),
			zap.String("operator_id", operatorID),
		)
		return err
	}
	c.logger.Info("unit reprint allowed",
		zap.String("account_ref", accountRef),
		zap.Int64("unit_number", unitNumber),
		zap.String("operator_id", operatorID),
	)
	return nil
}

// ValidateRange checks a range against the committed ledger without taking
// the ledger lock. The answer can be stale by the time a print commits.
func (c *PrintCoordinator) ValidateRange(ctx context.Context, r SerialRange, exclude *int64) error {
	return c.validator.Check(ctx, c.store, r, exclude)
}

// Expand loads a committed entry and its branch and formats every unit.
func (c *PrintCoordinator) Expand(ctx context.Context, entryID int64) ([]UnitRecord, error) {
	entry, err := c.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	branch, err := c.store.GetBranch(ctx, entry.BranchID)
	if err != nil {
		return nil, err
	}
	return ExpandEntry(*entry, *branch)
}

func validateUnitOverride(accountRef string, unitNumber int64, operatorID string) error {
	if accountRef == "" {
		return validationf("account is required")
	}
	if unitNumber < 1 {
		return validationf("unit number must be >= 1, got %d", unitNumber)
	}
	if operatorID == "" {
		return validationf("operator id is required")
	}
	return nil
}

func checkUnitsReprintable(ctx context.Context, tx Tx, accountRef string, r SerialRange) error {
	units, err := tx.ListUnitsInRange(ctx, accountRef, r.First, r.Last)
	if err != nil {
		return err
	}
	if int64(len(units)) != r.Len() {
		return conflictf("only %d of %d units in %s are tracked for account %s", len(units), r.Len(), r, accountRef)
	}
	for _, u := range units {
		if !u.CanReprint {
			return conflictf("unit %d of account %s is not allowed to be reprinted", u.UnitNumber, accountRef)
		}
	}
	return nil
}

func newUnits(entry LedgerEntry) []PrintedUnit {
	units := make([]PrintedUnit, 0, entry.TotalUnits)
	for n := entry.FirstSerial; n <= entry.LastSerial; n++ {
		units = append(units, PrintedUnit{
			AccountRef:    entry.AccountRef,
			UnitNumber:    n,
			LedgerEntryID: entry.ID,
		})
	}
	return units
}

func formatEntryRef(id *int64) string {
	if id == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *id)
}

// logRejection logs expected business rejections at warn and everything else
// at error.
func (c *PrintCoordinator) logRejection(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch KindOf(err) {
	case KindValidation, KindConflict, KindNotFound, KindInsufficientStock:
		c.logger.Warn(msg, fields...)
	default:
		c.logger.Error(msg, fields...)
	}
}
