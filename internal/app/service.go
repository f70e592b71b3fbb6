package app

import (
	"context"

	"chequebook/internal/core"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// PrintBatch allocates, validates and commits a new print batch and
	// deducts its paper in one transaction.
	PrintBatch(ctx context.Context, req PrintBatchRequest) (*BatchResult, error)

	// PreviewBatch runs PrintBatch against the current ledger and rolls back.
	PreviewBatch(ctx context.Context, req PrintBatchRequest) (*BatchResult, error)

	// ReprintBatch records a reprint of a sub-range of a committed print.
	// Only a damaged reprint consumes paper.
	ReprintBatch(ctx context.Context, req ReprintBatchRequest) (*BatchResult, error)

	// ValidateRange reports whether [first, last] collides with a committed
	// print. The answer is advisory; PrintBatch checks again under the lock.
	ValidateRange(ctx context.Context, req ValidateRangeRequest) (*RangeCheckResult, error)

	// GetEntry returns one ledger entry by ID.
	GetEntry(ctx context.Context, id int64) (*EntryResult, error)

	// ListEntries returns ledger entries, newest first.
	ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryListResult, error)

	// ExpandEntry formats every unit of a committed entry for rendering.
	ExpandEntry(ctx context.Context, id int64) (*ExpandResult, error)

	// ListTrackedUnits returns the per-unit records currently owned by an entry.
	ListTrackedUnits(ctx context.Context, entryID int64) (*TrackedUnitsResult, error)

	// AllowUnitReprint is the administrative override on one tracked unit.
	AllowUnitReprint(ctx context.Context, req AllowUnitReprintRequest) error

	// GetCounter returns the branch serial counter. A branch that never
	// printed has a zero counter.
	GetCounter(ctx context.Context, branchID int64) (*CounterResult, error)

	// GetStockLevels returns the current stock of every category.
	GetStockLevels(ctx context.Context) (*StockResult, error)

	// AddStock records a paper receipt into a category.
	AddStock(ctx context.Context, req AddStockRequest) (*StockLevelResult, error)

	// ListStockTransactions returns the movements of a category, newest first.
	ListStockTransactions(ctx context.Context, category string, limit int) (*StockTransactionsResult, error)

	// CheckConservation compares a category's stock with its movement history.
	CheckConservation(ctx context.Context, category string) (*core.ConservationReport, error)
}
