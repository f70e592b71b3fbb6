package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chequebook/internal/cache"
	"chequebook/internal/config"
	"chequebook/internal/core"
	"chequebook/internal/metrics"
)

type appService struct {
	store       core.Store
	coordinator *core.PrintCoordinator
	inventory   *core.InventoryLedger
	validator   core.OverlapValidator
	branches    *cache.BranchCache
	metrics     *metrics.Metrics
	retry       retrier
	logger      *zap.Logger
}

// Deps are the collaborators of the application service. Only Store is
// required: a nil Branches reads the store directly, a nil Metrics records
// into a private registry and a nil Logger discards.
type Deps struct {
	Store    core.Store
	Branches *cache.BranchCache
	Metrics  *metrics.Metrics
	Retry    config.RetryConfig
	Logger   *zap.Logger

	// MaxBatchUnits caps a print; 0 uses core.DefaultMaxBatchUnits.
	MaxBatchUnits int64
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(deps Deps) ApplicationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	branches := deps.Branches
	if branches == nil {
		branches = cache.NewBranchCache(nil, deps.Store)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	inventory := core.NewInventoryLedger(deps.Store, logger)
	return &appService{
		store:       deps.Store,
		coordinator: core.NewPrintCoordinator(deps.Store, inventory, logger, core.WithMaxBatchUnits(deps.MaxBatchUnits)),
		inventory:   inventory,
		branches:    branches,
		metrics:     m,
		retry:       retrier{cfg: deps.Retry, logger: logger.Named("retry"), onRetry: m.Retried},
		logger:      logger,
	}
}

// PrintBatch resolves the branch through the cache before the ledger lock is
// taken, then commits the batch.
func (s *appService) PrintBatch(ctx context.Context, req PrintBatchRequest) (*BatchResult, error) {
	return s.print(ctx, "print", req, s.coordinator.PrintBatch)
}

// PreviewBatch runs the whole print without committing it.
func (s *appService) PreviewBatch(ctx context.Context, req PrintBatchRequest) (*BatchResult, error) {
	return s.print(ctx, "preview", req, s.coordinator.PreviewBatch)
}

func (s *appService) print(
	ctx context.Context,
	operation string,
	req PrintBatchRequest,
	run func(context.Context, core.PrintRequest) (*core.BatchResult, error),
) (*BatchResult, error) {
	coreReq, err := req.toCore()
	if err != nil {
		s.metrics.Rejected(operation, string(core.KindOf(err)))
		return nil, err
	}
	if err := s.coordinator.ValidatePrint(coreReq); err != nil {
		s.metrics.Rejected(operation, string(core.KindOf(err)))
		return nil, err
	}

	branch, err := s.branches.GetBranch(ctx, coreReq.BranchID)
	if err != nil {
		s.metrics.Rejected(operation, string(core.KindOf(err)))
		return nil, err
	}

	var res *core.BatchResult
	err = s.retry.do(ctx, operation, func() error {
		var err error
		res, err = run(ctx, coreReq)
		return err
	})
	if err != nil {
		s.metrics.Rejected(operation, string(core.KindOf(err)))
		return nil, err
	}

	if res.Committed {
		s.metrics.PrintCommitted(string(res.Entry.InstrumentType), res.Entry.TotalUnits)
		if res.Stock != nil {
			s.metrics.StockLevel(string(res.Stock.Category), res.Stock.Quantity)
		}
	}
	return &BatchResult{BatchResult: *res, Branch: branch}, nil
}

// ReprintBatch records a reprint; the branch is the one of the original entry.
func (s *appService) ReprintBatch(ctx context.Context, req ReprintBatchRequest) (*BatchResult, error) {
	coreReq, err := req.toCore()
	if err != nil {
		s.metrics.Rejected("reprint", string(core.KindOf(err)))
		return nil, err
	}

	var res *core.BatchResult
	err = s.retry.do(ctx, "reprint", func() error {
		var err error
		res, err = s.coordinator.ReprintBatch(ctx, coreReq)
		return err
	})
	if err != nil {
		s.metrics.Rejected("reprint", string(core.KindOf(err)))
		return nil, err
	}

	s.metrics.ReprintCommitted(string(res.Entry.ReprintReason), res.Entry.TotalUnits)
	if res.Stock != nil {
		s.metrics.StockLevel(string(res.Stock.Category), res.Stock.Quantity)
	}

	result := &BatchResult{BatchResult: *res}
	if branch, err := s.branches.GetBranch(ctx, res.Entry.BranchID); err == nil {
		result.Branch = branch
	}
	return result, nil
}

// ValidateRange checks a range against every committed print.
func (s *appService) ValidateRange(ctx context.Context, req ValidateRangeRequest) (*RangeCheckResult, error) {
	overlaps, branchName, err := s.validator.HasOverlap(ctx, s.store, req.FirstSerial, req.LastSerial, req.ExcludeEntryID)
	if err != nil {
		return nil, err
	}
	return &RangeCheckResult{
		FirstSerial:    req.FirstSerial,
		LastSerial:     req.LastSerial,
		Overlaps:       overlaps,
		ConflictBranch: branchName,
	}, nil
}

// GetEntry returns one ledger entry.
func (s *appService) GetEntry(ctx context.Context, id int64) (*EntryResult, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EntryResult{Entry: *entry}, nil
}

// ListEntries returns ledger entries, newest first.
func (s *appService) ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryListResult, error) {
	op, err := core.ParseOperationType(req.OperationType)
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, core.Validationf("limit cannot be negative, got %d", req.Limit)
	}
	entries, err := s.store.ListEntries(ctx, core.EntryFilter{
		BranchID:      req.BranchID,
		OperationType: op,
		Limit:         req.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &EntryListResult{Entries: entries}, nil
}

// ExpandEntry formats every unit of a committed entry.
func (s *appService) ExpandEntry(ctx context.Context, id int64) (*ExpandResult, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	branch, err := s.branches.GetBranch(ctx, entry.BranchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch of entry %d: %w", id, err)
	}
	units, err := core.ExpandEntry(*entry, *branch)
	if err != nil {
		return nil, err
	}
	return &ExpandResult{Entry: *entry, Branch: *branch, Units: units}, nil
}

// ListTrackedUnits returns the tracked units an entry currently owns. A
// reprint takes ownership of the units it reprinted.
func (s *appService) ListTrackedUnits(ctx context.Context, entryID int64) (*TrackedUnitsResult, error) {
	if _, err := s.store.GetEntry(ctx, entryID); err != nil {
		return nil, err
	}
	units, err := s.store.ListUnits(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return &TrackedUnitsResult{EntryID: entryID, Units: units}, nil
}

// AllowUnitReprint flags one tracked unit as eligible for a reprint.
func (s *appService) AllowUnitReprint(ctx context.Context, req AllowUnitReprintRequest) error {
	return s.retry.do(ctx, "allow_reprint", func() error {
		return s.coordinator.AllowUnitReprint(ctx, req.AccountRef, req.UnitNumber, req.OperatorID)
	})
}

// GetCounter returns the branch counter and the serial the next automatic
// allocation would start at.
func (s *appService) GetCounter(ctx context.Context, branchID int64) (*CounterResult, error) {
	if branchID <= 0 {
		return nil, core.Validationf("branch id is required")
	}
	if _, err := s.branches.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}
	counter, err := s.store.GetCounter(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return &CounterResult{Counter: *counter, NextSerial: counter.LastSerial + 1}, nil
}

// GetStockLevels returns every category and refreshes the stock gauges.
func (s *appService) GetStockLevels(ctx context.Context) (*StockResult, error) {
	levels, err := s.inventory.ListStock(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range levels {
		s.metrics.StockLevel(string(l.Category), l.Quantity)
	}
	return &StockResult{Levels: levels}, nil
}

// AddStock records a paper receipt.
func (s *appService) AddStock(ctx context.Context, req AddStockRequest) (*StockLevelResult, error) {
	category, err := core.ParseStockCategory(req.Category)
	if err != nil {
		return nil, err
	}

	var stock *core.InventoryStock
	err = s.retry.do(ctx, "add_stock", func() error {
		var err error
		stock, err = s.inventory.AddStock(ctx, core.AddStockRequest{
			Category:   category,
			Quantity:   req.Quantity,
			UnitCost:   req.UnitCost,
			OperatorID: req.OperatorID,
			Notes:      req.Notes,
		})
		return err
	})
	if err != nil {
		s.metrics.Rejected("add_stock", string(core.KindOf(err)))
		return nil, err
	}
	s.metrics.StockLevel(string(stock.Category), stock.Quantity)
	return &StockLevelResult{Stock: *stock}, nil
}

// ListStockTransactions returns the movements of a category.
func (s *appService) ListStockTransactions(ctx context.Context, category string, limit int) (*StockTransactionsResult, error) {
	c, err := core.ParseStockCategory(category)
	if err != nil {
		return nil, err
	}
	txns, err := s.inventory.ListTransactions(ctx, c, limit)
	if err != nil {
		return nil, err
	}
	return &StockTransactionsResult{Category: c, Transactions: txns}, nil
}

// CheckConservation compares stock with ΣADD − ΣDEDUCT of its movements.
func (s *appService) CheckConservation(ctx context.Context, category string) (*core.ConservationReport, error) {
	c, err := core.ParseStockCategory(category)
	if err != nil {
		return nil, err
	}
	report, err := s.inventory.CheckConservation(ctx, c)
	if err != nil {
		return nil, err
	}
	if !report.Balanced {
		s.logger.Error("stock conservation violated",
			zap.String("category", string(c)),
			zap.Int64("quantity", report.Quantity),
			zap.Int64("added", report.Added),
			zap.Int64("deducted", report.Deducted),
		)
	}
	return report, nil
}
