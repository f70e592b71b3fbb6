package app

import "chequebook/internal/core"

// BatchResult is returned by PrintBatch, PreviewBatch and ReprintBatch.
type BatchResult struct {
	core.BatchResult
	Branch *core.Branch `json:"branch,omitempty"`
}

// RangeCheckResult is returned by ValidateRange.
type RangeCheckResult struct {
	FirstSerial    int64  `json:"first_serial"`
	LastSerial     int64  `json:"last_serial"`
	Overlaps       bool   `json:"overlaps"`
	ConflictBranch string `json:"conflict_branch,omitempty"`
}

// EntryResult is returned by GetEntry.
type EntryResult struct {
	Entry core.LedgerEntry `json:"entry"`
}

// EntryListResult is returned by ListEntries.
type EntryListResult struct {
	Entries []core.LedgerEntry `json:"entries"`
}

// ExpandResult is returned by ExpandEntry.
type ExpandResult struct {
	Entry  core.LedgerEntry  `json:"entry"`
	Branch core.Branch       `json:"branch"`
	Units  []core.UnitRecord `json:"units"`
}

// TrackedUnitsResult is returned by ListTrackedUnits.
type TrackedUnitsResult struct {
	EntryID int64              `json:"entry_id"`
	Units   []core.PrintedUnit `json:"units"`
}

// CounterResult is returned by GetCounter.
type CounterResult struct {
	Counter    core.BranchSerialCounter `json:"counter"`
	NextSerial int64                    `json:"next_serial"`
}

// StockResult is returned by GetStockLevels.
type StockResult struct {
	Levels []core.InventoryStock `json:"levels"`
}

// StockLevelResult is returned by AddStock.
type StockLevelResult struct {
	Stock core.InventoryStock `json:"stock"`
}

// StockTransactionsResult is returned by ListStockTransactions.
type StockTransactionsResult struct {
	Category     core.StockCategory          `json:"category"`
	Transactions []core.InventoryTransaction `json:"transactions"`
}
