package core

import "context"

// Store is the backing store of the print ledger. Implementations must make
// InTx all-or-nothing: if fn returns an error or the context ends before the
// commit, nothing fn wrote may become visible.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CounterReader is the slice of a store the allocator needs.
type CounterReader interface {
	// GetCounter returns the branch counter, or a zero counter with Exists=false
	// when the branch never allocated. It never creates the row.
	GetCounter(ctx context.Context, branchID int64) (*BranchSerialCounter, error)
}

// OverlapFinder is the slice of a store the overlap validator needs.
type OverlapFinder interface {
	// FindOverlap returns the first print entry, from any branch, whose range
	// intersects [first, last], or nil. exclude skips one entry id.
	FindOverlap(ctx context.Context, first, last int64, exclude *int64) (*Conflict, error)
}

// Reader holds the read operations available outside a transaction.
type Reader interface {
	CounterReader
	OverlapFinder
	GetBranch(ctx context.Context, id int64) (*Branch, error)
	GetEntry(ctx context.Context, id int64) (*LedgerEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
	ListUnits(ctx context.Context, entryID int64) ([]PrintedUnit, error)
	ListStock(ctx context.Context) ([]InventoryStock, error)
	GetStock(ctx context.Context, category StockCategory) (*InventoryStock, error)
	ListInventoryTransactions(ctx context.Context, category StockCategory, limit int) ([]InventoryTransaction, error)
	SumInventoryTransactions(ctx context.Context, category StockCategory) (added, deducted int64, err error)
}

// Tx is a store transaction. All writes go through a Tx.
type Tx interface {
	CounterReader
	OverlapFinder

	// LockLedger serializes every ledger writer. Overlap validation is global,
	// so the lock covers the whole ledger, not one branch.
	LockLedger(ctx context.Context) error

	GetBranch(ctx context.Context, id int64) (*Branch, error)
	SaveCounter(ctx context.Context, counter BranchSerialCounter) error

	GetEntry(ctx context.Context, id int64) (*LedgerEntry, error)
	// InsertEntry assigns ID and CreatedAt.
	InsertEntry(ctx context.Context, entry *LedgerEntry) error

	// LockStock returns the category row locked against concurrent writers.
	LockStock(ctx context.Context, category StockCategory) (*InventoryStock, error)
	UpdateStock(ctx context.Context, stock InventoryStock) error
	// InsertInventoryTransaction assigns ID and CreatedAt.
	InsertInventoryTransaction(ctx context.Context, txn *InventoryTransaction) error

	// ListUnitsInRange returns tracked units of accountRef within [first, last].
	ListUnitsInRange(ctx context.Context, accountRef string, first, last int64) ([]PrintedUnit, error)
	InsertUnits(ctx context.Context, units []PrintedUnit) error
	// ReassignUnits points every unit of accountRef in [first, last] at entryID.
	ReassignUnits(ctx context.Context, accountRef string, first, last, entryID int64, canReprint bool) error
	SetUnitReprint(ctx context.Context, accountRef string, unitNumber int64, canReprint bool) error
}
