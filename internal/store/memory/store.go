// Package memory is an in-process core.Store for tests and local development.
//
// A single mutex spans every transaction. Writes are staged on a copy of the
// state and published only when the callback succeeds and the context is still
// live, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chequebook/internal/core"

	"github.com/shopspring/decimal"
)

type unitKey struct {
	account string
	number  int64
}

type state struct {
	branches  map[int64]core.Branch
	counters  map[int64]core.BranchSerialCounter
	entries   []core.LedgerEntry
	units     map[unitKey]core.PrintedUnit
	stock     map[core.StockCategory]core.InventoryStock
	txns      []core.InventoryTransaction
	nextEntry int64
	nextTxn   int64
}

func (s *state) clone() *state {
	c := &state{
		branches:  make(map[int64]core.Branch, len(s.branches)),
		counters:  make(map[int64]core.BranchSerialCounter, len(s.counters)),
		entries:   append([]core.LedgerEntry(nil), s.entries...),
		units:     make(map[unitKey]core.PrintedUnit, len(s.units)),
		stock:     make(map[core.StockCategory]core.InventoryStock, len(s.stock)),
		txns:      append([]core.InventoryTransaction(nil), s.txns...),
		nextEntry: s.nextEntry,
		nextTxn:   s.nextTxn,
	}
	for k, v := range s.branches {
		c.branches[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	return c
}

// Store implements core.Store in memory.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ core.Store = (*Store)(nil)

// New returns an empty store with every stock category seeded at zero.
func New() *Store {
	s := &Store{
		st: &state{
			branches: map[int64]core.Branch{},
			counters: map[int64]core.BranchSerialCounter{},
			units:    map[unitKey]core.PrintedUnit{},
			stock:    map[core.StockCategory]core.InventoryStock{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, c := range core.StockCategories {
		s.st.stock[c] = core.InventoryStock{Category: c, UnitCost: decimal.Zero, UpdatedAt: s.now()}
	}
	return s
}

// AddBranch registers a branch. A zero ID is assigned the next free one.
func (s *Store) AddBranch(b core.Branch) core.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		for id := range s.st.branches {
			if id > b.ID {
				b.ID = id
			}
		}
		b.ID++
	}
	s.st.branches[b.ID] = b
	return b
}

// InTx runs fn against a staged copy of the state and publishes it on success.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(ctx, &tx{st: staged, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// ── Reader ────────────────────────────────────────────────────────────────────

func (s *Store) GetCounter(ctx context.Context, branchID int64) (*core.BranchSerialCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCounter(s.st, branchID), nil
}

func (s *Store) FindOverlap(ctx context.Context, first, last int64, exclude *int64) (*core.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findOverlap(s.st, first, last, exclude), nil
}

func (s *Store) GetBranch(ctx context.Context, id int64) (*core.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBranch(s.st, id)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(s.st, id)
}

func (s *Store) ListEntries(ctx context.Context, filter core.EntryFilter) ([]core.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.LedgerEntry{}
	for i := len(s.st.entries) - 1; i >= 0; i-- {
		e := s.st.entries[i]
		if filter.BranchID != 0 && e.BranchID != filter.BranchID {
			continue
		}
		if filter.OperationType != "" && e.OperationType != filter.OperationType {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListUnits(ctx context.Context, entryID int64) ([]core.PrintedUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.PrintedUnit{}
	for _, u := range s.st.units {
		if u.LedgerEntryID == entryID {
			out = append(out, u)
		}
	}
	sortUnits(out)
	return out, nil
}

func (s *Store) ListStock(ctx context.Context) ([]core.InventoryStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.InventoryStock, 0, len(core.StockCategories))
	for _, c := range core.StockCategories {
		if st, ok := s.st.stock[c]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) GetStock(ctx context.Context, category core.StockCategory) (*core.InventoryStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStock(s.st, category)
}

func (s *Store) ListInventoryTransactions(ctx context.Context, category core.StockCategory, limit int) ([]core.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.InventoryTransaction{}
	for i := len(s.st.txns) - 1; i >= 0; i-- {
		t := s.st.txns[i]
		if t.Category != category {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SumInventoryTransactions(ctx context.Context, category core.StockCategory) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var added, deducted int64
	for _, t := range s.st.txns {
		if t.Category != category {
			continue
		}
		switch t.Type {
		case core.InventoryAdd:
			added += t.Quantity
		case core.InventoryDeduct:
			deducted += t.Quantity
		}
	}
	return added, deducted, nil
}

// ── Tx ────────────────────────────────────────────────────────────────────────

type tx struct {
	st  *state
	now func() time.Time
}

// LockLedger is a no-op: the store mutex is already held for the whole transaction.
func (t *tx) LockLedger(ctx context.Context) error { return ctx.Err() }

func (t *tx) GetCounter(ctx context.Context, branchID int64) (*core.BranchSerialCounter, error) {
	return getCounter(t.st, branchID), nil
}

func (t *tx) FindOverlap(ctx context.Context, first, last int64, exclude *int64) (*core.Conflict, error) {
	return findOverlap(t.st, first, last, exclude), nil
}

func (t *tx) GetBranch(ctx context.Context, id int64) (*core.Branch, error) {
	return getBranch(t.st, id)
}

func (t *tx) SaveCounter(ctx context.Context, counter core.BranchSerialCounter) error {
	if _, ok := t.st.branches[counter.BranchID]; !ok {
		return core.NotFoundf("branch %d not found", counter.BranchID)
	}
	counter.Exists = true
	counter.UpdatedAt = t.now()
	t.st.counters[counter.BranchID] = counter
	return nil
}

func (t *tx) GetEntry(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	return getEntry(t.st, id)
}

func (t *tx) InsertEntry(ctx context.Context, entry *core.LedgerEntry) error {
	if entry.OperationType == core.OperationPrint {
		if c := findOverlap(t.st, entry.FirstSerial, entry.LastSerial, nil); c != nil {
			return core.ConflictError(
				fmt.Sprintf("serial range %d-%d collides with entry %d", entry.FirstSerial, entry.LastSerial, c.EntryID), nil)
		}
	}
	t.st.nextEntry++
	entry.ID = t.st.nextEntry
	entry.CreatedAt = t.now()
	t.st.entries = append(t.st.entries, *entry)
	return nil
}

func (t *tx) LockStock(ctx context.Context, category core.StockCategory) (*core.InventoryStock, error) {
	return getStock(t.st, category)
}

func (t *tx) UpdateStock(ctx context.Context, stock core.InventoryStock) error {
	if _, ok := t.st.stock[stock.Category]; !ok {
		return core.NotFoundf("stock category %s not found", stock.Category)
	}
	if stock.Quantity < 0 {
		return core.ConflictError(fmt.Sprintf("stock for %s cannot go negative", stock.Category), nil)
	}
	stock.UpdatedAt = t.now()
	t.st.stock[stock.Category] = stock
	return nil
}

func (t *tx) InsertInventoryTransaction(ctx context.Context, txn *core.InventoryTransaction) error {
	t.st.nextTxn++
	txn.ID = t.st.nextTxn
	txn.CreatedAt = t.now()
	t.st.txns = append(t.st.txns, *txn)
	return nil
}

func (t *tx) ListUnitsInRange(ctx context.Context, accountRef string, first, last int64) ([]core.PrintedUnit, error) {
	out := []core.PrintedUnit{}
	for n := first; n <= last; n++ {
		if u, ok := t.st.units[unitKey{accountRef, n}]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (t *tx) InsertUnits(ctx context.Context, units []core.PrintedUnit) error {
	now := t.now()
	for _, u := range units {
		k := unitKey{u.AccountRef, u.UnitNumber}
		if _, ok := t.st.units[k]; ok {
			return core.ConflictError(fmt.Sprintf("unit %d of account %s already exists", u.UnitNumber, u.AccountRef), nil)
		}
		u.UpdatedAt = now
		t.st.units[k] = u
	}
	return nil
}

func (t *tx) ReassignUnits(ctx context.Context, accountRef string, first, last, entryID int64, canReprint bool) error {
	now := t.now()
	for n := first; n <= last; n++ {
		k := unitKey{accountRef, n}
		u, ok := t.st.units[k]
		if !ok {
			continue
		}
		u.LedgerEntryID = entryID
		u.CanReprint = canReprint
		u.UpdatedAt = now
		t.st.units[k] = u
	}
	return nil
}

func (t *tx) SetUnitReprint(ctx context.Context, accountRef string, unitNumber int64, canReprint bool) error {
	k := unitKey{accountRef, unitNumber}
	u, ok := t.st.units[k]
	if !ok {
		return core.NotFoundf("unit %d of account %s not found", unitNumber, accountRef)
	}
	u.CanReprint = canReprint
	u.UpdatedAt = t.now()
	t.st.units[k] = u
	return nil
}

// ── shared lookups ────────────────────────────────────────────────────────────

func getCounter(st *state, branchID int64) *core.BranchSerialCounter {
	if c, ok := st.counters[branchID]; ok {
		return &c
	}
	return &core.BranchSerialCounter{BranchID: branchID}
}

// findOverlap returns the lowest-id print entry intersecting [first, last].
func findOverlap(st *state, first, last int64, exclude *int64) *core.Conflict {
	for _, e := range st.entries {
		if e.OperationType != core.OperationPrint {
			continue
		}
		if exclude != nil && e.ID == *exclude {
			continue
		}
		if e.FirstSerial <= last && e.LastSerial >= first {
			return &core.Conflict{
				EntryID:     e.ID,
				BranchID:    e.BranchID,
				BranchName:  st.branches[e.BranchID].Name,
				FirstSerial: e.FirstSerial,
				LastSerial:  e.LastSerial,
			}
		}
	}
	return nil
}

func getBranch(st *state, id int64) (*core.Branch, error) {
	b, ok := st.branches[id]
	if !ok {
		return nil, core.NotFoundf("branch %d not found", id)
	}
	return &b, nil
}

func getEntry(st *state, id int64) (*core.LedgerEntry, error) {
	i := sort.Search(len(st.entries), func(i int) bool { return st.entries[i].ID >= id })
	if i == len(st.entries) || st.entries[i].ID != id {
		return nil, core.NotFoundf("ledger entry %d not found", id)
	}
	e := st.entries[i]
	return &e, nil
}

func getStock(st *state, category core.StockCategory) (*core.InventoryStock, error) {
	s, ok := st.stock[category]
	if !ok {
		return nil, core.NotFoundf("stock category %s not found", category)
	}
	return &s, nil
}

func sortUnits(units []core.PrintedUnit) {
	sort.Slice(units, func(i, j int) bool {
		if units[i].AccountRef != units[j].AccountRef {
			return units[i].AccountRef < units[j].AccountRef
		}
		return units[i].UnitNumber < units[j].UnitNumber
	})
}
