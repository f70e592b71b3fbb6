// Package postgres is the pgx-backed core.Store.
//
// Every ledger transaction takes a transaction-scoped advisory lock on a single
// key before reading the counter, so propose, validate and commit run one
// writer at a time across every branch and every server instance. The
// exclusion constraint on print_ledger_entries backs this up.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chequebook/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLedgerLockKey is the advisory lock key guarding the ledger.
const DefaultLedgerLockKey int64 = 0x43484551 // "CHEQ"

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool    *pgxpool.Pool
	lockKey int64
}

var _ core.Store = (*Store)(nil)

type Option func(*Store)

// WithLedgerLockKey overrides the advisory lock key, e.g. per test database.
func WithLedgerLockKey(key int64) Option {
	return func(s *Store) { s.lockKey = key }
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, lockKey: DefaultLedgerLockKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx runs fn in a READ COMMITTED transaction. The ledger lock serializes
// writers, so a stronger isolation level would only add retries.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{q: tx, lockKey: s.lockKey}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "failed to commit transaction")
	}
	return nil
}

// ── Reader ────────────────────────────────────────────────────────────────────

func (s *Store) GetCounter(ctx context.Context, branchID int64) (*core.BranchSerialCounter, error) {
	return getCounter(ctx, s.pool, branchID)
}

func (s *Store) FindOverlap(ctx context.Context, first, last int64, exclude *int64) (*core.Conflict, error) {
	return findOverlap(ctx, s.pool, first, last, exclude)
}

func (s *Store) GetBranch(ctx context.Context, id int64) (*core.Branch, error) {
	return getBranch(ctx, s.pool, id)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	return getEntry(ctx, s.pool, id, false)
}

func (s *Store) ListEntries(ctx context.Context, filter core.EntryFilter) ([]core.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.BranchID != 0 {
		args = append(args, filter.BranchID)
		where = append(where, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if filter.OperationType != "" {
		args = append(args, string(filter.OperationType))
		where = append(where, fmt.Sprintf("operation_type = $%d", len(args)))
	}

	query := "SELECT " + entryColumns + " FROM print_ledger_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "failed to list ledger entries")
	}
	defer rows.Close()

	entries := []core.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify(err, "failed to scan ledger entry")
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list ledger entries")
	}
	return entries, nil
}

func (s *Store) ListUnits(ctx context.Context, entryID int64) ([]core.PrintedUnit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_ref, unit_number, ledger_entry_id, can_reprint, updated_at
		FROM printed_units
		WHERE ledger_entry_id = $1
		ORDER BY account_ref, unit_number
	`, entryID)
	if err != nil {
		return nil, classify(err, "failed to list units of entry %d", entryID)
	}
	return collectUnits(rows)
}

func (s *Store) ListStock(ctx context.Context) ([]core.InventoryStock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, quantity, unit_cost, updated_at
		FROM inventory_stock
		ORDER BY CASE category WHEN 'individual' THEN 1 WHEN 'corporate' THEN 2 ELSE 3 END
	`)
	if err != nil {
		return nil, classify(err, "failed to list stock")
	}
	defer rows.Close()

	stock := []core.InventoryStock{}
	for rows.Next() {
		var st core.InventoryStock
		if err := rows.Scan(&st.Category, &st.Quantity, &st.UnitCost, &st.UpdatedAt); err != nil {
			return nil, classify(err, "failed to scan stock")
		}
		stock = append(stock, st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list stock")
	}
	return stock, nil
}

func (s *Store) GetStock(ctx context.Context, category core.StockCategory) (*core.InventoryStock, error) {
	return getStock(ctx, s.pool, category, false)
}

func (s *Store) ListInventoryTransactions(ctx context.Context, category core.StockCategory, limit int) ([]core.InventoryTransaction, error) {
	query := `
		SELECT id, category, type, quantity, unit_cost, operator_id,
		       first_serial, last_serial, ledger_entry_id, notes, created_at
		FROM inventory_transactions
		WHERE category = $1
		ORDER BY id DESC`
	args := []any{string(category)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "failed to list inventory transactions for %s", category)
	}
	defer rows.Close()

	txns := []core.InventoryTransaction{}
	for rows.Next() {
		var t core.InventoryTransaction
		if err := rows.Scan(
			&t.ID, &t.Category, &t.Type, &t.Quantity, &t.UnitCost, &t.OperatorID,
			&t.FirstSerial, &t.LastSerial, &t.LedgerEntryID, &t.Notes, &t.CreatedAt,
		); err != nil {
			return nil, classify(err, "failed to scan inventory transaction")
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to list inventory transactions for %s", category)
	}
	return txns, nil
}

func (s *Store) SumInventoryTransactions(ctx context.Context, category core.StockCategory) (int64, int64, error) {
	var added, deducted int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity) FILTER (WHERE type = 'ADD'), 0),
		       COALESCE(SUM(quantity) FILTER (WHERE type = 'DEDUCT'), 0)
		FROM inventory_transactions
		WHERE category = $1
	`, string(category)).Scan(&added, &deducted)
	if err != nil {
		return 0, 0, classify(err, "failed to sum inventory transactions for %s", category)
	}
	return added, deducted, nil
}

// ── Tx ────────────────────────────────────────────────────────────────────────

type pgTx struct {
	q       pgx.Tx
	lockKey int64
}

func (t *pgTx) LockLedger(ctx context.Context) error {
	if _, err := t.q.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", t.lockKey); err != nil {
		return classify(err, "failed to acquire ledger lock")
	}
	return nil
}

func (t *pgTx) GetCounter(ctx context.Context, branchID int64) (*core.BranchSerialCounter, error) {
	return getCounter(ctx, t.q, branchID)
}

func (t *pgTx) FindOverlap(ctx context.Context, first, last int64, exclude *int64) (*core.Conflict, error) {
	return findOverlap(ctx, t.q, first, last, exclude)
}

func (t *pgTx) GetBranch(ctx context.Context, id int64) (*core.Branch, error) {
	return getBranch(ctx, t.q, id)
}

func (t *pgTx) SaveCounter(ctx context.Context, c core.BranchSerialCounter) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO branch_serial_counters (branch_id, last_serial, custom_start_serial, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (branch_id) DO UPDATE
		SET last_serial         = GREATEST(branch_serial_counters.last_serial, EXCLUDED.last_serial),
		    custom_start_serial = COALESCE(EXCLUDED.custom_start_serial, branch_serial_counters.custom_start_serial),
		    updated_at          = NOW()
	`, c.BranchID, c.LastSerial, c.CustomStartSerial)
	if err != nil {
		return classify(err, "failed to save serial counter for branch %d", c.BranchID)
	}
	return nil
}

func (t *pgTx) GetEntry(ctx context.Context, id int64) (*core.LedgerEntry, error) {
	return getEntry(ctx, t.q, id, true)
}

func (t *pgTx) InsertEntry(ctx context.Context, e *core.LedgerEntry) error {
	var reason *string
	if e.ReprintReason != "" {
		r := string(e.ReprintReason)
		reason = &r
	}
	err := t.q.QueryRow(ctx, `
		INSERT INTO print_ledger_entries (
			branch_id, instrument_type, account_ref, first_serial, last_serial, total_units,
			units_per_book, number_of_books, operation_type, reprint_reason, original_entry_id,
			custom_start_serial, operator_id, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`,
		e.BranchID, string(e.InstrumentType), e.AccountRef, e.FirstSerial, e.LastSerial, e.TotalUnits,
		e.UnitsPerBook, e.NumberOfBooks, string(e.OperationType), reason, e.OriginalEntryID,
		e.CustomStartSerial, e.OperatorID, e.Notes,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return classify(err, "failed to insert ledger entry for serials %d-%d", e.FirstSerial, e.LastSerial)
	}
	return nil
}

func (t *pgTx) LockStock(ctx context.Context, category core.StockCategory) (*core.InventoryStock, error) {
	return getStock(ctx, t.q, category, true)
}

func (t *pgTx) UpdateStock(ctx context.Context, st core.InventoryStock) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE inventory_stock
		SET quantity = $1, unit_cost = $2, updated_at = NOW()
		WHERE category = $3
	`, st.Quantity, st.UnitCost, string(st.Category))
	if err != nil {
		return classify(err, "failed to update stock for %s", st.Category)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("stock category %s not found", st.Category)
	}
	return nil
}

func (t *pgTx) InsertInventoryTransaction(ctx context.Context, txn *core.InventoryTransaction) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO inventory_transactions (
			category, type, quantity, unit_cost, operator_id,
			first_serial, last_serial, ledger_entry_id, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`,
		string(txn.Category), string(txn.Type), txn.Quantity, txn.UnitCost, txn.OperatorID,
		txn.FirstSerial, txn.LastSerial, txn.LedgerEntryID, txn.Notes,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return classify(err, "failed to insert %s transaction for %s", txn.Type, txn.Category)
	}
	return nil
}

func (t *pgTx) ListUnitsInRange(ctx context.Context, accountRef string, first, last int64) ([]core.PrintedUnit, error) {
	rows, err := t.q.Query(ctx, `
		SELECT account_ref, unit_number, ledger_entry_id, can_reprint, updated_at
		FROM printed_units
		WHERE account_ref = $1 AND unit_number BETWEEN $2 AND $3
		ORDER BY unit_number
		FOR UPDATE
	`, accountRef, first, last)
	if err != nil {
		return nil, classify(err, "failed to list units %d-%d of account %s", first, last, accountRef)
	}
	return collectUnits(rows)
}

// InsertUnits bulk loads unit records with COPY.
func (t *pgTx) InsertUnits(ctx context.Context, units []core.PrintedUnit) error {
	if len(units) == 0 {
		return nil
	}
	_, err := t.q.CopyFrom(ctx,
		pgx.Identifier{"printed_units"},
		[]string{"account_ref", "unit_number", "ledger_entry_id", "can_reprint"},
		pgx.CopyFromSlice(len(units), func(i int) ([]any, error) {
			u := units[i]
			return []any{u.AccountRef, u.UnitNumber, u.LedgerEntryID, u.CanReprint}, nil
		}),
	)
	if err != nil {
		return classify(err, "failed to insert %d unit records", len(units))
	}
	return nil
}

func (t *pgTx) ReassignUnits(ctx context.Context, accountRef string, first, last, entryID int64, canReprint bool) error {
	_, err := t.q.Exec(ctx, `
		UPDATE printed_units
		SET ledger_entry_id = $1, can_reprint = $2, updated_at = NOW()
		WHERE account_ref = $3 AND unit_number BETWEEN $4 AND $5
	`, entryID, canReprint, accountRef, first, last)
	if err != nil {
		return classify(err, "failed to reassign units %d-%d of account %s", first, last, accountRef)
	}
	return nil
}

func (t *pgTx) SetUnitReprint(ctx context.Context, accountRef string, unitNumber int64, canReprint bool) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE printed_units
		SET can_reprint = $1, updated_at = NOW()
		WHERE account_ref = $2 AND unit_number = $3
	`, canReprint, accountRef, unitNumber)
	if err != nil {
		return classify(err, "failed to update unit %d of account %s", unitNumber, accountRef)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("unit %d of account %s not found", unitNumber, accountRef)
	}
	return nil
}

// ── shared queries ────────────────────────────────────────────────────────────

const entryColumns = `id, branch_id, instrument_type, account_ref, first_serial, last_serial,
	total_units, units_per_book, number_of_books, operation_type, reprint_reason,
	original_entry_id, custom_start_serial, operator_id, notes, created_at`

func scanEntry(row pgx.Row) (*core.LedgerEntry, error) {
	var (
		e      core.LedgerEntry
		reason *string
	)
	if err := row.Scan(
		&e.ID, &e.BranchID, &e.InstrumentType, &e.AccountRef, &e.FirstSerial, &e.LastSerial,
		&e.TotalUnits, &e.UnitsPerBook, &e.NumberOfBooks, &e.OperationType, &reason,
		&e.OriginalEntryID, &e.CustomStartSerial, &e.OperatorID, &e.Notes, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if reason != nil {
		e.ReprintReason = core.ReprintReason(*reason)
	}
	return &e, nil
}

func getEntry(ctx context.Context, q querier, id int64, forShare bool) (*core.LedgerEntry, error) {
	query := "SELECT " + entryColumns + " FROM print_ledger_entries WHERE id = $1"
	if forShare {
		query += " FOR SHARE"
	}
	e, err := scanEntry(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify(err, "ledger entry %d", id)
	}
	return e, nil
}

func getCounter(ctx context.Context, q querier, branchID int64) (*core.BranchSerialCounter, error) {
	c := core.BranchSerialCounter{BranchID: branchID}
	err := q.QueryRow(ctx, `
		SELECT last_serial, custom_start_serial, updated_at
		FROM branch_serial_counters
		WHERE branch_id = $1
	`, branchID).Scan(&c.LastSerial, &c.CustomStartSerial, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &c, nil
	}
	if err != nil {
		return nil, classify(err, "failed to read serial counter for branch %d", branchID)
	}
	c.Exists = true
	return &c, nil
}

// findOverlap uses the gist range index. The inclusive intersection test is
// spelled out so it reads the same as the in-memory store.
func findOverlap(ctx context.Context, q querier, first, last int64, exclude *int64) (*core.Conflict, error) {
	var c core.Conflict
	err := q.QueryRow(ctx, `
		SELECT e.id, e.branch_id, b.name, e.first_serial, e.last_serial
		FROM print_ledger_entries e
		JOIN branches b ON b.id = e.branch_id
		WHERE e.operation_type = 'print'
		  AND int8range(e.first_serial, e.last_serial, '[]') && int8range($1, $2, '[]')
		  AND e.first_serial <= $2 AND e.last_serial >= $1
		  AND ($3::bigint IS NULL OR e.id <> $3)
		ORDER BY e.id
		LIMIT 1
	`, first, last, exclude).Scan(&c.EntryID, &c.BranchID, &c.BranchName, &c.FirstSerial, &c.LastSerial)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "failed to scan for overlapping ranges")
	}
	return &c, nil
}

func getBranch(ctx context.Context, q querier, id int64) (*core.Branch, error) {
	var b core.Branch
	err := q.QueryRow(ctx, `
		SELECT id, code, name, routing_number FROM branches WHERE id = $1
	`, id).Scan(&b.ID, &b.Code, &b.Name, &b.RoutingNumber)
	if err != nil {
		return nil, classify(err, "branch %d", id)
	}
	return &b, nil
}

func getStock(ctx context.Context, q querier, category core.StockCategory, forUpdate bool) (*core.InventoryStock, error) {
	query := "SELECT category, quantity, unit_cost, updated_at FROM inventory_stock WHERE category = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var st core.InventoryStock
	err := q.QueryRow(ctx, query, string(category)).Scan(&st.Category, &st.Quantity, &st.UnitCost, &st.UpdatedAt)
	if err != nil {
		return nil, classify(err, "stock category %s", category)
	}
	return &st, nil
}

func collectUnits(rows pgx.Rows) ([]core.PrintedUnit, error) {
	defer rows.Close()
	units := []core.PrintedUnit{}
	for rows.Next() {
		var u core.PrintedUnit
		if err := rows.Scan(&u.AccountRef, &u.UnitNumber, &u.LedgerEntryID, &u.CanReprint, &u.UpdatedAt); err != nil {
			return nil, classify(err, "failed to scan unit record")
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to read unit records")
	}
	return units, nil
}
