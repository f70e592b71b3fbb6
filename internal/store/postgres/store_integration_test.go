package postgres_test

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"chequebook/internal/core"
	"chequebook/internal/migration"
	"chequebook/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// testDatabaseURL returns TEST_DATABASE_URL, or starts a throwaway container
// when TEST_USE_CONTAINERS=1. Otherwise the test is skipped to protect any
// live database.
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	_ = godotenv.Load("../../../.env")

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("TEST_USE_CONTAINERS") != "1" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test to protect live database")
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("chequebook_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr, "failed to start PostgreSQL container")
	return containerDSN
}

type fixture struct {
	ctx     context.Context
	pool    *pgxpool.Pool
	store   *postgres.Store
	coord   *core.PrintCoordinator
	inv     *core.InventoryLedger
	branchA int64
	branchB int64
}

func setupTestDB(t *testing.T) *fixture {
	t.Helper()
	dbURL := testDatabaseURL(t)
	ctx := context.Background()

	m, err := migration.New(dbURL, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE inventory_transactions, printed_units, print_ledger_entries,
		               branch_serial_counters, branches RESTART IDENTITY CASCADE;

		UPDATE inventory_stock SET quantity = 1000, unit_cost = 0.25;
		INSERT INTO inventory_transactions (category, type, quantity, unit_cost, operator_id, notes)
		SELECT category, 'ADD', 1000, 0.25, 'seed', 'seed' FROM inventory_stock;

		INSERT INTO branches (code, name, routing_number) VALUES
		('A', 'Branch A', '11100011'),
		('B', 'Branch B', '22200022');
	`)
	require.NoError(t, err, "failed to seed test database")

	s := postgres.New(pool)
	inv := core.NewInventoryLedger(s, nil)
	return &fixture{
		ctx:     ctx,
		pool:    pool,
		store:   s,
		inv:     inv,
		coord:   core.NewPrintCoordinator(s, inv, nil),
		branchA: 1,
		branchB: 2,
	}
}

func (f *fixture) print(branchID, units int64, customStart *int64) (*core.BatchResult, error) {
	return f.coord.PrintBatch(f.ctx, core.PrintRequest{
		BranchID: branchID, InstrumentType: core.InstrumentIndividual, AccountRef: "100200300",
		UnitCount: units, CustomStart: customStart, OperatorID: "op-1",
	})
}

func ptr(v int64) *int64 { return &v }

func TestPostgres_PrintAndReprintScenarios(t *testing.T) {
	f := setupTestDB(t)

	res, err := f.print(f.branchA, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, core.SerialRange{First: 1, Last: 50}, res.Entry.Range())

	_, err = f.print(f.branchB, 50, ptr(1))
	require.ErrorIs(t, err, core.ErrConflict)
	assert.Contains(t, err.Error(), "Branch A")

	counterB, err := f.store.GetCounter(f.ctx, f.branchB)
	require.NoError(t, err)
	assert.False(t, counterB.Exists)

	_, err = f.coord.ReprintBatch(f.ctx, core.ReprintRequest{
		OriginalEntryID: res.Entry.ID, FirstSerial: 10, LastSerial: 12, Reason: core.ReasonNotPrinted, OperatorID: "op-1",
	})
	require.NoError(t, err)
	stock, err := f.store.GetStock(f.ctx, core.CategoryIndividual)
	require.NoError(t, err)
	assert.Equal(t, int64(950), stock.Quantity)

	_, err = f.coord.ReprintBatch(f.ctx, core.ReprintRequest{
		OriginalEntryID: res.Entry.ID, FirstSerial: 10, LastSerial: 12, Reason: core.ReasonDamaged, OperatorID: "op-1",
	})
	require.NoError(t, err)
	stock, err = f.store.GetStock(f.ctx, core.CategoryIndividual)
	require.NoError(t, err)
	assert.Equal(t, int64(947), stock.Quantity)

	_, err = f.coord.ReprintBatch(f.ctx, core.ReprintRequest{
		OriginalEntryID: res.Entry.ID, FirstSerial: 40, LastSerial: 60, Reason: core.ReasonDamaged, OperatorID: "op-1",
	})
	require.ErrorIs(t, err, core.ErrConflict)

	report, err := f.inv.CheckConservation(f.ctx, core.CategoryIndividual)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestPostgres_InsufficientStockRollsBack(t *testing.T) {
	f := setupTestDB(t)
	_, err := f.pool.Exec(f.ctx, `
		UPDATE inventory_stock SET quantity = 5 WHERE category = 'individual';
		INSERT INTO inventory_transactions (category, type, quantity, operator_id) VALUES ('individual', 'DEDUCT', 995, 'seed');
	`)
	require.NoError(t, err)

	_, err = f.print(f.branchA, 10, nil)
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	entries, err := f.store.ListEntries(f.ctx, core.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	counter, err := f.store.GetCounter(f.ctx, f.branchA)
	require.NoError(t, err)
	assert.False(t, counter.Exists)
}

func TestPostgres_ExclusionConstraintIsConflict(t *testing.T) {
	f := setupTestDB(t)
	_, err := f.print(f.branchA, 10, nil)
	require.NoError(t, err)

	// Bypass the validator to hit the constraint directly.
	err = f.store.InTx(f.ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.InsertEntry(ctx, &core.LedgerEntry{
			BranchID: f.branchB, InstrumentType: core.InstrumentIndividual, AccountRef: "1",
			FirstSerial: 5, LastSerial: 15, TotalUnits: 11, UnitsPerBook: 11, NumberOfBooks: 1,
			OperationType: core.OperationPrint, OperatorID: "op-1",
		})
	})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestPostgres_ConcurrentPrints(t *testing.T) {
	f := setupTestDB(t)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	entries := make(chan core.LedgerEntry, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(branch int64) {
			defer wg.Done()
			res, err := f.print(branch, 5, nil)
			if err != nil {
				errs <- err
				return
			}
			entries <- res.Entry
		}(f.branchA)
	}
	wg.Wait()
	close(errs)
	close(entries)

	for err := range errs {
		t.Errorf("concurrent print failed: %v", err)
	}

	var got []core.LedgerEntry
	for e := range entries {
		got = append(got, e)
	}
	require.Len(t, got, workers)
	sort.Slice(got, func(i, j int) bool { return got[i].FirstSerial < got[j].FirstSerial })
	for i, e := range got {
		assert.Equal(t, int64(i*5+1), e.FirstSerial)
	}

	stock, err := f.store.GetStock(f.ctx, core.CategoryIndividual)
	require.NoError(t, err)
	assert.Equal(t, int64(1000-workers*5), stock.Quantity)
}

func TestPostgres_CertifiedUnits(t *testing.T) {
	f := setupTestDB(t)
	res, err := f.coord.PrintBatch(f.ctx, core.PrintRequest{
		BranchID: f.branchA, InstrumentType: core.InstrumentCertified, AccountRef: "900",
		UnitCount: 4, OperatorID: "op-1",
	})
	require.NoError(t, err)

	units, err := f.store.ListUnits(f.ctx, res.Entry.ID)
	require.NoError(t, err)
	require.Len(t, units, 4)

	require.NoError(t, f.coord.AllowUnitReprint(f.ctx, "900", 2, "admin"))
	re, err := f.coord.ReprintBatch(f.ctx, core.ReprintRequest{
		OriginalEntryID: res.Entry.ID, FirstSerial: 2, LastSerial: 2, Reason: core.ReasonNotPrinted, OperatorID: "op-1",
	})
	require.NoError(t, err)

	moved, err := f.store.ListUnits(f.ctx, re.Entry.ID)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.True(t, moved[0].CanReprint)
}
