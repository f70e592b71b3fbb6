package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chequebook/internal/adapters/cli"
	"chequebook/internal/app"
	"chequebook/internal/core"
	"chequebook/internal/store/memory"
)

func newCLI(t *testing.T) (func(args ...string) (string, error), core.Branch) {
	t.Helper()
	s := memory.New()
	branch := s.AddBranch(core.Branch{Code: "A", Name: "Branch A", RoutingNumber: "11100011"})
	svc := app.NewAppService(app.Deps{Store: s})

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		err := cli.Run(context.Background(), svc, args, "cli-op", &out)
		return out.String(), err
	}
	return run, branch
}

func TestRun_PrintFlow(t *testing.T) {
	run, _ := newCLI(t)

	out, err := run("add-stock", "-category", "individual", "-qty", "100", "-cost", "0.30")
	require.NoError(t, err)
	assert.Contains(t, out, "Stock of individual is now 100")

	out, err = run("print", "-branch", "1", "-account", "123", "-units", "20", "-per-book", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "PRINT COMMITTED")
	assert.Contains(t, out, "1-20  (20 units, 2 books)")
	assert.Contains(t, out, "80 individual remaining")

	out, err = run("reprint", "-entry", "1", "-first", "5", "-last", "6", "-reason", "damaged")
	require.NoError(t, err)
	assert.Contains(t, out, "REPRINT COMMITTED")
	assert.Contains(t, out, "78 individual remaining")

	out, err = run("counter", "-branch", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "next serial 21")

	out, err = run("expand", "-entry", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "01011100011000000000123000000020")

	out, err = run("conserve", "-category", "individual")
	require.NoError(t, err)
	assert.Contains(t, out, "added 100, deducted 22: OK")
}

func TestRun_JSONOutput(t *testing.T) {
	run, _ := newCLI(t)
	_, err := run("add-stock", "-category", "corporate", "-qty", "10")
	require.NoError(t, err)

	out, err := run("preview", "-branch", "1", "-account", "9", "-units", "4", "-type", "corporate", "-json")
	require.NoError(t, err)

	var res app.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Committed)
	assert.Equal(t, "cli-op", res.Entry.OperatorID)

	out, err = run("stock", "-json")
	require.NoError(t, err)
	var stock app.StockResult
	require.NoError(t, json.Unmarshal([]byte(out), &stock))
	for _, l := range stock.Levels {
		if l.Category == core.CategoryCorporate {
			assert.Equal(t, int64(10), l.Quantity)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	run, _ := newCLI(t)

	_, err := run()
	assert.ErrorIs(t, err, cli.ErrUsage)

	_, err = run("shred")
	assert.ErrorIs(t, err, cli.ErrUsage)

	_, err = run("print", "-units", "many")
	assert.ErrorIs(t, err, cli.ErrUsage)

	_, err = run("reprint", "-entry", "1", "-first", "1", "-last", "1")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = run("print", "-branch", "1", "-account", "1", "-units", "5")
	assert.ErrorIs(t, err, core.ErrInsufficientStock)
}
