// Package cli is the one-shot command adapter of the print ledger.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"chequebook/internal/app"
)

// ErrUsage is returned for an unknown command or malformed flags.
var ErrUsage = errors.New("usage error")

const usage = `Usage: chequebook <command> [flags]

Commands:
  print       commit a new print batch
  preview     run a print batch without committing it
  reprint     reprint a sub-range of a committed print
  expand      list the encoded line of every unit of an entry
  entries     list ledger entries
  counter     show a branch serial counter
  stock       show paper stock of every category
  add-stock   record a paper receipt
  movements   list the stock movements of a category
  conserve    check that a category's stock matches its movements
  allow-reprint  allow one tracked unit to be reprinted

Run "chequebook <command> -h" for the flags of a command.`

// Run executes a one-shot CLI command, writing results to out.
// args is os.Args[1:]; the first element is the subcommand name.
// operator is the default operator id for commands that change the ledger.
func Run(ctx context.Context, svc app.ApplicationService, args []string, operator string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return ErrUsage
	}
	r := &runner{svc: svc, out: out, operator: operator}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "print":
		return r.print(ctx, rest, false)
	case "preview":
		return r.print(ctx, rest, true)
	case "reprint":
		return r.reprint(ctx, rest)
	case "expand":
		return r.expand(ctx, rest)
	case "entries", "ls":
		return r.entries(ctx, rest)
	case "counter":
		return r.counter(ctx, rest)
	case "stock":
		return r.stock(ctx, rest)
	case "add-stock":
		return r.addStock(ctx, rest)
	case "movements":
		return r.movements(ctx, rest)
	case "conserve":
		return r.conserve(ctx, rest)
	case "allow-reprint":
		return r.allowReprint(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n%s\n", cmd, usage)
		return ErrUsage
	}
}

type runner struct {
	svc      app.ApplicationService
	out      io.Writer
	operator string
}

func (r *runner) flags(name string) (*flag.FlagSet, *bool, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.out)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	operator := fs.String("operator", r.operator, "operator id recorded on the ledger")
	return fs, asJSON, operator
}

func (r *runner) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func (r *runner) print(ctx context.Context, args []string, preview bool) error {
	name := "print"
	if preview {
		name = "preview"
	}
	fs, asJSON, operator := r.flags(name)
	branch := fs.Int64("branch", 0, "branch id (required)")
	account := fs.String("account", "", "account number, up to 12 digits (required)")
	units := fs.Int64("units", 0, "number of units (required)")
	perBook := fs.Int64("per-book", 0, "units per book; 0 prints one book")
	instrument := fs.String("type", "individual", "instrument type: individual, corporate or certified")
	start := fs.Int64("start", 0, "custom start serial; 0 continues the branch counter")
	notes := fs.String("notes", "", "free-text notes")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	req := app.PrintBatchRequest{
		BranchID:       *branch,
		InstrumentType: *instrument,
		AccountRef:     *account,
		UnitCount:      *units,
		UnitsPerBook:   *perBook,
		OperatorID:     *operator,
		Notes:          *notes,
	}
	if *start > 0 {
		req.CustomStart = start
	}

	var (
		res *app.BatchResult
		err error
	)
	if preview {
		res, err = r.svc.PreviewBatch(ctx, req)
	} else {
		res, err = r.svc.PrintBatch(ctx, req)
	}
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}
	r.printBatch(res)
	return nil
}

func (r *runner) reprint(ctx context.Context, args []string) error {
	fs, asJSON, operator := r.flags("reprint")
	entry := fs.Int64("entry", 0, "original print entry id (required)")
	first := fs.Int64("first", 0, "first serial to reprint (required)")
	last := fs.Int64("last", 0, "last serial to reprint (required)")
	reason := fs.String("reason", "", "damaged or not_printed (required)")
	notes := fs.String("notes", "", "free-text notes")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	res, err := r.svc.ReprintBatch(ctx, app.ReprintBatchRequest{
		OriginalEntryID: *entry,
		FirstSerial:     *first,
		LastSerial:      *last,
		Reason:          *reason,
		OperatorID:      *operator,
		Notes:           *notes,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}
	r.printBatch(res)
	return nil
}

func (r *runner) expand(ctx context.Context, args []string) error {
	fs, asJSON, _ := r.flags("expand")
	entry := fs.Int64("entry", 0, "ledger entry id (required)")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	res, err := r.svc.ExpandEntry(ctx, *entry)
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}

	fmt.Fprintf(r.out, "Entry %d  branch %s (%s)  account %s  %s\n",
		res.Entry.ID, res.Branch.Code, res.Branch.Name, res.Entry.AccountRef, res.Entry.InstrumentType)
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBOOK\tSERIAL\tENCODED LINE")
	for _, u := range res.Units {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", u.UnitIndex, u.BookNumber, u.FormattedSerial, u.EncodedLine)
	}
	return tw.Flush()
}

func (r *runner) entries(ctx context.Context, args []string) error {
	fs, asJSON, _ := r.flags("entries")
	branch := fs.Int64("branch", 0, "only entries of this branch")
	op := fs.String("op", "", "print or reprint")
	limit := fs.Int("limit", 20, "maximum entries; 0 lists all")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	res, err := r.svc.ListEntries(ctx, app.ListEntriesRequest{BranchID: *branch, OperationType: *op, Limit: *limit})
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBRANCH\tOP\tTYPE\tACCOUNT\tRANGE\tUNITS\tOPERATOR")
	for _, e := range res.Entries {
		op := string(e.OperationType)
		if e.ReprintReason != "" {
			op += " (" + string(e.ReprintReason) + ")"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.BranchID, op, e.InstrumentType, e.AccountRef, e.Range(), e.TotalUnits, e.OperatorID)
	}
	return tw.Flush()
}

func (r *runner) counter(ctx context.Context, args []string) error {
	fs, asJSON, _ := r.flags("counter")
	branch := fs.Int64("branch", 0, "branch id (required)")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	res, err := r.svc.GetCounter(ctx, *branch)
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}
	fmt.Fprintf(r.out, "Branch %d: last serial %d, next serial %d\n",
		res.Counter.BranchID, res.Counter.LastSerial, res.NextSerial)
	if res.Counter.CustomStartSerial != nil {
		fmt.Fprintf(r.out, "Last custom start: %d\n", *res.Counter.CustomStartSerial)
	}
	return nil
}

func (r *runner) stock(ctx context.Context, args []string) error {
	fs, asJSON, _ := r.flags("stock")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	res, err := r.svc.GetStockLevels(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}

	fmt.Fprintln(r.out, strings.Repeat("=", 52))
	fmt.Fprintf(r.out, "  %-14s %10s %12s %12s\n", "CATEGORY", "ON HAND", "UNIT COST", "VALUE")
	fmt.Fprintln(r.out, strings.Repeat("-", 52))
	for _, s := range res.Levels {
		fmt.Fprintf(r.out, "  %-14s %10d %12s %12s\n",
			s.Category, s.Quantity, s.UnitCost.StringFixed(4), s.Value().StringFixed(2))
	}
	fmt.Fprintln(r.out, strings.Repeat("=", 52))
	return nil
}

func (r *runner) addStock(ctx context.Context, args []string) error {
	fs, asJSON, operator := r.flags("add-stock")
	category := fs.String("category", "", "individual, corporate or certified (required)")
	quantity := fs.Int64("qty", 0, "units received (required)")
	cost := fs.String("cost", "", "unit cost of the receipt; empty keeps the average")
	notes := fs.String("notes", "", "free-text notes")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	unitCost := decimal.Zero
	if *cost != "" {
		d, err := decimal.NewFromString(*cost)
		if err != nil {
			return fmt.Errorf("%w: invalid -cost %q", ErrUsage, *cost)
		}
		unitCost = d
	}

	res, err := r.svc.AddStock(ctx, app.AddStockRequest{
		Category:   *category,
		Quantity:   *quantity,
		UnitCost:   unitCost,
		OperatorID: *operator,
		Notes:      *notes,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}
	fmt.Fprintf(r.out, "Stock of %s is now %d (unit cost %s)\n",
		res.Stock.Category, res.Stock.Quantity, res.Stock.UnitCost.StringFixed(4))
	return nil
}

func (r *runner) movements(ctx context.Context, args []string) error {
	fs, asJSON, _ := r.flags("movements")
	category := fs.String("category", "", "individual, corporate or certified (required)")
	limit := fs.Int("limit", 20, "maximum movements; 0 lists all")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	res, err := r.svc.ListStockTransactions(ctx, *category, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(res)
	}

	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tQTY\tENTRY\tOPERATOR\tNOTES")
	for _, t := range res.Transactions {
		entry := "-"
		if t.LedgerEntryID != nil {
			entry = fmt.Sprintf("%d", *t.LedgerEntryID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", t.ID, t.Type, t.Quantity, entry, t.OperatorID, t.Notes)
	}
	return tw.Flush()
}

func (r *runner) conserve(ctx context.Context, args []string) error {
	fs, asJSON, _ := r.flags("conserve")
	category := fs.String("category", "", "individual, corporate or certified (required)")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	report, err := r.svc.CheckConservation(ctx, *category)
	if err != nil {
		return err
	}
	if *asJSON {
		return r.json(report)
	}
	status := "OK"
	if !report.Balanced {
		status = "MISMATCH"
	}
	fmt.Fprintf(r.out, "%s: on hand %d, added %d, deducted %d: %s\n",
		report.Category, report.Quantity, report.Added, report.Deducted, status)
	return nil
}

func (r *runner) allowReprint(ctx context.Context, args []string) error {
	fs, _, operator := r.flags("allow-reprint")
	account := fs.String("account", "", "account number (required)")
	unit := fs.Int64("unit", 0, "unit number (required)")
	if err := r.parse(fs, args); err != nil {
		return err
	}

	if err := r.svc.AllowUnitReprint(ctx, app.AllowUnitReprintRequest{
		AccountRef: *account,
		UnitNumber: *unit,
		OperatorID: *operator,
	}); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Unit %d of account %s may be reprinted\n", *unit, *account)
	return nil
}

func (r *runner) printBatch(res *app.BatchResult) {
	e := res.Entry
	state := "COMMITTED"
	if !res.Committed {
		state = "PREVIEW (not committed)"
	}
	fmt.Fprintln(r.out, strings.Repeat("=", 52))
	fmt.Fprintf(r.out, "  %s %s\n", strings.ToUpper(string(e.OperationType)), state)
	if e.ID != 0 {
		fmt.Fprintf(r.out, "  Entry    : %d\n", e.ID)
	}
	if res.Branch != nil {
		fmt.Fprintf(r.out, "  Branch   : %s (%s)\n", res.Branch.Code, res.Branch.Name)
	}
	fmt.Fprintf(r.out, "  Account  : %s  %s\n", e.AccountRef, e.InstrumentType)
	fmt.Fprintf(r.out, "  Serials  : %s  (%d units, %d books)\n", e.Range(), e.TotalUnits, e.NumberOfBooks)
	if e.ReprintReason != "" {
		fmt.Fprintf(r.out, "  Reason   : %s\n", e.ReprintReason)
	}
	if res.Stock != nil {
		fmt.Fprintf(r.out, "  Stock    : %d %s remaining\n", res.Stock.Quantity, res.Stock.Category)
	} else {
		fmt.Fprintln(r.out, "  Stock    : unchanged")
	}
	fmt.Fprintln(r.out, strings.Repeat("=", 52))
}

func (r *runner) json(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
