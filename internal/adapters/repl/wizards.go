package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"chequebook/internal/app"
)

// cancelled ends a wizard without an error message.
type cancelled struct{}

func (cancelled) Error() string { return "cancelled" }

func prompt(reader *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	raw, err := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "cancel") {
		return "", cancelled{}
	}
	if raw == "" {
		if err == io.EOF {
			return "", cancelled{}
		}
		raw = def
	}
	return raw, nil
}

func promptInt(reader *bufio.Reader, out io.Writer, label, def string) (int64, error) {
	for {
		raw, err := prompt(reader, out, label, def)
		if err != nil {
			return 0, err
		}
		if raw == "" {
			return 0, nil
		}
		n, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr == nil && n >= 0 {
			return n, nil
		}
		fmt.Fprintln(out, "  Enter a whole number.")
	}
}

// newPrint collects a print batch, shows its preview and commits it only
// after the operator approves.
func newPrint(ctx context.Context, reader *bufio.Reader, out io.Writer, svc app.ApplicationService, operator string) error {
	fmt.Fprintln(out, "New print batch. Type 'cancel' at any prompt to abort.")

	req, err := collectPrint(reader, out, operator)
	if err != nil {
		if _, ok := err.(cancelled); ok {
			fmt.Fprintln(out, "Print cancelled.")
			return nil
		}
		return err
	}

	preview, err := svc.PreviewBatch(ctx, req)
	if err != nil {
		return err
	}
	e := preview.Entry
	fmt.Fprintf(out, "\nPREVIEW  %s  account %s  serials %s  (%d units, %d books)\n",
		e.InstrumentType, e.AccountRef, e.Range(), e.TotalUnits, e.NumberOfBooks)
	if preview.Stock != nil {
		fmt.Fprintf(out, "Stock after print: %d %s\n", preview.Stock.Quantity, preview.Stock.Category)
	}

	choice, err := prompt(reader, out, "\nCommit this print? (y/n)", "n")
	if err != nil {
		fmt.Fprintln(out, "Print cancelled.")
		return nil
	}
	if c := strings.ToLower(choice); c != "y" && c != "yes" {
		fmt.Fprintln(out, "Print cancelled.")
		return nil
	}

	// The counter may have moved since the preview; the committed range is
	// the one reported here.
	res, err := svc.PrintBatch(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Print COMMITTED. Entry %d, serials %s.\n", res.Entry.ID, res.Entry.Range())
	return nil
}

func collectPrint(reader *bufio.Reader, out io.Writer, operator string) (app.PrintBatchRequest, error) {
	req := app.PrintBatchRequest{OperatorID: operator}
	var err error

	if req.BranchID, err = promptInt(reader, out, "Branch id", ""); err != nil {
		return req, err
	}
	if req.AccountRef, err = prompt(reader, out, "Account number", ""); err != nil {
		return req, err
	}
	if req.InstrumentType, err = prompt(reader, out, "Instrument (individual, corporate, certified)", "individual"); err != nil {
		return req, err
	}
	if req.UnitCount, err = promptInt(reader, out, "Units", ""); err != nil {
		return req, err
	}
	if req.UnitsPerBook, err = promptInt(reader, out, "Units per book (blank for one book)", ""); err != nil {
		return req, err
	}
	start, err := promptInt(reader, out, "Custom start serial (blank to continue the counter)", "")
	if err != nil {
		return req, err
	}
	if start > 0 {
		req.CustomStart = &start
	}
	if req.Notes, err = prompt(reader, out, "Notes (optional)", ""); err != nil {
		return req, err
	}
	if req.OperatorID == "" {
		if req.OperatorID, err = prompt(reader, out, "Operator id", ""); err != nil {
			return req, err
		}
	}
	return req, nil
}
