// Package repl is the interactive operator console. Slash commands run the
// one-shot CLI commands; /new-print walks an operator through a print batch.
package repl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"chequebook/internal/adapters/cli"
	"chequebook/internal/app"
	"chequebook/internal/core"
)

var errExit = errors.New("exit")

// Run reads commands from in until EOF or /exit. Command errors are printed
// and the loop continues.
func Run(ctx context.Context, svc app.ApplicationService, in io.Reader, out io.Writer, operator string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Cheque Book Print Console")
	if operator != "" {
		fmt.Fprintf(out, "Operator: %s\n", operator)
	}
	fmt.Fprintln(out, "Type /help for commands, /new-print to print a batch.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	dispatch := func(input string) error {
		tokens := strings.Fields(strings.TrimPrefix(input, "/"))
		if len(tokens) == 0 {
			return nil
		}
		cmd := strings.ToLower(tokens[0])

		switch cmd {
		case "exit", "quit", "e", "q":
			return errExit
		case "help", "h":
			printHelp(out)
			return nil
		case "new-print":
			return newPrint(ctx, reader, out, svc, operator)
		case "operator":
			if len(tokens) < 2 {
				fmt.Fprintf(out, "Operator: %s\n", operator)
				return nil
			}
			operator = tokens[1]
			fmt.Fprintf(out, "Operator set to %s\n", operator)
			return nil
		}

		err := cli.Run(ctx, svc, append([]string{cmd}, tokens[1:]...), operator, out)
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, cli.ErrUsage) {
			// usage was already written to out
			return nil
		}
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "\n> ")
		input, readErr := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input != "" {
			if !strings.HasPrefix(input, "/") {
				fmt.Fprintln(out, "Commands start with '/'. Type /help for the list.")
			} else if err := dispatch(input); err != nil {
				if errors.Is(err, errExit) {
					fmt.Fprintln(out, "Goodbye!")
					return nil
				}
				printError(out, err)
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func printError(out io.Writer, err error) {
	var overlap *core.OverlapError
	if errors.As(err, &overlap) {
		c := overlap.Conflict
		fmt.Fprintf(out, "Error: %v\n  conflicts with entry %d of branch %s (%d-%d)\n",
			err, c.EntryID, c.BranchName, c.FirstSerial, c.LastSerial)
		return
	}
	fmt.Fprintf(out, "Error [%s]: %v\n", core.KindOf(err), err)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  /new-print                 guided print batch with preview and approval
  /print -branch N -account A -units N [-per-book N] [-type T] [-start N]
  /preview ...               same flags as /print, never commits
  /reprint -entry N -first N -last N -reason damaged|not_printed
  /expand -entry N           encoded line of every unit
  /entries [-branch N] [-op print|reprint]
  /counter -branch N
  /stock                     paper on hand per category
  /add-stock -category C -qty N [-cost X]
  /movements -category C
  /conserve -category C
  /allow-reprint -account A -unit N
  /operator [id]             show or change the operator
  /exit`)
}
