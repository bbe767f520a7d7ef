package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/bucketkeeper/internal/client"
	"github.com/spf13/cobra"
)

// runREPL reads command lines from reader and hands them to exec until EOF,
// "exit" or "quit". Command errors are printed and the loop goes on.
//
// Commands may read further input from the same reader.
func runREPL(ctx context.Context, exec func(ctx context.Context, args []string) error, statusFn func() string,
	reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "bk %s> ", statusFn())
		line, readErr := reader.ReadString('\n')
		if readErr != nil && line == "" {
			return
		}
		args, err := splitLine(strings.TrimRight(line, "\r\n"))
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		case "shell":
			fmt.Fprintln(w, "Already in the shell")
			continue
		}

		if err := exec(ctx, args); err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// splitLine splits on whitespace; double quotes group words.
func splitLine(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

// watchStates reports connection state changes until ctx is done.
func watchStates(ctx context.Context, states <-chan client.ConnState, w io.Writer) {
	for {
		select {
		case s, ok := <-states:
			if !ok {
				return
			}
			fmt.Fprintf(w, "\nSwitched to %s mode\n", s)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return "(disconnected) "
	}
	return "(" + a.client.State().String() + ") "
}

func (a *App) newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively over one ledger connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			c, err := a.Client(ctx)
			if err != nil {
				return err
			}
			go watchStates(ctx, c.States(), out)

			fmt.Fprintln(out, "bucketctl shell (type 'help' for commands, 'exit' to leave)")
			exec := func(ctx context.Context, args []string) error {
				root := a.NewRootCmd()
				root.SetArgs(args)
				return root.ExecuteContext(ctx)
			}
			runREPL(ctx, exec, a.status, a.in, out)
			return nil
		},
	}
}
