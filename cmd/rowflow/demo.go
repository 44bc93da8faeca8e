package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/join"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Join two small in-memory tables with every strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := runDemo(cmd.Context(), s.ec, out); err != nil {
			return err
		}
		return s.finish(out)
	},
}

func demoLeft() []map[string]any {
	return []map[string]any{
		{"id": 1, "k": 1},
		{"id": 2, "k": 2},
		{"id": 3, "k": 2},
	}
}

func demoRight() []map[string]any {
	return []map[string]any{
		{"id": 10, "k": 2, "v": "a"},
		{"id": 11, "k": 2, "v": "b"},
		{"id": 12, "k": 3, "v": "c"},
	}
}

// runDemo prints one table per join strategy over the demo rows
func runDemo(ctx context.Context, ec *executor.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	left := source.NewMemory("l", demoLeft())
	right := source.NewMemory("r", demoRight())
	on := query.MustParse("l.k = r.k")
	order := query.New().WithOrder(query.Asc("l.id"), query.Asc("r.id"))
	tf := executor.NewTableFormatter()

	fmt.Fprintln(w, color.New(color.Bold).Sprint("=== rowflow demo ==="))
	for _, spec := range []join.Spec{
		{Kind: join.Inner, On: on},
		{Kind: join.Left, On: on},
		{Kind: join.Cross},
		{Kind: join.CrossApply, On: on},
		{Kind: join.OuterApply, On: on},
		{Kind: join.Sequential},
		{Kind: join.LeftSequential},
		{Kind: join.Nearest, On: on},
	} {
		spec.Left, spec.Right = left, right
		node, err := join.New(spec)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", color.CyanString("%s", node))

		q := order
		if spec.Kind == join.Sequential || spec.Kind == join.LeftSequential {
			// positional joins keep source order
			q = query.All
		}
		table, err := tf.FormatRows(ctx, node.Rows(ec, q))
		if err != nil {
			return fmt.Errorf("%s join: %w", spec.Kind, err)
		}
		fmt.Fprintln(w, table)
	}
	return nil
}
