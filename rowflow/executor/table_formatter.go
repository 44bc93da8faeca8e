package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
)

// TableFormatter renders rows as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a cell
	MaxWidth int
	// TruncateString is appended when a cell is truncated
	TruncateString string
	// Absent is shown for fields a row does not have
	Absent string
}

// NewTableFormatter creates a table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
		Absent:         "-",
	}
}

// FormatRows drains a row sequence and renders it
func (tf *TableFormatter) FormatRows(ctx context.Context, src enumerator.Enumerable[*rowflow.Row]) (string, error) {
	rows, err := enumerator.ToSlice(ctx, src)
	if err != nil {
		return "", err
	}
	return tf.Format(rows), nil
}

// Format renders rows with a column per distinct field, in first-seen
// order. Absent rows (a join's missing side) render as empty lines of
// Absent cells.
func (tf *TableFormatter) Format(rows []*rowflow.Row) string {
	if len(rows) == 0 {
		return "_No rows_"
	}

	var columns []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, f := range r.Fields() {
			if !seen[f] {
				seen[f] = true
				columns = append(columns, f)
			}
		}
	}

	sb := &strings.Builder{}
	alignment := make([]tw.Align, len(columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(columns)

	for _, r := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			v, ok := r.Get(col)
			if !ok {
				cells[i] = tf.Absent
				continue
			}
			cells[i] = tf.formatValue(v)
		}
		table.Append(cells)
	}
	table.Render()

	fmt.Fprintf(sb, "\n_%d rows_\n", len(rows))
	return sb.String()
}

// formatValue converts a value to its cell text
func (tf *TableFormatter) formatValue(v rowflow.Value) string {
	var s string
	switch v.Kind() {
	case rowflow.KindNull:
		s = "null"
	case rowflow.KindFloat:
		f, _ := v.AsFloat()
		s = fmt.Sprintf("%.2f", f)
	case rowflow.KindTime:
		t, _ := v.AsTime()
		s = t.Format(time.DateTime)
	default:
		s = v.String()
	}
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		s = s[:max(tf.MaxWidth-len(tf.TruncateString), 0)] + tf.TruncateString
	}
	return s
}
