package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter, enabling color when w is a
// terminal
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f)
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// WithColor forces color on or off
func (f *OutputFormatter) WithColor(on bool) *OutputFormatter {
	f.useColor = on
	return f
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	if out := f.Format(event); out != "" {
		fmt.Fprintln(f.writer, out)
	}
}

// Format converts an event to a human-readable string
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case JoinBegin:
		return fmt.Sprintf("%s %s %s join on %s",
			latency,
			f.colorize("===", color.FgYellow),
			event.Data["join.kind"],
			f.colorize(fmt.Sprint(event.Data["predicate"]), color.FgCyan))

	case JoinComplete:
		left, _ := event.Data["left.rows"].(int)
		right, _ := event.Data["right.rows"].(int)
		result, _ := event.Data["result.rows"].(int)
		joinStr := fmt.Sprintf("%s %s %s %s %s",
			f.colorizeCount("rows", left),
			f.colorize("×", color.FgYellow),
			f.colorizeCount("rows", right),
			f.colorize("→", color.FgYellow),
			f.colorizeCount("rows", result))
		if right >= 0 && result > 0 && result > left*right/2 && result > 1000 {
			return fmt.Sprintf("%s %s %s join %s", latency, f.colorize("⚠", color.FgYellow), event.Data["join.kind"], joinStr)
		}
		return fmt.Sprintf("%s %s join %s", latency, event.Data["join.kind"], joinStr)

	case JoinFailed:
		return fmt.Sprintf("%s %s %s join failed: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Data["join.kind"],
			event.Data["error"])

	case MaterializeComplete:
		rows, _ := event.Data["rows"].(int)
		return fmt.Sprintf("%s Materialized %s with %s policy",
			latency,
			f.colorizeCount("rows", rows),
			event.Data["policy"])

	case PushdownRewrite:
		return fmt.Sprintf("%s Pushdown(%s) %s %s",
			latency,
			f.colorize(fmt.Sprint(event.Data["predicate"]), color.FgCyan),
			f.colorize("→", color.FgYellow),
			f.colorize(fmt.Sprint(event.Data["filter"]), color.FgBlue))

	case PushdownSkipped:
		return fmt.Sprintf("%s Pushdown disabled, right side unrestricted", latency)

	case PushdownEmptyLHS:
		return fmt.Sprintf("%s %s left side empty, right side not fetched",
			latency, f.colorize("∅", color.FgGreen))

	case SourceScan:
		rows, _ := event.Data["rows"].(int)
		return fmt.Sprintf("%s Scan(%s, %s) %s %s",
			latency,
			f.colorize(fmt.Sprint(event.Data["source"]), color.FgCyan),
			event.Data["access"],
			f.colorize("→", color.FgYellow),
			f.colorizeCount("rows", rows))
	}
	return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}
	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, colored by magnitude
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return text
	}
	switch {
	case count == 0:
		return color.RedString(text)
	case count < 100:
		return color.GreenString(text)
	case count < 10000:
		return color.YellowString(text)
	}
	return color.MagentaString(text)
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// Summary renders one line per event, skipping empty formats
func (f *OutputFormatter) Summary(events []Event) string {
	var lines []string
	for _, e := range events {
		if s := f.Format(e); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// ConsoleHandler creates a handler that prints formatted events to stdout
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stdout).Handle
}

// isTerminal reports whether f is a character device
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
