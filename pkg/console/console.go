// Package console renders pass results for the terminal.
package console

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/floodqc/runqc/pkg/aggregator"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

// DefaultInfoWidth bounds the failure info column.
const DefaultInfoWidth = 60

var (
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingLeft(1).PaddingRight(1)
	cellStyle   = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)

	statusColors = map[status.Status]lipgloss.Color{
		status.Success:      lipgloss.Color("10"),
		status.Running:      lipgloss.Color("12"),
		status.Initializing: lipgloss.Color("14"),
		status.Failed:       lipgloss.Color("9"),
		status.TimeLimit:    lipgloss.Color("11"),
		status.Unknown:      lipgloss.Color("8"),
	}
)

// tableHeaders are the columns shown on the terminal; metric columns are
// left to the CSV.
var tableHeaders = []string{
	summary.ColumnDirectory,
	summary.ColumnStatus,
	summary.ColumnDuration,
	summary.ColumnSUs,
	summary.ColumnFailureReason,
	summary.ColumnVolErrorAF,
	summary.ColumnVolErrorPct,
	summary.ColumnMaxWSELErr,
	summary.ColumnStartTime,
	summary.ColumnEndTime,
	summary.ColumnFailureInfo,
}

// Renderer renders tables, colored when writing to a terminal.
type Renderer struct {
	Color     bool
	InfoWidth int
}

// NewRenderer creates a renderer that colors output when stdout is a terminal.
func NewRenderer() *Renderer {
	return &Renderer{
		Color:     term.IsTerminal(int(os.Stdout.Fd())),
		InfoWidth: DefaultInfoWidth,
	}
}

func (r *Renderer) apply(style lipgloss.Style, text string) string {
	if r.Color {
		return style.Render(text)
	}

	return text
}

// StatusTable renders one row per record with truncated failure info.
func (r *Renderer) StatusTable(records []*summary.Record) string {
	rows := make([][]string, 0, len(records))

	for _, rec := range records {
		rows = append(rows, []string{
			rec.Directory,
			string(rec.Status),
			rec.Duration,
			strconv.Itoa(rec.SUs),
			rec.FailureReason,
			rec.VolErrorAF,
			rec.VolErrorPct,
			rec.MaxWSELErr,
			rec.StartTime,
			rec.EndTime,
			Truncate(rec.FailureInfo, r.InfoWidth),
		})
	}

	statusCol := 1

	t := table.New().
		Headers(tableHeaders...).
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if !r.Color {
				return cellStyle
			}

			if row == table.HeaderRow {
				return headerStyle
			}

			if col == statusCol && row >= 0 && row < len(records) {
				if c, ok := statusColors[records[row].Status]; ok {
					return cellStyle.Foreground(c)
				}
			}

			return cellStyle
		})

	if r.Color {
		t = t.BorderStyle(borderStyle)
	}

	return t.String() + "\n"
}

// Tally renders the per-status counts and total service units.
func (r *Renderer) Tally(scenario string, tally aggregator.Tally) string {
	var sb strings.Builder

	sb.WriteString(r.apply(titleStyle, "Summary for "+scenario))
	sb.WriteString("\n")

	for _, s := range status.All {
		label := fmt.Sprintf("%-24s", string(s)+":")
		if c, ok := statusColors[s]; ok {
			label = r.apply(lipgloss.NewStyle().Foreground(c), label)
		}

		fmt.Fprintf(&sb, "  %s %d\n", label, tally.Count(s))
	}

	fmt.Fprintf(&sb, "  %-24s %d\n", "Total runs:", tally.Total)
	fmt.Fprintf(&sb, "  %-24s %d\n", "Total SUs:", tally.TotalSUs)

	return sb.String()
}

// Truncate shortens s to at most width runes, marking the cut with "...".
func Truncate(s string, width int) string {
	if width <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	if width <= 3 {
		return string(runes[:width])
	}

	return string(runes[:width-3]) + "..."
}
