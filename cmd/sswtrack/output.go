package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/sswtrack/sswtrack/internal/compliance"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stepStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	boldStyle     = lipgloss.NewStyle().Bold(true)
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DC2626"))
	cautionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D97706"))
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563EB"))
)

func colorize(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(successStyle, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(errorStyle, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(warningStyle, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(boldStyle, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(stepStyle, "→ "+msg))
}

func urgencyLabel(s compliance.Severity) string {
	switch s {
	case compliance.SeverityCritical:
		return "緊急"
	case compliance.SeverityWarning:
		return "注意"
	}
	return "通常"
}

func urgencyStyle(s compliance.Severity) lipgloss.Style {
	switch s {
	case compliance.SeverityCritical:
		return criticalStyle
	case compliance.SeverityWarning:
		return cautionStyle
	}
	return normalStyle
}

// table renders rows in padded columns. lipgloss measures cells in terminal
// cells so Japanese text lines up. style, when non-nil, colors a cell.
type table struct {
	header []string
	rows   [][]string
	style  func(row, col int) (lipgloss.Style, bool)
}

func (t table) write(w io.Writer) {
	last := len(t.header) - 1
	tbl := ltable.New().
		Headers(t.header...).
		Rows(t.rows...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			st := lipgloss.NewStyle()
			switch {
			case noColor:
			case row == ltable.HeaderRow:
				st = headerStyle
			case t.style != nil:
				if s, ok := t.style(row, col); ok {
					st = s
				}
			}
			if col < last {
				st = st.PaddingRight(2)
			}
			return st
		})

	for _, line := range strings.Split(tbl.String(), "\n") {
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
