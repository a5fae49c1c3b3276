package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// formatCurrency renders whole dollars with thousands separators.
func formatCurrency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	if v < 0 {
		return "-" + printer.Sprintf("$%.0f", -v)
	}
	return printer.Sprintf("$%.0f", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatOptionalPercent(v *float64) string {
	if v == nil {
		return finance.NotAvailable.Text
	}
	return formatPercent(*v)
}

// cpiText renders a CPI with its label, e.g. "0.85 (Over Budget)".
func cpiText(cpi *float64) string {
	label := finance.CPILabel(cpi)
	if label == finance.NotAvailable {
		return label.Text
	}
	return fmt.Sprintf("%.2f (%s)", *cpi, label.Text)
}

func budgetText(m finance.FinancialMetrics) string {
	label := finance.BudgetLabel(m)
	if label == finance.NotAvailable {
		return label.Text
	}
	return fmt.Sprintf("%s (%s)", formatPercent(m.BudgetUtilization), label.Text)
}

// contractText shows N/A when neither the SOV nor the job record carries a
// contract value.
func contractText(m finance.FinancialMetrics) string {
	if !m.BudgetAvailable && m.ContractValue == 0 {
		return finance.NotAvailable.Text
	}
	return formatCurrency(m.ContractValue)
}

var toneColors = map[finance.Tone]lipgloss.Color{
	finance.ToneGreen:   lipgloss.Color("42"),
	finance.ToneYellow:  lipgloss.Color("208"),
	finance.ToneRed:     lipgloss.Color("196"),
	finance.ToneNeutral: lipgloss.Color("245"),
}

func healthStyle(h finance.HealthStatus) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(toneColors[finance.HealthLabel(h).Tone])
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tableHeader  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCell    = lipgloss.NewStyle().Padding(0, 1)
	tableBorders = lipgloss.NormalBorder()
)

// renderTable draws rows under headers with a light border.
func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(tableBorders).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return tableCell
		})
	return t.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinFeeds(names []finance.FeedName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
