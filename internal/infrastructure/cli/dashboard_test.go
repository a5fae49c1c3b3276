package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
)

func sampleReport() *application.PortfolioReport {
	jobs := []finance.Assessment{
		{
			JobID: "J-100", JobName: "Harbor Street Clinic",
			Metrics: finance.FinancialMetrics{CPI: finance.Float(0.84), BudgetAvailable: true, BudgetUtilization: 92},
			Health: finance.JobHealth{
				HealthStatus: finance.HealthCritical, Priority: finance.PriorityHigh,
				Issues: []finance.Issue{{Severity: finance.SeverityCritical, Message: "CPI below 0.90", Action: "Review cost codes"}},
			},
		},
		{
			JobID: "J-200", JobName: "Mill Road Depot",
			Metrics: finance.FinancialMetrics{CPI: finance.Float(1.05)},
			Health:  finance.JobHealth{HealthStatus: finance.HealthGood, Priority: finance.PriorityLow, IsHealthy: true},
		},
	}
	return &application.PortfolioReport{
		GeneratedAt: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC),
		Jobs:        jobs,
		Summary:     finance.Summarize(jobs),
	}
}

func TestDashboardModel_Load(t *testing.T) {
	calls := 0
	m := newDashboardModel(func() (*application.PortfolioReport, error) {
		calls++
		return sampleReport(), nil
	})
	if !strings.Contains(m.View(), "Assessing portfolio") {
		t.Errorf("initial view: %q", m.View())
	}

	msg := m.Init()()
	updated, _ := m.Update(msg)
	m = updated.(model)
	if calls != 1 {
		t.Errorf("assess calls: want 1, got %d", calls)
	}
	if m.loading {
		t.Error("loading should be cleared")
	}
	if got := len(m.table.Rows()); got != 2 {
		t.Fatalf("rows: want 2, got %d", got)
	}
	row := m.table.Rows()[0]
	if row[0] != "critical" || row[2] != "0.84" || row[3] != "92.0%" {
		t.Errorf("first row: got %v", row)
	}
	if row := m.table.Rows()[1]; row[3] != "N/A" {
		t.Errorf("budget without SOV: want N/A, got %s", row[3])
	}

	view := m.View()
	for _, want := range []string{"SitePulse  2 jobs", "1 critical", "[r] Refresh"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestDashboardModel_Keys(t *testing.T) {
	m := newDashboardModel(func() (*application.PortfolioReport, error) { return sampleReport(), nil })
	updated, _ := m.Update(reportMsg{report: sampleReport()})
	m = updated.(model)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(model)
	if !m.detail {
		t.Fatal("enter should open details")
	}
	if !strings.Contains(m.View(), "Review cost codes") {
		t.Error("detail view should show the selected job's actions")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(model)
	if m.detail {
		t.Error("esc should close details")
	}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = updated.(model)
	if !m.loading || cmd == nil {
		t.Error("r should start a refresh")
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}); cmd != nil {
		t.Error("r while loading should be ignored")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestDashboardModel_Error(t *testing.T) {
	m := newDashboardModel(nil)
	updated, _ := m.Update(reportMsg{err: errors.New("feed api down")})
	m = updated.(model)
	if !strings.Contains(m.View(), "feed api down") {
		t.Errorf("error view: %q", m.View())
	}
}
