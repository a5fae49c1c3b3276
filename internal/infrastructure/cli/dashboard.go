package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/sitepulse/pkg/application"
	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI portfolio dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadServices(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if os.Getenv("SITEPULSE_SKIP_DASHBOARD_RUN") == "true" {
			return nil
		}
		assess := func() (*application.PortfolioReport, error) {
			return env.services.Portfolio.Assess(cmd.Context())
		}
		p := tea.NewProgram(newDashboardModel(assess), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard run failed: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(dashboardCmd)
}

// Styles
var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

var statusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
var statusErr = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

type reportMsg struct {
	report *application.PortfolioReport
	err    error
}

type model struct {
	table   table.Model
	assess  func() (*application.PortfolioReport, error)
	report  *application.PortfolioReport
	loading bool
	detail  bool
	err     error
}

func newDashboardModel(assess func() (*application.PortfolioReport, error)) model {
	columns := []table.Column{
		{Title: "Health", Width: 9},
		{Title: "Priority", Width: 8},
		{Title: "CPI", Width: 6},
		{Title: "Budget", Width: 8},
		{Title: "Job", Width: 30},
		{Title: "ID", Width: 12},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229"))
	t.SetStyles(s)

	return model{table: t, assess: assess, loading: true}
}

func (m model) load() tea.Cmd {
	return func() tea.Msg {
		r, err := m.assess()
		return reportMsg{report: r, err: err}
	}
}

func (m model) Init() tea.Cmd { return m.load() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case reportMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.report = msg.report
			m.table.SetRows(jobRows(msg.report))
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.load()
		case "enter":
			m.detail = !m.detail
			return m, nil
		case "esc":
			m.detail = false
			return m, nil
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func jobRows(r *application.PortfolioReport) []table.Row {
	if r == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(r.Jobs))
	for _, a := range r.Jobs {
		cpi := finance.NotAvailable.Text
		if finance.CPILabel(a.Metrics.CPI) != finance.NotAvailable {
			cpi = fmt.Sprintf("%.2f", *a.Metrics.CPI)
		}
		budget := finance.NotAvailable.Text
		if a.Metrics.BudgetAvailable {
			budget = formatPercent(a.Metrics.BudgetUtilization)
		}
		rows = append(rows, table.Row{
			string(a.Health.HealthStatus),
			string(a.Health.Priority),
			cpi,
			budget,
			a.JobName,
			a.JobID,
		})
	}
	return rows
}

// selected returns the assessment under the cursor.
func (m model) selected() (finance.Assessment, bool) {
	if m.report == nil {
		return finance.Assessment{}, false
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.report.Jobs) {
		return finance.Assessment{}, false
	}
	return m.report.Jobs[i], true
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error loading dashboard: %v\nPress r to retry, q to quit.", m.err)
	}
	if m.report == nil {
		return "Assessing portfolio...\n"
	}

	s := m.report.Summary
	header := headerStyle.Render(fmt.Sprintf("SitePulse  %d jobs", s.JobCount))
	counts := fmt.Sprintf("%s  %s  %s   Portfolio CPI: %s",
		statusOK.Render(fmt.Sprintf("%d good", s.ByHealth[finance.HealthGood])),
		healthStyle(finance.HealthAtRisk).Render(fmt.Sprintf("%d at risk", s.ByHealth[finance.HealthAtRisk])),
		statusErr.Render(fmt.Sprintf("%d critical", s.ByHealth[finance.HealthCritical])),
		cpiText(s.PortfolioCPI),
	)

	status := fmt.Sprintf("Updated %s", m.report.GeneratedAt.Local().Format("15:04:05"))
	if m.loading {
		status = "Refreshing..."
	}
	if len(m.report.Failed) > 0 {
		status += statusErr.Render(fmt.Sprintf("  %d job(s) not assessed", len(m.report.Failed)))
	}

	var detail string
	if a, ok := m.selected(); ok && m.detail {
		var b strings.Builder
		printAssessment(&b, a)
		detail = "\n" + b.String()
	}

	return baseStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			counts,
			"",
			m.table.View(),
			detail,
			status,
			"[q] Quit  [r] Refresh  [Enter] Details  [Up/Down] Navigate",
		),
	) + "\n"
}
