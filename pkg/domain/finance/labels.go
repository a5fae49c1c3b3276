package finance

// Tone is the display color family for a status label.
type Tone string

const (
	ToneGreen   Tone = "green"
	ToneYellow  Tone = "yellow"
	ToneRed     Tone = "red"
	ToneNeutral Tone = "neutral"
)

// StatusLabel is a short display text with its tone.
type StatusLabel struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone"`
}

// NotAvailable is shown for metrics with no underlying data.
var NotAvailable = StatusLabel{Text: "N/A", Tone: ToneNeutral}

// CPILabel maps a CPI to its display label. A missing or non-positive CPI
// is not available, matching the guard the health rules use.
func CPILabel(cpi *float64) StatusLabel {
	if cpi == nil || *cpi <= 0 {
		return NotAvailable
	}
	switch {
	case *cpi >= CPITarget:
		return StatusLabel{Text: "On Budget", Tone: ToneGreen}
	case *cpi >= CPICriticalBelow:
		return StatusLabel{Text: "At Risk", Tone: ToneYellow}
	default:
		return StatusLabel{Text: "Over Budget", Tone: ToneRed}
	}
}

// BudgetLabel maps budget utilization to its display label.
func BudgetLabel(m FinancialMetrics) StatusLabel {
	if !m.BudgetAvailable {
		return NotAvailable
	}
	switch {
	case m.BudgetUtilization > BudgetCriticalAbove:
		return StatusLabel{Text: "Critical", Tone: ToneRed}
	case m.BudgetUtilization >= BudgetWarningAbove:
		return StatusLabel{Text: "Caution", Tone: ToneYellow}
	default:
		return StatusLabel{Text: "Healthy", Tone: ToneGreen}
	}
}

// HealthLabel maps a health status to its display label.
func HealthLabel(h HealthStatus) StatusLabel {
	switch h {
	case HealthCritical:
		return StatusLabel{Text: "Critical", Tone: ToneRed}
	case HealthAtRisk:
		return StatusLabel{Text: "At Risk", Tone: ToneYellow}
	case HealthGood:
		return StatusLabel{Text: "Good", Tone: ToneGreen}
	default:
		return NotAvailable
	}
}
