package finance

import "testing"

func TestCPILabel(t *testing.T) {
	tests := []struct {
		name string
		cpi  *float64
		want StatusLabel
	}{
		{"missing", nil, NotAvailable},
		{"zero", Float(0), NotAvailable},
		{"above target", Float(1.1), StatusLabel{"On Budget", ToneGreen}},
		{"at target", Float(1.0), StatusLabel{"On Budget", ToneGreen}},
		{"at risk lower bound", Float(0.9), StatusLabel{"At Risk", ToneYellow}},
		{"over budget", Float(0.75), StatusLabel{"Over Budget", ToneRed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CPILabel(tt.cpi); got != tt.want {
				t.Errorf("CPILabel: want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestBudgetLabel(t *testing.T) {
	tests := []struct {
		name string
		m    FinancialMetrics
		want StatusLabel
	}{
		{"no budget", FinancialMetrics{}, NotAvailable},
		{"healthy", FinancialMetrics{BudgetAvailable: true, BudgetUtilization: 74.9}, StatusLabel{"Healthy", ToneGreen}},
		{"caution lower bound", FinancialMetrics{BudgetAvailable: true, BudgetUtilization: 75}, StatusLabel{"Caution", ToneYellow}},
		{"caution upper bound", FinancialMetrics{BudgetAvailable: true, BudgetUtilization: 90}, StatusLabel{"Caution", ToneYellow}},
		{"critical", FinancialMetrics{BudgetAvailable: true, BudgetUtilization: 90.1}, StatusLabel{"Critical", ToneRed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BudgetLabel(tt.m); got != tt.want {
				t.Errorf("BudgetLabel: want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestHealthLabel(t *testing.T) {
	if got := HealthLabel(HealthCritical); got.Tone != ToneRed {
		t.Errorf("critical tone: want red, got %s", got.Tone)
	}
	if got := HealthLabel(""); got != NotAvailable {
		t.Errorf("unknown: want N/A, got %+v", got)
	}
}
