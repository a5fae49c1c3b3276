package finance

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// FeedName identifies one upstream data feed.
type FeedName string

const (
	FeedJob             FeedName = "job"
	FeedEVM             FeedName = "evm"
	FeedAPRegister      FeedName = "ap_register"
	FeedTimelog         FeedName = "timelog"
	FeedSOV             FeedName = "sov"
	FeedProgressReports FeedName = "progress_reports"
	FeedForecasts       FeedName = "forecasts"
)

// AllFeeds lists every feed in fetch order.
var AllFeeds = []FeedName{
	FeedJob, FeedEVM, FeedAPRegister, FeedTimelog, FeedSOV, FeedProgressReports, FeedForecasts,
}

// dateLayouts are tried in order when decoding dates from feeds.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// Date is a calendar date decoded from either "2006-01-02" or RFC 3339 text.
// Unparseable or empty values decode to the zero Date.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s with the feed date layouts.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{t.UTC()}, true
		}
	}
	return Date{}, false
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Non-string values (null, numbers) are treated as missing.
		*d = Date{}
		return nil
	}
	parsed, _ := ParseDate(s)
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	t := d.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return json.Marshal(t.Format("2006-01-02"))
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// Job is the static job record.
type Job struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	JobNumber        string  `json:"jobNumber,omitempty"`
	Status           string  `json:"status,omitempty"`
	ContractValue    float64 `json:"contractValue"`
	OverallProgress  float64 `json:"overallProgress"`
	PlannedStartDate Date    `json:"plannedStartDate"`
	PlannedEndDate   Date    `json:"plannedEndDate"`
	StartDate        Date    `json:"startDate"`
	EndDate          Date    `json:"endDate"`
}

// Start returns the planned start date, falling back to the actual start date.
func (j Job) Start() time.Time {
	if !j.PlannedStartDate.IsZero() {
		return j.PlannedStartDate.Time
	}
	return j.StartDate.Time
}

// End returns the planned end date, falling back to the actual end date.
func (j Job) End() time.Time {
	if !j.PlannedEndDate.IsZero() {
		return j.PlannedEndDate.Time
	}
	return j.EndDate.Time
}

// EVMFeed is the earned-vs-burned report.
type EVMFeed struct {
	Totals EVMTotals `json:"totals"`
}

// EVMTotals carries job-to-date earned value figures. CPI is nil when the
// upstream report did not compute one.
type EVMTotals struct {
	CPI          *float64 `json:"cpi"`
	CostVariance float64  `json:"costVariance"`
	ActualCost   float64  `json:"actualCost"`
	EarnedValue  float64  `json:"earnedValue"`
	LaborCost    float64  `json:"laborCost"`
	APCost       float64  `json:"apCost"`
}

// APRegisterFeed is the accounts-payable register.
type APRegisterFeed struct {
	Data    []APInvoice       `json:"data"`
	Meta    APMeta            `json:"meta"`
	Summary []APVendorSummary `json:"summary"`
}

type APInvoice struct {
	ID            string  `json:"id,omitempty"`
	InvoiceNumber string  `json:"invoiceNumber,omitempty"`
	Vendor        string  `json:"vendor,omitempty"`
	InvoiceDate   Date    `json:"invoiceDate"`
	Amount        float64 `json:"amount"`
	PaidAmount    float64 `json:"paidAmount"`
	Status        string  `json:"status,omitempty"`
	CostCode      string  `json:"costCode,omitempty"`
}

type APMeta struct {
	Total       int     `json:"total"`
	TotalAmount float64 `json:"totalAmount"`
	PaidAmount  float64 `json:"paidAmount"`
	PaidCount   int     `json:"paidCount"`
}

type APVendorSummary struct {
	Vendor       string  `json:"vendor"`
	InvoiceCount int     `json:"invoiceCount"`
	TotalAmount  float64 `json:"totalAmount"`
	PaidAmount   float64 `json:"paidAmount"`
}

// TimelogFeed is the timelog register.
type TimelogFeed struct {
	Data []TimelogEntry `json:"data"`
	Meta TimelogMeta    `json:"meta"`
}

// TimelogEntry is one crew member's day on the job. SafetyIncidents is kept
// raw because only its length matters here.
type TimelogEntry struct {
	ID                  string            `json:"id,omitempty"`
	EmployeeName        string            `json:"employeeName,omitempty"`
	WorkDate            Date              `json:"workDate"`
	TotalHours          float64           `json:"totalHours"`
	TotalCost           float64           `json:"totalCost"`
	TotalCostWithBurden float64           `json:"totalCostWithBurden"`
	CostCode            string            `json:"costCode,omitempty"`
	SafetyIncidents     []json.RawMessage `json:"safetyIncidents,omitempty"`
}

// LoadedCost returns the burden-loaded cost when present, else the raw cost.
func (e TimelogEntry) LoadedCost() float64 {
	if c := finite(e.TotalCostWithBurden); c != 0 {
		return c
	}
	return finite(e.TotalCost)
}

type TimelogMeta struct {
	TotalHours *float64 `json:"totalHours"`
	TotalCost  float64  `json:"totalCost"`
}

// SOVFeed is the schedule-of-values components report.
type SOVFeed struct {
	Data SOVData `json:"data"`
}

type SOVData struct {
	Summary SOVSummary `json:"summary"`
}

type SOVSummary struct {
	TotalValue        float64 `json:"totalValue"`
	SOVLineItemsCount int     `json:"sovLineItemsCount"`
}

// ProgressReportsFeed lists progress reports for a job.
type ProgressReportsFeed struct {
	Data []ProgressReport `json:"data"`
}

// ProgressReportStatusApproved marks a report whose percent complete may be used.
const ProgressReportStatusApproved = "approved"

type ProgressReport struct {
	ID           string          `json:"id,omitempty"`
	ReportNumber int             `json:"reportNumber"`
	ReportDate   Date            `json:"reportDate"`
	Status       string          `json:"status"`
	Summary      ProgressSummary `json:"summary"`
}

type ProgressSummary struct {
	CalculatedPercentCTD float64 `json:"calculatedPercentCTD"`
}

// ForecastsFeed lists cost-to-complete forecasts for a job.
type ForecastsFeed struct {
	Data []Forecast `json:"data"`
}

// ForecastStatusArchived marks a superseded forecast.
const ForecastStatusArchived = "archived"

type Forecast struct {
	ID          string           `json:"id,omitempty"`
	MonthNumber int              `json:"monthNumber"`
	Status      string           `json:"status"`
	Summary     *ForecastSummary `json:"summary"`
}

// ForecastSummary holds computed forecast results. All fields are nil until
// the forecast has been calculated.
type ForecastSummary struct {
	MarginAtCompletion        *float64 `json:"marginAtCompletion,omitempty"`
	MarginAtCompletionPercent *float64 `json:"marginAtCompletionPercent,omitempty"`
	EstimatedCostAtCompletion *float64 `json:"estimatedCostAtCompletion,omitempty"`
	CostToComplete            *float64 `json:"costToComplete,omitempty"`
}

// IsEmpty reports whether the forecast carries no computed results.
func (s *ForecastSummary) IsEmpty() bool {
	return s == nil ||
		(s.MarginAtCompletion == nil && s.MarginAtCompletionPercent == nil &&
			s.EstimatedCostAtCompletion == nil && s.CostToComplete == nil)
}

// FeedBundle is everything fetched for one job. A nil feed means the fetch
// failed or the feed was not supplied.
type FeedBundle struct {
	JobID           string               `json:"jobId"`
	Job             *Job                 `json:"job,omitempty"`
	EVM             *EVMFeed             `json:"evm,omitempty"`
	APRegister      *APRegisterFeed      `json:"apRegister,omitempty"`
	Timelog         *TimelogFeed         `json:"timelog,omitempty"`
	SOV             *SOVFeed             `json:"sov,omitempty"`
	ProgressReports *ProgressReportsFeed `json:"progressReports,omitempty"`
	Forecasts       *ForecastsFeed       `json:"forecasts,omitempty"`
}

// Missing returns the feeds absent from the bundle, in fetch order.
func (b FeedBundle) Missing() []FeedName {
	present := map[FeedName]bool{
		FeedJob:             b.Job != nil,
		FeedEVM:             b.EVM != nil,
		FeedAPRegister:      b.APRegister != nil,
		FeedTimelog:         b.Timelog != nil,
		FeedSOV:             b.SOV != nil,
		FeedProgressReports: b.ProgressReports != nil,
		FeedForecasts:       b.Forecasts != nil,
	}
	var missing []FeedName
	for _, name := range AllFeeds {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// finite maps NaN and infinities to zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// finitePtr drops non-finite optional values.
func finitePtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

// Float returns a pointer to v. Handy for building feeds in code.
func Float(v float64) *float64 {
	return &v
}
