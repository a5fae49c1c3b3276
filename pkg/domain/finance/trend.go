package finance

import (
	"math"
	"sort"
	"time"
)

// LaborTrend is the direction of labor hours between the last two buckets.
type LaborTrend string

const (
	LaborIncreasing LaborTrend = "increasing"
	LaborDecreasing LaborTrend = "decreasing"
	LaborStable     LaborTrend = "stable"
)

// CostTrend flags a sharp month-over-month cost increase.
type CostTrend string

const (
	CostHigh   CostTrend = "high"
	CostNormal CostTrend = "normal"
)

const (
	// maxTrendMonths caps the trend window.
	maxTrendMonths = 6
	// trendMonthLength is the nominal month used to size the window.
	trendMonthLength = 30 * 24 * time.Hour
	// CostIncreaseThreshold is the month-over-month growth ratio above which
	// costs are flagged as high.
	CostIncreaseThreshold = 0.20
)

// TimeBucket aggregates hours and cost for one month or week.
type TimeBucket struct {
	Key       string    `json:"key"`
	Start     time.Time `json:"start"`
	Hours     float64   `json:"hours"`
	LaborCost float64   `json:"laborCost"`
	Materials float64   `json:"materials"`
}

// Total is labor plus materials.
func (b TimeBucket) Total() float64 {
	return b.LaborCost + b.Materials
}

// Trend is the monthly breakdown for a job and its classification.
type Trend struct {
	Buckets     []TimeBucket `json:"buckets"`
	LaborDelta  float64      `json:"laborDelta"`
	CostDelta   float64      `json:"costDelta"`
	CostChange  float64      `json:"costChange"` // ratio of CostDelta to the previous total; 0 without a baseline
	LaborStatus LaborTrend   `json:"laborStatus"`
	CostStatus  CostTrend    `json:"costStatus"`
}

// ComputeTrend buckets timelog and AP entries into at most six calendar
// months ending at the earlier of the job end and now.
func ComputeTrend(job Job, entries []TimelogEntry, invoices []APInvoice, now time.Time) Trend {
	ref := now.UTC()
	if end := job.End(); !end.IsZero() && end.Before(ref) {
		ref = end.UTC()
	}

	n := monthsToShow(job.Start(), ref)
	last := monthStart(ref)

	buckets := make([]TimeBucket, n)
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		start := last.AddDate(0, i-(n-1), 0)
		key := start.Format("2006-01")
		buckets[i] = TimeBucket{Key: key, Start: start}
		index[key] = i
	}

	for _, e := range entries {
		if e.WorkDate.IsZero() {
			continue
		}
		if i, ok := index[e.WorkDate.UTC().Format("2006-01")]; ok {
			buckets[i].Hours += finite(e.TotalHours)
			buckets[i].LaborCost += e.LoadedCost()
		}
	}
	for _, inv := range invoices {
		if inv.InvoiceDate.IsZero() {
			continue
		}
		if i, ok := index[inv.InvoiceDate.UTC().Format("2006-01")]; ok {
			buckets[i].Materials += finite(inv.Amount)
		}
	}

	tr := classifyBuckets(buckets)
	tr.Buckets = buckets
	return tr
}

// monthsToShow sizes the window from the job start. A job without a start
// date gets the full window.
func monthsToShow(start, ref time.Time) int {
	if start.IsZero() {
		return maxTrendMonths
	}
	months := int(math.Ceil(float64(ref.Sub(start)) / float64(trendMonthLength)))
	switch {
	case months < 1:
		return 1
	case months > maxTrendMonths:
		return maxTrendMonths
	}
	return months
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// classifyBuckets compares the final two buckets.
func classifyBuckets(buckets []TimeBucket) Trend {
	tr := Trend{LaborStatus: LaborStable, CostStatus: CostNormal}
	if len(buckets) < 2 {
		return tr
	}

	cur, prev := buckets[len(buckets)-1], buckets[len(buckets)-2]

	tr.LaborDelta = cur.Hours - prev.Hours
	switch {
	case tr.LaborDelta > 0:
		tr.LaborStatus = LaborIncreasing
	case tr.LaborDelta < 0:
		tr.LaborStatus = LaborDecreasing
	}

	tr.CostDelta = cur.Total() - prev.Total()
	if prevTotal := prev.Total(); prevTotal > 0 {
		tr.CostChange = tr.CostDelta / prevTotal
		if tr.CostDelta > 0 && tr.CostChange > CostIncreaseThreshold {
			tr.CostStatus = CostHigh
		}
	}
	return tr
}

// WeeklyBuckets groups entries by ISO week (weeks start on Monday). Only
// weeks with dated entries appear, oldest first.
func WeeklyBuckets(entries []TimelogEntry, invoices []APInvoice) []TimeBucket {
	byKey := make(map[string]*TimeBucket)
	bucket := func(d Date) *TimeBucket {
		start := weekStart(d.Time)
		key := start.Format("2006-01-02")
		b, ok := byKey[key]
		if !ok {
			b = &TimeBucket{Key: key, Start: start}
			byKey[key] = b
		}
		return b
	}

	for _, e := range entries {
		if e.WorkDate.IsZero() {
			continue
		}
		b := bucket(e.WorkDate)
		b.Hours += finite(e.TotalHours)
		b.LaborCost += e.LoadedCost()
	}
	for _, inv := range invoices {
		if inv.InvoiceDate.IsZero() {
			continue
		}
		bucket(inv.InvoiceDate).Materials += finite(inv.Amount)
	}

	out := make([]TimeBucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
