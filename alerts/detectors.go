package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// Detector inspects one domain and returns zero or more proposals. Detectors
// never look at each other's output.
type Detector interface {
	Name() string
	Collections() []string
	Detect(tx store.Tx, now time.Time) ([]Proposal, error)
}

// Titles double as dedup keys, so they must stay stable between runs.
const (
	TitleCashFlow         = "Negative cash flow"
	TitleCriticalDowntime = "Critical machine downtime"
	TitleRejectionSpike   = "Critical rejection spike"
	TitleAbsenceRate      = "High absence rate"
)

func DefaultDetectors(th config.Thresholds) []Detector {
	return []Detector{
		CashFlowDetector{Thresholds: th},
		CriticalDowntimeDetector{Thresholds: th},
		RejectionSpikeDetector{Thresholds: th},
		AbsenceRateDetector{Thresholds: th},
	}
}

type RunSummary struct {
	Proposed     int
	Created      int
	Deduplicated int
	Errors       []error
}

// RunDetectors runs each detector in its own read transaction and proposes
// what it returns. A failing detector does not stop the others.
func (m *Monitor) RunDetectors(ctx context.Context, detectors []Detector) RunSummary {
	var sum RunSummary
	now := m.Now()
	for _, d := range detectors {
		var proposals []Proposal
		err := store.View(ctx, m.Store, d.Collections(), func(tx store.Tx) error {
			var err error
			proposals, err = d.Detect(tx, now)
			return err
		})
		if err != nil {
			detectorRuns.WithLabelValues(d.Name(), "error").Inc()
			config.LogError(m.Logger, "alerts/detectors.go", "RunDetectors", d.Name(), nil, err)
			sum.Errors = append(sum.Errors, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		detectorRuns.WithLabelValues(d.Name(), "success").Inc()
		for _, p := range proposals {
			sum.Proposed++
			_, created, err := m.Propose(ctx, p)
			switch {
			case err != nil:
				sum.Errors = append(sum.Errors, fmt.Errorf("%s: %w", d.Name(), err))
			case created:
				sum.Created++
			default:
				sum.Deduplicated++
			}
		}
	}
	return sum
}

func (s RunSummary) Err() error {
	return errors.Join(s.Errors...)
}

// CashFlowDetector compares payments received with expenses in the trailing window.
type CashFlowDetector struct {
	Thresholds config.Thresholds
}

func (CashFlowDetector) Name() string { return "cash-flow" }

func (CashFlowDetector) Collections() []string {
	return []string{models.CollectionPayments, models.CollectionExpenses}
}

func (d CashFlowDetector) Detect(tx store.Tx, now time.Time) ([]Proposal, error) {
	from := now.AddDate(0, 0, -d.Thresholds.CashFlowWindowDays)
	payments, err := store.Query[models.Payment](tx, models.CollectionPayments, window("paid_at", from, now)...)
	if err != nil {
		return nil, err
	}
	expenses, err := store.Query[models.Expense](tx, models.CollectionExpenses, window("date", from, now)...)
	if err != nil {
		return nil, err
	}
	inflow, outflow := decimal.Zero, decimal.Zero
	for _, p := range payments {
		inflow = inflow.Add(p.Amount)
	}
	for _, e := range expenses {
		outflow = outflow.Add(e.Amount)
	}
	net := inflow.Sub(outflow)
	if !net.LessThan(decimal.NewFromFloat(d.Thresholds.CashFlowFloor)) {
		return nil, nil
	}
	severity := models.SeverityHigh
	if inflow.IsZero() {
		severity = models.SeverityCritical
	}
	return []Proposal{{
		Type:     models.AlertTypeFinancial,
		Severity: severity,
		Title:    TitleCashFlow,
		Message:  fmt.Sprintf("Net cash flow over the last %d days is %s", d.Thresholds.CashFlowWindowDays, net.StringFixed(2)),
		Source:   "cash-flow",
		Metrics: map[string]any{
			"inflow":  inflow.InexactFloat64(),
			"outflow": outflow.InexactFloat64(),
			"net":     net.InexactFloat64(),
		},
		Recommendations: []string{
			"Follow up on overdue invoices",
			"Defer non-critical expenses",
		},
	}}, nil
}

// CriticalDowntimeDetector counts critical downtime events in the trailing hours.
type CriticalDowntimeDetector struct {
	Thresholds config.Thresholds
}

func (CriticalDowntimeDetector) Name() string { return "critical-downtime" }

func (CriticalDowntimeDetector) Collections() []string {
	return []string{models.CollectionMachineDowntime}
}

func (d CriticalDowntimeDetector) Detect(tx store.Tx, now time.Time) ([]Proposal, error) {
	from := now.Add(-time.Duration(d.Thresholds.CriticalDowntimeWindowHrs) * time.Hour)
	preds := append(window("start_time", from, now), store.Eq("severity", models.SeverityCritical))
	events, err := store.Query[models.Downtime](tx, models.CollectionMachineDowntime, preds...)
	if err != nil {
		return nil, err
	}
	if len(events) < d.Thresholds.CriticalDowntimeCount || len(events) == 0 {
		return nil, nil
	}
	machines := make([]string, 0, len(events))
	minutes := 0.0
	for _, e := range events {
		machines = append(machines, e.MachineId)
		minutes += e.DurationMinutes()
	}
	return []Proposal{{
		Type:     models.AlertTypeOperational,
		Severity: models.SeverityCritical,
		Title:    TitleCriticalDowntime,
		Message:  fmt.Sprintf("%d critical downtime events in the last %d hours", len(events), d.Thresholds.CriticalDowntimeWindowHrs),
		Source:   "critical-downtime",
		Metrics: map[string]any{
			"count":    len(events),
			"machines": utils.UniqueStrings(machines),
			"minutes":  utils.Round2(minutes),
		},
		Recommendations: []string{
			"Dispatch maintenance to affected machines",
			"Review preventive maintenance schedule",
		},
	}}, nil
}

// RejectionSpikeDetector counts critical rejections in the trailing days.
type RejectionSpikeDetector struct {
	Thresholds config.Thresholds
}

func (RejectionSpikeDetector) Name() string { return "rejection-spike" }

func (RejectionSpikeDetector) Collections() []string {
	return []string{models.CollectionRejections}
}

func (d RejectionSpikeDetector) Detect(tx store.Tx, now time.Time) ([]Proposal, error) {
	from := now.AddDate(0, 0, -d.Thresholds.CriticalRejectionWindowDay)
	preds := append(window("rejected_at", from, now), store.Eq("severity", models.SeverityCritical))
	rejections, err := store.Query[models.Rejection](tx, models.CollectionRejections, preds...)
	if err != nil {
		return nil, err
	}
	if len(rejections) < d.Thresholds.CriticalRejectionSpike {
		return nil, nil
	}
	products := make([]string, 0, len(rejections))
	qty := 0.0
	for _, r := range rejections {
		products = append(products, r.ProductId)
		qty += r.Quantity
	}
	return []Proposal{{
		Type:     models.AlertTypeQuality,
		Severity: models.SeverityHigh,
		Title:    TitleRejectionSpike,
		Message:  fmt.Sprintf("%d critical rejections in the last %d days", len(rejections), d.Thresholds.CriticalRejectionWindowDay),
		Source:   "rejection-spike",
		Metrics: map[string]any{
			"count":    len(rejections),
			"quantity": qty,
			"products": utils.UniqueStrings(products),
		},
		Recommendations: []string{
			"Open a root cause investigation",
			"Increase inspection sampling for affected products",
		},
	}}, nil
}

// AbsenceRateDetector checks the share of absent attendance records.
type AbsenceRateDetector struct {
	Thresholds config.Thresholds
}

func (AbsenceRateDetector) Name() string { return "absence-rate" }

func (AbsenceRateDetector) Collections() []string {
	return []string{models.CollectionAttendance}
}

func (d AbsenceRateDetector) Detect(tx store.Tx, now time.Time) ([]Proposal, error) {
	from := now.AddDate(0, 0, -d.Thresholds.AbsenceWindowDays)
	records, err := store.Query[models.Attendance](tx, models.CollectionAttendance, window("date", from, now)...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	absent := 0
	for _, r := range records {
		if r.Status == models.AttendanceAbsent {
			absent++
		}
	}
	rate := float64(absent) / float64(len(records)) * 100
	if rate <= d.Thresholds.AbsenceRateAlert {
		return nil, nil
	}
	return []Proposal{{
		Type:     models.AlertTypeHR,
		Severity: models.SeverityMedium,
		Title:    TitleAbsenceRate,
		Message:  fmt.Sprintf("Absence rate is %.2f%% over the last %d days", rate, d.Thresholds.AbsenceWindowDays),
		Source:   "absence-rate",
		Metrics: map[string]any{
			"absent":  absent,
			"records": len(records),
			"rate":    utils.Round2(rate),
		},
		Recommendations: []string{
			"Review absence patterns with department managers",
		},
	}}, nil
}

// window is the closed interval [from, to].
func window(field string, from, to time.Time) []store.Predicate {
	return []store.Predicate{store.Gte(field, from), store.Lte(field, to)}
}
