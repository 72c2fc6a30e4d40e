package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
)

func rejection(sev models.Severity, status models.RejectionStatus) models.Rejection {
	return models.Rejection{ProductId: "q", Severity: sev, Status: status}
}

func TestQualityScoreCriticalScenario(t *testing.T) {
	th := config.DefaultThresholds()
	rs := []models.Rejection{
		rejection(models.SeverityCritical, models.RejectionStatusOpen),
		rejection(models.SeverityCritical, models.RejectionStatusOpen),
		rejection(models.SeverityLow, models.RejectionStatusOpen),
		rejection(models.SeverityCritical, models.RejectionStatusOpen),
	}
	assert.Equal(t, 35.0, QualityScore(rs, th))
}

func TestQualityScoreIgnoresResolved(t *testing.T) {
	th := config.DefaultThresholds()
	rs := []models.Rejection{
		rejection(models.SeverityCritical, models.RejectionStatusResolved),
		rejection(models.SeverityLow, models.RejectionStatusInvestigating),
	}
	assert.Equal(t, 95.0, QualityScore(rs, th))
}

func TestQualityScoreMonotonicAndClamped(t *testing.T) {
	th := config.DefaultThresholds()
	prev := 100.0
	var rs []models.Rejection
	for i := 0; i < 20; i++ {
		sev := models.SeverityMedium
		if i%2 == 0 {
			sev = models.SeverityCritical
		}
		rs = append(rs, rejection(sev, models.RejectionStatusOpen))
		score := QualityScore(rs, th)
		assert.LessOrEqual(t, score, prev)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
		prev = score
	}
	assert.Equal(t, 0.0, prev)
}

func TestSupplierScore(t *testing.T) {
	th := config.DefaultThresholds()
	rs := []models.Rejection{
		rejection(models.SeverityCritical, models.RejectionStatusResolved),
		rejection(models.SeverityLow, models.RejectionStatusOpen),
	}
	// 100 - 3*2 - 10*1
	assert.Equal(t, 84.0, SupplierScore(rs, th))
	assert.Equal(t, 100.0, SupplierScore(nil, th))
	assert.Equal(t, 4.25, SupplierRating(85))
}

func TestOEE(t *testing.T) {
	r := OEE(480, 420, 378, 1000, 950)
	assert.InDelta(t, 0.875, r.Availability, 1e-9)
	assert.InDelta(t, 0.9, r.Performance, 1e-9)
	assert.InDelta(t, 0.95, r.Quality, 1e-9)
	assert.InDelta(t, 0.875*0.9*0.95, r.Overall, 1e-9)

	zero := OEE(0, 0, 0, 0, 0)
	assert.Equal(t, 0.0, zero.Overall)
}

func TestGrowthRate(t *testing.T) {
	assert.Equal(t, 50.0, GrowthRate(150, 100))
	assert.Equal(t, -25.0, GrowthRate(75, 100))
	assert.Equal(t, 0.0, GrowthRate(10, 0))
	assert.Equal(t, 0.0, GrowthRate(10, -5))
}

func TestTrendBand(t *testing.T) {
	prev := 70.0
	assert.Equal(t, models.TrendStable, Trend(72, &prev, 2))
	assert.Equal(t, models.TrendImproving, Trend(72.5, &prev, 2))
	assert.Equal(t, models.TrendDeclining, Trend(67.9, &prev, 2))
	assert.Equal(t, models.TrendStable, Trend(10, nil, 2))
}

func TestGoalStatus(t *testing.T) {
	th := config.DefaultThresholds()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	due := start.AddDate(0, 0, 100)
	halfway := start.AddDate(0, 0, 50)
	goal := func(current float64) models.StrategicGoal {
		return models.StrategicGoal{TargetValue: 100, CurrentValue: current, StartDate: start, DueDate: due}
	}

	tests := []struct {
		name    string
		current float64
		now     time.Time
		want    models.GoalStatus
	}{
		{"completed", 100, halfway, models.GoalStatusCompleted},
		{"on track", 45, halfway, models.GoalStatusOnTrack},
		{"at risk", 35, halfway, models.GoalStatusAtRisk},
		{"delayed", 25, halfway, models.GoalStatusDelayed},
		{"not started", 0, start.AddDate(0, 0, -1), models.GoalStatusNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := GoalStatus(goal(tt.current), tt.now, th)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomerSegment(t *testing.T) {
	th := config.DefaultThresholds()
	assert.Equal(t, SegmentVIP, CustomerSegment(2, decimal.NewFromInt(10000), th))
	assert.Equal(t, SegmentLoyal, CustomerSegment(5, decimal.NewFromInt(500), th))
	assert.Equal(t, SegmentNew, CustomerSegment(1, decimal.NewFromInt(500), th))
	assert.Equal(t, SegmentRegular, CustomerSegment(3, decimal.NewFromInt(500), th))
}

func TestInvoiceStatus(t *testing.T) {
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	before, after := due.Add(-time.Hour), due.Add(time.Hour)
	total := decimal.NewFromInt(100)

	assert.Equal(t, models.InvoiceStatusPaid, InvoiceStatus(total, decimal.NewFromInt(100), due, after))
	assert.Equal(t, models.InvoiceStatusPaid, InvoiceStatus(total, decimal.NewFromInt(120), due, after))
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, InvoiceStatus(total, decimal.NewFromInt(40), due, after))
	assert.Equal(t, models.InvoiceStatusOverdue, InvoiceStatus(total, decimal.Zero, due, after))
	assert.Equal(t, models.InvoiceStatusUnpaid, InvoiceStatus(total, decimal.Zero, due, before))
}
