// Package scoring holds the pure, side-effect free score formulas used by the
// cascades and the executive services.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// ClampScore bounds a score to [0, 100].
func ClampScore(v float64) float64 {
	return utils.Clamp(v, 0, 100)
}

// QualityScoreFromCounts is 100 minus the open and critical penalties, floored at 0.
func QualityScoreFromCounts(open, critical int, th config.Thresholds) float64 {
	return ClampScore(100 - th.QualityRejectionPenalty*float64(open) - th.QualityCriticalPenalty*float64(critical))
}

// QualityScore scores a product from its rejections. Only non-resolved
// rejections count; critical ones are penalised twice.
func QualityScore(rejections []models.Rejection, th config.Thresholds) float64 {
	open, critical := 0, 0
	for _, r := range rejections {
		if r.IsResolved() {
			continue
		}
		open++
		if r.Severity == models.SeverityCritical {
			critical++
		}
	}
	return QualityScoreFromCounts(open, critical, th)
}

// SupplierScore counts every rejection attributed to the supplier.
func SupplierScore(rejections []models.Rejection, th config.Thresholds) float64 {
	critical := 0
	for _, r := range rejections {
		if r.Severity == models.SeverityCritical {
			critical++
		}
	}
	return ClampScore(100 - th.SupplierRejectionPenalty*float64(len(rejections)) - th.SupplierCriticalPenalty*float64(critical))
}

// SupplierRating maps a 0-100 overall score onto a 5 point scale.
func SupplierRating(overall float64) float64 {
	return utils.Round2(ClampScore(overall) / 20)
}

type OEEResult struct {
	Availability float64
	Performance  float64
	Quality      float64
	Overall      float64
}

// OEE returns the three factors and their product, each bounded to [0, 1].
func OEE(plannedMinutes, runMinutes, idealMinutes, totalCount, goodCount float64) OEEResult {
	var r OEEResult
	if plannedMinutes > 0 {
		r.Availability = utils.Clamp(runMinutes/plannedMinutes, 0, 1)
	}
	if runMinutes > 0 {
		r.Performance = utils.Clamp(idealMinutes/runMinutes, 0, 1)
	}
	if totalCount > 0 {
		r.Quality = utils.Clamp(goodCount/totalCount, 0, 1)
	}
	r.Overall = r.Availability * r.Performance * r.Quality
	return r
}

// GrowthRate is the percentage change against previous, 0 when previous <= 0.
func GrowthRate(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return utils.Round2((current - previous) / previous * 100)
}

// Trend compares a score to the previous snapshot with a hysteresis band.
func Trend(current float64, previous *float64, band float64) models.Trend {
	if previous == nil {
		return models.TrendStable
	}
	switch {
	case current > *previous+band:
		return models.TrendImproving
	case current < *previous-band:
		return models.TrendDeclining
	}
	return models.TrendStable
}

// GoalStatus derives a goal's status by comparing value progress with elapsed
// time progress. It returns the status and the value progress percentage.
func GoalStatus(g models.StrategicGoal, now time.Time, th config.Thresholds) (models.GoalStatus, float64) {
	valueProgress := 0.0
	if g.TargetValue > 0 {
		valueProgress = g.CurrentValue / g.TargetValue * 100
	}
	progress := utils.Round2(ClampScore(valueProgress))
	if g.TargetValue > 0 && valueProgress >= 100 {
		return models.GoalStatusCompleted, progress
	}
	if now.Before(g.StartDate) && g.CurrentValue == 0 {
		return models.GoalStatusNotStarted, progress
	}

	timeProgress := 100.0
	if total := g.DueDate.Sub(g.StartDate); total > 0 {
		timeProgress = ClampScore(float64(now.Sub(g.StartDate)) / float64(total) * 100)
	}
	switch {
	case valueProgress < timeProgress-th.GoalDelayedGap:
		return models.GoalStatusDelayed, progress
	case valueProgress < timeProgress-th.GoalAtRiskGap:
		return models.GoalStatusAtRisk, progress
	}
	return models.GoalStatusOnTrack, progress
}

const (
	SegmentVIP     = "vip"
	SegmentLoyal   = "loyal"
	SegmentNew     = "new"
	SegmentRegular = "regular"
)

func CustomerSegment(totalOrders int, lifetimeValue decimal.Decimal, th config.Thresholds) string {
	switch {
	case lifetimeValue.GreaterThanOrEqual(decimal.NewFromFloat(th.CustomerVIPValue)):
		return SegmentVIP
	case totalOrders >= th.CustomerLoyalOrders:
		return SegmentLoyal
	case totalOrders <= 1:
		return SegmentNew
	}
	return SegmentRegular
}

// InvoiceStatus derives payment status from amounts and the due date.
func InvoiceStatus(total, paid decimal.Decimal, due, now time.Time) models.InvoiceStatus {
	balance := total.Sub(paid)
	switch {
	case !balance.IsPositive():
		return models.InvoiceStatusPaid
	case paid.IsPositive():
		return models.InvoiceStatusPartiallyPaid
	case now.After(due):
		return models.InvoiceStatusOverdue
	}
	return models.InvoiceStatusUnpaid
}
