package scoring

import (
	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// HealthInputs are the windowed aggregates behind the five health sub-scores.
type HealthInputs struct {
	Revenue        float64
	RevenueTarget  float64
	InvoicedTotal  float64
	CollectedTotal float64

	OEE []float64

	ProducedUnits        float64
	RejectedUnits        float64
	ProductQualityScores []float64

	AttendanceRecords    int
	AttendancePresent    int
	EmployeeSatisfaction float64

	TotalOrders     int
	CancelledOrders int
}

func ratio(num, den, noData float64) float64 {
	if den <= 0 {
		return noData
	}
	return ClampScore(num / den * 100)
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// SubScores computes the five [0,100] sub-scores. A sub-score whose inputs are
// entirely absent falls back to th.NoDataSubScore.
func SubScores(in HealthInputs, th config.Thresholds) models.HealthBreakdown {
	noData := th.NoDataSubScore
	var b models.HealthBreakdown

	if in.RevenueTarget <= 0 && in.InvoicedTotal <= 0 {
		b.Financial = noData
	} else {
		b.Financial = 0.7*ratio(in.Revenue, in.RevenueTarget, noData) + 0.3*ratio(in.CollectedTotal, in.InvoicedTotal, noData)
	}

	if m, ok := mean(in.OEE); ok {
		b.Operational = ClampScore(m * 100)
	} else {
		b.Operational = noData
	}

	avgQuality, hasQuality := mean(in.ProductQualityScores)
	switch {
	case in.ProducedUnits <= 0 && !hasQuality:
		b.Quality = noData
	default:
		defectScore := noData
		if in.ProducedUnits > 0 {
			defectScore = ClampScore(100 - in.RejectedUnits/in.ProducedUnits*100)
		}
		if !hasQuality {
			avgQuality = noData
		}
		b.Quality = 0.5*defectScore + 0.5*ClampScore(avgQuality)
	}

	attendance := ratio(float64(in.AttendancePresent), float64(in.AttendanceRecords), noData)
	b.HR = 0.6*attendance + 0.4*ClampScore(in.EmployeeSatisfaction)

	if in.TotalOrders <= 0 {
		b.Customer = noData
	} else {
		b.Customer = ClampScore((1 - float64(in.CancelledOrders)/float64(in.TotalOrders)) * 100)
	}

	b.Financial = utils.Round2(b.Financial)
	b.Operational = utils.Round2(b.Operational)
	b.Quality = utils.Round2(b.Quality)
	b.HR = utils.Round2(b.HR)
	b.Customer = utils.Round2(b.Customer)
	return b
}

// Overall is the weighted sum of the sub-scores.
func Overall(b models.HealthBreakdown, th config.Thresholds) float64 {
	return utils.Round2(ClampScore(b.Financial*th.WeightFinancial +
		b.Operational*th.WeightOperational +
		b.Quality*th.WeightQuality +
		b.HR*th.WeightHR +
		b.Customer*th.WeightCustomer))
}

// CompanyHealth combines sub-scores, the weighted overall and the trend
// against the previous snapshot.
func CompanyHealth(in HealthInputs, previous *float64, th config.Thresholds) (float64, models.HealthBreakdown, models.Trend) {
	b := SubScores(in, th)
	overall := Overall(b, th)
	return overall, b, Trend(overall, previous, th.HealthTrendBand)
}
