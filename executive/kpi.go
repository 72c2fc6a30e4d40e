package executive

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type KPIService struct {
	Deps
}

func NewKPIService(d Deps) *KPIService {
	return &KPIService{Deps: d.withDefaults()}
}

// PeriodBounds returns the half-open period [start, end) containing at.
// Weeks start on Monday.
func PeriodBounds(p models.Period, at time.Time) (time.Time, time.Time, error) {
	day := utils.StartOfDay(at)
	switch p {
	case models.PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case models.PeriodWeekly:
		start := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		return start, start.AddDate(0, 0, 7), nil
	case models.PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0), nil
	case models.PeriodQuarterly:
		month := time.Month((int(day.Month())-1)/3*3 + 1)
		start := time.Date(day.Year(), month, 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 3, 0), nil
	case models.PeriodYearly:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, utils.NewValidationError(utils.CodeInvalidPayload, "unknown period %q", p)
}

func KPIId(p models.Period, start time.Time) string {
	return string(p) + ":" + utils.DateKey(start)
}

// Compute aggregates the period containing at and the one before it, derives
// growth rates and persists the snapshot.
func (s *KPIService) Compute(ctx context.Context, p models.Period, at time.Time) (*models.ExecutiveKPI, error) {
	ctx, span := tracer().Start(ctx, "executive.KPICompute")
	defer span.End()

	start, end, err := PeriodBounds(p, at)
	if err != nil {
		return nil, err
	}
	prevStart, prevEnd, _ := PeriodBounds(p, start.Add(-time.Nanosecond))

	current, err := s.Values(ctx, start, end)
	if err != nil {
		config.LogError(s.Logger, "executive/kpi.go", "Compute", "current period", KPIId(p, start), err)
		return nil, err
	}
	previous, err := s.Values(ctx, prevStart, prevEnd)
	if err != nil {
		config.LogError(s.Logger, "executive/kpi.go", "Compute", "previous period", KPIId(p, prevStart), err)
		return nil, err
	}

	growth := map[string]float64{}
	prevFields := KPIFields(previous)
	for name, v := range KPIFields(current) {
		growth[name] = scoring.GrowthRate(v, prevFields[name])
	}
	kpi := &models.ExecutiveKPI{
		Id:          KPIId(p, start),
		Period:      p,
		PeriodStart: start,
		PeriodEnd:   end,
		Values:      current,
		Previous:    previous,
		GrowthRates: growth,
		ComputedAt:  s.Now(),
	}
	err = s.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionExecutiveKPIs}, func(tx store.Tx) error {
		return tx.Put(models.CollectionExecutiveKPIs, kpi.Id, kpi)
	})
	if err != nil {
		config.LogError(s.Logger, "executive/kpi.go", "Compute", "save", kpi.Id, err)
		return nil, err
	}
	key := "kpi:" + kpi.Id
	cacheWarn(s.Logger, "set", key, s.Cache.Set(ctx, key, kpi, s.CacheTTL))
	return kpi, nil
}

// KPIFields names every KPI value; growth rates use the same keys.
func KPIFields(v models.KPIValues) map[string]float64 {
	return map[string]float64{
		"revenue":             v.Revenue,
		"profit":              v.Profit,
		"profit_margin":       v.ProfitMargin,
		"orders":              v.Orders,
		"average_order_value": v.AverageOrderValue,
		"production_output":   v.ProductionOutput,
		"defect_rate":         v.DefectRate,
		"attendance_rate":     v.AttendanceRate,
		"headcount":           v.Headcount,
		"turnover_rate":       v.TurnoverRate,
		"customer_count":      v.CustomerCount,
		"collected_payments":  v.CollectedPayments,
		"outstanding_balance": v.OutstandingBalance,
	}
}

var kpiCollections = []string{
	models.CollectionSales,
	models.CollectionOrders,
	models.CollectionProductionRuns,
	models.CollectionAttendance,
	models.CollectionEmployees,
	models.CollectionPayments,
	models.CollectionInvoices,
}

// Values aggregates [start, end). Outstanding balance and headcount are
// positions as of end rather than flows.
func (s *KPIService) Values(ctx context.Context, start, end time.Time) (models.KPIValues, error) {
	var v models.KPIValues
	err := store.View(ctx, s.Store, kpiCollections, func(tx store.Tx) error {
		sales, err := store.Query[models.Sale](tx, models.CollectionSales, store.Between("sale_date", start, end)...)
		if err != nil {
			return err
		}
		revenue, profit := decimal.Zero, decimal.Zero
		for _, sale := range sales {
			revenue = revenue.Add(sale.Total)
			profit = profit.Add(sale.Profit)
		}
		v.Revenue = revenue.Round(2).InexactFloat64()
		v.Profit = profit.Round(2).InexactFloat64()
		if revenue.IsPositive() {
			v.ProfitMargin = utils.Round2(profit.Div(revenue).InexactFloat64() * 100)
		}

		orders, err := store.Query[models.Order](tx, models.CollectionOrders, store.Between("order_date", start, end)...)
		if err != nil {
			return err
		}
		orderTotal := decimal.Zero
		var customers []string
		for _, o := range orders {
			if o.Status == models.OrderStatusCancelled {
				continue
			}
			v.Orders++
			orderTotal = orderTotal.Add(o.Total())
			customers = append(customers, o.CustomerId)
		}
		v.CustomerCount = float64(len(utils.UniqueStrings(customers)))
		if v.Orders > 0 {
			v.AverageOrderValue = utils.Round2(orderTotal.InexactFloat64() / v.Orders)
		}

		preds := append(store.Between("completed_at", start, end), store.Eq("status", models.ProductionStatusCompleted))
		runs, err := store.Query[models.ProductionRun](tx, models.CollectionProductionRuns, preds...)
		if err != nil {
			return err
		}
		var actual, rejected float64
		for _, r := range runs {
			v.ProductionOutput += r.GoodUnits()
			actual += r.ActualQuantity
			rejected += r.RejectedQuantity
		}
		if actual > 0 {
			v.DefectRate = utils.Round2(rejected / actual * 100)
		}

		records, err := store.Query[models.Attendance](tx, models.CollectionAttendance, store.Between("date", start, end)...)
		if err != nil {
			return err
		}
		if total, attended := attendanceCounts(records); total > 0 {
			v.AttendanceRate = utils.Round2(float64(attended) / float64(total) * 100)
		}

		employees, err := store.Query[models.Employee](tx, models.CollectionEmployees,
			store.Eq("status", models.EmployeeStatusActive), store.Lt("hire_date", end))
		if err != nil {
			return err
		}
		v.Headcount = float64(len(employees))

		payments, err := store.Query[models.Payment](tx, models.CollectionPayments, store.Between("paid_at", start, end)...)
		if err != nil {
			return err
		}
		collected := decimal.Zero
		for _, p := range payments {
			collected = collected.Add(p.Amount)
		}
		v.CollectedPayments = collected.Round(2).InexactFloat64()

		invoices, err := store.Query[models.Invoice](tx, models.CollectionInvoices, store.Lt("issue_date", end))
		if err != nil {
			return err
		}
		outstanding := decimal.Zero
		for _, inv := range invoices {
			if b := inv.Balance(); b.IsPositive() {
				outstanding = outstanding.Add(b)
			}
		}
		v.OutstandingBalance = outstanding.Round(2).InexactFloat64()
		return nil
	})
	if err != nil {
		return models.KPIValues{}, err
	}
	v.TurnoverRate, err = s.Data.TurnoverRate(ctx, start, end)
	if err != nil {
		return models.KPIValues{}, err
	}
	return v, nil
}
