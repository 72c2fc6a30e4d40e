package executive

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

const cacheKeyHealth = "health:latest"

type HealthService struct {
	Deps
}

func NewHealthService(d Deps) *HealthService {
	return &HealthService{Deps: d.withDefaults()}
}

// Snapshot scores the trailing window, compares it with the previous snapshot
// and persists the result.
func (s *HealthService) Snapshot(ctx context.Context) (*models.HealthScore, error) {
	ctx, span := tracer().Start(ctx, "executive.HealthSnapshot")
	defer span.End()

	now := s.Now()
	from := now.AddDate(0, 0, -s.Thresholds.HealthWindowDays)
	in, err := s.Inputs(ctx, from, now)
	if err != nil {
		config.LogError(s.Logger, "executive/health.go", "Snapshot", "gather inputs", nil, err)
		return nil, err
	}

	previous, err := s.latestStored(ctx)
	if err != nil {
		config.LogError(s.Logger, "executive/health.go", "Snapshot", "load previous", nil, err)
		return nil, err
	}
	var prev *float64
	if previous != nil {
		v := previous.Overall
		prev = &v
	}

	overall, breakdown, trend := scoring.CompanyHealth(in, prev, s.Thresholds)
	score := &models.HealthScore{
		Id:            s.NewID(),
		Overall:       overall,
		Breakdown:     breakdown,
		Trend:         trend,
		PreviousScore: prev,
		WindowStart:   from,
		WindowEnd:     now,
		CalculatedAt:  now,
	}
	err = s.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionHealthScores}, func(tx store.Tx) error {
		return tx.Add(models.CollectionHealthScores, score.Id, score)
	})
	if err != nil {
		config.LogError(s.Logger, "executive/health.go", "Snapshot", "save snapshot", score.Id, err)
		return nil, err
	}
	observeHealth(score)
	cacheWarn(s.Logger, "set", cacheKeyHealth, s.Cache.Set(ctx, cacheKeyHealth, score, s.CacheTTL))
	return score, nil
}

// Latest returns the most recent snapshot, from cache when possible.
func (s *HealthService) Latest(ctx context.Context) (*models.HealthScore, error) {
	var cached models.HealthScore
	ok, err := s.Cache.Get(ctx, cacheKeyHealth, &cached)
	cacheWarn(s.Logger, "get", cacheKeyHealth, err)
	if ok && err == nil {
		return &cached, nil
	}
	score, err := s.latestStored(ctx)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, utils.NewNotFoundError(models.CollectionHealthScores, "latest")
	}
	cacheWarn(s.Logger, "set", cacheKeyHealth, s.Cache.Set(ctx, cacheKeyHealth, score, s.CacheTTL))
	return score, nil
}

func (s *HealthService) latestStored(ctx context.Context) (*models.HealthScore, error) {
	var out *models.HealthScore
	err := store.View(ctx, s.Store, []string{models.CollectionHealthScores}, func(tx store.Tx) error {
		docs, err := tx.Query(models.CollectionHealthScores)
		if err != nil || len(docs) == 0 {
			return err
		}
		store.SortDocuments(docs, "calculated_at", true)
		scores, err := store.Decode[models.HealthScore](docs[:1])
		if err != nil {
			return err
		}
		out = &scores[0]
		return nil
	})
	return out, err
}

// Inputs gathers the five input groups concurrently, each in its own read
// transaction.
func (s *HealthService) Inputs(ctx context.Context, from, to time.Time) (scoring.HealthInputs, error) {
	var in scoring.HealthInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.financialInputs(gctx, from, to, &in) })
	g.Go(func() error { return s.operationalInputs(gctx, from, to, &in) })
	g.Go(func() error { return s.qualityInputs(gctx, from, to, &in) })
	g.Go(func() error { return s.hrInputs(gctx, from, to, &in) })
	g.Go(func() error { return s.customerInputs(gctx, from, to, &in) })
	if err := g.Wait(); err != nil {
		return scoring.HealthInputs{}, err
	}
	return in, nil
}

func (s *HealthService) financialInputs(ctx context.Context, from, to time.Time, in *scoring.HealthInputs) error {
	collections := []string{models.CollectionSales, models.CollectionInvoices, models.CollectionPayments}
	err := store.View(ctx, s.Store, collections, func(tx store.Tx) error {
		sales, err := store.Query[models.Sale](tx, models.CollectionSales, closed("sale_date", from, to)...)
		if err != nil {
			return err
		}
		invoices, err := store.Query[models.Invoice](tx, models.CollectionInvoices, closed("issue_date", from, to)...)
		if err != nil {
			return err
		}
		payments, err := store.Query[models.Payment](tx, models.CollectionPayments, closed("paid_at", from, to)...)
		if err != nil {
			return err
		}
		for _, sale := range sales {
			in.Revenue += sale.Total.InexactFloat64()
		}
		for _, inv := range invoices {
			in.InvoicedTotal += inv.Total.InexactFloat64()
		}
		for _, p := range payments {
			in.CollectedTotal += p.Amount.InexactFloat64()
		}
		return nil
	})
	if err != nil {
		return err
	}
	in.RevenueTarget, err = s.Data.RevenueTarget(ctx, from, to)
	return err
}

// operationalInputs converts the stored OEE percentages back to fractions.
func (s *HealthService) operationalInputs(ctx context.Context, from, to time.Time, in *scoring.HealthInputs) error {
	return store.View(ctx, s.Store, []string{models.CollectionMachinePerformance}, func(tx store.Tx) error {
		perf, err := store.Query[models.MachinePerformance](tx, models.CollectionMachinePerformance,
			store.Gte("date", utils.DateKey(from)), store.Lte("date", utils.DateKey(to)))
		if err != nil {
			return err
		}
		for _, p := range perf {
			in.OEE = append(in.OEE, p.OEE/100)
		}
		return nil
	})
}

// qualityInputs scores products with rejections in the window by their stored
// quality score and every other product as clean.
func (s *HealthService) qualityInputs(ctx context.Context, from, to time.Time, in *scoring.HealthInputs) error {
	collections := []string{models.CollectionProductionRuns, models.CollectionProducts, models.CollectionRejections}
	return store.View(ctx, s.Store, collections, func(tx store.Tx) error {
		preds := append(closed("completed_at", from, to), store.Eq("status", models.ProductionStatusCompleted))
		runs, err := store.Query[models.ProductionRun](tx, models.CollectionProductionRuns, preds...)
		if err != nil {
			return err
		}
		for _, r := range runs {
			in.ProducedUnits += r.ActualQuantity
			in.RejectedUnits += r.RejectedQuantity
		}
		rejections, err := store.Query[models.Rejection](tx, models.CollectionRejections, closed("rejected_at", from, to)...)
		if err != nil {
			return err
		}
		rejected := map[string]bool{}
		for _, r := range rejections {
			rejected[r.ProductId] = true
		}
		products, err := store.Query[models.Product](tx, models.CollectionProducts)
		if err != nil {
			return err
		}
		for _, p := range products {
			score := 100.0
			if rejected[p.Id] {
				score = p.QualityScore
			}
			in.ProductQualityScores = append(in.ProductQualityScores, score)
		}
		return nil
	})
}

func (s *HealthService) hrInputs(ctx context.Context, from, to time.Time, in *scoring.HealthInputs) error {
	err := store.View(ctx, s.Store, []string{models.CollectionAttendance}, func(tx store.Tx) error {
		records, err := store.Query[models.Attendance](tx, models.CollectionAttendance, closed("date", from, to)...)
		if err != nil {
			return err
		}
		in.AttendanceRecords, in.AttendancePresent = attendanceCounts(records)
		return nil
	})
	if err != nil {
		return err
	}
	in.EmployeeSatisfaction, err = s.Data.EmployeeSatisfaction(ctx)
	return err
}

func (s *HealthService) customerInputs(ctx context.Context, from, to time.Time, in *scoring.HealthInputs) error {
	return store.View(ctx, s.Store, []string{models.CollectionOrders}, func(tx store.Tx) error {
		orders, err := store.Query[models.Order](tx, models.CollectionOrders, closed("order_date", from, to)...)
		if err != nil {
			return err
		}
		in.TotalOrders = len(orders)
		for _, o := range orders {
			if o.Status == models.OrderStatusCancelled {
				in.CancelledOrders++
			}
		}
		return nil
	})
}

// attendanceCounts ignores leave days; late still counts as attended.
func attendanceCounts(records []models.Attendance) (total, attended int) {
	for _, r := range records {
		switch r.Status {
		case models.AttendanceOnLeave:
			continue
		case models.AttendancePresent, models.AttendanceLate:
			attended++
		}
		total++
	}
	return total, attended
}

// closed is the interval [from, to].
func closed(field string, from, to time.Time) []store.Predicate {
	return []store.Predicate{store.Gte(field, from), store.Lte(field, to)}
}
