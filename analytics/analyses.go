package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

const (
	AnalysisAttendanceDefects   = "attendance-vs-defects"
	AnalysisTrainingProductive  = "training-vs-productivity"
	AnalysisSupplierScoreDefect = "supplier-score-vs-defects"
)

// Point is one paired observation, keyed by the entity it was aggregated for.
type Point struct {
	Key string  `json:"key"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

type Result struct {
	Name            string    `json:"name"`
	XMetric         string    `json:"x_metric"`
	YMetric         string    `json:"y_metric"`
	Coefficient     float64   `json:"coefficient"`
	Strength        Strength  `json:"strength"`
	Direction       Direction `json:"direction"`
	Expected        Direction `json:"expected"`
	SampleSize      int       `json:"sample_size"`
	Points          []Point   `json:"points"`
	Outliers        []Point   `json:"outliers"`
	Recommendations []string  `json:"recommendations"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

// MatchesExpectation reports whether the observed sign is the one the analysis
// was designed around. A zero coefficient never matches.
func (r Result) MatchesExpectation() bool {
	return r.Direction == r.Expected
}

type Engine struct {
	Store      store.Store
	Thresholds config.Thresholds
	Logger     *logrus.Logger
	Now        func() time.Time

	tracer trace.Tracer
}

func NewEngine(s store.Store, th config.Thresholds, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Engine{
		Store:      s,
		Thresholds: th,
		Logger:     logger,
		Now:        func() time.Time { return time.Now().UTC() },
		tracer:     otel.Tracer("bitbucket.org/mmdatafocus/ops_backend/analytics"),
	}
}

// Window returns the trailing window of days ending now.
func (e *Engine) Window(days int) (time.Time, time.Time) {
	to := e.Now()
	return to.AddDate(0, 0, -days), to
}

// All runs the three analyses concurrently over the same window.
func (e *Engine) All(ctx context.Context, from, to time.Time) ([]Result, error) {
	results := make([]Result, 3)
	runs := []func(context.Context, time.Time, time.Time) (*Result, error){
		e.AttendanceVsDefects,
		e.TrainingVsProductivity,
		e.SupplierScoreVsDefects,
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			r, err := run(gctx, from, to)
			if err != nil {
				return err
			}
			results[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AttendanceVsDefects pairs each operator's attendance rate with the defect
// rate of the runs they operated. A negative correlation is expected.
func (e *Engine) AttendanceVsDefects(ctx context.Context, from, to time.Time) (*Result, error) {
	ctx, span := e.start(ctx, AnalysisAttendanceDefects)
	defer span.End()

	var (
		attendance []models.Attendance
		perf       []models.OperatorPerformance
	)
	err := store.View(ctx, e.Store, []string{models.CollectionAttendance, models.CollectionOperatorPerformance}, func(tx store.Tx) error {
		var err error
		attendance, err = store.Query[models.Attendance](tx, models.CollectionAttendance, store.Gte("date", from), store.Lte("date", to))
		if err != nil {
			return err
		}
		perf, err = operatorPerformance(tx, from, to)
		return err
	})
	if err != nil {
		return nil, e.fail("AttendanceVsDefects", err)
	}

	attended := map[string]float64{}
	counted := map[string]float64{}
	for _, a := range attendance {
		switch a.Status {
		case models.AttendanceOnLeave:
			continue
		case models.AttendancePresent, models.AttendanceLate:
			attended[a.EmployeeId]++
		case models.AttendanceHalfDay:
			attended[a.EmployeeId] += 0.5
		}
		counted[a.EmployeeId]++
	}
	defects := defectRates(perf)

	var points []Point
	for id, n := range counted {
		rate, ok := defects[id]
		if !ok || n == 0 {
			continue
		}
		points = append(points, Point{Key: id, X: utils.Round2(attended[id] / n * 100), Y: rate})
	}

	th := e.Thresholds
	res := e.result(AnalysisAttendanceDefects, "attendance_rate", "defect_rate", DirectionNegative, points, from, to,
		func(p Point) bool { return p.X < th.CorrelationAttendance && p.Y > th.CorrelationDefectRate })
	if len(res.Outliers) > 0 {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Review attendance with %d operators below %.0f%% attendance and above %.0f%% defects", len(res.Outliers), th.CorrelationAttendance, th.CorrelationDefectRate))
	}
	if res.Coefficient <= -0.5 {
		res.Recommendations = append(res.Recommendations, "Attendance drives quality; prioritise shift coverage on critical lines")
	}
	return res, nil
}

// TrainingVsProductivity pairs training hours with average productivity per
// operator. A positive correlation is expected.
func (e *Engine) TrainingVsProductivity(ctx context.Context, from, to time.Time) (*Result, error) {
	ctx, span := e.start(ctx, AnalysisTrainingProductive)
	defer span.End()

	var (
		training []models.TrainingRecord
		perf     []models.OperatorPerformance
	)
	err := store.View(ctx, e.Store, []string{models.CollectionTrainingRecords, models.CollectionOperatorPerformance}, func(tx store.Tx) error {
		var err error
		training, err = store.Query[models.TrainingRecord](tx, models.CollectionTrainingRecords, store.Lte("completed_at", to))
		if err != nil {
			return err
		}
		perf, err = operatorPerformance(tx, from, to)
		return err
	})
	if err != nil {
		return nil, e.fail("TrainingVsProductivity", err)
	}

	hours := map[string]float64{}
	for _, t := range training {
		hours[t.EmployeeId] += t.Hours
	}
	productivity := map[string]float64{}
	days := map[string]float64{}
	for _, p := range perf {
		productivity[p.OperatorId] += p.Productivity
		days[p.OperatorId]++
	}

	var points []Point
	for id, n := range days {
		points = append(points, Point{Key: id, X: utils.Round2(hours[id]), Y: utils.Round2(productivity[id] / n)})
	}

	th := e.Thresholds
	res := e.result(AnalysisTrainingProductive, "training_hours", "productivity", DirectionPositive, points, from, to,
		func(p Point) bool { return p.X < th.CorrelationTraining && p.Y < th.CorrelationProductive })
	if len(res.Outliers) > 0 {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Schedule training for %d operators with under %.0f hours and productivity below %.0f%%", len(res.Outliers), th.CorrelationTraining, th.CorrelationProductive))
	}
	if res.Coefficient >= 0.5 {
		res.Recommendations = append(res.Recommendations, "Training pays off; expand the programme to remaining operators")
	}
	return res, nil
}

// SupplierScoreVsDefects pairs each supplier's overall score with the negated
// defect rate of what it delivered, so a positive correlation is expected.
func (e *Engine) SupplierScoreVsDefects(ctx context.Context, from, to time.Time) (*Result, error) {
	ctx, span := e.start(ctx, AnalysisSupplierScoreDefect)
	defer span.End()

	var (
		suppliers  []models.Supplier
		received   []models.PurchaseOrder
		rejections []models.Rejection
	)
	collections := []string{models.CollectionSuppliers, models.CollectionPurchaseOrders, models.CollectionRejections}
	err := store.View(ctx, e.Store, collections, func(tx store.Tx) error {
		var err error
		if suppliers, err = store.Query[models.Supplier](tx, models.CollectionSuppliers); err != nil {
			return err
		}
		received, err = store.Query[models.PurchaseOrder](tx, models.CollectionPurchaseOrders,
			store.Eq("status", models.PurchaseOrderReceived), store.Gte("received_at", from), store.Lte("received_at", to))
		if err != nil {
			return err
		}
		rejections, err = store.Query[models.Rejection](tx, models.CollectionRejections, store.Gte("rejected_at", from), store.Lte("rejected_at", to))
		return err
	})
	if err != nil {
		return nil, e.fail("SupplierScoreVsDefects", err)
	}

	delivered := map[string]float64{}
	for _, po := range received {
		for _, l := range po.Lines {
			delivered[po.SupplierId] += l.Quantity
		}
	}
	rejected := map[string]float64{}
	for _, r := range rejections {
		if r.SupplierId != "" {
			rejected[r.SupplierId] += r.Quantity
		}
	}

	var points []Point
	for _, s := range suppliers {
		qty := delivered[s.Id]
		if qty <= 0 {
			continue
		}
		rate := utils.Round2(rejected[s.Id] / qty * 100)
		points = append(points, Point{Key: s.Id, X: s.OverallScore, Y: -rate})
	}

	th := e.Thresholds
	res := e.result(AnalysisSupplierScoreDefect, "supplier_score", "negated_defect_rate", DirectionPositive, points, from, to,
		func(p Point) bool { return p.X >= th.SupplierReviewScore && -p.Y > th.CorrelationDefectRate })
	if len(res.Outliers) > 0 {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Re-evaluate %d suppliers whose score hides a defect rate above %.0f%%", len(res.Outliers), th.CorrelationDefectRate))
	}
	if res.Coefficient < 0.3 && res.SampleSize > 1 {
		res.Recommendations = append(res.Recommendations, "Supplier scores do not track delivered quality; weight inspections higher in evaluations")
	}
	return res, nil
}

func (e *Engine) result(name, xMetric, yMetric string, expected Direction, points []Point, from, to time.Time, outlier func(Point) bool) *Result {
	sort.Slice(points, func(i, j int) bool { return points[i].Key < points[j].Key })
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	outliers := []Point{}
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
		if outlier(p) {
			outliers = append(outliers, p)
		}
	}
	r, err := PearsonChecked(xs, ys)
	if err != nil {
		e.Logger.WithFields(logrus.Fields{
			"analysis": name,
			"points":   len(points),
		}).Debug("correlation degraded to 0: " + err.Error())
	}
	r = utils.Round2(r)
	analysisRuns.WithLabelValues(name).Inc()
	return &Result{
		Name:            name,
		XMetric:         xMetric,
		YMetric:         yMetric,
		Coefficient:     r,
		Strength:        StrengthOf(r),
		Direction:       DirectionOf(r),
		Expected:        expected,
		SampleSize:      len(points),
		Points:          points,
		Outliers:        outliers,
		Recommendations: []string{},
		WindowStart:     from,
		WindowEnd:       to,
	}
}

func (e *Engine) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "analytics."+name, trace.WithAttributes(attribute.String("analysis", name)))
}

func (e *Engine) fail(funcName string, err error) error {
	config.LogError(e.Logger, "analytics/analyses.go", funcName, "load series", nil, err)
	return fmt.Errorf("%s: %w", funcName, err)
}

func operatorPerformance(tx store.Tx, from, to time.Time) ([]models.OperatorPerformance, error) {
	return store.Query[models.OperatorPerformance](tx, models.CollectionOperatorPerformance,
		store.Gte("date", utils.DateKey(from)), store.Lte("date", utils.DateKey(to)))
}

// defectRates is rejected over actual quantity per operator, as a percentage.
func defectRates(perf []models.OperatorPerformance) map[string]float64 {
	actual := map[string]float64{}
	rejected := map[string]float64{}
	for _, p := range perf {
		actual[p.OperatorId] += p.ActualQuantity
		rejected[p.OperatorId] += p.RejectedQuantity
	}
	out := make(map[string]float64, len(actual))
	for id, a := range actual {
		if a > 0 {
			out[id] = utils.Round2(rejected[id] / a * 100)
		}
	}
	return out
}
