package executive

import (
	"context"
	"time"
)

// DataSource supplies the inputs no collection records yet. Implementations
// backed by surveys, HRIS exports or finance plans can replace the static one.
type DataSource interface {
	EmployeeSatisfaction(ctx context.Context) (float64, error)
	TurnoverRate(ctx context.Context, from, to time.Time) (float64, error)
	// RevenueTarget returns 0 when no target is set for the window.
	RevenueTarget(ctx context.Context, from, to time.Time) (float64, error)
}

type StaticDataSource struct {
	Satisfaction float64
	Turnover     float64
	// MonthlyRevenueTarget is prorated over the requested window.
	MonthlyRevenueTarget float64
}

func DefaultDataSource() StaticDataSource {
	return StaticDataSource{Satisfaction: 80, Turnover: 5}
}

func (s StaticDataSource) EmployeeSatisfaction(context.Context) (float64, error) {
	return s.Satisfaction, nil
}

func (s StaticDataSource) TurnoverRate(context.Context, time.Time, time.Time) (float64, error) {
	return s.Turnover, nil
}

func (s StaticDataSource) RevenueTarget(_ context.Context, from, to time.Time) (float64, error) {
	if s.MonthlyRevenueTarget <= 0 || !to.After(from) {
		return 0, nil
	}
	days := to.Sub(from).Hours() / 24
	return s.MonthlyRevenueTarget * days / 30, nil
}
