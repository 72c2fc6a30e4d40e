package models

import "time"

type ExecutiveAlert struct {
	Id              string         `json:"id"`
	Type            AlertType      `json:"type"`
	Severity        Severity       `json:"severity"`
	Status          AlertStatus    `json:"status"`
	Title           string         `json:"title"`
	Message         string         `json:"message,omitempty"`
	Source          string         `json:"source,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	AcknowledgedBy  string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	Resolution      string         `json:"resolution,omitempty"`
	SnoozedUntil    *time.Time     `json:"snoozed_until,omitempty"`
}

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusActive:  {AlertStatusAcknowledged, AlertStatusResolved, AlertStatusSnoozed},
	AlertStatusSnoozed: {AlertStatusActive},
}

func (s AlertStatus) CanTransition(to AlertStatus) bool {
	for _, next := range alertTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type HealthBreakdown struct {
	Financial   float64 `json:"financial"`
	Operational float64 `json:"operational"`
	Quality     float64 `json:"quality"`
	HR          float64 `json:"hr"`
	Customer    float64 `json:"customer"`
}

type HealthScore struct {
	Id            string          `json:"id"`
	Overall       float64         `json:"overall"`
	Breakdown     HealthBreakdown `json:"breakdown"`
	Trend         Trend           `json:"trend"`
	PreviousScore *float64        `json:"previous_score,omitempty"`
	WindowStart   time.Time       `json:"window_start"`
	WindowEnd     time.Time       `json:"window_end"`
	CalculatedAt  time.Time       `json:"calculated_at"`
}

// KPIValues are the raw aggregates of one period.
type KPIValues struct {
	Revenue            float64 `json:"revenue"`
	Profit             float64 `json:"profit"`
	ProfitMargin       float64 `json:"profit_margin"`
	Orders             float64 `json:"orders"`
	AverageOrderValue  float64 `json:"average_order_value"`
	ProductionOutput   float64 `json:"production_output"`
	DefectRate         float64 `json:"defect_rate"`
	AttendanceRate     float64 `json:"attendance_rate"`
	Headcount          float64 `json:"headcount"`
	TurnoverRate       float64 `json:"turnover_rate"`
	CustomerCount      float64 `json:"customer_count"`
	CollectedPayments  float64 `json:"collected_payments"`
	OutstandingBalance float64 `json:"outstanding_balance"`
}

type ExecutiveKPI struct {
	Id          string             `json:"id"`
	Period      Period             `json:"period"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	Values      KPIValues          `json:"values"`
	Previous    KPIValues          `json:"previous"`
	GrowthRates map[string]float64 `json:"growth_rates"`
	ComputedAt  time.Time          `json:"computed_at"`
}

type StrategicGoal struct {
	Id           string     `json:"id"`
	Title        string     `json:"title"`
	Owner        string     `json:"owner,omitempty"`
	TargetValue  float64    `json:"target_value"`
	CurrentValue float64    `json:"current_value"`
	Unit         string     `json:"unit,omitempty"`
	StartDate    time.Time  `json:"start_date"`
	DueDate      time.Time  `json:"due_date"`
	Status       GoalStatus `json:"status"`
	Progress     float64    `json:"progress"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
