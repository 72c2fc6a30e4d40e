package config

// Thresholds holds every tunable number used by scoring, cascades and alert detectors.
// Defaults reproduce the historical hard-coded behaviour exactly.
type Thresholds struct {
	// quality score = 100 - QualityRejectionPenalty*open - QualityCriticalPenalty*critical
	QualityRejectionPenalty float64 `mapstructure:"quality_rejection_penalty"`
	QualityCriticalPenalty  float64 `mapstructure:"quality_critical_penalty"`
	// supplier score = 100 - SupplierRejectionPenalty*total - SupplierCriticalPenalty*critical
	SupplierRejectionPenalty float64 `mapstructure:"supplier_rejection_penalty"`
	SupplierCriticalPenalty  float64 `mapstructure:"supplier_critical_penalty"`
	SupplierReviewScore      float64 `mapstructure:"supplier_review_score"`

	DowntimeAlertMinutes float64 `mapstructure:"downtime_alert_minutes"`

	ReorderMultiplier  float64 `mapstructure:"reorder_multiplier"`
	MinReorderQuantity float64 `mapstructure:"min_reorder_quantity"`
	InvoiceDueDays     int     `mapstructure:"invoice_due_days"`

	AnnualLeaveDays     float64 `mapstructure:"annual_leave_days"`
	SickLeaveDays       float64 `mapstructure:"sick_leave_days"`
	AnomalyLookbackDays int     `mapstructure:"anomaly_lookback_days"`
	LateDaysLimit       int     `mapstructure:"late_days_limit"`
	AbsentDaysLimit     int     `mapstructure:"absent_days_limit"`

	InspectionSampleMax float64 `mapstructure:"inspection_sample_max"`

	// Health score
	HealthTrendBand       float64 `mapstructure:"health_trend_band"`
	HealthWindowDays      int     `mapstructure:"health_window_days"`
	WeightFinancial       float64 `mapstructure:"weight_financial"`
	WeightOperational     float64 `mapstructure:"weight_operational"`
	WeightQuality         float64 `mapstructure:"weight_quality"`
	WeightHR              float64 `mapstructure:"weight_hr"`
	WeightCustomer        float64 `mapstructure:"weight_customer"`
	NoDataSubScore        float64 `mapstructure:"no_data_sub_score"`
	CustomerVIPValue      float64 `mapstructure:"customer_vip_value"`
	CustomerLoyalOrders   int     `mapstructure:"customer_loyal_orders"`
	GoalDelayedGap        float64 `mapstructure:"goal_delayed_gap"`
	GoalAtRiskGap         float64 `mapstructure:"goal_at_risk_gap"`
	CorrelationAttendance float64 `mapstructure:"correlation_attendance_floor"`
	CorrelationDefectRate float64 `mapstructure:"correlation_defect_ceiling"`
	CorrelationTraining   float64 `mapstructure:"correlation_training_floor"`
	CorrelationProductive float64 `mapstructure:"correlation_productivity_floor"`

	// Detectors
	CashFlowFloor              float64 `mapstructure:"cash_flow_floor"`
	CashFlowWindowDays         int     `mapstructure:"cash_flow_window_days"`
	CriticalDowntimeCount      int     `mapstructure:"critical_downtime_count"`
	CriticalDowntimeWindowHrs  int     `mapstructure:"critical_downtime_window_hours"`
	CriticalRejectionSpike     int     `mapstructure:"critical_rejection_spike"`
	CriticalRejectionWindowDay int     `mapstructure:"critical_rejection_window_days"`
	AbsenceRateAlert           float64 `mapstructure:"absence_rate_alert"`
	AbsenceWindowDays          int     `mapstructure:"absence_window_days"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		QualityRejectionPenalty:  5,
		QualityCriticalPenalty:   15,
		SupplierRejectionPenalty: 3,
		SupplierCriticalPenalty:  10,
		SupplierReviewScore:      60,

		DowntimeAlertMinutes: 240,

		ReorderMultiplier:  2,
		MinReorderQuantity: 100,
		InvoiceDueDays:     30,

		AnnualLeaveDays:     21,
		SickLeaveDays:       10,
		AnomalyLookbackDays: 30,
		LateDaysLimit:       5,
		AbsentDaysLimit:     3,

		InspectionSampleMax: 10,

		HealthTrendBand:       2,
		HealthWindowDays:      30,
		WeightFinancial:       0.30,
		WeightOperational:     0.25,
		WeightQuality:         0.15,
		WeightHR:              0.15,
		WeightCustomer:        0.15,
		NoDataSubScore:        50,
		CustomerVIPValue:      10000,
		CustomerLoyalOrders:   5,
		GoalDelayedGap:        20,
		GoalAtRiskGap:         10,
		CorrelationAttendance: 90,
		CorrelationDefectRate: 5,
		CorrelationTraining:   10,
		CorrelationProductive: 70,

		CashFlowFloor:              0,
		CashFlowWindowDays:         30,
		CriticalDowntimeCount:      1,
		CriticalDowntimeWindowHrs:  24,
		CriticalRejectionSpike:     3,
		CriticalRejectionWindowDay: 7,
		AbsenceRateAlert:           10,
		AbsenceWindowDays:          30,
	}
}
