package models

import (
	"fmt"
	"time"
)

type ProductionRun struct {
	Id                string           `json:"id" validate:"required"`
	OrderId           string           `json:"order_id,omitempty"`
	MachineId         string           `json:"machine_id" validate:"required"`
	ProductId         string           `json:"product_id" validate:"required"`
	OperatorId        string           `json:"operator_id,omitempty"`
	TargetQuantity    float64          `json:"target_quantity" validate:"gte=0"`
	ActualQuantity    float64          `json:"actual_quantity" validate:"gte=0"`
	GoodQuantity      float64          `json:"good_quantity" validate:"gte=0"`
	RejectedQuantity  float64          `json:"rejected_quantity" validate:"gte=0"`
	PlannedMinutes    float64          `json:"planned_minutes" validate:"gte=0"`
	RunMinutes        float64          `json:"run_minutes" validate:"gte=0"`
	IdealCycleMinutes float64          `json:"ideal_cycle_minutes" validate:"gte=0"`
	Status            ProductionStatus `json:"status"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// GoodUnits is what a completed run adds to stock. Overproduction is legal,
// so only the floor at zero is enforced.
func (r ProductionRun) GoodUnits() float64 {
	return max(0, r.ActualQuantity-r.RejectedQuantity)
}

var productionTransitions = map[ProductionStatus][]ProductionStatus{
	ProductionStatusScheduled:  {ProductionStatusInProgress, ProductionStatusCancelled},
	ProductionStatusInProgress: {ProductionStatusPaused, ProductionStatusCompleted, ProductionStatusCancelled},
	ProductionStatusPaused:     {ProductionStatusInProgress, ProductionStatusCancelled},
}

func (s ProductionStatus) CanTransition(to ProductionStatus) bool {
	for _, next := range productionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ProductionStatus) IsTerminal() bool {
	return s == ProductionStatusCompleted || s == ProductionStatusCancelled
}

type ScheduleEntry struct {
	Id               string         `json:"id"`
	RunId            string         `json:"run_id,omitempty"`
	MachineId        string         `json:"machine_id"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Status           ScheduleStatus `json:"status"`
	RescheduleReason string         `json:"reschedule_reason,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (e ScheduleEntry) IsActive() bool {
	return e.Status == ScheduleStatusScheduled || e.Status == ScheduleStatusActive ||
		e.Status == ScheduleStatusRescheduled
}

// Overlaps reports whether the entry intersects the half-open window [start, end).
func (e ScheduleEntry) Overlaps(start, end time.Time) bool {
	return e.StartTime.Before(end) && start.Before(e.EndTime)
}

type Machine struct {
	Id             string        `json:"id"`
	Name           string        `json:"name"`
	Status         MachineStatus `json:"status"`
	LastDowntimeAt *time.Time    `json:"last_downtime_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type Downtime struct {
	Id               string           `json:"id" validate:"required"`
	MachineId        string           `json:"machine_id" validate:"required"`
	Category         DowntimeCategory `json:"category" validate:"required,oneof=planned unplanned breakdown changeover no-operator"`
	Severity         Severity         `json:"severity" validate:"required,oneof=low medium high critical"`
	StartTime        time.Time        `json:"start_time" validate:"required"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
	EstimatedMinutes float64          `json:"estimated_minutes" validate:"gte=0"`
	Reason           string           `json:"reason,omitempty"`
}

// DurationMinutes uses the actual window when the downtime has ended and the
// estimate otherwise.
func (d Downtime) DurationMinutes() float64 {
	if d.EndTime != nil && d.EndTime.After(d.StartTime) {
		return d.EndTime.Sub(d.StartTime).Minutes()
	}
	return d.EstimatedMinutes
}

func (d Downtime) Window() (time.Time, time.Time) {
	return d.StartTime, d.StartTime.Add(time.Duration(d.DurationMinutes() * float64(time.Minute)))
}

type MaintenanceTask struct {
	Id          string            `json:"id"`
	MachineId   string            `json:"machine_id"`
	DowntimeId  string            `json:"downtime_id,omitempty"`
	Type        string            `json:"type"`
	Priority    Severity          `json:"priority"`
	Status      MaintenanceStatus `json:"status"`
	Description string            `json:"description"`
	DueDate     time.Time         `json:"due_date"`
	CreatedAt   time.Time         `json:"created_at"`
}

const MaintenanceTypeCorrective = "corrective"

// MachinePerformance is the per machine, per day aggregate fed by completed runs.
type MachinePerformance struct {
	Id               string  `json:"id"`
	MachineId        string  `json:"machine_id"`
	Date             string  `json:"date"`
	Runs             int     `json:"runs"`
	TargetQuantity   float64 `json:"target_quantity"`
	ActualQuantity   float64 `json:"actual_quantity"`
	GoodQuantity     float64 `json:"good_quantity"`
	RejectedQuantity float64 `json:"rejected_quantity"`
	PlannedMinutes   float64 `json:"planned_minutes"`
	RunMinutes       float64 `json:"run_minutes"`
	IdealMinutes     float64 `json:"ideal_minutes"`
	Availability     float64 `json:"availability"`
	Performance      float64 `json:"performance"`
	Quality          float64 `json:"quality"`
	OEE              float64 `json:"oee"`
}

type OperatorPerformance struct {
	Id               string  `json:"id"`
	OperatorId       string  `json:"operator_id"`
	Date             string  `json:"date"`
	Runs             int     `json:"runs"`
	TargetQuantity   float64 `json:"target_quantity"`
	ActualQuantity   float64 `json:"actual_quantity"`
	GoodQuantity     float64 `json:"good_quantity"`
	RejectedQuantity float64 `json:"rejected_quantity"`
	Productivity     float64 `json:"productivity"`
	DefectRate       float64 `json:"defect_rate"`
}

func DailyId(ownerId, dateKey string) string {
	return fmt.Sprintf("%s:%s", ownerId, dateKey)
}
