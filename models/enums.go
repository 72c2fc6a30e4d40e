package models

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type RejectionStatus string

const (
	RejectionStatusOpen          RejectionStatus = "open"
	RejectionStatusInvestigating RejectionStatus = "investigating"
	RejectionStatusResolved      RejectionStatus = "resolved"
)

type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusConfirmed    OrderStatus = "confirmed"
	OrderStatusInProduction OrderStatus = "in-production"
	OrderStatusDelivered    OrderStatus = "delivered"
	OrderStatusCompleted    OrderStatus = "completed"
	OrderStatusCancelled    OrderStatus = "cancelled"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially-paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
)

type MovementType string

const (
	MovementIn      MovementType = "in"
	MovementOut     MovementType = "out"
	MovementReserve MovementType = "reserve"
	MovementRelease MovementType = "release"
)

type ProductionStatus string

const (
	ProductionStatusScheduled  ProductionStatus = "scheduled"
	ProductionStatusInProgress ProductionStatus = "in-progress"
	ProductionStatusPaused     ProductionStatus = "paused"
	ProductionStatusCompleted  ProductionStatus = "completed"
	ProductionStatusCancelled  ProductionStatus = "cancelled"
)

type DowntimeCategory string

const (
	DowntimePlanned    DowntimeCategory = "planned"
	DowntimeUnplanned  DowntimeCategory = "unplanned"
	DowntimeBreakdown  DowntimeCategory = "breakdown"
	DowntimeChangeover DowntimeCategory = "changeover"
	DowntimeNoOperator DowntimeCategory = "no-operator"
)

type MachineStatus string

const (
	MachineStatusRunning     MachineStatus = "running"
	MachineStatusIdle        MachineStatus = "idle"
	MachineStatusDown        MachineStatus = "down"
	MachineStatusMaintenance MachineStatus = "maintenance"
)

type ScheduleStatus string

const (
	ScheduleStatusScheduled   ScheduleStatus = "scheduled"
	ScheduleStatusActive      ScheduleStatus = "active"
	ScheduleStatusRescheduled ScheduleStatus = "rescheduled"
	ScheduleStatusCompleted   ScheduleStatus = "completed"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusSnoozed      AlertStatus = "snoozed"
)

type AlertType string

const (
	AlertTypeFinancial   AlertType = "financial"
	AlertTypeOperational AlertType = "operational"
	AlertTypeQuality     AlertType = "quality"
	AlertTypeHR          AlertType = "hr"
	AlertTypeSupplyChain AlertType = "supply-chain"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

type Period string

const (
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

type GoalStatus string

const (
	GoalStatusNotStarted GoalStatus = "not-started"
	GoalStatusOnTrack    GoalStatus = "on-track"
	GoalStatusAtRisk     GoalStatus = "at-risk"
	GoalStatusDelayed    GoalStatus = "delayed"
	GoalStatusCompleted  GoalStatus = "completed"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceHalfDay AttendanceStatus = "half-day"
	AttendanceOnLeave AttendanceStatus = "on-leave"
)

type LeaveType string

const (
	LeaveTypeAnnual LeaveType = "annual"
	LeaveTypeSick   LeaveType = "sick"
	LeaveTypeUnpaid LeaveType = "unpaid"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderDraft     PurchaseOrderStatus = "draft"
	PurchaseOrderSubmitted PurchaseOrderStatus = "submitted"
	PurchaseOrderApproved  PurchaseOrderStatus = "approved"
	PurchaseOrderReceived  PurchaseOrderStatus = "received"
	PurchaseOrderCancelled PurchaseOrderStatus = "cancelled"
)

type InspectionStatus string

const (
	InspectionPending InspectionStatus = "pending"
	InspectionPassed  InspectionStatus = "passed"
	InspectionFailed  InspectionStatus = "failed"
)

type ApplicantStatus string

const (
	ApplicantApplied      ApplicantStatus = "applied"
	ApplicantInterviewing ApplicantStatus = "interviewing"
	ApplicantOffered      ApplicantStatus = "offered"
	ApplicantHired        ApplicantStatus = "hired"
	ApplicantRejected     ApplicantStatus = "rejected"
)

type MaintenanceStatus string

const (
	MaintenanceOpen       MaintenanceStatus = "open"
	MaintenanceInProgress MaintenanceStatus = "in-progress"
	MaintenanceDone       MaintenanceStatus = "done"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	// OutboxStatusProcessing marks a message claimed by one dispatcher; see LockedBy.
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
	OutboxStatusDead    OutboxStatus = "DEAD"
)
