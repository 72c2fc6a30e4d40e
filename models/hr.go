package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Employee struct {
	Id           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Email        string          `json:"email" validate:"required,email"`
	DepartmentId string          `json:"department_id,omitempty"`
	ManagerId    string          `json:"manager_id,omitempty"`
	Position     string          `json:"position,omitempty"`
	Salary       decimal.Decimal `json:"salary"`
	ApplicantId  string          `json:"applicant_id,omitempty"`
	UserId       string          `json:"user_id,omitempty"`
	Status       string          `json:"status"`
	HireDate     time.Time       `json:"hire_date" validate:"required"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

const EmployeeStatusActive = "active"

type UserAccount struct {
	Id         string    `json:"id"`
	EmployeeId string    `json:"employee_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Department struct {
	Id          string          `json:"id"`
	Name        string          `json:"name"`
	ManagerId   string          `json:"manager_id,omitempty"`
	Headcount   int             `json:"headcount"`
	PayrollCost decimal.Decimal `json:"payroll_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Applicant struct {
	Id         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Status     ApplicantStatus `json:"status"`
	EmployeeId string          `json:"employee_id,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// LeaveBalance is keyed by employee id.
type LeaveBalance struct {
	EmployeeId string    `json:"employee_id"`
	Annual     float64   `json:"annual"`
	Sick       float64   `json:"sick"`
	UnpaidUsed float64   `json:"unpaid_used"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Deduct takes days from the matching balance, never going below zero, and
// returns the remaining balance. Unpaid leave is only tallied.
func (b *LeaveBalance) Deduct(t LeaveType, days float64) float64 {
	switch t {
	case LeaveTypeAnnual:
		b.Annual = max(0, b.Annual-days)
		return b.Annual
	case LeaveTypeSick:
		b.Sick = max(0, b.Sick-days)
		return b.Sick
	}
	b.UnpaidUsed += days
	return 0
}

type LeaveRequest struct {
	Id         string    `json:"id" validate:"required"`
	EmployeeId string    `json:"employee_id" validate:"required"`
	Type       LeaveType `json:"type" validate:"required,oneof=annual sick unpaid"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
	Days       float64   `json:"days" validate:"gte=0"`
	Status     string    `json:"status"`
	ApprovedBy string    `json:"approved_by,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
}

const LeaveStatusApproved = "approved"

type Attendance struct {
	Id             string           `json:"id" validate:"required"`
	EmployeeId     string           `json:"employee_id" validate:"required"`
	Date           time.Time        `json:"date" validate:"required"`
	CheckIn        *time.Time       `json:"check_in,omitempty"`
	CheckOut       *time.Time       `json:"check_out,omitempty"`
	Status         AttendanceStatus `json:"status" validate:"required,oneof=present late absent half-day on-leave"`
	WorkHours      float64          `json:"work_hours"`
	Flagged        bool             `json:"flagged"`
	FlagReason     string           `json:"flag_reason,omitempty"`
	LeaveRequestId string           `json:"leave_request_id,omitempty"`
}

type OnboardingTask struct {
	Id       string    `json:"id"`
	Title    string    `json:"title"`
	Assignee string    `json:"assignee"`
	DueDate  time.Time `json:"due_date"`
	Done     bool      `json:"done"`
}

type OnboardingPlan struct {
	Id         string           `json:"id"`
	EmployeeId string           `json:"employee_id"`
	StartDate  time.Time        `json:"start_date"`
	Status     string           `json:"status"`
	Tasks      []OnboardingTask `json:"tasks"`
}

type TrainingRecord struct {
	Id          string    `json:"id"`
	EmployeeId  string    `json:"employee_id"`
	Course      string    `json:"course"`
	Hours       float64   `json:"hours"`
	CompletedAt time.Time `json:"completed_at"`
}

type PayrollLine struct {
	EmployeeId string          `json:"employee_id" validate:"required"`
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
}

func (l PayrollLine) Net() decimal.Decimal {
	return l.Gross.Sub(l.Deductions)
}

type Payroll struct {
	Id          string        `json:"id" validate:"required"`
	Period      string        `json:"period" validate:"required"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	Lines       []PayrollLine `json:"lines" validate:"required,min=1,dive"`
	ProcessedAt time.Time     `json:"processed_at"`
}

func (p Payroll) TotalGross() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Gross)
	}
	return total
}

type Payslip struct {
	Id         string          `json:"id"`
	PayrollId  string          `json:"payroll_id"`
	EmployeeId string          `json:"employee_id"`
	Period     string          `json:"period"`
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
	IssuedAt   time.Time       `json:"issued_at"`
}

type Expense struct {
	Id          string          `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceId string          `json:"reference_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
}

const ExpenseCategoryPayroll = "payroll"
