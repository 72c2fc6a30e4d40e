package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEmployeeHiredProvisionsOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionDepartments, "D1", models.Department{Id: "D1", Name: "Production", Headcount: 4})
	h.seed(models.CollectionApplicants, "A1", models.Applicant{Id: "A1", Name: "Nyein", Status: models.ApplicantOffered})

	hire := day(2024, 3, 11)
	emp := models.Employee{
		Id: "E9", Name: "Nyein", Email: "New.Hire@example.com", DepartmentId: "D1",
		ManagerId: "M1", ApplicantId: "A1", HireDate: hire, Salary: decimal.NewFromInt(900),
	}
	require.NoError(t, h.dispatch(events.EmployeeHired{Employee: emp}))

	users := all[models.UserAccount](h, models.CollectionUsers)
	require.Len(t, users, 1)
	assert.Equal(t, "new.hire@example.com", users[0].Email)
	stored := load[models.Employee](h, models.CollectionEmployees, "E9")
	assert.Equal(t, users[0].Id, stored.UserId)
	assert.Equal(t, models.EmployeeStatusActive, stored.Status)

	balance := load[models.LeaveBalance](h, models.CollectionLeaveBalances, "E9")
	assert.Equal(t, 21.0, balance.Annual)
	assert.Equal(t, 10.0, balance.Sick)

	plans := all[models.OnboardingPlan](h, models.CollectionOnboardingPlans, store.Eq("employee_id", "E9"))
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Tasks, 7)
	managerTasks := 0
	for _, task := range plans[0].Tasks {
		assert.NotEmpty(t, task.Id)
		assert.False(t, task.DueDate.Before(hire))
		if task.Assignee == "M1" {
			managerTasks++
		}
	}
	assert.Equal(t, 3, managerTasks)
	assert.True(t, plans[0].Tasks[6].DueDate.Equal(hire.AddDate(0, 0, 30)))

	assert.Equal(t, 5, load[models.Department](h, models.CollectionDepartments, "D1").Headcount)
	applicant := load[models.Applicant](h, models.CollectionApplicants, "A1")
	assert.Equal(t, models.ApplicantHired, applicant.Status)
	assert.Equal(t, "E9", applicant.EmployeeId)

	rehire := models.Employee{Id: "E10", Name: "Nyein", Email: "new.hire@example.com", HireDate: hire}
	require.NoError(t, h.dispatch(events.EmployeeHired{Employee: rehire}))
	assert.Equal(t, 1, h.store.Len(models.CollectionUsers))
	assert.Equal(t, users[0].Id, load[models.Employee](h, models.CollectionEmployees, "E10").UserId)
}

func TestEmployeeHiredRejectsInvalidEmail(t *testing.T) {
	h := newHarness(t)
	err := h.dispatch(events.EmployeeHired{Employee: models.Employee{Id: "E1", Name: "X", Email: "nope", HireDate: testNow}})
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))
	assert.Zero(t, h.store.Len(models.CollectionEmployees))
}

func TestLeaveMondayToFridayDeductsFiveDays(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionEmployees, "E1", models.Employee{Id: "E1", ManagerId: "M1", DepartmentId: "D1"})
	h.seed(models.CollectionLeaveBalances, "E1", models.LeaveBalance{EmployeeId: "E1", Annual: 21, Sick: 10})

	req := models.LeaveRequest{Id: "L1", EmployeeId: "E1", Type: models.LeaveTypeAnnual, StartDate: day(2024, 3, 4), EndDate: day(2024, 3, 8)}
	require.NoError(t, h.dispatch(events.LeaveApproved{Request: req}))

	balance := load[models.LeaveBalance](h, models.CollectionLeaveBalances, "E1")
	assert.Equal(t, 16.0, balance.Annual)
	assert.Equal(t, 10.0, balance.Sick)

	records := all[models.Attendance](h, models.CollectionAttendance, store.Eq("employee_id", "E1"))
	require.Len(t, records, 5)
	for _, a := range records {
		assert.False(t, utils.IsWeekend(a.Date), a.Date)
		assert.Equal(t, models.AttendanceOnLeave, a.Status)
		assert.Equal(t, "L1", a.LeaveRequestId)
	}

	stored := load[models.LeaveRequest](h, models.CollectionLeaveRequests, "L1")
	assert.Equal(t, models.LeaveStatusApproved, stored.Status)
	assert.Equal(t, 5.0, stored.Days)

	assert.Len(t, all[models.OutboxMessage](h, models.CollectionOutbox, store.Eq("channel", notify.ChannelManager)), 1)
	assert.Len(t, all[models.OutboxMessage](h, models.CollectionOutbox, store.Eq("channel", notify.ChannelTeam)), 1)
}

func TestLeaveAcrossWeekendSkipsSaturdayAndSunday(t *testing.T) {
	h := newHarness(t)

	req := models.LeaveRequest{Id: "L2", EmployeeId: "E2", Type: models.LeaveTypeSick, StartDate: day(2024, 3, 8), EndDate: day(2024, 3, 11)}
	require.NoError(t, h.dispatch(events.LeaveApproved{Request: req}))

	records := all[models.Attendance](h, models.CollectionAttendance, store.Eq("employee_id", "E2"))
	require.Len(t, records, 2)
	balance := load[models.LeaveBalance](h, models.CollectionLeaveBalances, "E2")
	assert.Equal(t, 8.0, balance.Sick)
	assert.Equal(t, 21.0, balance.Annual)
}

func TestLeaveBalanceNeverGoesNegative(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionLeaveBalances, "E1", models.LeaveBalance{EmployeeId: "E1", Annual: 2, Sick: 10})

	req := models.LeaveRequest{Id: "L3", EmployeeId: "E1", Type: models.LeaveTypeAnnual, StartDate: day(2024, 3, 4), EndDate: day(2024, 3, 8)}
	require.NoError(t, h.dispatch(events.LeaveApproved{Request: req}))
	assert.Equal(t, 0.0, load[models.LeaveBalance](h, models.CollectionLeaveBalances, "E1").Annual)
}

func TestAttendanceWorkHoursAndLateEscalation(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionEmployees, "E1", models.Employee{Id: "E1", ManagerId: "M1"})

	in := time.Date(2024, 3, 8, 9, 20, 0, 0, time.UTC)
	out := time.Date(2024, 3, 8, 17, 45, 0, 0, time.UTC)
	a := models.Attendance{Id: "AT1", EmployeeId: "E1", Date: day(2024, 3, 8), CheckIn: &in, CheckOut: &out, Status: models.AttendanceLate}
	require.NoError(t, h.dispatch(events.AttendanceRecorded{Attendance: a}))

	stored := load[models.Attendance](h, models.CollectionAttendance, "AT1")
	assert.Equal(t, 8.42, stored.WorkHours)
	assert.False(t, stored.Flagged)

	msgs := all[models.OutboxMessage](h, models.CollectionOutbox, store.Eq("channel", notify.ChannelManager))
	require.Len(t, msgs, 1)
	assert.Equal(t, "M1", msgs[0].Payload["manager_id"])
}

func TestAttendanceAnomalyFlagsRepeatedLateness(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 5; i++ {
		id := models.DailyId("E1", utils.DateKey(day(2024, 3, i)))
		h.seed(models.CollectionAttendance, id, models.Attendance{Id: id, EmployeeId: "E1", Date: day(2024, 3, i), Status: models.AttendanceLate})
	}
	// outside the lookback window
	h.seed(models.CollectionAttendance, "old", models.Attendance{Id: "old", EmployeeId: "E1", Date: day(2024, 1, 2), Status: models.AttendanceAbsent})

	a := models.Attendance{Id: "AT6", EmployeeId: "E1", Date: day(2024, 3, 8), Status: models.AttendanceLate}
	require.NoError(t, h.dispatch(events.AttendanceRecorded{Attendance: a}))

	stored := load[models.Attendance](h, models.CollectionAttendance, "AT6")
	assert.True(t, stored.Flagged)
	assert.Contains(t, stored.FlagReason, "6 late")
	assert.Len(t, all[models.OutboxMessage](h, models.CollectionOutbox, store.Eq("channel", notify.ChannelHR)), 1)
}

func TestAttendanceWithinLimitsIsNotFlagged(t *testing.T) {
	h := newHarness(t)
	for i := 4; i <= 6; i++ {
		id := models.DailyId("E1", utils.DateKey(day(2024, 3, i)))
		h.seed(models.CollectionAttendance, id, models.Attendance{Id: id, EmployeeId: "E1", Date: day(2024, 3, i), Status: models.AttendanceAbsent})
	}

	a := models.Attendance{Id: "AT7", EmployeeId: "E1", Date: day(2024, 3, 7), Status: models.AttendancePresent}
	require.NoError(t, h.dispatch(events.AttendanceRecorded{Attendance: a}))
	assert.False(t, load[models.Attendance](h, models.CollectionAttendance, "AT7").Flagged)
	assert.Zero(t, h.store.Len(models.CollectionOutbox))
}

func TestPayrollIssuesPayslipsAndBooksExpense(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionDepartments, "D1", models.Department{Id: "D1"})
	h.seed(models.CollectionEmployees, "E1", models.Employee{Id: "E1", DepartmentId: "D1"})
	h.seed(models.CollectionEmployees, "E2", models.Employee{Id: "E2", DepartmentId: "D1"})
	h.seed(models.CollectionEmployees, "E3", models.Employee{Id: "E3"})

	payroll := models.Payroll{
		Id:          "PR-2024-02",
		Period:      "2024-02",
		PeriodStart: day(2024, 2, 1),
		PeriodEnd:   day(2024, 2, 29),
		Lines: []models.PayrollLine{
			{EmployeeId: "E1", Gross: decimal.NewFromInt(1000), Deductions: decimal.NewFromInt(100)},
			{EmployeeId: "E2", Gross: decimal.NewFromInt(800), Deductions: decimal.NewFromInt(80)},
			{EmployeeId: "E3", Gross: decimal.NewFromInt(500)},
		},
	}
	require.NoError(t, h.dispatch(events.PayrollProcessed{Payroll: payroll}))

	slips := all[models.Payslip](h, models.CollectionPayslips, store.Eq("payroll_id", "PR-2024-02"))
	require.Len(t, slips, 3)
	for _, s := range slips {
		if s.EmployeeId == "E1" {
			assert.True(t, s.Net.Equal(decimal.NewFromInt(900)))
		}
	}

	expenses := all[models.Expense](h, models.CollectionExpenses, store.Eq("category", models.ExpenseCategoryPayroll))
	require.Len(t, expenses, 1)
	assert.True(t, expenses[0].Amount.Equal(decimal.NewFromInt(2300)))
	assert.True(t, expenses[0].Date.Equal(day(2024, 2, 29)))

	dept := load[models.Department](h, models.CollectionDepartments, "D1")
	assert.True(t, dept.PayrollCost.Equal(decimal.NewFromInt(1800)))
}
