package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type onboardingTemplate struct {
	title    string
	assignee string
	dayDelta int
}

// assignee "manager" resolves to the new hire's manager when one is set.
var onboardingTasks = []onboardingTemplate{
	{"Prepare workstation and equipment", "it", 0},
	{"Create system accounts", "it", 0},
	{"Complete employment paperwork", "hr", 1},
	{"Team introduction", "manager", 1},
	{"Safety and GMP training", "hr", 3},
	{"Role-specific training plan", "manager", 7},
	{"30-day check-in", "manager", 30},
}

// processEmployeeHired provisions everything a new hire needs on day one.
func processEmployeeHired(c *cascade, p events.EmployeeHired) error {
	emp := p.Employee
	c.subject(emp.Id)
	if emp.Status == "" {
		emp.Status = models.EmployeeStatusActive
	}

	user, err := userByEmail(c, emp.Email)
	if err != nil {
		return err
	}
	if user == nil {
		user = &models.UserAccount{
			Id:         c.newID(),
			EmployeeId: emp.Id,
			Email:      strings.ToLower(emp.Email),
			Name:       emp.Name,
			Role:       "employee",
			Active:     true,
			CreatedAt:  c.now,
		}
		if err := c.tx.Add(models.CollectionUsers, user.Id, user); err != nil {
			return c.fail("processEmployeeHired", "add user", user.Email, err)
		}
		c.note("user_created", true)
	}
	emp.UserId = user.Id
	emp.UpdatedAt = c.now
	if err := c.tx.Put(models.CollectionEmployees, emp.Id, emp); err != nil {
		return c.fail("processEmployeeHired", "save employee", emp.Id, err)
	}

	balance, err := find[models.LeaveBalance](c, models.CollectionLeaveBalances, emp.Id)
	if err != nil {
		return c.fail("processEmployeeHired", "load leave balance", emp.Id, err)
	}
	if balance == nil {
		if err := c.tx.Add(models.CollectionLeaveBalances, emp.Id, c.defaultBalance(emp.Id)); err != nil {
			return c.fail("processEmployeeHired", "add leave balance", emp.Id, err)
		}
	}

	plan := models.OnboardingPlan{
		Id:         c.newID(),
		EmployeeId: emp.Id,
		StartDate:  emp.HireDate,
		Status:     "in-progress",
	}
	for i, t := range onboardingTasks {
		assignee := t.assignee
		if assignee == "manager" && emp.ManagerId != "" {
			assignee = emp.ManagerId
		}
		plan.Tasks = append(plan.Tasks, models.OnboardingTask{
			Id:       fmt.Sprintf("%s-%d", plan.Id, i+1),
			Title:    t.title,
			Assignee: assignee,
			DueDate:  emp.HireDate.AddDate(0, 0, t.dayDelta),
		})
	}
	if err := c.tx.Add(models.CollectionOnboardingPlans, plan.Id, plan); err != nil {
		return c.fail("processEmployeeHired", "add onboarding plan", plan.Id, err)
	}

	if dept, err := find[models.Department](c, models.CollectionDepartments, emp.DepartmentId); err != nil {
		return c.fail("processEmployeeHired", "load department", emp.DepartmentId, err)
	} else if dept != nil {
		dept.Headcount++
		dept.UpdatedAt = c.now
		if err := c.tx.Put(models.CollectionDepartments, dept.Id, dept); err != nil {
			return c.fail("processEmployeeHired", "save department", dept.Id, err)
		}
	}

	if emp.ApplicantId != "" {
		err := c.tx.Update(models.CollectionApplicants, emp.ApplicantId, map[string]any{
			"status":      models.ApplicantHired,
			"employee_id": emp.Id,
			"updated_at":  c.now,
		})
		if err != nil && !isMissing(err) {
			return c.fail("processEmployeeHired", "update applicant", emp.ApplicantId, err)
		}
	}

	c.notify(notify.ChannelHR, map[string]any{
		"type":        "employee-hired",
		"employee_id": emp.Id,
		"plan_id":     plan.Id,
	})
	c.note("onboarding_plan_id", plan.Id)
	return nil
}

func userByEmail(c *cascade, email string) (*models.UserAccount, error) {
	users, err := store.Query[models.UserAccount](c.tx, models.CollectionUsers, store.Eq("email", strings.ToLower(email)))
	if err != nil {
		return nil, c.fail("userByEmail", "query users", email, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (c *cascade) defaultBalance(employeeId string) models.LeaveBalance {
	return models.LeaveBalance{
		EmployeeId: employeeId,
		Annual:     c.th.AnnualLeaveDays,
		Sick:       c.th.SickLeaveDays,
		UpdatedAt:  c.now,
	}
}

// processAttendanceRecorded stores the record with its work hours, escalates
// late arrivals and flags employees with a pattern of lateness or absence.
func processAttendanceRecorded(c *cascade, p events.AttendanceRecorded) error {
	a := p.Attendance
	c.subject(a.Id)
	if a.CheckIn != nil && a.CheckOut != nil && a.CheckOut.After(*a.CheckIn) {
		a.WorkHours = utils.Round2(a.CheckOut.Sub(*a.CheckIn).Hours())
	}
	if err := c.tx.Put(models.CollectionAttendance, a.Id, a); err != nil {
		return c.fail("processAttendanceRecorded", "save attendance", a.Id, err)
	}

	emp, err := find[models.Employee](c, models.CollectionEmployees, a.EmployeeId)
	if err != nil {
		return c.fail("processAttendanceRecorded", "load employee", a.EmployeeId, err)
	}
	managerId := ""
	if emp != nil {
		managerId = emp.ManagerId
	}

	if a.Status == models.AttendanceLate {
		c.notify(notify.ChannelManager, map[string]any{
			"type":        "late-arrival",
			"employee_id": a.EmployeeId,
			"manager_id":  managerId,
			"date":        utils.DateKey(a.Date),
		})
	}

	from := utils.StartOfDay(a.Date).AddDate(0, 0, -c.th.AnomalyLookbackDays)
	history, err := store.Query[models.Attendance](c.tx, models.CollectionAttendance,
		store.Eq("employee_id", a.EmployeeId),
		store.Gte("date", from),
		store.Lte("date", a.Date))
	if err != nil {
		return c.fail("processAttendanceRecorded", "query attendance", a.EmployeeId, err)
	}
	late, absent := 0, 0
	for _, h := range history {
		switch h.Status {
		case models.AttendanceLate:
			late++
		case models.AttendanceAbsent:
			absent++
		}
	}
	c.note("late_days", late)
	c.note("absent_days", absent)
	if late <= c.th.LateDaysLimit && absent <= c.th.AbsentDaysLimit {
		return nil
	}

	reason := fmt.Sprintf("%d late and %d absent days in the last %d days", late, absent, c.th.AnomalyLookbackDays)
	if err := c.tx.Update(models.CollectionAttendance, a.Id, map[string]any{
		"flagged":     true,
		"flag_reason": reason,
	}); err != nil {
		return c.fail("processAttendanceRecorded", "flag attendance", a.Id, err)
	}
	c.notify(notify.ChannelHR, map[string]any{
		"type":        "attendance-anomaly",
		"employee_id": a.EmployeeId,
		"manager_id":  managerId,
		"reason":      reason,
	})
	c.note("flagged", true)
	return nil
}

// processLeaveApproved deducts the leave from the employee's balance and
// materializes one on-leave attendance record per weekday.
func processLeaveApproved(c *cascade, p events.LeaveApproved) error {
	req := p.Request
	c.subject(req.Id)
	req.Status = models.LeaveStatusApproved
	if req.ApprovedAt.IsZero() {
		req.ApprovedAt = c.now
	}
	days := utils.Weekdays(req.StartDate, req.EndDate)
	if req.Days <= 0 {
		req.Days = float64(len(days))
	}
	if err := c.tx.Put(models.CollectionLeaveRequests, req.Id, req); err != nil {
		return c.fail("processLeaveApproved", "save leave request", req.Id, err)
	}

	balance, err := find[models.LeaveBalance](c, models.CollectionLeaveBalances, req.EmployeeId)
	if err != nil {
		return c.fail("processLeaveApproved", "load leave balance", req.EmployeeId, err)
	}
	if balance == nil {
		b := c.defaultBalance(req.EmployeeId)
		balance = &b
	}
	remaining := balance.Deduct(req.Type, req.Days)
	balance.UpdatedAt = c.now
	if err := c.tx.Put(models.CollectionLeaveBalances, req.EmployeeId, balance); err != nil {
		return c.fail("processLeaveApproved", "save leave balance", req.EmployeeId, err)
	}

	for _, day := range days {
		a := models.Attendance{
			Id:             models.DailyId(req.EmployeeId, utils.DateKey(day)),
			EmployeeId:     req.EmployeeId,
			Date:           day,
			Status:         models.AttendanceOnLeave,
			LeaveRequestId: req.Id,
		}
		if err := c.tx.Put(models.CollectionAttendance, a.Id, a); err != nil {
			return c.fail("processLeaveApproved", "add leave attendance", a.Id, err)
		}
	}

	managerId := ""
	departmentId := ""
	if emp, err := find[models.Employee](c, models.CollectionEmployees, req.EmployeeId); err != nil {
		return c.fail("processLeaveApproved", "load employee", req.EmployeeId, err)
	} else if emp != nil {
		managerId = emp.ManagerId
		departmentId = emp.DepartmentId
	}
	for _, channel := range []string{notify.ChannelManager, notify.ChannelTeam} {
		c.notify(channel, map[string]any{
			"type":          "leave-approved",
			"employee_id":   req.EmployeeId,
			"manager_id":    managerId,
			"department_id": departmentId,
			"start_date":    utils.DateKey(req.StartDate),
			"end_date":      utils.DateKey(req.EndDate),
		})
	}
	c.note("days", req.Days)
	c.note("remaining", remaining)
	c.note("attendance_records", len(days))
	return nil
}

// processPayrollProcessed issues payslips, books the payroll expense and
// refreshes department payroll cost.
func processPayrollProcessed(c *cascade, p events.PayrollProcessed) error {
	payroll := p.Payroll
	c.subject(payroll.Id)
	if payroll.ProcessedAt.IsZero() {
		payroll.ProcessedAt = c.now
	}
	if err := c.tx.Add(models.CollectionPayrolls, payroll.Id, payroll); err != nil {
		return c.fail("processPayrollProcessed", "add payroll", payroll.Id, err)
	}

	byDepartment := map[string]decimal.Decimal{}
	for _, line := range payroll.Lines {
		slip := models.Payslip{
			Id:         models.DailyId(payroll.Id, line.EmployeeId),
			PayrollId:  payroll.Id,
			EmployeeId: line.EmployeeId,
			Period:     payroll.Period,
			Gross:      line.Gross,
			Deductions: line.Deductions,
			Net:        line.Net(),
			IssuedAt:   c.now,
		}
		if err := c.tx.Add(models.CollectionPayslips, slip.Id, slip); err != nil {
			return c.fail("processPayrollProcessed", "add payslip", slip.Id, err)
		}
		emp, err := find[models.Employee](c, models.CollectionEmployees, line.EmployeeId)
		if err != nil {
			return c.fail("processPayrollProcessed", "load employee", line.EmployeeId, err)
		}
		if emp != nil && emp.DepartmentId != "" {
			byDepartment[emp.DepartmentId] = byDepartment[emp.DepartmentId].Add(line.Gross)
		}
	}

	total := payroll.TotalGross()
	expense := models.Expense{
		Id:          c.newID(),
		Category:    models.ExpenseCategoryPayroll,
		Amount:      total,
		ReferenceId: payroll.Id,
		Description: "Payroll " + payroll.Period,
		Date:        payrollDate(payroll),
	}
	if err := c.tx.Add(models.CollectionExpenses, expense.Id, expense); err != nil {
		return c.fail("processPayrollProcessed", "add expense", expense.Id, err)
	}

	for deptId, cost := range byDepartment {
		err := c.tx.Update(models.CollectionDepartments, deptId, map[string]any{
			"payroll_cost": cost,
			"updated_at":   c.now,
		})
		if err != nil && !isMissing(err) {
			return c.fail("processPayrollProcessed", "update department", deptId, err)
		}
	}
	c.note("payslips", len(payroll.Lines))
	c.note("total_gross", total.String())
	return nil
}

func payrollDate(p models.Payroll) time.Time {
	if !p.PeriodEnd.IsZero() {
		return p.PeriodEnd
	}
	return p.ProcessedAt
}
