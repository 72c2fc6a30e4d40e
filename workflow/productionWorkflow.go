package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

const referenceProduction = "production-run"

// processProductionStatusChanged moves a run along its state machine.
// Completion carries quantities and arrives as ProductionCompleted instead.
func processProductionStatusChanged(c *cascade, p events.ProductionStatusChanged) error {
	c.subject(p.RunId)
	if p.Status == models.ProductionStatusCompleted {
		return utils.NewValidationError(utils.CodeInvalidTransition,
			"run %s: completion must be reported with its quantities", p.RunId)
	}
	run, err := get[models.ProductionRun](c, models.CollectionProductionRuns, p.RunId)
	if err != nil {
		return err
	}
	if !run.Status.CanTransition(p.Status) {
		return utils.NewValidationError(utils.CodeInvalidTransition,
			"run %s: %s -> %s is not allowed", run.Id, run.Status, p.Status)
	}
	patch := map[string]any{"status": p.Status, "updated_at": c.now}
	if p.Status == models.ProductionStatusInProgress && run.StartedAt == nil {
		patch["started_at"] = c.now
	}
	if err := c.tx.Update(models.CollectionProductionRuns, run.Id, patch); err != nil {
		return c.fail("processProductionStatusChanged", "update run", run.Id, err)
	}
	c.note("from", run.Status)
	c.note("to", p.Status)
	return nil
}

// processProductionCompleted books the good output of a run into stock, feeds
// the daily machine and operator aggregates and completes the linked order
// once every line is covered.
func processProductionCompleted(c *cascade, p events.ProductionCompleted) error {
	snapshot := p.Run
	c.subject(snapshot.Id)
	run, err := get[models.ProductionRun](c, models.CollectionProductionRuns, snapshot.Id)
	if err != nil {
		return err
	}
	if !run.Status.CanTransition(models.ProductionStatusCompleted) {
		return utils.NewValidationError(utils.CodeInvalidTransition,
			"run %s: %s -> completed is not allowed", run.Id, run.Status)
	}

	completedAt := c.now
	if snapshot.CompletedAt != nil {
		completedAt = *snapshot.CompletedAt
	}
	done := snapshot
	done.Status = models.ProductionStatusCompleted
	done.CompletedAt = &completedAt
	done.StartedAt = run.StartedAt
	done.GoodQuantity = snapshot.GoodUnits()
	done.UpdatedAt = c.now
	if done.OrderId == "" {
		done.OrderId = run.OrderId
	}
	if err := c.tx.Put(models.CollectionProductionRuns, done.Id, done); err != nil {
		return c.fail("processProductionCompleted", "save run", done.Id, err)
	}

	good := done.GoodQuantity
	if good > 0 {
		inv, err := c.inventoryOrNew(done.ProductId)
		if err != nil {
			return c.fail("processProductionCompleted", "load inventory", done.ProductId, err)
		}
		inv.Restock(good)
		if err := c.putInventory(inv); err != nil {
			return err
		}
		if err := c.movement(done.ProductId, models.MovementIn, good, referenceProduction, done.Id, "", "production output"); err != nil {
			return err
		}
	}

	day := utils.DateKey(completedAt)
	if err := c.addMachinePerformance(done, day); err != nil {
		return err
	}
	if done.OperatorId != "" {
		if err := c.addOperatorPerformance(done, day); err != nil {
			return err
		}
	}
	if done.OrderId != "" {
		if err := c.completeOrderIfFulfilled(done.OrderId); err != nil {
			return err
		}
	}
	c.note("good_units", good)
	return nil
}

func (c *cascade) addMachinePerformance(run models.ProductionRun, day string) error {
	id := models.DailyId(run.MachineId, day)
	perf, err := find[models.MachinePerformance](c, models.CollectionMachinePerformance, id)
	if err != nil {
		return c.fail("addMachinePerformance", "load", id, err)
	}
	if perf == nil {
		perf = &models.MachinePerformance{Id: id, MachineId: run.MachineId, Date: day}
	}
	perf.Runs++
	perf.TargetQuantity += run.TargetQuantity
	perf.ActualQuantity += run.ActualQuantity
	perf.GoodQuantity += run.GoodQuantity
	perf.RejectedQuantity += run.RejectedQuantity
	perf.PlannedMinutes += run.PlannedMinutes
	perf.RunMinutes += run.RunMinutes
	perf.IdealMinutes += run.IdealCycleMinutes * run.ActualQuantity

	oee := scoring.OEE(perf.PlannedMinutes, perf.RunMinutes, perf.IdealMinutes, perf.ActualQuantity, perf.GoodQuantity)
	perf.Availability = utils.Round2(oee.Availability * 100)
	perf.Performance = utils.Round2(oee.Performance * 100)
	perf.Quality = utils.Round2(oee.Quality * 100)
	perf.OEE = utils.Round2(oee.Overall * 100)
	if err := c.tx.Put(models.CollectionMachinePerformance, id, perf); err != nil {
		return c.fail("addMachinePerformance", "save", id, err)
	}
	c.note("machine_oee", perf.OEE)
	return nil
}

func (c *cascade) addOperatorPerformance(run models.ProductionRun, day string) error {
	id := models.DailyId(run.OperatorId, day)
	perf, err := find[models.OperatorPerformance](c, models.CollectionOperatorPerformance, id)
	if err != nil {
		return c.fail("addOperatorPerformance", "load", id, err)
	}
	if perf == nil {
		perf = &models.OperatorPerformance{Id: id, OperatorId: run.OperatorId, Date: day}
	}
	perf.Runs++
	perf.TargetQuantity += run.TargetQuantity
	perf.ActualQuantity += run.ActualQuantity
	perf.GoodQuantity += run.GoodQuantity
	perf.RejectedQuantity += run.RejectedQuantity
	perf.Productivity, perf.DefectRate = 0, 0
	if perf.TargetQuantity > 0 {
		perf.Productivity = utils.Round2(perf.ActualQuantity / perf.TargetQuantity * 100)
	}
	if perf.ActualQuantity > 0 {
		perf.DefectRate = utils.Round2(perf.RejectedQuantity / perf.ActualQuantity * 100)
	}
	if err := c.tx.Put(models.CollectionOperatorPerformance, id, perf); err != nil {
		return c.fail("addOperatorPerformance", "save", id, err)
	}
	return nil
}

// completeOrderIfFulfilled marks the order completed when the good output of
// its completed runs covers every line.
func (c *cascade) completeOrderIfFulfilled(orderId string) error {
	order, err := find[models.Order](c, models.CollectionOrders, orderId)
	if err != nil {
		return c.fail("completeOrderIfFulfilled", "load order", orderId, err)
	}
	if order == nil || order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusCompleted {
		return nil
	}
	runs, err := store.Query[models.ProductionRun](c.tx, models.CollectionProductionRuns,
		store.Eq("order_id", orderId), store.Eq("status", models.ProductionStatusCompleted))
	if err != nil {
		return c.fail("completeOrderIfFulfilled", "query runs", orderId, err)
	}
	produced := map[string]float64{}
	for _, r := range runs {
		produced[r.ProductId] += r.GoodUnits()
	}
	needed := map[string]float64{}
	for _, l := range order.Lines {
		needed[l.ProductId] += l.Quantity
	}
	for productId, qty := range needed {
		if produced[productId] < qty {
			return nil
		}
	}
	if err := c.tx.Update(models.CollectionOrders, orderId, map[string]any{
		"status":     models.OrderStatusCompleted,
		"updated_at": c.now,
	}); err != nil {
		return c.fail("completeOrderIfFulfilled", "update order", orderId, err)
	}
	c.note("order_completed", orderId)
	return nil
}

// processMachineDowntimeRecorded records downtime, opens corrective
// maintenance for breakdowns, pushes overlapping schedule entries back and
// escalates long or critical stoppages.
func processMachineDowntimeRecorded(c *cascade, p events.MachineDowntimeRecorded) error {
	d := p.Downtime
	c.subject(d.Id)
	if err := c.tx.Add(models.CollectionMachineDowntime, d.Id, d); err != nil {
		return c.fail("processMachineDowntimeRecorded", "add downtime", d.Id, err)
	}
	minutes := d.DurationMinutes()

	if d.Category == models.DowntimeBreakdown {
		task := models.MaintenanceTask{
			Id:          c.newID(),
			MachineId:   d.MachineId,
			DowntimeId:  d.Id,
			Type:        models.MaintenanceTypeCorrective,
			Priority:    d.Severity,
			Status:      models.MaintenanceOpen,
			Description: fmt.Sprintf("Breakdown repair: %s", d.Reason),
			DueDate:     maintenanceDue(d, c.now),
			CreatedAt:   c.now,
		}
		if err := c.tx.Add(models.CollectionMaintenanceTasks, task.Id, task); err != nil {
			return c.fail("processMachineDowntimeRecorded", "add maintenance task", task.Id, err)
		}
		c.note("maintenance_task_id", task.Id)
	}

	start, end := d.Window()
	shift := time.Duration(minutes * float64(time.Minute))
	entries, err := store.Query[models.ScheduleEntry](c.tx, models.CollectionProductionSchedule, store.Eq("machine_id", d.MachineId))
	if err != nil {
		return c.fail("processMachineDowntimeRecorded", "query schedule", d.MachineId, err)
	}
	rescheduled := 0
	for _, e := range entries {
		if !e.IsActive() || !e.Overlaps(start, end) {
			continue
		}
		e.StartTime = e.StartTime.Add(shift)
		e.EndTime = e.EndTime.Add(shift)
		e.Status = models.ScheduleStatusRescheduled
		e.RescheduleReason = fmt.Sprintf("machine downtime %s", d.Id)
		e.UpdatedAt = c.now
		if err := c.tx.Put(models.CollectionProductionSchedule, e.Id, e); err != nil {
			return c.fail("processMachineDowntimeRecorded", "reschedule", e.Id, err)
		}
		rescheduled++
	}
	c.note("rescheduled", rescheduled)

	status := models.MachineStatusDown
	if d.Category == models.DowntimeBreakdown {
		status = models.MachineStatusMaintenance
	}
	err = c.tx.Update(models.CollectionMachines, d.MachineId, map[string]any{
		"status":           status,
		"last_downtime_at": d.StartTime,
		"updated_at":       c.now,
	})
	if err != nil && !isMissing(err) {
		return c.fail("processMachineDowntimeRecorded", "update machine", d.MachineId, err)
	}

	if d.Severity != models.SeverityCritical && minutes <= c.th.DowntimeAlertMinutes {
		return nil
	}
	severity := models.SeverityHigh
	if d.Severity == models.SeverityCritical {
		severity = models.SeverityCritical
	}
	alert, created, err := c.monitor.ProposeTx(c.tx, alerts.Proposal{
		Type:     models.AlertTypeOperational,
		Severity: severity,
		Title:    fmt.Sprintf("Machine %s downtime", d.MachineId),
		Message:  fmt.Sprintf("%s downtime of %.0f minutes on machine %s: %s", d.Category, minutes, d.MachineId, d.Reason),
		Source:   "machine-downtime",
		Metrics: map[string]any{
			"downtime_id": d.Id,
			"minutes":     minutes,
			"category":    d.Category,
			"rescheduled": rescheduled,
		},
		Recommendations: []string{
			"Confirm maintenance crew assignment",
			"Review affected production schedule and customer commitments",
		},
	})
	if err != nil {
		return c.fail("processMachineDowntimeRecorded", "propose alert", d.Id, err)
	}
	c.afterCommit(func() { alerts.RecordProposal(models.AlertTypeOperational, created) })
	c.note("alert_id", alert.Id)
	c.note("alert_created", created)
	if created {
		c.notify(notify.ChannelExecutive, map[string]any{
			"type":       "machine-downtime",
			"alert_id":   alert.Id,
			"machine_id": d.MachineId,
			"minutes":    minutes,
		})
	}
	return nil
}

func maintenanceDue(d models.Downtime, now time.Time) time.Time {
	switch d.Severity {
	case models.SeverityCritical:
		return now
	case models.SeverityHigh:
		return now.Add(24 * time.Hour)
	}
	return now.AddDate(0, 0, 7)
}
