package workflow

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

func TestProductionStatusFollowsStateMachine(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionProductionRuns, "RUN1", models.ProductionRun{Id: "RUN1", MachineId: "M1", ProductId: "P", Status: models.ProductionStatusScheduled})

	require.NoError(t, h.dispatch(events.ProductionStatusChanged{RunId: "RUN1", Status: models.ProductionStatusInProgress}))
	run := load[models.ProductionRun](h, models.CollectionProductionRuns, "RUN1")
	assert.Equal(t, models.ProductionStatusInProgress, run.Status)
	require.NotNil(t, run.StartedAt)

	err := h.dispatch(events.ProductionStatusChanged{RunId: "RUN1", Status: models.ProductionStatusScheduled})
	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, utils.CodeInvalidTransition, ve.Code)

	err = h.dispatch(events.ProductionStatusChanged{RunId: "RUN1", Status: models.ProductionStatusCompleted})
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))
	assert.Equal(t, models.ProductionStatusInProgress, load[models.ProductionRun](h, models.CollectionProductionRuns, "RUN1").Status)
}

func TestProductionCompletedRestocksAndCompletesOrder(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionOrders, "O1", models.Order{Id: "O1", CustomerId: "C1", Status: models.OrderStatusInProduction, Lines: []models.OrderLine{line("P", 90, 10)}})
	h.seed(models.CollectionProductionRuns, "RUN1", models.ProductionRun{Id: "RUN1", OrderId: "O1", MachineId: "M1", ProductId: "P", Status: models.ProductionStatusInProgress})
	h.seed(models.CollectionInventory, "P", models.Inventory{ProductId: "P", OnHand: 5, Available: 5})

	snapshot := models.ProductionRun{
		Id: "RUN1", MachineId: "M1", ProductId: "P", OperatorId: "OP1",
		TargetQuantity: 100, ActualQuantity: 100, RejectedQuantity: 10,
		PlannedMinutes: 480, RunMinutes: 400, IdealCycleMinutes: 3,
	}
	require.NoError(t, h.dispatch(events.ProductionCompleted{Run: snapshot}))

	run := load[models.ProductionRun](h, models.CollectionProductionRuns, "RUN1")
	assert.Equal(t, models.ProductionStatusCompleted, run.Status)
	assert.Equal(t, 90.0, run.GoodQuantity)
	assert.Equal(t, "O1", run.OrderId)

	inv := load[models.Inventory](h, models.CollectionInventory, "P")
	assert.Equal(t, 95.0, inv.OnHand)
	assertInventoryInvariant(t, inv)
	in := all[models.StockMovement](h, models.CollectionStockMovements, store.Eq("type", models.MovementIn))
	require.Len(t, in, 1)
	assert.Equal(t, 90.0, in[0].Quantity)

	perf := load[models.MachinePerformance](h, models.CollectionMachinePerformance, models.DailyId("M1", utils.DateKey(testNow)))
	assert.Equal(t, 1, perf.Runs)
	assert.Equal(t, 83.33, perf.Availability)
	assert.Equal(t, 75.0, perf.Performance)
	assert.Equal(t, 90.0, perf.Quality)
	assert.Equal(t, 56.25, perf.OEE)

	op := load[models.OperatorPerformance](h, models.CollectionOperatorPerformance, models.DailyId("OP1", utils.DateKey(testNow)))
	assert.Equal(t, 100.0, op.Productivity)
	assert.Equal(t, 10.0, op.DefectRate)

	assert.Equal(t, models.OrderStatusCompleted, load[models.Order](h, models.CollectionOrders, "O1").Status)

	err := h.dispatch(events.ProductionCompleted{Run: snapshot})
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))
	assert.Equal(t, 95.0, load[models.Inventory](h, models.CollectionInventory, "P").OnHand)
}

func TestPartialProductionLeavesOrderOpen(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionOrders, "O1", models.Order{Id: "O1", CustomerId: "C1", Status: models.OrderStatusInProduction, Lines: []models.OrderLine{line("P", 90, 10)}})
	h.seed(models.CollectionProductionRuns, "RUN1", models.ProductionRun{Id: "RUN1", OrderId: "O1", MachineId: "M1", ProductId: "P", Status: models.ProductionStatusInProgress})

	snapshot := models.ProductionRun{Id: "RUN1", OrderId: "O1", MachineId: "M1", ProductId: "P", ActualQuantity: 50, RejectedQuantity: 60}
	require.NoError(t, h.dispatch(events.ProductionCompleted{Run: snapshot}))

	assert.Equal(t, models.OrderStatusInProduction, load[models.Order](h, models.CollectionOrders, "O1").Status)
	assert.Zero(t, h.store.Len(models.CollectionStockMovements))
	assert.Zero(t, h.store.Len(models.CollectionOperatorPerformance))
}

func TestProductionCompletedForUnknownRunIsSkipped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.dispatch(events.ProductionCompleted{Run: models.ProductionRun{Id: "nope", MachineId: "M1", ProductId: "P", ActualQuantity: 5}}))
	assert.Zero(t, h.store.Len(models.CollectionInventory))
}

func TestBreakdownReschedulesAndRaisesOneAlert(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionMachines, "M1", models.Machine{Id: "M1", Status: models.MachineStatusRunning})
	at := func(hour int) time.Time { return time.Date(2024, 3, 10, hour, 0, 0, 0, time.UTC) }
	h.seed(models.CollectionProductionSchedule, "E1", models.ScheduleEntry{Id: "E1", MachineId: "M1", StartTime: at(9), EndTime: at(11), Status: models.ScheduleStatusScheduled})
	h.seed(models.CollectionProductionSchedule, "E2", models.ScheduleEntry{Id: "E2", MachineId: "M1", StartTime: at(14), EndTime: at(15), Status: models.ScheduleStatusScheduled})
	h.seed(models.CollectionProductionSchedule, "E3", models.ScheduleEntry{Id: "E3", MachineId: "M1", StartTime: at(7), EndTime: at(9), Status: models.ScheduleStatusCompleted})
	h.seed(models.CollectionProductionSchedule, "E4", models.ScheduleEntry{Id: "E4", MachineId: "M2", StartTime: at(9), EndTime: at(10), Status: models.ScheduleStatusScheduled})

	d := models.Downtime{
		Id: "D1", MachineId: "M1", Category: models.DowntimeBreakdown, Severity: models.SeverityHigh,
		StartTime: at(8), EstimatedMinutes: 300, Reason: "spindle failure",
	}
	require.NoError(t, h.dispatch(events.MachineDowntimeRecorded{Downtime: d}))

	tasks := all[models.MaintenanceTask](h, models.CollectionMaintenanceTasks, store.Eq("downtime_id", "D1"))
	require.Len(t, tasks, 1)
	assert.Equal(t, models.MaintenanceTypeCorrective, tasks[0].Type)
	assert.Equal(t, models.SeverityHigh, tasks[0].Priority)

	e1 := load[models.ScheduleEntry](h, models.CollectionProductionSchedule, "E1")
	assert.True(t, at(14).Equal(e1.StartTime))
	assert.True(t, at(16).Equal(e1.EndTime))
	assert.Equal(t, models.ScheduleStatusRescheduled, e1.Status)
	assert.True(t, at(14).Equal(load[models.ScheduleEntry](h, models.CollectionProductionSchedule, "E2").StartTime))
	assert.True(t, at(7).Equal(load[models.ScheduleEntry](h, models.CollectionProductionSchedule, "E3").StartTime))
	assert.True(t, at(9).Equal(load[models.ScheduleEntry](h, models.CollectionProductionSchedule, "E4").StartTime))

	assert.Equal(t, models.MachineStatusMaintenance, load[models.Machine](h, models.CollectionMachines, "M1").Status)

	alerts := all[models.ExecutiveAlert](h, models.CollectionExecutiveAlerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Machine M1 downtime", alerts[0].Title)
	assert.Equal(t, models.AlertStatusActive, alerts[0].Status)
	assert.Len(t, all[models.OutboxMessage](h, models.CollectionOutbox, store.Eq("channel", notify.ChannelExecutive)), 1)

	again := d
	again.Id = "D2"
	again.Severity = models.SeverityCritical
	require.NoError(t, h.dispatch(events.MachineDowntimeRecorded{Downtime: again}))
	assert.Len(t, all[models.ExecutiveAlert](h, models.CollectionExecutiveAlerts), 1)
	assert.Len(t, all[models.OutboxMessage](h, models.CollectionOutbox, store.Eq("channel", notify.ChannelExecutive)), 1)
	assert.Equal(t, 2, h.store.Len(models.CollectionMaintenanceTasks))
}

func operationalProposals(t *testing.T, result string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "ops_alerts_proposals_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["type"] == string(models.AlertTypeOperational) && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRolledBackDowntimeAlertIsNotCounted(t *testing.T) {
	h := newHarness(t)
	h.seed(models.CollectionMachines, "M7", models.Machine{Id: "M7", Status: models.MachineStatusRunning})
	before := operationalProposals(t, "created")
	h.store.FailCommit = func(collections []string) error {
		if slices.Contains(collections, models.CollectionExecutiveAlerts) {
			return errors.New("disk full")
		}
		return nil
	}

	d := models.Downtime{Id: "D7", MachineId: "M7", Category: models.DowntimeBreakdown, Severity: models.SeverityCritical, StartTime: testNow.Add(-time.Hour)}
	require.Error(t, h.dispatch(events.MachineDowntimeRecorded{Downtime: d}))
	assert.Zero(t, h.store.Len(models.CollectionExecutiveAlerts))
	assert.Equal(t, before, operationalProposals(t, "created"))

	h.store.FailCommit = nil
	require.NoError(t, h.dispatch(events.MachineDowntimeRecorded{Downtime: d}))
	assert.Equal(t, 1, h.store.Len(models.CollectionExecutiveAlerts))
	assert.Equal(t, before+1, operationalProposals(t, "created"))
}

func TestShortMinorDowntimeRaisesNoAlert(t *testing.T) {
	h := newHarness(t)
	start := testNow.Add(-time.Hour)
	end := testNow.Add(-30 * time.Minute)
	d := models.Downtime{Id: "D1", MachineId: "M9", Category: models.DowntimeChangeover, Severity: models.SeverityLow, StartTime: start, EndTime: &end}
	require.NoError(t, h.dispatch(events.MachineDowntimeRecorded{Downtime: d}))

	assert.Zero(t, h.store.Len(models.CollectionExecutiveAlerts))
	assert.Zero(t, h.store.Len(models.CollectionMaintenanceTasks))
	assert.Equal(t, 1, h.store.Len(models.CollectionMachineDowntime))
}
