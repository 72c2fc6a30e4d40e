package workflow

import (
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
)

func (o *Orchestrator) registerDefaults() {
	o.register(events.KindOrderCreated, "orderCreated", "order",
		on(processOrderCreated),
		models.CollectionOrders, models.CollectionInventory, models.CollectionStockMovements, models.CollectionCustomers,
		models.CollectionProducts, models.CollectionPurchaseOrders)
	o.register(events.KindOrderCancelled, "orderCancelled", "order",
		on(processOrderCancelled),
		models.CollectionOrders, models.CollectionInventory, models.CollectionStockMovements, models.CollectionCustomers)
	o.register(events.KindOrderDelivered, "orderDelivered", "order",
		on(processOrderDelivered),
		models.CollectionOrders, models.CollectionInvoices, models.CollectionSales, models.CollectionProducts,
		models.CollectionInventory, models.CollectionStockMovements)
	o.register(events.KindPaymentRecorded, "paymentRecorded", "invoice",
		on(processPaymentRecorded),
		models.CollectionPayments, models.CollectionInvoices, models.CollectionOrders)
	o.register(events.KindRejectionCreated, "rejectionCreated", "rejection",
		on(processRejectionCreated),
		models.CollectionRejections, models.CollectionProducts, models.CollectionSuppliers, models.CollectionInventory,
		models.CollectionStockMovements)
	o.register(events.KindLowStockDetected, "lowStockDetected", "product",
		on(processLowStockDetected),
		models.CollectionInventory, models.CollectionProducts, models.CollectionPurchaseOrders)
	o.register(events.KindProductExpired, "productExpired", "product",
		on(processProductExpired),
		models.CollectionInventory, models.CollectionStockMovements)
	o.register(events.KindEmployeeHired, "employeeHired", "employee",
		on(processEmployeeHired),
		models.CollectionEmployees, models.CollectionUsers, models.CollectionLeaveBalances, models.CollectionOnboardingPlans,
		models.CollectionDepartments, models.CollectionApplicants)
	o.register(events.KindAttendanceRecorded, "attendanceRecorded", "attendance",
		on(processAttendanceRecorded),
		models.CollectionAttendance, models.CollectionEmployees)
	o.register(events.KindLeaveApproved, "leaveApproved", "leaveRequest",
		on(processLeaveApproved),
		models.CollectionLeaveRequests, models.CollectionLeaveBalances, models.CollectionAttendance, models.CollectionEmployees)
	o.register(events.KindPayrollProcessed, "payrollProcessed", "payroll",
		on(processPayrollProcessed),
		models.CollectionPayrolls, models.CollectionPayslips, models.CollectionExpenses, models.CollectionEmployees,
		models.CollectionDepartments)
	o.register(events.KindProductionStatusChanged, "productionStatusChanged", "productionRun",
		on(processProductionStatusChanged),
		models.CollectionProductionRuns)
	o.register(events.KindProductionCompleted, "productionCompleted", "productionRun",
		on(processProductionCompleted),
		models.CollectionProductionRuns, models.CollectionInventory, models.CollectionStockMovements,
		models.CollectionMachinePerformance, models.CollectionOperatorPerformance, models.CollectionOrders)
	o.register(events.KindMachineDowntimeRecorded, "machineDowntimeRecorded", "machine",
		on(processMachineDowntimeRecorded),
		models.CollectionMachineDowntime, models.CollectionMaintenanceTasks, models.CollectionProductionSchedule,
		models.CollectionMachines, models.CollectionExecutiveAlerts)
	o.register(events.KindSupplierEvaluated, "supplierEvaluated", "supplier",
		on(processSupplierEvaluated),
		models.CollectionSuppliers, models.CollectionSupplierEvaluations)
	o.register(events.KindPurchaseOrderReceived, "purchaseOrderReceived", "purchaseOrder",
		on(processPurchaseOrderReceived),
		models.CollectionPurchaseOrders, models.CollectionInventory, models.CollectionStockMovements,
		models.CollectionQualityInspections)
}

func (o *Orchestrator) register(kind events.Kind, name, entityType string, run func(*cascade, events.Payload) error, collections ...string) {
	o.handlers[kind] = handler{
		name:        name,
		entityType:  entityType,
		collections: collections,
		run:         run,
	}
}
