package models

const (
	CollectionProducts            = "products"
	CollectionInventory           = "inventory"
	CollectionStockMovements      = "stockMovements"
	CollectionOrders              = "orders"
	CollectionCustomers           = "customers"
	CollectionInvoices            = "invoices"
	CollectionPayments            = "payments"
	CollectionSales               = "sales"
	CollectionRejections          = "rejections"
	CollectionSuppliers           = "suppliers"
	CollectionSupplierEvaluations = "supplierEvaluations"
	CollectionPurchaseOrders      = "purchaseOrders"
	CollectionQualityInspections  = "qualityInspections"
	CollectionProductionRuns      = "productionRuns"
	CollectionProductionSchedule  = "productionSchedule"
	CollectionMachines            = "machines"
	CollectionMachineDowntime     = "machineDowntime"
	CollectionMaintenanceTasks    = "maintenanceTasks"
	CollectionMachinePerformance  = "machinePerformance"
	CollectionOperatorPerformance = "operatorPerformance"
	CollectionEmployees           = "employees"
	CollectionUsers               = "users"
	CollectionDepartments         = "departments"
	CollectionApplicants          = "applicants"
	CollectionLeaveBalances       = "leaveBalances"
	CollectionLeaveRequests       = "leaveRequests"
	CollectionAttendance          = "attendance"
	CollectionOnboardingPlans     = "onboardingPlans"
	CollectionTrainingRecords     = "trainingRecords"
	CollectionPayrolls            = "payrolls"
	CollectionPayslips            = "payslips"
	CollectionExpenses            = "expenses"
	CollectionExecutiveAlerts     = "executiveAlerts"
	CollectionHealthScores        = "healthScores"
	CollectionExecutiveKPIs       = "executiveKpis"
	CollectionStrategicGoals      = "strategicGoals"
	CollectionActionLogs          = "actionLogs"
	CollectionOutbox              = "outbox"
	CollectionIdempotencyKeys     = "idempotencyKeys"
)
