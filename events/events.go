// Package events defines the closed set of domain events consumed by the
// cascade orchestrator. Each kind carries one typed payload.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type Kind string

const (
	KindOrderCreated            Kind = "OrderCreated"
	KindOrderCancelled          Kind = "OrderCancelled"
	KindOrderDelivered          Kind = "OrderDelivered"
	KindPaymentRecorded         Kind = "PaymentRecorded"
	KindRejectionCreated        Kind = "RejectionCreated"
	KindLowStockDetected        Kind = "LowStockDetected"
	KindProductExpired          Kind = "ProductExpired"
	KindEmployeeHired           Kind = "EmployeeHired"
	KindAttendanceRecorded      Kind = "AttendanceRecorded"
	KindLeaveApproved           Kind = "LeaveApproved"
	KindPayrollProcessed        Kind = "PayrollProcessed"
	KindProductionStatusChanged Kind = "ProductionStatusChanged"
	KindProductionCompleted     Kind = "ProductionCompleted"
	KindMachineDowntimeRecorded Kind = "MachineDowntimeRecorded"
	KindSupplierEvaluated       Kind = "SupplierEvaluated"
	KindPurchaseOrderReceived   Kind = "PurchaseOrderReceived"
)

// Payload is implemented only by the event structs of this package.
type Payload interface {
	Kind() Kind
	sealed()
}

type OrderCreated struct {
	Order models.Order `json:"order" validate:"required"`
}

type OrderCancelled struct {
	OrderId string `json:"order_id" validate:"required"`
	Reason  string `json:"reason,omitempty"`
}

type OrderDelivered struct {
	OrderId     string    `json:"order_id" validate:"required"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type PaymentRecorded struct {
	Payment models.Payment `json:"payment" validate:"required"`
}

type RejectionCreated struct {
	Rejection models.Rejection `json:"rejection" validate:"required"`
}

type LowStockDetected struct {
	ProductId string `json:"product_id" validate:"required"`
}

type ProductExpired struct {
	ProductId   string `json:"product_id" validate:"required"`
	BatchNumber string `json:"batch_number" validate:"required"`
}

type EmployeeHired struct {
	Employee models.Employee `json:"employee" validate:"required"`
}

type AttendanceRecorded struct {
	Attendance models.Attendance `json:"attendance" validate:"required"`
}

type LeaveApproved struct {
	Request models.LeaveRequest `json:"request" validate:"required"`
}

type PayrollProcessed struct {
	Payroll models.Payroll `json:"payroll" validate:"required"`
}

type ProductionStatusChanged struct {
	RunId  string                  `json:"run_id" validate:"required"`
	Status models.ProductionStatus `json:"status" validate:"required,oneof=scheduled in-progress paused completed cancelled"`
}

type ProductionCompleted struct {
	Run models.ProductionRun `json:"run" validate:"required"`
}

type MachineDowntimeRecorded struct {
	Downtime models.Downtime `json:"downtime" validate:"required"`
}

type SupplierEvaluated struct {
	Evaluation models.SupplierEvaluation `json:"evaluation" validate:"required"`
}

type PurchaseOrderReceived struct {
	PurchaseOrderId string    `json:"purchase_order_id" validate:"required"`
	ReceivedAt      time.Time `json:"received_at"`
}

func (OrderCreated) Kind() Kind            { return KindOrderCreated }
func (OrderCancelled) Kind() Kind          { return KindOrderCancelled }
func (OrderDelivered) Kind() Kind          { return KindOrderDelivered }
func (PaymentRecorded) Kind() Kind         { return KindPaymentRecorded }
func (RejectionCreated) Kind() Kind        { return KindRejectionCreated }
func (LowStockDetected) Kind() Kind        { return KindLowStockDetected }
func (ProductExpired) Kind() Kind          { return KindProductExpired }
func (EmployeeHired) Kind() Kind           { return KindEmployeeHired }
func (AttendanceRecorded) Kind() Kind      { return KindAttendanceRecorded }
func (LeaveApproved) Kind() Kind           { return KindLeaveApproved }
func (PayrollProcessed) Kind() Kind        { return KindPayrollProcessed }
func (ProductionStatusChanged) Kind() Kind { return KindProductionStatusChanged }
func (ProductionCompleted) Kind() Kind     { return KindProductionCompleted }
func (MachineDowntimeRecorded) Kind() Kind { return KindMachineDowntimeRecorded }
func (SupplierEvaluated) Kind() Kind       { return KindSupplierEvaluated }
func (PurchaseOrderReceived) Kind() Kind   { return KindPurchaseOrderReceived }

func (OrderCreated) sealed()            {}
func (OrderCancelled) sealed()          {}
func (OrderDelivered) sealed()          {}
func (PaymentRecorded) sealed()         {}
func (RejectionCreated) sealed()        {}
func (LowStockDetected) sealed()        {}
func (ProductExpired) sealed()          {}
func (EmployeeHired) sealed()           {}
func (AttendanceRecorded) sealed()      {}
func (LeaveApproved) sealed()           {}
func (PayrollProcessed) sealed()        {}
func (ProductionStatusChanged) sealed() {}
func (ProductionCompleted) sealed()     {}
func (MachineDowntimeRecorded) sealed() {}
func (SupplierEvaluated) sealed()       {}
func (PurchaseOrderReceived) sealed()   {}

var factories = map[Kind]func() Payload{
	KindOrderCreated:            func() Payload { return &OrderCreated{} },
	KindOrderCancelled:          func() Payload { return &OrderCancelled{} },
	KindOrderDelivered:          func() Payload { return &OrderDelivered{} },
	KindPaymentRecorded:         func() Payload { return &PaymentRecorded{} },
	KindRejectionCreated:        func() Payload { return &RejectionCreated{} },
	KindLowStockDetected:        func() Payload { return &LowStockDetected{} },
	KindProductExpired:          func() Payload { return &ProductExpired{} },
	KindEmployeeHired:           func() Payload { return &EmployeeHired{} },
	KindAttendanceRecorded:      func() Payload { return &AttendanceRecorded{} },
	KindLeaveApproved:           func() Payload { return &LeaveApproved{} },
	KindPayrollProcessed:        func() Payload { return &PayrollProcessed{} },
	KindProductionStatusChanged: func() Payload { return &ProductionStatusChanged{} },
	KindProductionCompleted:     func() Payload { return &ProductionCompleted{} },
	KindMachineDowntimeRecorded: func() Payload { return &MachineDowntimeRecorded{} },
	KindSupplierEvaluated:       func() Payload { return &SupplierEvaluated{} },
	KindPurchaseOrderReceived:   func() Payload { return &PurchaseOrderReceived{} },
}

// Kinds lists every known event kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// Envelope is the unit of orchestration: one occurrence of one event kind.
type Envelope struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor,omitempty"`
	Payload    Payload   `json:"payload"`
}

// New wraps p in an envelope with a fresh id.
func New(p Payload, occurredAt time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       p.Kind(),
		OccurredAt: occurredAt.UTC(),
		Payload:    p,
	}
}

// Validate checks the envelope header and the payload's validate tags.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return utils.NewValidationError(utils.CodeInvalidPayload, "event id is required")
	}
	if e.Payload == nil {
		return utils.NewValidationError(utils.CodeInvalidPayload, "event %s has no payload", e.ID)
	}
	if e.Payload.Kind() != e.Kind {
		return utils.NewValidationError(utils.CodeInvalidPayload,
			"event %s: kind %s does not match payload %s", e.ID, e.Kind, e.Payload.Kind())
	}
	return utils.ValidateStruct(e.Payload)
}

type rawEnvelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      string          `json:"actor,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	factory, ok := factories[raw.Kind]
	if !ok {
		return utils.NewValidationError(utils.CodeInvalidPayload, "unknown event kind %q", raw.Kind)
	}
	p := factory()
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, p); err != nil {
			return fmt.Errorf("decode %s payload: %w", raw.Kind, err)
		}
	}
	*e = Envelope{
		ID:         raw.ID,
		Kind:       raw.Kind,
		OccurredAt: raw.OccurredAt,
		Actor:      raw.Actor,
		Payload:    deref(p),
	}
	return nil
}

// Decode parses one JSON envelope, e.g. a Pub/Sub message body.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// deref stores payloads by value so handlers can type-switch on the struct types.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *OrderCreated:
		return *v
	case *OrderCancelled:
		return *v
	case *OrderDelivered:
		return *v
	case *PaymentRecorded:
		return *v
	case *RejectionCreated:
		return *v
	case *LowStockDetected:
		return *v
	case *ProductExpired:
		return *v
	case *EmployeeHired:
		return *v
	case *AttendanceRecorded:
		return *v
	case *LeaveApproved:
		return *v
	case *PayrollProcessed:
		return *v
	case *ProductionStatusChanged:
		return *v
	case *ProductionCompleted:
		return *v
	case *MachineDowntimeRecorded:
		return *v
	case *SupplierEvaluated:
		return *v
	case *PurchaseOrderReceived:
		return *v
	}
	return p
}
