package models

import "time"

type Rejection struct {
	Id          string          `json:"id" validate:"required"`
	ProductId   string          `json:"product_id" validate:"required"`
	SupplierId  string          `json:"supplier_id,omitempty"`
	MachineId   string          `json:"machine_id,omitempty"`
	OperatorId  string          `json:"operator_id,omitempty"`
	BatchNumber string          `json:"batch_number,omitempty"`
	Severity    Severity        `json:"severity" validate:"required,oneof=low medium high critical"`
	Quantity    float64         `json:"quantity" validate:"gte=0"`
	Reason      string          `json:"reason,omitempty"`
	Status      RejectionStatus `json:"status"`
	Resolution  string          `json:"resolution,omitempty"`
	RejectedAt  time.Time       `json:"rejected_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

func (r Rejection) IsResolved() bool {
	return r.Status == RejectionStatusResolved
}

type QualityInspection struct {
	Id              string           `json:"id"`
	Type            string           `json:"type"`
	PurchaseOrderId string           `json:"purchase_order_id,omitempty"`
	ProductId       string           `json:"product_id"`
	SupplierId      string           `json:"supplier_id,omitempty"`
	Quantity        float64          `json:"quantity"`
	SampleSize      float64          `json:"sample_size"`
	Status          InspectionStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
}

const InspectionTypeIncoming = "incoming"
