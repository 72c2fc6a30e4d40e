package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Supplier struct {
	Id              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	QualityScore    float64    `json:"quality_score"`
	DeliveryScore   float64    `json:"delivery_score"`
	PriceScore      float64    `json:"price_score"`
	OverallScore    float64    `json:"overall_score"`
	Rating          float64    `json:"rating"`
	NeedsReview     bool       `json:"needs_review"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type SupplierEvaluation struct {
	Id            string    `json:"id" validate:"required"`
	SupplierId    string    `json:"supplier_id" validate:"required"`
	QualityScore  float64   `json:"quality_score" validate:"gte=0,lte=100"`
	DeliveryScore float64   `json:"delivery_score" validate:"gte=0,lte=100"`
	PriceScore    float64   `json:"price_score" validate:"gte=0,lte=100"`
	OverallScore  float64   `json:"overall_score" validate:"gte=0,lte=100"`
	Notes         string    `json:"notes,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

type PurchaseOrderLine struct {
	ProductId string          `json:"product_id" validate:"required"`
	Quantity  float64         `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrder struct {
	Id          string              `json:"id" validate:"required"`
	SupplierId  string              `json:"supplier_id"`
	Lines       []PurchaseOrderLine `json:"lines" validate:"required,min=1,dive"`
	Status      PurchaseOrderStatus `json:"status"`
	AutoDrafted bool                `json:"auto_drafted"`
	Total       decimal.Decimal     `json:"total"`
	CreatedAt   time.Time           `json:"created_at"`
	ReceivedAt  *time.Time          `json:"received_at,omitempty"`
}

func (p PurchaseOrder) IsOpen() bool {
	switch p.Status {
	case PurchaseOrderDraft, PurchaseOrderSubmitted, PurchaseOrderApproved:
		return true
	}
	return false
}

// Covers reports whether the order has a line for productId.
func (p PurchaseOrder) Covers(productId string) bool {
	for _, l := range p.Lines {
		if l.ProductId == productId {
			return true
		}
	}
	return false
}
