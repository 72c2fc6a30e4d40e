package models

import "time"

// StockMovement is an append-only ledger row describing one inventory change.
type StockMovement struct {
	Id            string       `json:"id"`
	ProductId     string       `json:"product_id"`
	Type          MovementType `json:"type"`
	Quantity      float64      `json:"quantity"`
	BatchNumber   string       `json:"batch_number,omitempty"`
	ReferenceType string       `json:"reference_type"`
	ReferenceId   string       `json:"reference_id"`
	Reason        string       `json:"reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
