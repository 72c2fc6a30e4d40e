package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type Product struct {
	Id           string          `json:"id"`
	Name         string          `json:"name"`
	Sku          string          `json:"sku"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	SupplierId   string          `json:"supplier_id,omitempty"`
	QualityScore float64         `json:"quality_score"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Batch struct {
	BatchNumber string    `json:"batch_number"`
	Quantity    float64   `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

// Inventory is keyed by product id. Available always equals OnHand - Reserved
// and is never negative; every mutation goes through the methods below.
type Inventory struct {
	ProductId    string    `json:"product_id"`
	OnHand       float64   `json:"on_hand"`
	Reserved     float64   `json:"reserved"`
	Available    float64   `json:"available"`
	ReorderLevel float64   `json:"reorder_level"`
	Batches      []Batch   `json:"batches,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (i *Inventory) normalize() {
	i.OnHand = math.Max(0, i.OnHand)
	i.Reserved = math.Max(0, math.Min(i.Reserved, i.OnHand))
	i.Available = i.OnHand - i.Reserved
}

// Reserve holds qty for an order. It fails without mutating when not enough is available.
func (i *Inventory) Reserve(qty float64) error {
	if i.Available < qty {
		return utils.NewValidationError(utils.CodeInsufficientInventory,
			"product %s: requested %v, available %v", i.ProductId, qty, i.Available)
	}
	i.Reserved += qty
	i.normalize()
	return nil
}

// Release returns up to qty reserved units to available and reports how many were released.
func (i *Inventory) Release(qty float64) float64 {
	released := math.Min(qty, i.Reserved)
	i.Reserved -= released
	i.normalize()
	return released
}

// ConsumeReservation turns a reservation into a real deduction of on-hand stock.
func (i *Inventory) ConsumeReservation(qty float64) {
	fromReserved := math.Min(qty, i.Reserved)
	i.Reserved -= fromReserved
	i.OnHand -= qty
	i.normalize()
}

func (i *Inventory) Restock(qty float64) {
	i.OnHand += qty
	i.normalize()
}

// WriteOff removes up to qty on-hand units (floor at zero). Reservations the
// remaining stock can no longer cover are released and reported as released.
func (i *Inventory) WriteOff(qty float64) (removed, released float64) {
	removed = math.Min(qty, i.OnHand)
	i.OnHand -= removed
	released = math.Max(0, i.Reserved-i.OnHand)
	i.Reserved -= released
	i.normalize()
	return removed, released
}

// RemoveBatch drops a batch from expiry tracking and returns it.
func (i *Inventory) RemoveBatch(batchNumber string) (Batch, bool) {
	for idx, b := range i.Batches {
		if b.BatchNumber == batchNumber {
			i.Batches = append(i.Batches[:idx], i.Batches[idx+1:]...)
			return b, true
		}
	}
	return Batch{}, false
}

func (i Inventory) IsLow() bool {
	return i.Available <= i.ReorderLevel
}
