package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ProductId string          `json:"product_id" validate:"required"`
	Quantity  float64         `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromFloat(l.Quantity))
}

type Order struct {
	Id            string        `json:"id" validate:"required"`
	CustomerId    string        `json:"customer_id" validate:"required"`
	Lines         []OrderLine   `json:"lines" validate:"required,min=1,dive"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus InvoiceStatus `json:"payment_status,omitempty"`
	InvoiceId     string        `json:"invoice_id,omitempty"`
	OrderDate     time.Time     `json:"order_date"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

type Customer struct {
	Id            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email,omitempty"`
	TotalOrders   int             `json:"total_orders"`
	LifetimeValue decimal.Decimal `json:"lifetime_value"`
	Segment       string          `json:"segment"`
	LastOrderAt   *time.Time      `json:"last_order_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Invoice struct {
	Id         string          `json:"id"`
	OrderId    string          `json:"order_id"`
	CustomerId string          `json:"customer_id"`
	IssueDate  time.Time       `json:"issue_date"`
	DueDate    time.Time       `json:"due_date"`
	Total      decimal.Decimal `json:"total"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     InvoiceStatus   `json:"status"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

type Payment struct {
	Id        string          `json:"id"`
	InvoiceId string          `json:"invoice_id"`
	OrderId   string          `json:"order_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	PaidAt    time.Time       `json:"paid_at"`
}

type Sale struct {
	Id           string          `json:"id"`
	OrderId      string          `json:"order_id"`
	CustomerId   string          `json:"customer_id"`
	Total        decimal.Decimal `json:"total"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin float64         `json:"profit_margin"`
	SaleDate     time.Time       `json:"sale_date"`
}
