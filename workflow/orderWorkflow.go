package workflow

import (
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

const referenceOrder = "order"

// processOrderCreated saves the order, reserves stock for every line and
// refreshes the customer's statistics.
func processOrderCreated(c *cascade, p events.OrderCreated) error {
	order := p.Order
	c.subject(order.Id)
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = c.now
	}
	order.UpdatedAt = c.now
	if err := c.tx.Add(models.CollectionOrders, order.Id, order); err != nil {
		return c.fail("processOrderCreated", "add order", order.Id, err)
	}

	lowStock := make([]string, 0)
	for _, line := range order.Lines {
		inv, err := find[models.Inventory](c, models.CollectionInventory, line.ProductId)
		if err != nil {
			return c.fail("processOrderCreated", "load inventory", line.ProductId, err)
		}
		if inv == nil {
			return utils.NewValidationError(utils.CodeInsufficientInventory,
				"product %s: no inventory record", line.ProductId)
		}
		if err := inv.Reserve(line.Quantity); err != nil {
			return c.fail("processOrderCreated", "reserve", line, err)
		}
		if err := c.putInventory(inv); err != nil {
			return err
		}
		if err := c.movement(line.ProductId, models.MovementReserve, line.Quantity, referenceOrder, order.Id, "", "order reservation"); err != nil {
			return err
		}
		if inv.IsLow() {
			lowStock = append(lowStock, line.ProductId)
		}
	}

	if err := refreshCustomer(c, order.CustomerId); err != nil {
		return err
	}
	for _, productId := range utils.UniqueStrings(lowStock) {
		if _, err := draftReorder(c, productId); err != nil {
			return err
		}
	}
	c.note("lines", len(order.Lines))
	c.note("total", order.Total().String())
	return nil
}

// processOrderCancelled releases every reservation the order still holds.
func processOrderCancelled(c *cascade, p events.OrderCancelled) error {
	c.subject(p.OrderId)
	order, err := get[models.Order](c, models.CollectionOrders, p.OrderId)
	if err != nil {
		return err
	}
	switch order.Status {
	case models.OrderStatusCancelled, models.OrderStatusDelivered, models.OrderStatusCompleted:
		return utils.NewValidationError(utils.CodeInvalidTransition,
			"order %s is %s and cannot be cancelled", order.Id, order.Status)
	}

	for _, line := range order.Lines {
		inv, err := find[models.Inventory](c, models.CollectionInventory, line.ProductId)
		if err != nil {
			return c.fail("processOrderCancelled", "load inventory", line.ProductId, err)
		}
		if inv == nil {
			continue
		}
		released := inv.Release(line.Quantity)
		if err := c.putInventory(inv); err != nil {
			return err
		}
		if released > 0 {
			if err := c.movement(line.ProductId, models.MovementRelease, released, referenceOrder, order.Id, "", p.Reason); err != nil {
				return err
			}
		}
	}

	if err := c.tx.Update(models.CollectionOrders, order.Id, map[string]any{
		"status":     models.OrderStatusCancelled,
		"updated_at": c.now,
	}); err != nil {
		return c.fail("processOrderCancelled", "update order", order.Id, err)
	}
	c.note("reason", p.Reason)
	return refreshCustomer(c, order.CustomerId)
}

// processOrderDelivered invoices the order, records the sale and turns its
// reservations into real stock deductions.
func processOrderDelivered(c *cascade, p events.OrderDelivered) error {
	c.subject(p.OrderId)
	order, err := get[models.Order](c, models.CollectionOrders, p.OrderId)
	if err != nil {
		return err
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusDelivered {
		return utils.NewValidationError(utils.CodeInvalidTransition,
			"order %s is %s and cannot be delivered", order.Id, order.Status)
	}
	deliveredAt := p.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = c.now
	}

	total := order.Total()
	invoice := models.Invoice{
		Id:         c.newID(),
		OrderId:    order.Id,
		CustomerId: order.CustomerId,
		IssueDate:  deliveredAt,
		DueDate:    deliveredAt.AddDate(0, 0, c.th.InvoiceDueDays),
		Total:      total,
		PaidAmount: decimal.Zero,
		Status:     models.InvoiceStatusUnpaid,
		UpdatedAt:  c.now,
	}
	if err := c.tx.Add(models.CollectionInvoices, invoice.Id, invoice); err != nil {
		return c.fail("processOrderDelivered", "add invoice", invoice.Id, err)
	}

	cost := decimal.Zero
	for _, line := range order.Lines {
		product, err := find[models.Product](c, models.CollectionProducts, line.ProductId)
		if err != nil {
			return c.fail("processOrderDelivered", "load product", line.ProductId, err)
		}
		if product != nil {
			cost = cost.Add(product.CostPrice.Mul(decimal.NewFromFloat(line.Quantity)))
		}

		inv, err := c.inventoryOrNew(line.ProductId)
		if err != nil {
			return c.fail("processOrderDelivered", "load inventory", line.ProductId, err)
		}
		inv.ConsumeReservation(line.Quantity)
		if err := c.putInventory(inv); err != nil {
			return err
		}
		if err := c.movement(line.ProductId, models.MovementOut, line.Quantity, referenceOrder, order.Id, "", "delivered"); err != nil {
			return err
		}
	}

	profit := total.Sub(cost)
	margin := 0.0
	if total.IsPositive() {
		margin = utils.Round2(profit.Div(total).InexactFloat64() * 100)
	}
	sale := models.Sale{
		Id:           c.newID(),
		OrderId:      order.Id,
		CustomerId:   order.CustomerId,
		Total:        total,
		Cost:         cost,
		Profit:       profit,
		ProfitMargin: margin,
		SaleDate:     deliveredAt,
	}
	if err := c.tx.Add(models.CollectionSales, sale.Id, sale); err != nil {
		return c.fail("processOrderDelivered", "add sale", sale.Id, err)
	}

	if err := c.tx.Update(models.CollectionOrders, order.Id, map[string]any{
		"status":         models.OrderStatusDelivered,
		"payment_status": models.InvoiceStatusUnpaid,
		"invoice_id":     invoice.Id,
		"delivered_at":   deliveredAt,
		"updated_at":     c.now,
	}); err != nil {
		return c.fail("processOrderDelivered", "update order", order.Id, err)
	}
	c.note("invoice_id", invoice.Id)
	c.note("sale_id", sale.Id)
	return nil
}

// processPaymentRecorded applies a payment to its invoice and mirrors the
// derived payment status onto the order.
func processPaymentRecorded(c *cascade, p events.PaymentRecorded) error {
	payment := p.Payment
	if payment.Id == "" {
		payment.Id = c.newID()
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = c.now
	}
	if !payment.Amount.IsPositive() {
		return utils.NewValidationError(utils.CodeInvalidPayload, "payment amount must be positive")
	}
	c.subject(payment.InvoiceId)

	invoice, err := get[models.Invoice](c, models.CollectionInvoices, payment.InvoiceId)
	if err != nil {
		return err
	}
	if payment.OrderId == "" {
		payment.OrderId = invoice.OrderId
	}
	if err := c.tx.Add(models.CollectionPayments, payment.Id, payment); err != nil {
		return c.fail("processPaymentRecorded", "add payment", payment.Id, err)
	}

	invoice.PaidAmount = invoice.PaidAmount.Add(payment.Amount)
	invoice.Status = scoring.InvoiceStatus(invoice.Total, invoice.PaidAmount, invoice.DueDate, c.now)
	invoice.UpdatedAt = c.now
	if err := c.tx.Put(models.CollectionInvoices, invoice.Id, invoice); err != nil {
		return c.fail("processPaymentRecorded", "update invoice", invoice.Id, err)
	}

	if invoice.OrderId != "" {
		err := c.tx.Update(models.CollectionOrders, invoice.OrderId, map[string]any{
			"payment_status": invoice.Status,
			"updated_at":     c.now,
		})
		if err != nil && !isMissing(err) {
			return c.fail("processPaymentRecorded", "update order", invoice.OrderId, err)
		}
	}
	c.note("payment_id", payment.Id)
	c.note("status", invoice.Status)
	return nil
}

// refreshCustomer recomputes order count, lifetime value and segment from the
// customer's non-cancelled orders. Unknown customers are left alone.
func refreshCustomer(c *cascade, customerId string) error {
	customer, err := find[models.Customer](c, models.CollectionCustomers, customerId)
	if err != nil || customer == nil {
		return err
	}
	orders, err := store.Query[models.Order](c.tx, models.CollectionOrders, store.Eq("customer_id", customerId))
	if err != nil {
		return c.fail("refreshCustomer", "query orders", customerId, err)
	}
	count := 0
	value := decimal.Zero
	var last *time.Time
	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled {
			continue
		}
		count++
		value = value.Add(o.Total())
		if last == nil || o.OrderDate.After(*last) {
			d := o.OrderDate
			last = &d
		}
	}
	customer.TotalOrders = count
	customer.LifetimeValue = value
	customer.LastOrderAt = last
	customer.Segment = scoring.CustomerSegment(count, value, c.th)
	customer.UpdatedAt = c.now
	if err := c.tx.Put(models.CollectionCustomers, customer.Id, customer); err != nil {
		return c.fail("refreshCustomer", "save customer", customer.Id, err)
	}
	return nil
}
