package workflow

import (
	"math"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/store"
)

const referencePurchaseOrder = "purchase-order"

// processLowStockDetected drafts a purchase order for the product unless one
// is already open.
func processLowStockDetected(c *cascade, p events.LowStockDetected) error {
	c.subject(p.ProductId)
	po, err := draftReorder(c, p.ProductId)
	if err != nil {
		return err
	}
	if po != nil {
		c.note("purchase_order_id", po.Id)
	}
	return nil
}

// draftReorder creates an auto-drafted purchase order when the product is at or
// below its reorder level and no draft already covers it. It returns nil when
// nothing was drafted.
func draftReorder(c *cascade, productId string) (*models.PurchaseOrder, error) {
	inv, err := get[models.Inventory](c, models.CollectionInventory, productId)
	if err != nil {
		return nil, err
	}
	if !inv.IsLow() {
		return nil, nil
	}

	drafts, err := store.Query[models.PurchaseOrder](c.tx, models.CollectionPurchaseOrders,
		store.Eq("status", models.PurchaseOrderDraft))
	if err != nil {
		return nil, c.fail("draftReorder", "query drafts", productId, err)
	}
	for _, d := range drafts {
		if d.Covers(productId) {
			c.note("existing_draft", d.Id)
			return nil, nil
		}
	}

	var supplierId string
	unitCost := decimal.Zero
	product, err := find[models.Product](c, models.CollectionProducts, productId)
	if err != nil {
		return nil, c.fail("draftReorder", "load product", productId, err)
	}
	if product != nil {
		supplierId = product.SupplierId
		unitCost = product.CostPrice
	}

	qty := math.Max(inv.ReorderLevel*c.th.ReorderMultiplier, c.th.MinReorderQuantity)
	po := models.PurchaseOrder{
		Id:         c.newID(),
		SupplierId: supplierId,
		Lines: []models.PurchaseOrderLine{
			{ProductId: productId, Quantity: qty, UnitCost: unitCost},
		},
		Status:      models.PurchaseOrderDraft,
		AutoDrafted: true,
		Total:       unitCost.Mul(decimal.NewFromFloat(qty)),
		CreatedAt:   c.now,
	}
	if err := c.tx.Add(models.CollectionPurchaseOrders, po.Id, po); err != nil {
		return nil, c.fail("draftReorder", "add purchase order", po.Id, err)
	}
	c.notify(notify.ChannelSupply, map[string]any{
		"type":              "reorder-drafted",
		"product_id":        productId,
		"purchase_order_id": po.Id,
		"quantity":          qty,
	})
	return &po, nil
}

// processProductExpired writes off an expired batch.
func processProductExpired(c *cascade, p events.ProductExpired) error {
	c.subject(p.ProductId)
	inv, err := get[models.Inventory](c, models.CollectionInventory, p.ProductId)
	if err != nil {
		return err
	}
	batch, ok := inv.RemoveBatch(p.BatchNumber)
	if !ok {
		return notFound("batches", p.ProductId+"/"+p.BatchNumber)
	}
	removed, err := c.writeOff(inv, batch.Quantity, "expiry", p.BatchNumber, p.BatchNumber, "expired")
	if err != nil {
		return err
	}
	c.note("batch_number", p.BatchNumber)
	c.note("written_off", removed)
	return nil
}
