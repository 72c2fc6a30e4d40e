package workflow

import (
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/store"
)

// processRejectionCreated records a quality rejection, recomputes the product
// and supplier scores and writes the rejected quantity off stock.
func processRejectionCreated(c *cascade, p events.RejectionCreated) error {
	r := p.Rejection
	c.subject(r.Id)
	if r.Status == "" {
		r.Status = models.RejectionStatusOpen
	}
	if r.RejectedAt.IsZero() {
		r.RejectedAt = c.now
	}

	product, err := find[models.Product](c, models.CollectionProducts, r.ProductId)
	if err != nil {
		return c.fail("processRejectionCreated", "load product", r.ProductId, err)
	}
	if product != nil && r.SupplierId == "" {
		r.SupplierId = product.SupplierId
	}
	if err := c.tx.Add(models.CollectionRejections, r.Id, r); err != nil {
		return c.fail("processRejectionCreated", "add rejection", r.Id, err)
	}

	if product != nil {
		rejections, err := store.Query[models.Rejection](c.tx, models.CollectionRejections, store.Eq("product_id", r.ProductId))
		if err != nil {
			return c.fail("processRejectionCreated", "query product rejections", r.ProductId, err)
		}
		product.QualityScore = scoring.QualityScore(rejections, c.th)
		product.UpdatedAt = c.now
		if err := c.tx.Put(models.CollectionProducts, product.Id, product); err != nil {
			return c.fail("processRejectionCreated", "save product", product.Id, err)
		}
		c.note("product_quality_score", product.QualityScore)
	}

	supplier, err := find[models.Supplier](c, models.CollectionSuppliers, r.SupplierId)
	if err != nil {
		return c.fail("processRejectionCreated", "load supplier", r.SupplierId, err)
	}
	if supplier != nil {
		rejections, err := store.Query[models.Rejection](c.tx, models.CollectionRejections, store.Eq("supplier_id", supplier.Id))
		if err != nil {
			return c.fail("processRejectionCreated", "query supplier rejections", supplier.Id, err)
		}
		supplier.QualityScore = scoring.SupplierScore(rejections, c.th)
		supplier.UpdatedAt = c.now
		if err := c.tx.Put(models.CollectionSuppliers, supplier.Id, supplier); err != nil {
			return c.fail("processRejectionCreated", "save supplier", supplier.Id, err)
		}
		c.note("supplier_quality_score", supplier.QualityScore)
	}

	if r.Quantity > 0 {
		inv, err := find[models.Inventory](c, models.CollectionInventory, r.ProductId)
		if err != nil {
			return c.fail("processRejectionCreated", "load inventory", r.ProductId, err)
		}
		if inv != nil {
			if _, err := c.writeOff(inv, r.Quantity, "rejection", r.Id, r.BatchNumber, r.Reason); err != nil {
				return err
			}
		}
	}

	if r.Severity == models.SeverityCritical {
		c.notify(notify.ChannelExecutive, map[string]any{
			"type":         "critical-rejection",
			"rejection_id": r.Id,
			"product_id":   r.ProductId,
			"supplier_id":  r.SupplierId,
			"reason":       r.Reason,
		})
		c.notify(notify.ChannelQuality, map[string]any{
			"type":         "critical-rejection",
			"rejection_id": r.Id,
			"product_id":   r.ProductId,
		})
	}
	return nil
}
