package workflow

import (
	"math"

	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/scoring"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// processSupplierEvaluated overwrites the supplier's scores with the
// evaluation and flags weak suppliers for review.
func processSupplierEvaluated(c *cascade, p events.SupplierEvaluated) error {
	eval := p.Evaluation
	c.subject(eval.SupplierId)
	if eval.EvaluatedAt.IsZero() {
		eval.EvaluatedAt = c.now
	}
	supplier, err := get[models.Supplier](c, models.CollectionSuppliers, eval.SupplierId)
	if err != nil {
		return err
	}
	if err := c.tx.Add(models.CollectionSupplierEvaluations, eval.Id, eval); err != nil {
		return c.fail("processSupplierEvaluated", "add evaluation", eval.Id, err)
	}

	evaluatedAt := eval.EvaluatedAt
	supplier.QualityScore = eval.QualityScore
	supplier.DeliveryScore = eval.DeliveryScore
	supplier.PriceScore = eval.PriceScore
	supplier.OverallScore = eval.OverallScore
	supplier.Rating = scoring.SupplierRating(eval.OverallScore)
	supplier.NeedsReview = eval.OverallScore < c.th.SupplierReviewScore
	supplier.LastEvaluatedAt = &evaluatedAt
	supplier.UpdatedAt = c.now
	if err := c.tx.Put(models.CollectionSuppliers, supplier.Id, supplier); err != nil {
		return c.fail("processSupplierEvaluated", "save supplier", supplier.Id, err)
	}

	if supplier.NeedsReview {
		c.notify(notify.ChannelSupply, map[string]any{
			"type":          "supplier-review",
			"supplier_id":   supplier.Id,
			"overall_score": eval.OverallScore,
		})
	}
	c.note("rating", supplier.Rating)
	c.note("needs_review", supplier.NeedsReview)
	return nil
}

// processPurchaseOrderReceived receives an open purchase order into stock and
// queues an incoming inspection per line.
func processPurchaseOrderReceived(c *cascade, p events.PurchaseOrderReceived) error {
	c.subject(p.PurchaseOrderId)
	po, err := get[models.PurchaseOrder](c, models.CollectionPurchaseOrders, p.PurchaseOrderId)
	if err != nil {
		return err
	}
	if !po.IsOpen() {
		return utils.NewValidationError(utils.CodeInvalidTransition,
			"purchase order %s is %s and cannot be received", po.Id, po.Status)
	}
	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.now
	}
	po.Status = models.PurchaseOrderReceived
	po.ReceivedAt = &receivedAt
	if err := c.tx.Put(models.CollectionPurchaseOrders, po.Id, po); err != nil {
		return c.fail("processPurchaseOrderReceived", "save purchase order", po.Id, err)
	}

	for _, line := range po.Lines {
		inv, err := c.inventoryOrNew(line.ProductId)
		if err != nil {
			return c.fail("processPurchaseOrderReceived", "load inventory", line.ProductId, err)
		}
		inv.Restock(line.Quantity)
		if err := c.putInventory(inv); err != nil {
			return err
		}
		if err := c.movement(line.ProductId, models.MovementIn, line.Quantity, referencePurchaseOrder, po.Id, "", "purchase order received"); err != nil {
			return err
		}

		inspection := models.QualityInspection{
			Id:              c.newID(),
			Type:            models.InspectionTypeIncoming,
			PurchaseOrderId: po.Id,
			ProductId:       line.ProductId,
			SupplierId:      po.SupplierId,
			Quantity:        line.Quantity,
			SampleSize:      math.Min(line.Quantity, c.th.InspectionSampleMax),
			Status:          models.InspectionPending,
			CreatedAt:       c.now,
		}
		if err := c.tx.Add(models.CollectionQualityInspections, inspection.Id, inspection); err != nil {
			return c.fail("processPurchaseOrderReceived", "add inspection", inspection.Id, err)
		}
	}
	c.notify(notify.ChannelQuality, map[string]any{
		"type":              "inspections-queued",
		"purchase_order_id": po.Id,
		"lines":             len(po.Lines),
	})
	c.note("lines", len(po.Lines))
	return nil
}
