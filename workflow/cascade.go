package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/audit"
	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type handler struct {
	name        string
	entityType  string
	collections []string
	run         func(c *cascade, p events.Payload) error
}

// on adapts a typed step function to the handler signature.
func on[P events.Payload](fn func(c *cascade, p P) error) func(c *cascade, p events.Payload) error {
	return func(c *cascade, p events.Payload) error {
		typed, ok := p.(P)
		if !ok {
			return utils.NewValidationError(utils.CodeInvalidPayload, "unexpected payload %T", p)
		}
		return fn(c, typed)
	}
}

// cascade is the state shared by the sub-steps of one handler run.
type cascade struct {
	ctx     context.Context
	tx      store.Tx
	env     events.Envelope
	handler handler
	now     time.Time
	th      config.Thresholds
	logger  *logrus.Logger
	monitor *alerts.Monitor
	newID   func() string

	entityId string
	details  map[string]any
	outbox   []models.OutboxMessage
	onCommit []func()
}

func (o *Orchestrator) newCascade(ctx context.Context, tx store.Tx, env events.Envelope, h handler, now time.Time) *cascade {
	return &cascade{
		ctx:     ctx,
		tx:      tx,
		env:     env,
		handler: h,
		now:     now,
		th:      o.deps.Thresholds,
		logger:  o.deps.Logger,
		monitor: o.deps.Monitor,
		newID:   o.deps.NewID,
		details: map[string]any{},
	}
}

func (c *cascade) subject(id string) { c.entityId = id }

func (c *cascade) entityOr(fallback string) string {
	if c == nil || c.entityId == "" {
		return fallback
	}
	return c.entityId
}

func (c *cascade) note(key string, v any) { c.details[key] = v }

// afterCommit defers fn until the cascade's transaction has committed.
func (c *cascade) afterCommit(fn func()) { c.onCommit = append(c.onCommit, fn) }

func (c *cascade) successEntry() audit.Entry {
	return audit.Success(c.ctx, string(c.env.Kind), c.handler.entityType, c.entityOr(c.env.ID), c.details, c.now)
}

// fail logs a failing sub-step once and hands the error back to the handler.
func (c *cascade) fail(funcName, step string, data any, err error) error {
	config.LogError(c.logger, "workflow/"+c.handler.name, funcName, step, data, err)
	return err
}

// notify queues a notification in the outbox; it is only delivered if the
// cascade commits.
func (c *cascade) notify(channel string, payload map[string]any) {
	payload["event_id"] = c.env.ID
	payload["event_kind"] = string(c.env.Kind)
	c.outbox = append(c.outbox, models.OutboxMessage{
		Id:            c.newID(),
		Channel:       channel,
		Payload:       payload,
		EventId:       c.env.ID,
		Status:        models.OutboxStatusPending,
		NextAttemptAt: c.now,
		CreatedAt:     c.now,
	})
}

func (c *cascade) flushOutbox() error {
	for _, m := range c.outbox {
		if err := c.tx.Add(models.CollectionOutbox, m.Id, m); err != nil {
			return c.fail("flushOutbox", "queue notification", m.Channel, err)
		}
	}
	return nil
}

// get loads a required document; a missing one becomes a NotFoundError.
func get[T any](c *cascade, collection, id string) (*T, error) {
	v, err := store.Get[T](c.tx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound(collection, id)
	}
	return v, err
}

// isMissing reports a raw store miss, e.g. from Update on an unknown id.
func isMissing(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func notFound(collection, id string) error {
	return utils.NewNotFoundError(collection, id)
}

// find loads an optional document; a missing one yields nil without error.
func find[T any](c *cascade, collection, id string) (*T, error) {
	if id == "" {
		return nil, nil
	}
	v, err := store.Get[T](c.tx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (c *cascade) movement(productId string, kind models.MovementType, qty float64, refType, refId, batchNumber, reason string) error {
	m := models.StockMovement{
		Id:            c.newID(),
		ProductId:     productId,
		Type:          kind,
		Quantity:      qty,
		BatchNumber:   batchNumber,
		ReferenceType: refType,
		ReferenceId:   refId,
		Reason:        reason,
		CreatedAt:     c.now,
	}
	if err := c.tx.Add(models.CollectionStockMovements, m.Id, m); err != nil {
		return c.fail("movement", "write stock movement", m, err)
	}
	return nil
}

func (c *cascade) putInventory(inv *models.Inventory) error {
	inv.UpdatedAt = c.now
	if err := c.tx.Put(models.CollectionInventory, inv.ProductId, inv); err != nil {
		return c.fail("putInventory", "save inventory", inv.ProductId, err)
	}
	return nil
}

// inventoryOrNew loads a product's inventory record or starts an empty one.
// writeOff removes stock and records the out movement plus a release movement
// for any reservation the write-off uncovered.
func (c *cascade) writeOff(inv *models.Inventory, qty float64, refType, refId, batchNumber, reason string) (float64, error) {
	removed, released := inv.WriteOff(qty)
	if err := c.putInventory(inv); err != nil {
		return 0, err
	}
	if removed > 0 {
		if err := c.movement(inv.ProductId, models.MovementOut, removed, refType, refId, batchNumber, reason); err != nil {
			return 0, err
		}
	}
	if released > 0 {
		if err := c.movement(inv.ProductId, models.MovementRelease, released, refType, refId, batchNumber, "reservation exceeds remaining stock"); err != nil {
			return 0, err
		}
		c.logger.WithFields(logrus.Fields{
			"product_id": inv.ProductId,
			"released":   released,
			"reference":  refType + "/" + refId,
		}).Warn("write-off released reserved stock")
		c.note("reservation_released", released)
	}
	return removed, nil
}

func (c *cascade) inventoryOrNew(productId string) (*models.Inventory, error) {
	inv, err := find[models.Inventory](c, models.CollectionInventory, productId)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		inv = &models.Inventory{ProductId: productId}
	}
	return inv, nil
}
