package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/notify"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

const maxOutboxBackoff = 10 * time.Minute

// OutboxDispatcher delivers notifications that committed cascades queued in
// the outbox collection. Delivery is at-least-once.
type OutboxDispatcher struct {
	Store        store.Store
	Notifier     notify.Notifier
	Logger       *logrus.Logger
	DispatcherID string
	Now          func() time.Time

	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	// LockTimeout is how long a PROCESSING claim is honoured before another
	// dispatcher may reclaim the message.
	LockTimeout time.Duration

	wake chan struct{}
}

func NewOutboxDispatcher(s store.Store, n notify.Notifier, logger *logrus.Logger) *OutboxDispatcher {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &OutboxDispatcher{
		Store:          s,
		Notifier:       n,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Now:            func() time.Time { return time.Now().UTC() },
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		LockTimeout:    time.Minute,
		wake:           make(chan struct{}, 1),
	}
}

// Wake asks a running dispatcher to poll now instead of waiting for the next tick.
// It has the OnCommitted hook signature.
func (d *OutboxDispatcher) Wake(context.Context, events.Envelope) {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	for {
		if _, _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			config.LogError(d.Logger, "workflow/outboxDispatcher.go", "Run", "dispatch", d.DispatcherID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch of due messages and tries to deliver each.
// Claiming marks the messages PROCESSING under DispatcherID inside the
// selecting transaction, so overlapping drains never deliver the same message.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (sent, failed int, err error) {
	now := d.Now()
	staleBefore := now.Add(-d.LockTimeout)
	var claimed []models.OutboxMessage
	var dead int
	err = d.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionOutbox}, func(tx store.Tx) error {
		claimed, dead = claimed[:0], 0
		candidates, err := store.Query[models.OutboxMessage](tx, models.CollectionOutbox,
			store.In("status", models.OutboxStatusPending, models.OutboxStatusFailed, models.OutboxStatusProcessing))
		if err != nil {
			return err
		}
		for _, m := range candidates {
			if d.BatchSize > 0 && len(claimed) >= d.BatchSize {
				break
			}
			switch m.Status {
			case models.OutboxStatusProcessing:
				// a dispatcher that crashed mid-batch leaves a stale claim behind
				if m.LockedAt != nil && m.LockedAt.After(staleBefore) {
					continue
				}
			default:
				if m.NextAttemptAt.After(now) {
					continue
				}
			}
			if d.MaxAttempts > 0 && m.Attempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				if err := tx.Update(models.CollectionOutbox, m.Id, map[string]any{
					"status":     models.OutboxStatusDead,
					"last_error": msg,
					"locked_by":  nil,
					"locked_at":  nil,
				}); err != nil {
					return err
				}
				dead++
				continue
			}
			m.Status = models.OutboxStatusProcessing
			m.Attempts++
			m.LockedBy = &d.DispatcherID
			m.LockedAt = &now
			if err := tx.Update(models.CollectionOutbox, m.Id, map[string]any{
				"status":    m.Status,
				"attempts":  m.Attempts,
				"locked_by": d.DispatcherID,
				"locked_at": now,
			}); err != nil {
				return err
			}
			claimed = append(claimed, m)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	outboxPublished.WithLabelValues("dead").Add(float64(dead))

	for _, m := range claimed {
		pubErr := d.Notifier.Notify(ctx, m.Channel, m.Payload)
		if pubErr != nil {
			failed++
			d.markFailed(ctx, m, pubErr, now)
			continue
		}
		sent++
		d.markSent(ctx, m, now)
	}
	return sent, failed, nil
}

// Replay requeues a failed or dead message for immediate delivery with a fresh
// attempt budget.
func (d *OutboxDispatcher) Replay(ctx context.Context, id string) (*models.OutboxMessage, error) {
	var out *models.OutboxMessage
	err := d.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionOutbox}, func(tx store.Tx) error {
		m, err := store.Get[models.OutboxMessage](tx, models.CollectionOutbox, id)
		if errors.Is(err, store.ErrNotFound) {
			return utils.NewNotFoundError(models.CollectionOutbox, id)
		}
		if err != nil {
			return err
		}
		switch m.Status {
		case models.OutboxStatusSent:
			return utils.NewValidationError(utils.CodeInvalidTransition, "outbox message %s was already sent", id)
		case models.OutboxStatusProcessing:
			return utils.NewValidationError(utils.CodeInvalidTransition, "outbox message %s is being delivered", id)
		}
		m.Status = models.OutboxStatusPending
		m.Attempts = 0
		m.NextAttemptAt = d.Now()
		m.LastError = nil
		m.LockedBy = nil
		m.LockedAt = nil
		out = m
		return tx.Put(models.CollectionOutbox, id, m)
	})
	if err != nil {
		return nil, err
	}
	d.Wake(ctx, events.Envelope{})
	return out, nil
}

func (d *OutboxDispatcher) markSent(ctx context.Context, m models.OutboxMessage, now time.Time) {
	err := d.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionOutbox}, func(tx store.Tx) error {
		return tx.Update(models.CollectionOutbox, m.Id, map[string]any{
			"status":     models.OutboxStatusSent,
			"sent_at":    now,
			"last_error": nil,
			"locked_by":  nil,
			"locked_at":  nil,
		})
	})
	if err != nil {
		config.LogError(d.Logger, "workflow/outboxDispatcher.go", "markSent", "update outbox", m.Id, err)
		return
	}
	outboxPublished.WithLabelValues("sent").Inc()
}

// markFailed schedules a retry with exponential backoff capped at maxOutboxBackoff.
func (d *OutboxDispatcher) markFailed(ctx context.Context, m models.OutboxMessage, cause error, now time.Time) {
	attempts := m.Attempts
	err := d.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionOutbox}, func(tx store.Tx) error {
		return tx.Update(models.CollectionOutbox, m.Id, map[string]any{
			"status":          models.OutboxStatusFailed,
			"last_error":      cause.Error(),
			"next_attempt_at": now.Add(d.backoff(attempts)),
			"locked_by":       nil,
			"locked_at":       nil,
		})
	})
	if err != nil {
		config.LogError(d.Logger, "workflow/outboxDispatcher.go", "markFailed", "update outbox", m.Id, err)
	}
	outboxPublished.WithLabelValues("failed").Inc()
	d.Logger.WithFields(logrus.Fields{
		"field":      "OutboxDispatcher",
		"message_id": m.Id,
		"channel":    m.Channel,
		"attempts":   attempts,
	}).Warn("notification delivery failed: " + cause.Error())
}

func (d *OutboxDispatcher) backoff(attempts int) time.Duration {
	b := d.InitialBackoff
	if b <= 0 {
		b = time.Second
	}
	for i := 1; i < attempts; i++ {
		b *= 2
		if b >= maxOutboxBackoff {
			return maxOutboxBackoff
		}
	}
	return b
}
