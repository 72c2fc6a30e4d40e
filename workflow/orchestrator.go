package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bitbucket.org/mmdatafocus/ops_backend/alerts"
	"bitbucket.org/mmdatafocus/ops_backend/audit"
	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/events"
	"bitbucket.org/mmdatafocus/ops_backend/lock"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// Deps are the collaborators of an Orchestrator. Store and Audit are required.
type Deps struct {
	Store      store.Store
	Audit      audit.Sink
	Monitor    *alerts.Monitor
	Locker     lock.Locker
	Thresholds config.Thresholds
	Logger     *logrus.Logger
	Now        func() time.Time
	NewID      func() string
	LockTTL    time.Duration

	// EnforceIdempotency skips events whose id already succeeded for the handler.
	EnforceIdempotency bool

	// OnCommitted hooks run after a cascade commits, e.g. to wake the outbox dispatcher.
	OnCommitted []func(ctx context.Context, env events.Envelope)
}

// Orchestrator runs one atomic cascade per domain event.
type Orchestrator struct {
	deps     Deps
	handlers map[events.Kind]handler
	tracer   trace.Tracer
}

func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = config.GetLogger()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewStoreSink(deps.Store)
	}
	if deps.Monitor == nil {
		deps.Monitor = alerts.NewMonitor(deps.Store, deps.Logger)
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Second
	}
	o := &Orchestrator{
		deps:     deps,
		handlers: map[events.Kind]handler{},
		tracer:   otel.Tracer("bitbucket.org/mmdatafocus/ops_backend/workflow"),
	}
	o.registerDefaults()
	return o
}

// DispatchError is returned for every failed cascade and always names the event.
type DispatchError struct {
	EventId string
	Kind    events.Kind
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("event %s (%s): %v", e.EventId, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Scope is the collection set a cascade for kind locks and writes.
func (o *Orchestrator) Scope(kind events.Kind) []string {
	h, ok := o.handlers[kind]
	if !ok {
		return nil
	}
	return o.scope(h)
}

func (o *Orchestrator) scope(h handler) []string {
	cols := append([]string{models.CollectionActionLogs, models.CollectionOutbox}, h.collections...)
	if o.deps.EnforceIdempotency {
		cols = append(cols, models.CollectionIdempotencyKeys)
	}
	return store.Scope(cols)
}

// Dispatch validates env, runs its handler's sub-steps in one read-write
// transaction and records the outcome. A failed cascade commits nothing and
// leaves exactly one error entry in the audit log.
func (o *Orchestrator) Dispatch(ctx context.Context, env events.Envelope) (err error) {
	started := time.Now()
	ctx = utils.SetEventIdInContext(ctx, env.ID)
	if env.Actor != "" {
		ctx = utils.SetUserIdInContext(ctx, env.Actor)
	}
	attrs := []attribute.KeyValue{
		attribute.String("event.id", env.ID),
		attribute.String("event.kind", string(env.Kind)),
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("correlation.id", cid))
	}
	ctx, span := o.tracer.Start(ctx, "workflow.Dispatch", trace.WithAttributes(attrs...))
	result := "success"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("cascade.result", result))
		span.End()
		eventsProcessed.WithLabelValues(string(env.Kind), result).Inc()
		cascadeDuration.WithLabelValues(string(env.Kind)).Observe(time.Since(started).Seconds())
	}()

	h, ok := o.handlers[env.Kind]
	if !ok {
		result = "error"
		return o.fail(ctx, env, handler{name: string(env.Kind)},
			utils.NewValidationError(utils.CodeInvalidPayload, "no handler for event kind %q", env.Kind))
	}
	if err := env.Validate(); err != nil {
		result = "error"
		return o.fail(ctx, env, h, err)
	}

	if o.deps.Locker != nil {
		held, err := lock.ObtainAll(ctx, o.deps.Locker, o.scope(h), o.deps.LockTTL)
		if err != nil {
			result = "error"
			return o.fail(ctx, env, h, &utils.TransactionError{Op: "lock", Err: err})
		}
		defer func() {
			if rerr := held.Release(context.WithoutCancel(ctx)); rerr != nil {
				o.deps.Logger.WithFields(logrus.Fields{
					"field":    "Dispatch",
					"event_id": env.ID,
				}).Warn("failed to release cascade locks: " + rerr.Error())
			}
		}()
	}

	now := o.deps.Now()
	txSink, inTx := o.deps.Audit.(audit.TxSink)
	var c *cascade
	duplicate := false

	txErr := o.deps.Store.Transaction(ctx, store.ReadWrite, o.scope(h), func(tx store.Tx) error {
		c = o.newCascade(ctx, tx, env, h, now)
		if o.deps.EnforceIdempotency {
			done, err := alreadySucceeded(tx, h.name, env.ID)
			if err != nil {
				return err
			}
			if done {
				duplicate = true
				return nil
			}
		}
		if err := h.run(c, env.Payload); err != nil {
			return err
		}
		if err := c.flushOutbox(); err != nil {
			return err
		}
		if o.deps.EnforceIdempotency {
			if err := markSucceeded(tx, h.name, env.ID, now); err != nil {
				return err
			}
		}
		if inTx {
			return txSink.AppendTx(tx, c.successEntry())
		}
		return nil
	})

	switch {
	case txErr == nil && duplicate:
		result = "duplicate"
		o.deps.Logger.WithFields(logrus.Fields{
			"field":    "Dispatch",
			"event_id": env.ID,
			"kind":     env.Kind,
		}).Info("event already processed; skipping")
		return nil
	case txErr == nil:
		for _, fn := range c.onCommit {
			fn()
		}
		if !inTx {
			if aerr := o.deps.Audit.Append(context.WithoutCancel(ctx), c.successEntry()); aerr != nil {
				config.LogError(o.deps.Logger, "workflow/orchestrator.go", "Dispatch", "append success audit", env.ID, aerr)
			}
		}
		for _, hook := range o.deps.OnCommitted {
			hook(ctx, env)
		}
		return nil
	case utils.IsNotFound(txErr):
		// Stale reference: nothing was committed, record the skip and move on.
		result = "skipped"
		entry := audit.Success(ctx, string(env.Kind), h.entityType, c.entityOr(env.ID), map[string]any{"skipped": txErr.Error()}, now)
		if aerr := o.deps.Audit.Append(context.WithoutCancel(ctx), entry); aerr != nil {
			config.LogError(o.deps.Logger, "workflow/orchestrator.go", "Dispatch", "append skip audit", env.ID, aerr)
		}
		return nil
	}

	result = "error"
	return o.fail(ctx, env, h, txErr)
}

// fail writes the single error audit entry for a cascade and wraps err with the event id.
func (o *Orchestrator) fail(ctx context.Context, env events.Envelope, h handler, err error) error {
	ctx = context.WithoutCancel(ctx)
	entityType := h.entityType
	if entityType == "" {
		entityType = "event"
	}
	entry := audit.Failure(ctx, string(env.Kind), entityType, env.ID,
		map[string]any{"event_id": env.ID, "kind": env.Kind, "handler": h.name}, o.deps.Now(), err)
	if aerr := o.deps.Audit.Append(ctx, entry); aerr != nil {
		config.LogError(o.deps.Logger, "workflow/orchestrator.go", "fail", "append error audit", env.ID, aerr)
	}
	if o.deps.EnforceIdempotency && h.run != nil {
		if merr := o.deps.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionIdempotencyKeys}, func(tx store.Tx) error {
			return markFailed(tx, h.name, env.ID, o.deps.Now(), err)
		}); merr != nil {
			config.LogError(o.deps.Logger, "workflow/orchestrator.go", "fail", "mark idempotency failed", env.ID, merr)
		}
	}
	config.LogError(o.deps.Logger, "workflow/orchestrator.go", "Dispatch", string(env.Kind), env.ID, err)
	return &DispatchError{EventId: env.ID, Kind: env.Kind, Err: err}
}
