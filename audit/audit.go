// Package audit shapes append-only action log entries and writes them to a sink.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

// Entry is the shape appended by every component.
type Entry = models.ActionLog

// Success builds a success entry attributed to the actor in ctx.
func Success(ctx context.Context, action, entityType, entityId string, details any, at time.Time) Entry {
	return newEntry(ctx, action, entityType, entityId, details, at, models.AuditStatusSuccess, "")
}

// Failure builds an error entry carrying the original error message.
func Failure(ctx context.Context, action, entityType, entityId string, details any, at time.Time, err error) Entry {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return newEntry(ctx, action, entityType, entityId, details, at, models.AuditStatusError, msg)
}

func newEntry(ctx context.Context, action, entityType, entityId string, details any, at time.Time, status models.AuditStatus, errMsg string) Entry {
	eventId, _ := utils.GetEventIdFromContext(ctx)
	return Entry{
		Id:           uuid.NewString(),
		Action:       action,
		EntityType:   entityType,
		EntityId:     entityId,
		EventId:      eventId,
		Details:      formatDetails(details),
		UserId:       utils.ActorFromContext(ctx),
		Status:       status,
		ErrorMessage: errMsg,
		Timestamp:    at.UTC(),
	}
}

func formatDetails(details any) string {
	switch d := details.(type) {
	case nil:
		return ""
	case string:
		return d
	}
	b, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(b)
}

// Sink is write-only from the cascade's point of view.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// TxSink can also append inside an already open transaction so that success
// entries commit or roll back with the cascade that produced them.
type TxSink interface {
	Sink
	AppendTx(tx store.Tx, e Entry) error
}

// StoreSink persists entries in the actionLogs collection.
type StoreSink struct {
	Store store.Store
}

func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{Store: s}
}

func (s *StoreSink) Append(ctx context.Context, e Entry) error {
	return s.Store.Transaction(ctx, store.ReadWrite, []string{models.CollectionActionLogs}, func(tx store.Tx) error {
		return s.AppendTx(tx, e)
	})
}

func (s *StoreSink) AppendTx(tx store.Tx, e Entry) error {
	return tx.Add(models.CollectionActionLogs, e.Id, e)
}

// LogSink writes entries to logrus. Useful when no store is configured.
type LogSink struct {
	Logger *logrus.Logger
}

func (s LogSink) Append(_ context.Context, e Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	fields := logrus.Fields{
		"action":      e.Action,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityId,
		"event_id":    e.EventId,
		"user_id":     e.UserId,
		"status":      e.Status,
	}
	if e.Status == models.AuditStatusError {
		logger.WithFields(fields).Error(e.ErrorMessage)
		return nil
	}
	logger.WithFields(fields).Info(e.Details)
	return nil
}

// Entries lists the log in timestamp order, optionally filtered.
func Entries(ctx context.Context, s store.Store, preds ...store.Predicate) ([]Entry, error) {
	var out []Entry
	err := store.View(ctx, s, []string{models.CollectionActionLogs}, func(tx store.Tx) error {
		docs, err := tx.Query(models.CollectionActionLogs, preds...)
		if err != nil {
			return err
		}
		store.SortDocuments(docs, "timestamp", false)
		out, err = store.Decode[Entry](docs)
		return err
	})
	return out, err
}
