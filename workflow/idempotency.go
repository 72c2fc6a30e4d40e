package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ops_backend/models"
	"bitbucket.org/mmdatafocus/ops_backend/store"
)

// alreadySucceeded reports whether handlerName already committed for eventId.
// The key is written in the cascade's own transaction, so a STARTED row is
// never observable and only SUCCEEDED means "skip safely".
func alreadySucceeded(tx store.Tx, handlerName, eventId string) (bool, error) {
	key, err := store.Get[models.IdempotencyKey](tx, models.CollectionIdempotencyKeys, models.IdempotencyKeyId(handlerName, eventId))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return key.Status == models.IdempotencyStatusSucceeded, nil
}

func markSucceeded(tx store.Tx, handlerName, eventId string, now time.Time) error {
	return putKey(tx, handlerName, eventId, now, models.IdempotencyStatusSucceeded, nil)
}

// markFailed keeps the last error for operators; a failed key never blocks a retry.
func markFailed(tx store.Tx, handlerName, eventId string, now time.Time, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return putKey(tx, handlerName, eventId, now, models.IdempotencyStatusFailed, &msg)
}

func putKey(tx store.Tx, handlerName, eventId string, now time.Time, status models.IdempotencyStatus, lastErr *string) error {
	id := models.IdempotencyKeyId(handlerName, eventId)
	key := models.IdempotencyKey{
		Id:          id,
		HandlerName: handlerName,
		EventId:     eventId,
		Status:      status,
		LastError:   lastErr,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, err := store.Get[models.IdempotencyKey](tx, models.CollectionIdempotencyKeys, id); err == nil {
		key.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return tx.Put(models.CollectionIdempotencyKeys, id, key)
}
