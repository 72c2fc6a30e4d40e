package utils

import "context"

type contextKey string

const (
	ContextKeyUserId        = contextKey("UserId")
	ContextKeyCorrelationId = contextKey("CorrelationId")
	// ContextKeyEventId is set by the orchestrator for the duration of one cascade.
	ContextKeyEventId = contextKey("EventId")
)

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, ContextKeyUserId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, ContextKeyCorrelationId)
}

func GetEventIdFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, ContextKeyEventId)
}

func SetUserIdInContext(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, ContextKeyUserId, userId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationId, correlationId)
}

func SetEventIdInContext(ctx context.Context, eventId string) context.Context {
	return context.WithValue(ctx, ContextKeyEventId, eventId)
}

// ActorFromContext returns the acting user id, falling back to "system" for
// cascades started by the worker or scheduler.
func ActorFromContext(ctx context.Context) string {
	if id, ok := GetUserIdFromContext(ctx); ok && id != "" {
		return id
	}
	return "system"
}
