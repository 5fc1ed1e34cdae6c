package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so business context
// (conversation_id, actor_id, etc.) is included in every log statement without
// threading it through call sites by hand.
type LogFields struct {
	ConversationID *int64  // Conversation being read or written
	MessageID      *int64  // Message being created or forwarded
	ActorID        *int64  // Resolved requesting user
	TeamID         *int64  // Team for team-conversation provisioning
	Component      string  // Component name (e.g. "chat.service.forward")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.ActorID != nil {
		result.ActorID = next.ActorID
	}
	if next.TeamID != nil {
		result.TeamID = next.TeamID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ActorID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
