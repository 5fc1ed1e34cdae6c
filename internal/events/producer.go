// Package events emits best-effort notification events for created and
// forwarded messages. Delivery transport lives outside this service; the
// contract here is fire-and-forget: an emission failure is logged and
// swallowed, never surfaced to the operation that committed the write.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventTypeMessageCreated   EventType = "message_created"
	EventTypeMessageForwarded EventType = "message_forwarded"
)

// MessageEvent is published to a conversation-scoped channel for downstream
// notification delivery.
type MessageEvent struct {
	Type           EventType
	ConversationID int64
	MessageID      int64
	SenderID       int64
}

type Producer interface {
	Emit(ctx context.Context, event MessageEvent)
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Emit publishes the event to the stream. Errors are logged and dropped so a
// notification outage can never fail or roll back a committed message.
func (p *redisProducer) Emit(ctx context.Context, event MessageEvent) {
	fields := map[string]any{
		"type":            string(event.Type),
		"conversation_id": event.ConversationID,
		"message_id":      event.MessageID,
		"sender_id":       event.SenderID,
		"channel":         ConversationChannel(event.ConversationID),
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		p.logger.WarnContext(ctx, "dropping message event",
			"error", err,
			"conversation_id", event.ConversationID,
			"message_id", event.MessageID,
		)
		return
	}

	p.logger.DebugContext(ctx, "emitted message event",
		"type", event.Type,
		"conversation_id", event.ConversationID,
		"message_id", event.MessageID,
	)
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

// ConversationChannel is the conversation-scoped channel name downstream
// notification consumers subscribe on.
func ConversationChannel(conversationID int64) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// Discard is a Producer that drops everything. Used when the event stream is
// not configured.
type Discard struct{}

func (Discard) Emit(context.Context, MessageEvent) {}
func (Discard) Close() error                       { return nil }
