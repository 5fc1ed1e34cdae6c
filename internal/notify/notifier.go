// Package notify drains the message event stream and fans each event out to
// its conversation-scoped pub/sub channel, where realtime gateways pick it
// up. Delivery stays best effort end to end: a failed publish is logged,
// acked, and forgotten.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"opsdeck.app/chat/common/logger"
	"opsdeck.app/chat/internal/events"
)

// Consumer is the slice of the stream consumer the notifier needs.
type Consumer interface {
	Read(ctx context.Context) ([]events.StreamMessage, error)
	Ack(ctx context.Context, msg events.StreamMessage) error
}

// Publisher fans a payload out to a channel. Backed by redis pub/sub in
// production.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Notifier struct {
	consumer  Consumer
	publisher Publisher

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, publisher Publisher) *Notifier {
	return &Notifier{
		consumer:  consumer,
		publisher: publisher,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (n *Notifier) Run(ctx context.Context) error {
	defer close(n.stoppedCh)

	slog.InfoContext(ctx, "notifier started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stopCh:
			slog.InfoContext(ctx, "notifier stopping")
			return nil
		default:
			if err := n.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (n *Notifier) Stop() {
	close(n.stopCh)
	<-n.stoppedCh
}

func (n *Notifier) processOneBatch(ctx context.Context) error {
	messages, err := n.consumer.Read(ctx)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		n.deliver(ctx, msg)
	}
	return nil
}

// deliver publishes one event and always acks it. Notification loss is
// acceptable; redelivery loops are not.
func (n *Notifier) deliver(ctx context.Context, msg events.StreamMessage) {
	sc := logger.StartSpan(ctx, "notify.deliver", trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()

	channel := events.ConversationChannel(msg.Event.ConversationID)

	payload, err := json.Marshal(notification{
		Type:           string(msg.Event.Type),
		ConversationID: msg.Event.ConversationID,
		MessageID:      msg.Event.MessageID,
		SenderID:       msg.Event.SenderID,
	})
	if err == nil {
		err = n.publisher.Publish(ctx, channel, payload)
	}
	if err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "dropping notification",
			"error", err,
			"channel", channel,
			"message_id", msg.Event.MessageID,
		)
	}

	if err := n.consumer.Ack(ctx, msg); err != nil {
		slog.WarnContext(ctx, "failed to ack event",
			"error", err,
			"stream_id", msg.ID,
		)
	}
}

type notification struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	SenderID       int64  `json:"sender_id"`
}
