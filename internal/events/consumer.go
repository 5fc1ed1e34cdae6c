package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"opsdeck.app/chat/common/logger"
)

type ConsumerConfig struct {
	Stream    string        // Redis stream name
	Group     string        // Redis consumer group name
	Consumer  string        // Redis consumer name
	BatchSize int64         // Number of events to read per batch
	Block     time.Duration // How long to block/poll for new events
}

// StreamMessage is a MessageEvent read back off the stream, still pending
// acknowledgement.
type StreamMessage struct {
	ID    string
	Event MessageEvent
	Raw   redis.XMessage
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Starting from "0" instead of "$" means a recreated group still sees
	// everything already in the stream.
	if err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err(); err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]StreamMessage, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "chat.events.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// > = new events not yet delivered to anyone in the group.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []StreamMessage{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, parseErr := parseStreamMessage(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse message event",
					"error", parseErr,
					"raw_message_id", msg.ID,
					"stream", c.cfg.Stream)
				// Malformed entries are acked away, retrying can't fix them.
				_ = c.Ack(ctx, StreamMessage{ID: msg.ID, Raw: msg})
				continue
			}
			messages = append(messages, parsed)
		}
	}

	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg StreamMessage) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

func parseStreamMessage(msg redis.XMessage) (StreamMessage, error) {
	event := MessageEvent{}

	raw, ok := msg.Values["type"].(string)
	if !ok || raw == "" {
		return StreamMessage{}, fmt.Errorf("missing event type")
	}
	event.Type = EventType(raw)

	var err error
	if event.ConversationID, err = int64Value(msg.Values, "conversation_id"); err != nil {
		return StreamMessage{}, err
	}
	if event.MessageID, err = int64Value(msg.Values, "message_id"); err != nil {
		return StreamMessage{}, err
	}
	if event.SenderID, err = int64Value(msg.Values, "sender_id"); err != nil {
		return StreamMessage{}, err
	}

	return StreamMessage{ID: msg.ID, Event: event, Raw: msg}, nil
}

func int64Value(values map[string]any, key string) (int64, error) {
	raw, ok := values[key].(string)
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing field %q: %w", key, err)
	}
	return n, nil
}
