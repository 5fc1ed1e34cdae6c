package notify_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsdeck.app/chat/internal/events"
	"opsdeck.app/chat/internal/notify"
)

type mockConsumer struct {
	readFn func(ctx context.Context) ([]events.StreamMessage, error)
	acked  []string
	ackErr error
}

func (m *mockConsumer) Read(ctx context.Context) ([]events.StreamMessage, error) {
	if m.readFn != nil {
		return m.readFn(ctx)
	}
	return nil, nil
}

func (m *mockConsumer) Ack(_ context.Context, msg events.StreamMessage) error {
	m.acked = append(m.acked, msg.ID)
	return m.ackErr
}

type published struct {
	channel string
	payload []byte
}

type mockPublisher struct {
	published  []published
	publishErr error
}

func (m *mockPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{channel: channel, payload: payload})
	return nil
}

var _ = Describe("Notifier", func() {
	var (
		consumer  *mockConsumer
		publisher *mockPublisher
		notifier  *notify.Notifier
		ctx       context.Context
	)

	event := events.StreamMessage{
		ID: "1-0",
		Event: events.MessageEvent{
			Type:           events.EventTypeMessageCreated,
			ConversationID: 50,
			MessageID:      300,
			SenderID:       10,
		},
	}

	BeforeEach(func() {
		consumer = &mockConsumer{}
		publisher = &mockPublisher{}
		notifier = notify.New(consumer, publisher)
		ctx = context.Background()
	})

	runOneBatch := func(batch []events.StreamMessage) {
		runCtx, cancel := context.WithCancel(ctx)
		delivered := false
		consumer.readFn = func(_ context.Context) ([]events.StreamMessage, error) {
			if delivered {
				cancel()
				return nil, nil
			}
			delivered = true
			return batch, nil
		}
		Expect(notifier.Run(runCtx)).To(MatchError(context.Canceled))
	}

	It("publishes each event to its conversation channel and acks it", func() {
		runOneBatch([]events.StreamMessage{event})

		Expect(publisher.published).To(HaveLen(1))
		Expect(publisher.published[0].channel).To(Equal("conversation:50"))

		var payload map[string]any
		Expect(json.Unmarshal(publisher.published[0].payload, &payload)).To(Succeed())
		Expect(payload["type"]).To(Equal("message_created"))
		Expect(payload["message_id"]).To(BeNumerically("==", 300))

		Expect(consumer.acked).To(Equal([]string{"1-0"}))
	})

	It("acks events even when publishing fails", func() {
		publisher.publishErr = errors.New("pubsub down")

		runOneBatch([]events.StreamMessage{event})

		Expect(consumer.acked).To(Equal([]string{"1-0"}))
	})

	It("stops when asked", func() {
		done := make(chan error, 1)
		go func() {
			done <- notifier.Run(ctx)
		}()

		notifier.Stop()
		Expect(<-done).To(Succeed())
	})
})
