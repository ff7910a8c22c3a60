// Package watermill adapts Watermill pub/subs to the messaging interfaces. The
// in-memory gochannel flavour backs local runs and tests; the Kafka flavour
// goes through Sarama.
package watermill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/messaging"
)

// keyMetadata carries the partition key of a message.
const keyMetadata = "key"

// Broker publishes through one Watermill publisher and subscribes through
// subscribers created per consumer group.
type Broker struct {
	publisher message.Publisher
	// shared is set when the publisher also serves subscriptions.
	shared        message.Subscriber
	newSubscriber func(groupID string) (message.Subscriber, error)

	mu          sync.Mutex
	subscribers []message.Subscriber
}

// NewGoChannel returns an in-process broker. Every subscriber of a topic
// receives every message regardless of group.
func NewGoChannel(logger *slog.Logger) *Broker {
	wmLogger := watermill.NewSlogLogger(logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		PreserveContext:     true,
	}, wmLogger)

	return &Broker{publisher: pubSub, shared: pubSub}
}

// NewKafka returns a broker backed by watermill-kafka. The message key is used
// as the Kafka partition key.
func NewKafka(brokers []string, logger *slog.Logger) (*Broker, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(keyMetadata), nil
	})

	saramaCfg := kafka.DefaultSaramaSyncPublisherConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: saramaCfg,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &Broker{
		publisher: publisher,
		newSubscriber: func(groupID string) (message.Subscriber, error) {
			subCfg := kafka.DefaultSaramaSubscriberConfig()
			subCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
			return kafka.NewSubscriber(kafka.SubscriberConfig{
				Brokers:               brokers,
				Unmarshaler:           marshaler,
				OverwriteSaramaConfig: subCfg,
				ConsumerGroup:         groupID,
			}, wmLogger)
		},
	}, nil
}

func (b *Broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := messaging.Encode(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(keyMetadata, key)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (b *Broker) Consume(ctx context.Context, topic string, groupID string, handler messaging.Handler) {
	sub := b.shared
	if sub == nil {
		var err error
		if sub, err = b.newSubscriber(groupID); err != nil {
			slog.Error("Failed to create subscriber", "topic", topic, "group", groupID, "err", err)
			return
		}
		b.mu.Lock()
		b.subscribers = append(b.subscribers, sub)
		b.mu.Unlock()
	}

	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		slog.Error("Failed to subscribe", "topic", topic, "err", err)
		return
	}

	for msg := range messages {
		// Failed messages are logged and dropped, as the kafka-go consumer does.
		if err := handler(msg.Context(), msg.Payload); err != nil {
			slog.Error("Error handling message", "topic", topic, "message_uuid", msg.UUID, "err", err)
		}
		msg.Ack()
	}
	slog.Info("Consumer shutting down", "topic", topic)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	var firstErr error
	for _, s := range subs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.publisher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
