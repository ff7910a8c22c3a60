package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/messaging"
)

type kafkaBroker struct {
	brokers []string
	writer  *kafkaGo.Writer
}

// NewKafkaBroker creates a Kafka publisher and subscriber. One writer serves
// every topic; messages with the same key land on the same partition.
func NewKafkaBroker(brokers []string) messaging.Broker {
	return &kafkaBroker{
		brokers: brokers,
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.Hash{},
			RequiredAcks:           kafkaGo.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (k *kafkaBroker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := messaging.Encode(event)
	if err != nil {
		return err
	}

	if err := k.writer.WriteMessages(ctx, kafkaGo.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}
	return nil
}

func (k *kafkaBroker) Consume(ctx context.Context, topic string, groupID string, handler messaging.Handler) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Consumer shutting down", "topic", topic)
				return
			}
			slog.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			slog.Error("Error handling message", "topic", topic, "err", err)
		}
	}
}

func (k *kafkaBroker) Close() error {
	return k.writer.Close()
}
