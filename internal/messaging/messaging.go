package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Handler processes one message payload.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber defines an interface for subscribing to a message topic.
// Consume blocks until ctx is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler Handler)
}

// Broker is a Publisher and Subscriber that holds connections.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// Encode marshals an event into the JSON payload every broker carries.
func Encode(event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}
