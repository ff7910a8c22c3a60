package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/resilience"
)

type published struct {
	topic string
	key   string
	event any
}

type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	attempts int
	sent     []published
	release  chan struct{}
}

func (p *flakyPublisher) PublishEvent(ctx context.Context, topic, key string, event any) error {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.attempts <= p.failures {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{topic: topic, key: key, event: event})
	return nil
}

var fastRetry = resilience.RetryPolicy{MaxTries: 3, MaxElapsedTime: time.Second, InitialBackoff: time.Millisecond}

func TestEnqueueRetriesUntilPublished(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	d := NewDispatcher(pub, nil, fastRetry, time.Second)

	d.Enqueue(context.Background(), "o1", entity.OrderCreated{OrderID: "o1"})
	d.Wait()

	require.Len(t, pub.sent, 1)
	assert.Equal(t, entity.TopicOrderCreated, pub.sent[0].topic)
	assert.Equal(t, "o1", pub.sent[0].key)
	assert.Equal(t, 3, pub.attempts)
}

func TestEnqueueGivesUpQuietly(t *testing.T) {
	pub := &flakyPublisher{failures: 100}
	d := NewDispatcher(pub, nil, fastRetry, time.Second)

	d.Enqueue(context.Background(), "o1", entity.OrderCancelled{OrderID: "o1"})
	d.Wait()

	assert.Empty(t, pub.sent)
	assert.Equal(t, 3, pub.attempts)
}

func TestEnqueueDoesNotBlockAndOutlivesCaller(t *testing.T) {
	pub := &flakyPublisher{release: make(chan struct{})}
	d := NewDispatcher(pub, nil, fastRetry, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	d.Enqueue(ctx, "o1", entity.OrderStageChanged{OrderID: "o1", From: entity.StagePending, To: entity.StageShipping})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	cancel()
	close(pub.release)
	d.Wait()

	require.Len(t, pub.sent, 1)
	assert.Equal(t, entity.TopicOrderStageChanged, pub.sent[0].topic)
}

type recordingSender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *recordingSender) SendTemplated(ctx context.Context, to []Recipient, templateID int64, params any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func TestSendEmailSwallowsFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(&flakyPublisher{}, sender, fastRetry, time.Second)

	d.SendEmail(context.Background(), []Recipient{{Email: "a@test"}}, 4, CancellationParams{ID: "o1"})
	d.Wait()

	assert.Equal(t, 3, sender.calls)
}

func TestBrevoSender(t *testing.T) {
	var body struct {
		To         []Recipient        `json:"to"`
		TemplateID int64              `json:"templateId"`
		Params     CancellationParams `json:"params"`
	}
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@smtp>"}`))
	}))
	defer srv.Close()

	s := NewBrevoSender(srv.URL, "secret", time.Second)
	err := s.SendTemplated(context.Background(), []Recipient{{Email: "a@test", Name: "Alice"}}, 4, CancellationParams{
		Email: "a@test",
		Type:  "Order",
		ID:    "o1",
		Items: []EmailItem{{Name: "Tee", Price: decimal.NewFromInt(120), QuantityOrder: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, int64(4), body.TemplateID)
	assert.Equal(t, "Alice", body.To[0].Name)
	assert.Equal(t, "o1", body.Params.ID)
	require.Len(t, body.Params.Items, 1)
	assert.Equal(t, 2, body.Params.Items[0].QuantityOrder)
}

func TestBrevoSenderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized"}`))
	}))
	defer srv.Close()

	err := NewBrevoSender(srv.URL, "wrong", time.Second).SendTemplated(context.Background(), nil, 4, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.SendTemplated(context.Background(), []Recipient{{Email: "a@test"}}, 4, nil))
}
