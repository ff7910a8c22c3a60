// Package payment talks to the payment service that issues payment URLs.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/resilience"
)

// Request describes the payment the customer is about to make.
type Request struct {
	Amount        decimal.Decimal  `json:"amount"`
	Description   string           `json:"description"`
	OrderIDs      []string         `json:"orderProductsId"`
	PaymentMethod string           `json:"paymentMethodId"`
	ReturnURL     string           `json:"vnpReturnUrl"`
	User          entity.Principal `json:"user"`
}

type response struct {
	PaymentURL string `json:"paymentUrl"`
}

// Gateway issues payment URLs.
type Gateway interface {
	CreatePaymentURL(ctx context.Context, req Request) (string, error)
}

// HTTPGateway calls the payment service over HTTP behind a circuit breaker.
type HTTPGateway struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPGateway creates a gateway posting to baseURL + "/payment-url".
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/payment-url",
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: resilience.NewBreaker("payment"),
	}
}

func (g *HTTPGateway) CreatePaymentURL(ctx context.Context, req Request) (string, error) {
	return resilience.Execute(g.breaker, func() (string, error) {
		return g.call(ctx, req)
	})
}

func (g *HTTPGateway) call(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: payment: %v", entity.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: payment returned status %d", entity.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: failed to decode payment response: %v", entity.ErrUpstreamUnavailable, err)
	}
	if out.PaymentURL == "" {
		return "", fmt.Errorf("%w: payment response has no url", entity.ErrUpstreamUnavailable)
	}
	return out.PaymentURL, nil
}
