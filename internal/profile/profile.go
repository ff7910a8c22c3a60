// Package profile resolves customer and tenant profiles from the profile
// services, with an optional cache in front.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/resilience"
)

// UserProfile is the public part of a customer profile.
type UserProfile struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// TenantProfile carries the branding of a tenant.
type TenantProfile struct {
	Domain      string `json:"domain"`
	Name        string `json:"name"`
	Logo        string `json:"logo"`
	Description string `json:"description"`
}

type UserLookup interface {
	GetUserProfile(ctx context.Context, domain, email string) (*UserProfile, error)
}

type TenantLookup interface {
	FindByDomain(ctx context.Context, domain string) (*TenantProfile, error)
}

// HTTPClient implements both lookups against the profile services.
type HTTPClient struct {
	userURL   string
	tenantURL string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
}

func NewHTTPClient(userURL, tenantURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		userURL:   strings.TrimSuffix(userURL, "/"),
		tenantURL: strings.TrimSuffix(tenantURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: resilience.NewBreaker("profile"),
	}
}

// GetUserProfile calls GET {userURL}/users?domain=..&email=..
func (c *HTTPClient) GetUserProfile(ctx context.Context, domain, email string) (*UserProfile, error) {
	q := url.Values{"domain": {domain}, "email": {email}}
	var p UserProfile
	if err := c.get(ctx, c.userURL+"/users?"+q.Encode(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByDomain calls GET {tenantURL}/tenants/{domain}
func (c *HTTPClient) FindByDomain(ctx context.Context, domain string) (*TenantProfile, error) {
	var p TenantProfile
	if err := c.get(ctx, c.tenantURL+"/tenants/"+url.PathEscape(domain), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) get(ctx context.Context, target string, dest any) error {
	_, err := resilience.Execute(c.breaker, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build profile request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: profile: %v", entity.ErrUpstreamUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("profile %s: %w", target, entity.ErrNotFound)
		case resp.StatusCode/100 != 2:
			return nil, fmt.Errorf("%w: profile returned status %d", entity.ErrUpstreamUnavailable, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return nil, fmt.Errorf("%w: failed to decode profile: %v", entity.ErrUpstreamUnavailable, err)
		}
		return dest, nil
	})
	return err
}
