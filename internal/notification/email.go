package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Recipient is one addressee of a transactional email.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EmailSender sends templated transactional email.
type EmailSender interface {
	SendTemplated(ctx context.Context, to []Recipient, templateID int64, params any) error
}

// EmailItem is one order line rendered in an email.
type EmailItem struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Img           string          `json:"img"`
	QuantityOrder int             `json:"quantityOrder"`
	Description   string          `json:"description"`
}

// CancellationParams are the template parameters of the order cancellation
// email.
type CancellationParams struct {
	Email                       string      `json:"email"`
	Type                        string      `json:"type"`
	Name                        string      `json:"name"`
	Domain                      string      `json:"domain"`
	ID                          string      `json:"id"`
	Date                        string      `json:"date"`
	NoteCancel                  string      `json:"noteCancel"`
	LogoLink                    string      `json:"logolink"`
	DescriptionTenant           string      `json:"descriptionTenant"`
	TrackOrderLinkDesktop       string      `json:"trackOrderLinkDesktop"`
	TrackOrderLinkMobile        string      `json:"trackOrderLinkMobile"`
	ContinueShoppingLinkDesktop string      `json:"continueShoppingLinkDesktop"`
	ContinueShoppingLinkMobile  string      `json:"continueShoppingLinkMobile"`
	Items                       []EmailItem `json:"items"`
}

// DefaultBrevoURL is Brevo's transactional email endpoint.
const DefaultBrevoURL = "https://api.brevo.com/v3/smtp/email"

// BrevoSender sends email through Brevo's transactional API.
type BrevoSender struct {
	url    string
	apiKey string
	client *http.Client
}

func NewBrevoSender(url, apiKey string, timeout time.Duration) *BrevoSender {
	if url == "" {
		url = DefaultBrevoURL
	}
	return &BrevoSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type brevoRequest struct {
	To         []Recipient `json:"to"`
	TemplateID int64       `json:"templateId"`
	Params     any         `json:"params"`
}

func (s *BrevoSender) SendTemplated(ctx context.Context, to []Recipient, templateID int64, params any) error {
	body, err := json.Marshal(brevoRequest{To: to, TemplateID: templateID, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("brevo returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// LogSender only logs. It stands in when no email provider is configured.
type LogSender struct{}

func (LogSender) SendTemplated(ctx context.Context, to []Recipient, templateID int64, _ any) error {
	emails := make([]string, 0, len(to))
	for _, r := range to {
		emails = append(emails, r.Email)
	}
	slog.InfoContext(ctx, "Email not sent, no provider configured", "to", emails, "template_id", templateID)
	return nil
}
