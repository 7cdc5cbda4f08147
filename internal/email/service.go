package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/poster-shop/internal/domain/invoice"
)

var (
	ErrNotConfigured    = errors.New("email service not configured")
	ErrMissingRecipient = errors.New("missing customer email")
	ErrDeliveryFailed   = errors.New("failed to send invoice email")
)

const (
	DefaultAPIURL  = "https://api.emailjs.com/api/v1.0/email/send"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Config identifies the hosted email service and template
type Config struct {
	APIURL      string
	ServiceID   string
	TemplateID  string
	PublicKey   string
	AccessToken string
}

// Configured reports whether enough is set to send mail
func (c Config) Configured() bool {
	return c.ServiceID != "" && c.TemplateID != "" && c.PublicKey != ""
}

type request struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	AccessToken    string         `json:"accessToken,omitempty"`
	TemplateParams TemplateParams `json:"template_params"`
}

// Service sends invoice emails with a single HTTP POST. Nothing is retried
// here; a failed send leaves the invoice pending-email.
type Service struct {
	config Config
	client *http.Client
}

func NewService(config Config) *Service {
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (s *Service) Configured() bool {
	return s.config.Configured()
}

// SendInvoice delivers the receipt for inv to the customer
func (s *Service) SendInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if !s.config.Configured() {
		return ErrNotConfigured
	}
	if inv.Email == "" {
		return ErrMissingRecipient
	}

	body, err := json.Marshal(request{
		ServiceID:      s.config.ServiceID,
		TemplateID:     s.config.TemplateID,
		UserID:         s.config.PublicKey,
		AccessToken:    s.config.AccessToken,
		TemplateParams: BuildTemplateParams(inv),
	})
	if err != nil {
		return fmt.Errorf("failed to encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if len(detail) == 0 {
			detail = []byte(resp.Status)
		}
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, bytes.TrimSpace(detail))
	}
	return nil
}
