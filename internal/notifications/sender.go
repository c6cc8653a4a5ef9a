package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Email is one outgoing message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers emails and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, e Email) (string, error)
}

// ResendConfig configures the transactional email API.
type ResendConfig struct {
	BaseURL     string // empty = the client's default endpoint
	APIKey      string // empty = log instead of sending
	FromAddress string
	FromName    string
}

// ResendSender delivers emails through the Resend API.
type ResendSender struct {
	cfg    ResendConfig
	client *resend.Client
	logger *zap.Logger
}

// NewResendSender creates a sender. It fails only on a malformed base URL.
func NewResendSender(cfg ResendConfig, logger *zap.Logger) (*ResendSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resend.NewCustomClient(&http.Client{Timeout: 15 * time.Second}, cfg.APIKey)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse email api url: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendSender{cfg: cfg, client: client, logger: logger}, nil
}

// Send delivers e. Without an API key the email is logged and reported as sent.
func (s *ResendSender) Send(ctx context.Context, e Email) (string, error) {
	if s.cfg.APIKey == "" {
		s.logger.Info("email not sent (no API key)", zap.String("to", e.To), zap.String("subject", e.Subject))
		return "", nil
	}
	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
	}
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{e.To},
		Subject: e.Subject,
		Html:    e.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return sent.Id, nil
}
