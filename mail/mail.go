// Package mail delivers portal notification mail. The engine depends only on
// the Sender interface; APISender is the production adapter for an HTTP mail
// API, and NopSender serves tests and development.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Message is one outbound mail.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Sender delivers a message. Implementations must be safe for concurrent
// use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResetMessage builds the password-reset mail pointing at url. The name may
// be empty for placeholder accounts that never supplied one.
func ResetMessage(to, from, name, url string) Message {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}

	return Message{
		To:      to,
		From:    from,
		Subject: "Your password reset link",
		HTML: fmt.Sprintf(
			"<p>%s,</p><p>A password reset was requested for your account. The link below is valid for one hour and can be used once.</p><p><a href=%q>%s</a></p><p>If you did not request this, you can ignore this mail.</p>",
			greeting, url, url,
		),
		Text: fmt.Sprintf(
			"%s,\n\nA password reset was requested for your account. The link below is valid for one hour and can be used once.\n\n%s\n\nIf you did not request this, you can ignore this mail.\n",
			greeting, url,
		),
	}
}

// APIConfig points APISender at the mail provider.
type APIConfig struct {
	Endpoint string
	APIKey   string
}

// APISender posts messages to an HTTP mail API as JSON.
type APISender struct {
	client *resty.Client
	config APIConfig
}

func NewAPISender(cfg APIConfig) (*APISender, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("mail endpoint required")
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &APISender{client: client, config: cfg}, nil
}

func (s *APISender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("mail send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail send: provider returned %s", resp.Status())
	}
	return nil
}

// NopSender discards mail, optionally logging the reset URL for local
// development.
type NopSender struct {
	Logger *zap.Logger
}

func (s NopSender) Send(_ context.Context, msg Message) error {
	if s.Logger != nil {
		s.Logger.Info("mail discarded", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}
	return nil
}
