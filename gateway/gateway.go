// Package gateway is the REST adapter for the card-tokenization service. The
// raw card crosses this process exactly once, outbound; only the opaque token
// and masked number come back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/openclinic/portalauth"
)

// Config points the client at the tokenization endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements [portalauth.PaymentGateway] over the provider's REST
// API.
type Client struct {
	http   *resty.Client
	config Config
}

var _ portalauth.PaymentGateway = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: client, config: cfg}, nil
}

type tokenizeRequest struct {
	Number     string `json:"number"`
	Expiration string `json:"expiration"`
	CVV        string `json:"cvv"`
	Name       string `json:"name"`
}

type tokenizeResponse struct {
	Type        string `json:"type"`
	Key         string `json:"key"`
	CardNumber  string `json:"cardnumber"`
	Declined    bool   `json:"declined"`
	DeclineText string `json:"decline_text"`
}

// Tokenize exchanges the raw card for a gateway token. Declines and
// transport failures both surface as [portalauth.ErrPaymentDeclined]; the
// caller must not write any state in either case.
func (c *Client) Tokenize(ctx context.Context, in portalauth.CardInput) (portalauth.TokenizedCard, error) {
	var out tokenizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tokenizeRequest{
			Number:     in.Number,
			Expiration: in.Expiration,
			CVV:        in.CVV,
			Name:       in.Name,
		}).
		SetResult(&out).
		Post("/tokens")
	if err != nil {
		return portalauth.TokenizedCard{}, fmt.Errorf("%w: %v", portalauth.ErrPaymentDeclined, err)
	}
	if resp.IsError() || out.Declined || out.Key == "" {
		return portalauth.TokenizedCard{}, portalauth.ErrPaymentDeclined
	}

	return portalauth.TokenizedCard{
		Type:         out.Type,
		Token:        out.Key,
		MaskedNumber: out.CardNumber,
	}, nil
}
