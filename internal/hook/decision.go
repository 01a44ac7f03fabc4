package hook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

const defaultDecisionTimeout = 5 * time.Second

// Decision is an external opinion on which node should pay an invoice. Both
// fields are optional; a nil Decision means the hook had no opinion.
type Decision struct {
	Node           *domain.Backend
	TimePreference *float64
}

// Selector asks an external service which node backend should pay a swap.
type Selector interface {
	Decide(ctx context.Context, swapID string, invoice string, decoded *decoder.DecodedInvoice) *Decision
}

type decisionRequest struct {
	SwapID         string                  `json:"swapId"`
	Invoice        string                  `json:"invoice"`
	DecodedInvoice *decoder.DecodedInvoice `json:"decodedInvoice,omitempty"`
}

type decisionResponse struct {
	BackendID      *string  `json:"backendId,omitempty"`
	TimePreference *float64 `json:"timePreference,omitempty"`
}

// Client calls the decision hook over HTTP. Failures are swallowed on
// purpose: a hook that is down or slow must never block payments.
type Client struct {
	logger   *zap.Logger
	client   *resty.Client
	endpoint string
}

func NewClient(logger *zap.Logger, endpoint string, timeout time.Duration) (*Client, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("hook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid hook endpoint: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultDecisionTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &Client{
		logger:   logger,
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *Client) Decide(ctx context.Context, swapID string, invoice string, decoded *decoder.DecodedInvoice) *Decision {
	if c == nil || c.client == nil {
		return nil
	}

	var parsed decisionResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(decisionRequest{
			SwapID:         swapID,
			Invoice:        invoice,
			DecodedInvoice: decoded,
		}).
		SetResult(&parsed).
		Post(c.endpoint)
	if err != nil {
		c.logger.Warn("node decision hook unreachable",
			zap.String("swapId", swapID),
			zap.Error(err),
		)
		return nil
	}
	if response.StatusCode() != http.StatusOK {
		c.logger.Warn("node decision hook rejected request",
			zap.String("swapId", swapID),
			zap.Int("status", response.StatusCode()),
		)
		return nil
	}

	decision := &Decision{TimePreference: parsed.TimePreference}
	if parsed.BackendID != nil {
		node, err := domain.ParseBackendFromString(*parsed.BackendID)
		if err != nil {
			c.logger.Warn("node decision hook returned unknown backend",
				zap.String("swapId", swapID),
				zap.String("backendId", *parsed.BackendID),
			)
		} else {
			decision.Node = &node
		}
	}

	if decision.Node == nil && decision.TimePreference == nil {
		return nil
	}
	return decision
}
