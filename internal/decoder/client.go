package decoder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDecodeTimeout = 5 * time.Second

// Decoder resolves an invoice or offer string into its decoded form.
type Decoder interface {
	DecodeInvoice(ctx context.Context, invoice string) (*DecodedInvoice, error)
}

type decodeRequest struct {
	Invoice string `json:"invoice"`
}

// ServiceClient calls the external decoding service over HTTP.
type ServiceClient struct {
	client   *resty.Client
	endpoint string
}

func NewServiceClient(endpoint string) (*ServiceClient, error) {
	client := resty.New()
	client.SetTimeout(defaultDecodeTimeout)
	client.SetRetryCount(0)

	return NewServiceClientWithClient(endpoint, client)
}

func NewServiceClientWithClient(endpoint string, client *resty.Client) (*ServiceClient, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("decoder endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid decoder endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDecodeTimeout)
	}
	client.SetRetryCount(0)

	return &ServiceClient{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *ServiceClient) DecodeInvoice(ctx context.Context, invoice string) (*DecodedInvoice, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("decoder client is not initialized")
	}
	if strings.TrimSpace(invoice) == "" {
		return nil, fmt.Errorf("invoice is required")
	}

	var decoded DecodedInvoice
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(decodeRequest{Invoice: invoice}).
		SetResult(&decoded).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("decode request failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("decoder returned status %d: %s", response.StatusCode(), strings.TrimSpace(response.String()))
	}
	if decoded.PaymentHash == "" && !decoded.Type.IsBolt12() {
		return nil, fmt.Errorf("decoder returned no payment hash")
	}

	decoded.PaymentHash = strings.ToLower(decoded.PaymentHash)
	decoded.Payee = strings.ToLower(decoded.Payee)

	return &decoded, nil
}
