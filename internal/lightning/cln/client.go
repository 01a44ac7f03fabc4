package cln

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
)

const (
	// CLN retries routing internally for this long before giving up on a
	// pay call.
	defaultRetrySeconds = 60

	defaultMaxDelay = 2016

	// Fallback fee bound for invoices whose amount is unknown.
	defaultMaxFeePercent = 0.5
)

// Client drives payments through a CLN node over its JSON-RPC interface.
type Client struct {
	logger *zap.Logger

	id     string
	symbol string

	rpc       RPC
	bus       lightning.EventBus
	connected atomic.Bool
}

var _ lightning.Client = (*Client)(nil)

func NewClient(logger *zap.Logger, id string, symbol string, rpc RPC) *Client {
	return &Client{
		logger: logger,
		id:     id,
		symbol: symbol,
		rpc:    rpc,
	}
}

func (c *Client) ID() string              { return c.id }
func (c *Client) Backend() domain.Backend { return domain.BackendCLN }
func (c *Client) Symbol() string          { return c.symbol }

func (c *Client) Connect(ctx context.Context) error {
	info, err := c.rpc.GetInfo(ctx)
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("could not connect to cln: %w", err)
	}

	c.logger.Info("connected to cln node",
		zap.String("symbol", c.symbol),
		zap.String("pubkey", info.Pubkey),
		zap.String("alias", info.Alias),
	)
	c.setConnected(true)
	return nil
}

func (c *Client) Disconnect() {
	c.setConnected(false)
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) GetInfo(ctx context.Context) (*lightning.NodeInfo, error) {
	info, err := c.rpc.GetInfo(ctx)
	if err != nil {
		return nil, err
	}

	return &lightning.NodeInfo{
		Pubkey:      info.Pubkey,
		Alias:       info.Alias,
		BlockHeight: info.BlockHeight,
	}, nil
}

// SendPayment pays the invoice, letting the node retry routes internally.
// The raw error message is preserved so callers can classify it.
func (c *Client) SendPayment(ctx context.Context, invoice string, constraints lightning.PaymentConstraints) (*lightning.PaymentResult, error) {
	if result, err := c.checkPayStatus(ctx, invoice); result != nil || err != nil {
		return result, err
	}

	maxDelay := constraints.MaxCltvDelta
	if maxDelay == 0 {
		maxDelay = defaultMaxDelay
	}

	record, err := c.rpc.Pay(ctx, PayRequest{
		Bolt11:          invoice,
		MaxFeePercent:   maxFeePercent(constraints),
		MaxDelay:        maxDelay,
		RetryForSeconds: defaultRetrySeconds,
	})
	if err != nil {
		return nil, err
	}
	if record.Status != PayComplete || record.Preimage == "" {
		return nil, fmt.Errorf("pay did not complete: %s", record.ErrorMessage)
	}

	return &lightning.PaymentResult{
		Preimage: record.Preimage,
		FeeMsat:  record.AmountSentMsat - record.AmountMsat,
	}, nil
}

// checkPayStatus consults the node's pay ledger before a new pay call. A
// settled earlier attempt is returned as the result; an attempt whose HTLC
// is still in flight raises ErrPaymentPending so the invoice is never paid
// twice. Anything else clears the way for a fresh attempt.
func (c *Client) checkPayStatus(ctx context.Context, invoice string) (*lightning.PaymentResult, error) {
	records, err := c.rpc.ListPays(ctx, invoice)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.Status == PayComplete && record.Preimage != "" {
			return &lightning.PaymentResult{
				Preimage: record.Preimage,
				FeeMsat:  record.AmountSentMsat - record.AmountMsat,
			}, nil
		}
	}

	for _, record := range records {
		if record.Status != PayPending {
			continue
		}

		htlcs, err := c.rpc.PendingHtlcHashes(ctx)
		if err != nil {
			return nil, err
		}
		if _, inFlight := htlcs[strings.ToLower(record.PaymentHash)]; inFlight {
			return nil, ErrPaymentPending
		}
	}

	return nil, nil
}

// LookupPayment reconstructs the payment outcome from the node's pay
// ledger. A pending attempt only counts as in flight while the node still
// holds an HTLC for the hash; stale pending entries resolve to unknown so a
// re-attempt is possible.
func (c *Client) LookupPayment(ctx context.Context, preimageHash string, invoice string) (*lightning.PaymentOutcome, error) {
	records, err := c.rpc.ListPays(ctx, invoice)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.Status == PayComplete && record.Preimage != "" {
			return &lightning.PaymentOutcome{
				State: lightning.PaymentStateSucceeded,
				Result: &lightning.PaymentResult{
					Preimage: record.Preimage,
					FeeMsat:  record.AmountSentMsat - record.AmountMsat,
				},
			}, nil
		}
	}

	for _, record := range records {
		if record.Status == PayFailed && IsIncorrectPaymentDetails(record.ErrorMessage) {
			return &lightning.PaymentOutcome{
				State:         lightning.PaymentStateFailed,
				FailureReason: record.ErrorMessage,
			}, nil
		}
	}

	for _, record := range records {
		if record.Status != PayPending {
			continue
		}

		htlcs, err := c.rpc.PendingHtlcHashes(ctx)
		if err != nil {
			return nil, err
		}
		if _, inFlight := htlcs[preimageHash]; inFlight {
			return &lightning.PaymentOutcome{State: lightning.PaymentStatePending}, nil
		}
		break
	}

	return &lightning.PaymentOutcome{State: lightning.PaymentStateUnknown}, nil
}

func (c *Client) SubscribeConnection(listener lightning.ConnectionListener) {
	c.bus.SubscribeConnection(listener)
}

func (c *Client) setConnected(connected bool) {
	if c.connected.Swap(connected) == connected {
		return
	}

	state := lightning.ConnectionLost
	if connected {
		state = lightning.ConnectionEstablished
	}
	c.bus.PublishConnection(lightning.ConnectionEvent{
		Node:   domain.BackendCLN,
		Symbol: c.symbol,
		State:  state,
	})
}

func maxFeePercent(constraints lightning.PaymentConstraints) float64 {
	if constraints.AmountMsat == 0 || constraints.MaxFeeMsat == 0 {
		return defaultMaxFeePercent
	}
	return float64(constraints.MaxFeeMsat) / float64(constraints.AmountMsat) * 100
}
