package lnd

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"gopkg.in/macaroon.v2"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
)

const (
	maxGRPCMsgSize = 32 * 1024 * 1024

	// lnd keeps retrying routes internally for this long before declaring
	// the payment failed.
	paymentTimeoutSeconds = 60

	maxPaymentParts = 5
)

// Config locates an lnd node and its credentials.
type Config struct {
	Host         string
	Port         int
	CertPath     string
	MacaroonPath string
}

// Client drives payments through an lnd node over gRPC.
type Client struct {
	logger *zap.Logger

	id     string
	symbol string
	cfg    Config

	conn      *grpc.ClientConn
	lnrpc     lnrpc.LightningClient
	router    routerrpc.RouterClient
	bus       lightning.EventBus
	connected atomic.Bool
}

var _ lightning.Client = (*Client)(nil)

func NewClient(logger *zap.Logger, id string, symbol string, cfg Config) *Client {
	return &Client{
		logger: logger,
		id:     id,
		symbol: symbol,
		cfg:    cfg,
	}
}

func (c *Client) ID() string              { return c.id }
func (c *Client) Backend() domain.Backend { return domain.BackendLND }
func (c *Client) Symbol() string          { return c.symbol }

func (c *Client) Connect(ctx context.Context) error {
	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			return fmt.Errorf("could not dial lnd: %w", err)
		}

		c.conn = conn
		c.lnrpc = lnrpc.NewLightningClient(conn)
		c.router = routerrpc.NewRouterClient(conn)
	}

	info, err := c.lnrpc.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("could not connect to lnd: %w", err)
	}

	c.logger.Info("connected to lnd node",
		zap.String("symbol", c.symbol),
		zap.String("pubkey", info.IdentityPubkey),
		zap.String("alias", info.Alias),
	)
	c.setConnected(true)
	return nil
}

func (c *Client) Disconnect() {
	c.setConnected(false)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) GetInfo(ctx context.Context) (*lightning.NodeInfo, error) {
	info, err := c.lnrpc.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, err
	}

	return &lightning.NodeInfo{
		Pubkey:      info.IdentityPubkey,
		Alias:       info.Alias,
		BlockHeight: info.BlockHeight,
	}, nil
}

// SendPayment dispatches the invoice and consumes the update stream until
// the payment settles or fails.
func (c *Client) SendPayment(ctx context.Context, invoice string, constraints lightning.PaymentConstraints) (*lightning.PaymentResult, error) {
	request := &routerrpc.SendPaymentRequest{
		PaymentRequest: invoice,
		TimeoutSeconds: paymentTimeoutSeconds,
		MaxParts:       maxPaymentParts,
		FeeLimitMsat:   int64(constraints.MaxFeeMsat),
	}
	if constraints.MaxCltvDelta != 0 {
		request.CltvLimit = int32(constraints.MaxCltvDelta)
	}
	if constraints.TimePreference != nil {
		request.TimePref = *constraints.TimePreference
	}
	if constraints.OutgoingChannelID != "" {
		channelID, err := strconv.ParseUint(constraints.OutgoingChannelID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid outgoing channel id %q: %w", constraints.OutgoingChannelID, err)
		}
		request.OutgoingChanIds = []uint64{channelID}
	}

	stream, err := c.router.SendPaymentV2(ctx, request)
	if err != nil {
		return nil, err
	}

	for {
		update, err := stream.Recv()
		if err != nil {
			return nil, err
		}

		switch update.Status {
		case lnrpc.Payment_SUCCEEDED:
			return &lightning.PaymentResult{
				Preimage: update.PaymentPreimage,
				FeeMsat:  uint64(update.FeeMsat),
			}, nil

		case lnrpc.Payment_FAILED:
			return nil, &PaymentFailureError{Reason: update.FailureReason}

		default:
			continue
		}
	}
}

// LookupPayment reads the current state of a payment from lnd's tracking
// stream without waiting for it to settle.
func (c *Client) LookupPayment(ctx context.Context, preimageHash string, _ string) (*lightning.PaymentOutcome, error) {
	stream, err := c.trackPayment(ctx, preimageHash)
	if err != nil {
		return nil, err
	}

	update, err := stream.Recv()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &lightning.PaymentOutcome{State: lightning.PaymentStateUnknown}, nil
		}
		return nil, err
	}

	return paymentToOutcome(update), nil
}

// WaitForPayment blocks on the tracking stream until the payment reaches a
// terminal state. The background tracker uses it to observe in-flight
// payments it did not dispatch itself.
func (c *Client) WaitForPayment(ctx context.Context, preimageHash string) (*lightning.PaymentOutcome, error) {
	stream, err := c.trackPayment(ctx, preimageHash)
	if err != nil {
		return nil, err
	}

	for {
		update, err := stream.Recv()
		if err != nil {
			return nil, err
		}

		outcome := paymentToOutcome(update)
		if outcome.State != lightning.PaymentStatePending {
			return outcome, nil
		}
	}
}

func (c *Client) trackPayment(ctx context.Context, preimageHash string) (routerrpc.Router_TrackPaymentV2Client, error) {
	hash, err := hex.DecodeString(preimageHash)
	if err != nil {
		return nil, fmt.Errorf("invalid preimage hash %q: %w", preimageHash, err)
	}

	return c.router.TrackPaymentV2(ctx, &routerrpc.TrackPaymentRequest{
		PaymentHash:       hash,
		NoInflightUpdates: false,
	})
}

func (c *Client) SubscribeConnection(listener lightning.ConnectionListener) {
	c.bus.SubscribeConnection(listener)
}

func (c *Client) dial(ctx context.Context) (*grpc.ClientConn, error) {
	tlsCert, err := os.ReadFile(c.cfg.CertPath)
	if err != nil {
		return nil, err
	}
	certPool := x509.NewCertPool()
	if ok := certPool.AppendCertsFromPEM(tlsCert); !ok {
		return nil, fmt.Errorf("failed to parse lnd TLS cert")
	}

	macBytes, err := os.ReadFile(c.cfg.MacaroonPath)
	if err != nil {
		return nil, err
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("invalid lnd macaroon: %w", err)
	}

	return grpc.DialContext(ctx, fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(certPool, "")),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGRPCMsgSize)),
		grpc.WithPerRPCCredentials(macaroonCredential{hex.EncodeToString(macBytes)}),
	)
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
		Node:   domain.BackendLND,
		Symbol: c.symbol,
		State:  state,
	})
}

func paymentToOutcome(payment *lnrpc.Payment) *lightning.PaymentOutcome {
	switch payment.Status {
	case lnrpc.Payment_SUCCEEDED:
		return &lightning.PaymentOutcome{
			State: lightning.PaymentStateSucceeded,
			Result: &lightning.PaymentResult{
				Preimage: payment.PaymentPreimage,
				FeeMsat:  uint64(payment.FeeMsat),
			},
		}

	case lnrpc.Payment_FAILED:
		return &lightning.PaymentOutcome{
			State:         lightning.PaymentStateFailed,
			FailureReason: FormatPaymentFailureReason(payment.FailureReason),
		}

	default:
		return &lightning.PaymentOutcome{State: lightning.PaymentStatePending}
	}
}

type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}
