package lightning

import (
	"context"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

// PaymentResult is the outcome of a settled payment.
type PaymentResult struct {
	// Preimage is the hex encoded payment preimage.
	Preimage string
	FeeMsat  uint64
}

// NodeInfo is the identity snapshot of a backend node.
type NodeInfo struct {
	Pubkey      string
	Alias       string
	BlockHeight uint32
}

// PaymentState is a backend's view of where a payment stands.
type PaymentState int

const (
	PaymentStateUnknown PaymentState = iota
	PaymentStatePending
	PaymentStateSucceeded
	PaymentStateFailed
)

// PaymentOutcome is the result of a payment lookup by hash.
type PaymentOutcome struct {
	State PaymentState
	// Result is set when State is PaymentStateSucceeded.
	Result *PaymentResult
	// FailureReason is set when State is PaymentStateFailed.
	FailureReason string
}

// PaymentConstraints bound a single payment dispatch.
type PaymentConstraints struct {
	MaxFeeMsat uint64
	// AmountMsat is the invoice amount. Backends whose fee bound is
	// expressed relative to the amount need it to apply MaxFeeMsat.
	AmountMsat uint64
	// MaxCltvDelta caps the route's total timelock; 0 means backend default.
	MaxCltvDelta uint32
	// TimePreference trades pathfinding speed against fees, in [-1, 1].
	TimePreference *float64
	// OutgoingChannelID restricts the first hop; empty means any.
	OutgoingChannelID string
}

// Client is the capability set every Lightning backend implementation
// provides. SendPayment may block arbitrarily long: backends run their own
// multi-attempt routing internally. Callers bound it themselves.
type Client interface {
	ID() string
	Backend() domain.Backend
	Symbol() string

	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool

	GetInfo(ctx context.Context) (*NodeInfo, error)
	SendPayment(ctx context.Context, invoice string, constraints PaymentConstraints) (*PaymentResult, error)
	// LookupPayment reports the backend's record of a payment.
	// PaymentStateUnknown means the backend never saw it. Both the hash
	// and the invoice are passed because backends key their payment
	// ledgers differently.
	LookupPayment(ctx context.Context, preimageHash string, invoice string) (*PaymentOutcome, error)

	SubscribeConnection(listener ConnectionListener)
}
