package cln

import "context"

// PayStatus is the node's state of one recorded pay attempt.
type PayStatus string

const (
	PayComplete PayStatus = "complete"
	PayFailed   PayStatus = "failed"
	PayPending  PayStatus = "pending"
)

// Info is the identity snapshot of the node.
type Info struct {
	Pubkey      string
	Alias       string
	BlockHeight uint32
}

// PayRequest is a single pay call with its fee and delay bounds. CLN
// expresses the fee bound as a percentage of the invoice amount.
type PayRequest struct {
	Bolt11          string
	MaxFeePercent   float64
	MaxDelay        uint32
	RetryForSeconds uint32
}

// PayRecord is one entry of the node's pay ledger for an invoice.
type PayRecord struct {
	PaymentHash    string
	Status         PayStatus
	Preimage       string
	AmountMsat     uint64
	AmountSentMsat uint64
	ErrorMessage   string
}

// RPC is the JSON-RPC surface of a CLN node this package depends on. The
// full node API is much larger; keeping the port this narrow is what makes
// the payment logic testable without a node.
type RPC interface {
	GetInfo(ctx context.Context) (*Info, error)
	Pay(ctx context.Context, req PayRequest) (*PayRecord, error)
	// ListPays returns every recorded pay attempt for the invoice.
	ListPays(ctx context.Context, invoice string) ([]PayRecord, error)
	// PendingHtlcHashes returns the hex payment hashes of all HTLCs
	// currently in flight on the node's channels.
	PendingHtlcHashes(ctx context.Context) (map[string]struct{}, error)
}
