package cln

import (
	"context"
	"strings"

	"github.com/elementsproject/glightning/glightning"
)

// GlightningRPC implements RPC over CLN's JSON-RPC unix socket. It is the
// only file that touches the glightning dependency; everything above it
// works against the RPC port.
type GlightningRPC struct {
	rpc *glightning.Lightning
}

var _ RPC = (*GlightningRPC)(nil)

func NewGlightningRPC(socketFile string, lightningDir string) *GlightningRPC {
	rpc := glightning.NewLightning()
	rpc.StartUp(socketFile, lightningDir)

	return &GlightningRPC{rpc: rpc}
}

func (g *GlightningRPC) GetInfo(_ context.Context) (*Info, error) {
	info, err := g.rpc.GetInfo()
	if err != nil {
		return nil, err
	}

	return &Info{
		Pubkey:      info.Id,
		Alias:       info.Alias,
		BlockHeight: uint32(info.Blockheight),
	}, nil
}

func (g *GlightningRPC) Pay(_ context.Context, req PayRequest) (*PayRecord, error) {
	result, err := g.rpc.Pay(&glightning.PayRequest{
		Bolt11:        req.Bolt11,
		MaxFeePercent: float32(req.MaxFeePercent),
		RetryFor:      uint(req.RetryForSeconds),
		MaxDelay:      uint(req.MaxDelay),
	})
	if err != nil {
		return nil, err
	}

	return &PayRecord{
		PaymentHash:    result.PaymentHash,
		Status:         PayStatus(result.Status),
		Preimage:       result.PaymentPreimage,
		AmountMsat:     result.AmountMilliSatoshi.MSat(),
		AmountSentMsat: result.MilliSatoshiSent.MSat(),
	}, nil
}

func (g *GlightningRPC) ListPays(_ context.Context, invoice string) ([]PayRecord, error) {
	payments, err := g.rpc.ListSendPays(invoice)
	if err != nil {
		// The node responds with an error instead of an empty list when
		// it never saw the invoice.
		if strings.Contains(err.Error(), "Invoice or payment_hash not found") {
			return nil, nil
		}
		return nil, err
	}

	records := make([]PayRecord, 0, len(payments))
	for _, payment := range payments {
		records = append(records, PayRecord{
			PaymentHash:    payment.PaymentHash,
			Status:         PayStatus(payment.Status),
			Preimage:       payment.PaymentPreimage,
			AmountMsat:     payment.AmountMilliSatoshi.MSat(),
			AmountSentMsat: payment.MilliSatoshiSent.MSat(),
		})
	}
	return records, nil
}

func (g *GlightningRPC) PendingHtlcHashes(_ context.Context) (map[string]struct{}, error) {
	peers, err := g.rpc.ListPeers()
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]struct{})
	for _, peer := range peers {
		for _, channel := range peer.Channels {
			for _, htlc := range channel.Htlcs {
				hashes[strings.ToLower(htlc.PaymentHash)] = struct{}{}
			}
		}
	}
	return hashes, nil
}
