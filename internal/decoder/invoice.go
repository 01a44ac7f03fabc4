package decoder

import "strings"

// InvoiceType distinguishes BOLT11 invoices from BOLT12 offers and invoices.
type InvoiceType string

const (
	InvoiceBolt11  InvoiceType = "BOLT11"
	InvoiceOffer   InvoiceType = "BOLT12_OFFER"
	InvoiceBolt12  InvoiceType = "BOLT12"
	invoiceUnknown InvoiceType = ""
)

// IsBolt12 reports whether paying requires BOLT12 semantics.
func (t InvoiceType) IsBolt12() bool {
	return t == InvoiceOffer || t == InvoiceBolt12
}

// HopHint is one hop of a BOLT11 routing hint.
type HopHint struct {
	NodeID                    string `json:"nodeId"`
	ChanID                    string `json:"chanId"`
	FeeBaseMsat               uint32 `json:"feeBaseMsat"`
	FeeProportionalMillionths uint32 `json:"feeProportionalMillionths"`
	CltvExpiryDelta           uint32 `json:"cltvExpiryDelta"`
}

// BlindedPath is the introduction point of a BOLT12 blinded payment path.
type BlindedPath struct {
	NodeID          string `json:"nodeId,omitempty"`
	ShortChannelID  string `json:"shortChannelId,omitempty"`
	CltvExpiryDelta uint32 `json:"cltvExpiryDelta"`
}

// DecodedInvoice is the structured output of the external decoding service.
// This subsystem consumes it as an opaque value; nothing here parses
// invoice encodings.
type DecodedInvoice struct {
	Type         InvoiceType   `json:"type"`
	PaymentHash  string        `json:"paymentHash"`
	Payee        string        `json:"payee,omitempty"`
	AmountMsat   uint64        `json:"amountMsat"`
	IsExpired    bool          `json:"isExpired"`
	MinFinalCltv uint32        `json:"minFinalCltv"`
	SupportsMPP  bool          `json:"supportsMpp"`
	RoutingHints [][]HopHint   `json:"routingHints,omitempty"`
	Paths        []BlindedPath `json:"paths,omitempty"`
}

// Destinations collects every node identity the invoice references: the
// direct payee, every routing-hint hop, and every blinded-path introduction
// node. All identities are lower-cased hex.
func (d *DecodedInvoice) Destinations() []string {
	destinations := make([]string, 0, 1+len(d.RoutingHints)+len(d.Paths))

	if d.Payee != "" {
		destinations = append(destinations, strings.ToLower(d.Payee))
	}
	for _, route := range d.RoutingHints {
		for _, hop := range route {
			if hop.NodeID != "" {
				destinations = append(destinations, strings.ToLower(hop.NodeID))
			}
		}
	}
	for _, path := range d.Paths {
		if path.NodeID != "" {
			destinations = append(destinations, strings.ToLower(path.NodeID))
		}
	}

	return destinations
}
