package queue

import (
	"fmt"
	"strings"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

// PaymentEventMessage is the broker payload emitted when a payment attempt
// reaches a terminal state.
type PaymentEventMessage struct {
	SwapID       string               `json:"swapId,omitempty"`
	PreimageHash string               `json:"preimageHash"`
	Node         domain.Backend       `json:"node"`
	Status       domain.PaymentStatus `json:"status"`
	Error        *string              `json:"error,omitempty"`
	FeeMsat      *uint64              `json:"feeMsat,omitempty"`
	Preimage     *string              `json:"preimage,omitempty"`
}

// PaymentRequestMessage asks the subsystem to attempt, or re-attempt,
// paying a swap's invoice. It carries the full swap snapshot because the
// swap record is owned by the requesting service, not by this one.
type PaymentRequestMessage struct {
	SwapID            string   `json:"swapId"`
	Type              string   `json:"type"`
	Pair              string   `json:"pair"`
	PreimageHash      string   `json:"preimageHash"`
	Invoice           string   `json:"invoice"`
	InvoiceAmount     uint64   `json:"invoiceAmount"`
	LightningCurrency string   `json:"currency"`
	PaymentTimeout    *uint64  `json:"paymentTimeout,omitempty"`
	Referral          *string  `json:"referral,omitempty"`
	MaxFeeRatio       *float64 `json:"maxFeeRatio,omitempty"`
}

func (m PaymentRequestMessage) Validate() error {
	if strings.TrimSpace(m.SwapID) == "" {
		return fmt.Errorf("swapId is required")
	}
	if strings.TrimSpace(m.PreimageHash) == "" {
		return fmt.Errorf("preimageHash is required")
	}
	if strings.TrimSpace(m.Invoice) == "" {
		return fmt.Errorf("invoice is required")
	}
	if _, err := domain.ParseSwapTypeFromString(m.Type); err != nil {
		return err
	}
	if strings.TrimSpace(m.LightningCurrency) == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

// ToSwap converts the message into the read-only swap snapshot the rest of
// the subsystem works with. Validate must have passed.
func (m PaymentRequestMessage) ToSwap() *domain.Swap {
	swapType, _ := domain.ParseSwapTypeFromString(m.Type)

	return &domain.Swap{
		ID:                m.SwapID,
		Type:              swapType,
		Pair:              m.Pair,
		PreimageHash:      strings.ToLower(m.PreimageHash),
		Invoice:           m.Invoice,
		InvoiceAmount:     m.InvoiceAmount,
		LightningCurrency: m.LightningCurrency,
		PaymentTimeout:    m.PaymentTimeout,
		Referral:          m.Referral,
	}
}

func (m PaymentEventMessage) Validate() error {
	if strings.TrimSpace(m.PreimageHash) == "" {
		return fmt.Errorf("preimageHash is required")
	}
	if !m.Node.IsValid() {
		return fmt.Errorf("invalid backend %q", m.Node)
	}
	if !m.Status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", m.Status)
	}
	return domain.ValidateStatusError(m.Status, m.Error)
}
