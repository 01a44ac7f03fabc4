package domain

import (
	"fmt"
	"strings"
	"time"
)

// Backend identifies which Lightning node implementation owns a payment attempt.
type Backend string

const (
	BackendLND  Backend = "LND"
	BackendCLN  Backend = "CLN"
	BackendSelf Backend = "SELF"
)

func (b Backend) String() string { return string(b) }

func (b Backend) IsValid() bool {
	switch b {
	case BackendLND, BackendCLN, BackendSelf:
		return true
	}
	return false
}

func ParseBackendFromString(s string) (Backend, error) {
	b := Backend(strings.ToUpper(strings.TrimSpace(s)))
	if !b.IsValid() {
		return "", fmt.Errorf("%w: invalid backend %q", ErrValidation, s)
	}
	return b, nil
}

// PaymentStatus is the lifecycle state of a payment attempt record.
type PaymentStatus string

const (
	PaymentPending          PaymentStatus = "PENDING"
	PaymentSuccess          PaymentStatus = "SUCCESS"
	PaymentPermanentFailure PaymentStatus = "PERMANENT_FAILURE"
	PaymentTemporaryFailure PaymentStatus = "TEMPORARY_FAILURE"
)

func (s PaymentStatus) String() string { return string(s) }

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentPermanentFailure, PaymentTemporaryFailure:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave this state.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSuccess || s == PaymentPermanentFailure
}

func ParsePaymentStatusFromString(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid payment status %q", ErrValidation, s)
	}
	return st, nil
}

// LightningPayment is one payment attempt of an invoice on a specific backend.
// The (PreimageHash, Node) pair is unique: re-attempts after a temporary
// failure mutate the existing record instead of inserting a new one.
type LightningPayment struct {
	PreimageHash string  `gorm:"type:varchar(64);primaryKey"`
	Node         Backend `gorm:"type:varchar(10);primaryKey"`
	Status       PaymentStatus
	Error        *string
	Retries      int
	FeeMsat      *uint64
	Preimage     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the error/status pairing invariant: an error message is
// present if and only if the payment failed permanently.
func (p *LightningPayment) Validate() error {
	if len(p.PreimageHash) != 64 {
		return fmt.Errorf("%w: preimage hash must be 32 bytes hex, got %q", ErrValidation, p.PreimageHash)
	}
	if !p.Node.IsValid() {
		return fmt.Errorf("%w: invalid backend %q", ErrValidation, p.Node)
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("%w: invalid payment status %q", ErrValidation, p.Status)
	}
	if p.Retries < 1 {
		return fmt.Errorf("%w: retries must be >= 1, got %d", ErrValidation, p.Retries)
	}

	return ValidateStatusError(p.Status, p.Error)
}

// ValidateStatusError enforces that an error is stored exactly for permanent failures.
func ValidateStatusError(status PaymentStatus, errMsg *string) error {
	hasError := errMsg != nil && strings.TrimSpace(*errMsg) != ""
	if status == PaymentPermanentFailure && !hasError {
		return fmt.Errorf("%w: permanent failure requires an error message", ErrValidation)
	}
	if status != PaymentPermanentFailure && hasError {
		return fmt.Errorf("%w: error message is only allowed for permanent failures", ErrValidation)
	}
	return nil
}
