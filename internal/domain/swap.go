package domain

import (
	"fmt"
	"strings"
	"time"
)

// SwapType is the direction of a swap relative to Lightning.
type SwapType string

const (
	SwapSubmarine SwapType = "SUBMARINE"
	SwapReverse   SwapType = "REVERSE"
)

func (t SwapType) String() string { return string(t) }

func (t SwapType) IsValid() bool {
	switch t {
	case SwapSubmarine, SwapReverse:
		return true
	}
	return false
}

func ParseSwapTypeFromString(s string) (SwapType, error) {
	t := SwapType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid swap type %q", ErrValidation, s)
	}
	return t, nil
}

// Swap is the read-only slice of a swap this subsystem needs to pay its
// invoice. Swaps are owned by the surrounding swap lifecycle service.
type Swap struct {
	ID                string   `gorm:"type:varchar(36);primaryKey"`
	Type              SwapType `gorm:"type:varchar(10);not null"`
	Pair              string   `gorm:"type:varchar(20);not null"`
	PreimageHash      string   `gorm:"type:varchar(64);not null"`
	Invoice           string   `gorm:"type:text;not null"`
	InvoiceAmount     uint64   `gorm:"not null"`
	LightningCurrency string   `gorm:"type:varchar(10);not null"`
	PaymentTimeout    *uint64
	Referral          *string `gorm:"type:varchar(64)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
