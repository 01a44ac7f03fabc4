package repository

import (
	"time"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

// PaymentModel is the persistence model for the lightning_payments table.
type PaymentModel struct {
	PreimageHash string               `gorm:"type:varchar(64);primaryKey"`
	Node         domain.Backend       `gorm:"type:varchar(10);primaryKey"`
	Status       domain.PaymentStatus `gorm:"type:varchar(20);not null"`
	Error        *string              `gorm:"type:text"`
	Retries      int                  `gorm:"not null;default:1"`
	FeeMsat      *uint64
	Preimage     *string `gorm:"type:varchar(64)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PaymentModel) TableName() string {
	return "lightning_payments"
}

// SwapModel is the persistence model for the swaps table. Swaps are owned
// by the swap lifecycle service; this subsystem only reads them.
type SwapModel struct {
	ID                string          `gorm:"type:varchar(36);primaryKey"`
	Type              domain.SwapType `gorm:"type:varchar(10);not null"`
	Pair              string          `gorm:"type:varchar(20);not null"`
	PreimageHash      string          `gorm:"type:varchar(64);not null;index"`
	Invoice           string          `gorm:"type:text;not null"`
	InvoiceAmount     uint64          `gorm:"not null"`
	LightningCurrency string          `gorm:"type:varchar(10);not null"`
	PaymentTimeout    *uint64
	Referral          *string `gorm:"type:varchar(64)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SwapModel) TableName() string {
	return "swaps"
}

func paymentModelFromDomain(p *domain.LightningPayment) *PaymentModel {
	if p == nil {
		return nil
	}

	return &PaymentModel{
		PreimageHash: p.PreimageHash,
		Node:         p.Node,
		Status:       p.Status,
		Error:        p.Error,
		Retries:      p.Retries,
		FeeMsat:      p.FeeMsat,
		Preimage:     p.Preimage,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func paymentModelToDomain(m *PaymentModel) *domain.LightningPayment {
	if m == nil {
		return nil
	}

	return &domain.LightningPayment{
		PreimageHash: m.PreimageHash,
		Node:         m.Node,
		Status:       m.Status,
		Error:        m.Error,
		Retries:      m.Retries,
		FeeMsat:      m.FeeMsat,
		Preimage:     m.Preimage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func swapModelFromDomain(s *domain.Swap) *SwapModel {
	if s == nil {
		return nil
	}

	return &SwapModel{
		ID:                s.ID,
		Type:              s.Type,
		Pair:              s.Pair,
		PreimageHash:      s.PreimageHash,
		Invoice:           s.Invoice,
		InvoiceAmount:     s.InvoiceAmount,
		LightningCurrency: s.LightningCurrency,
		PaymentTimeout:    s.PaymentTimeout,
		Referral:          s.Referral,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func swapModelToDomain(m *SwapModel) *domain.Swap {
	if m == nil {
		return nil
	}

	return &domain.Swap{
		ID:                m.ID,
		Type:              m.Type,
		Pair:              m.Pair,
		PreimageHash:      m.PreimageHash,
		Invoice:           m.Invoice,
		InvoiceAmount:     m.InvoiceAmount,
		LightningCurrency: m.LightningCurrency,
		PaymentTimeout:    m.PaymentTimeout,
		Referral:          m.Referral,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
