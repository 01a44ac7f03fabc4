package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentWithSwap joins a payment attempt with its owning swap.
type PaymentWithSwap struct {
	Payment domain.LightningPayment
	Swap    domain.Swap
}

// PaymentRepository is the persistence contract for payment attempt records.
type PaymentRepository interface {
	// Create inserts a new pending attempt with retries=1. If a record for
	// the (hash, node) pair already exists it is only reused when in
	// temporary failure: retries is incremented and the status reset to
	// pending. Any other existing state rejects with ErrPaymentExists.
	Create(ctx context.Context, preimageHash string, node domain.Backend) (*domain.LightningPayment, error)

	// SetStatus transitions a non-terminal record. The error/status pairing
	// invariant is validated before writing; writes against records that
	// already reached a terminal state fail with ErrAlreadyResolved.
	SetStatus(ctx context.Context, preimageHash string, node domain.Backend, status domain.PaymentStatus, errMsg *string) error

	// SetSuccess marks a record successful and stores the settled fee and
	// preimage alongside.
	SetSuccess(ctx context.Context, preimageHash string, node domain.Backend, feeMsat uint64, preimage string) error

	FindByHash(ctx context.Context, preimageHash string) ([]domain.LightningPayment, error)
	FindByHashAndNode(ctx context.Context, preimageHash string, node domain.Backend) (*domain.LightningPayment, error)
	FindByStatus(ctx context.Context, status domain.PaymentStatus) ([]PaymentWithSwap, error)
}

type GormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) *GormPaymentRepo {
	return &GormPaymentRepo{db: db}
}

func (r *GormPaymentRepo) Create(ctx context.Context, preimageHash string, node domain.Backend) (*domain.LightningPayment, error) {
	payment := &domain.LightningPayment{
		PreimageHash: strings.ToLower(preimageHash),
		Node:         node,
		Status:       domain.PaymentPending,
		Retries:      1,
	}
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	var result *PaymentModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing PaymentModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "preimage_hash = ? AND node = ?", payment.PreimageHash, node).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			model := paymentModelFromDomain(payment)
			if err := tx.Create(model).Error; err != nil {
				return err
			}
			result = model
			return nil
		}
		if err != nil {
			return err
		}

		if existing.Status != domain.PaymentTemporaryFailure {
			return domain.ErrPaymentExists
		}

		if err := tx.Model(&existing).
			Updates(map[string]any{
				"status":  domain.PaymentPending,
				"retries": gorm.Expr("retries + 1"),
				"error":   nil,
			}).Error; err != nil {
			return err
		}

		existing.Status = domain.PaymentPending
		existing.Retries++
		existing.Error = nil
		result = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	return paymentModelToDomain(result), nil
}

func (r *GormPaymentRepo) SetStatus(ctx context.Context, preimageHash string, node domain.Backend, status domain.PaymentStatus, errMsg *string) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid payment status %q", domain.ErrValidation, status)
	}
	if err := domain.ValidateStatusError(status, errMsg); err != nil {
		return err
	}

	return r.transition(ctx, strings.ToLower(preimageHash), node, map[string]any{
		"status": status,
		"error":  errMsg,
	})
}

func (r *GormPaymentRepo) SetSuccess(ctx context.Context, preimageHash string, node domain.Backend, feeMsat uint64, preimage string) error {
	return r.transition(ctx, strings.ToLower(preimageHash), node, map[string]any{
		"status":   domain.PaymentSuccess,
		"error":    nil,
		"fee_msat": feeMsat,
		"preimage": strings.ToLower(preimage),
	})
}

// transition applies a guarded status write: only records that have not yet
// reached a terminal state may be mutated. A write racing a finished one is
// reported as ErrAlreadyResolved instead of silently overwriting.
func (r *GormPaymentRepo) transition(ctx context.Context, preimageHash string, node domain.Backend, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where(
			"preimage_hash = ? AND node = ? AND status IN ?",
			preimageHash,
			node,
			[]domain.PaymentStatus{domain.PaymentPending, domain.PaymentTemporaryFailure},
		).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var existing PaymentModel
	err := r.db.WithContext(ctx).
		First(&existing, "preimage_hash = ? AND node = ?", preimageHash, node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: status is %s", domain.ErrAlreadyResolved, existing.Status)
}

func (r *GormPaymentRepo) FindByHash(ctx context.Context, preimageHash string) ([]domain.LightningPayment, error) {
	var models []PaymentModel
	err := r.db.WithContext(ctx).
		Where("preimage_hash = ?", strings.ToLower(preimageHash)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	payments := make([]domain.LightningPayment, 0, len(models))
	for i := range models {
		payments = append(payments, *paymentModelToDomain(&models[i]))
	}

	return payments, nil
}

func (r *GormPaymentRepo) FindByHashAndNode(ctx context.Context, preimageHash string, node domain.Backend) (*domain.LightningPayment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).
		First(&model, "preimage_hash = ? AND node = ?", strings.ToLower(preimageHash), node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return paymentModelToDomain(&model), nil
}

func (r *GormPaymentRepo) FindByStatus(ctx context.Context, status domain.PaymentStatus) ([]PaymentWithSwap, error) {
	var payments []PaymentModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}

	results := make([]PaymentWithSwap, 0, len(payments))
	for i := range payments {
		var swap SwapModel
		err := r.db.WithContext(ctx).
			First(&swap, "preimage_hash = ?", payments[i].PreimageHash).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Orphaned attempt; the swap was never persisted here.
			continue
		}
		if err != nil {
			return nil, err
		}

		results = append(results, PaymentWithSwap{
			Payment: *paymentModelToDomain(&payments[i]),
			Swap:    *swapModelToDomain(&swap),
		})
	}

	return results, nil
}
