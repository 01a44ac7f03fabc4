package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/domain"
)

// SwapRepository mirrors the swap snapshots that arrive with payment
// requests. The swap lifecycle service owns the records; this copy exists
// so pending payments can be resumed with their swap after a restart.
type SwapRepository interface {
	Upsert(ctx context.Context, swap *domain.Swap) error
	FindByID(ctx context.Context, id string) (*domain.Swap, error)
}

type GormSwapRepo struct {
	db *gorm.DB
}

func NewGormSwapRepo(db *gorm.DB) *GormSwapRepo {
	return &GormSwapRepo{db: db}
}

func (r *GormSwapRepo) Upsert(ctx context.Context, swap *domain.Swap) error {
	model := swapModelFromDomain(swap)
	model.PreimageHash = strings.ToLower(model.PreimageHash)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

func (r *GormSwapRepo) FindByID(ctx context.Context, id string) (*domain.Swap, error) {
	var model SwapModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return swapModelToDomain(&model), nil
}
