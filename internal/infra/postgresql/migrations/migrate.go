package migrations

import (
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_swaps",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.SwapModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_swaps_preimage_hash ON swaps (preimage_hash)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SwapModel{})
			},
		},
		{
			ID: "000002_create_lightning_payments",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.PaymentModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_lightning_payments_status ON lightning_payments (status)`,
					`CREATE INDEX IF NOT EXISTS idx_lightning_payments_hash ON lightning_payments (preimage_hash)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.PaymentModel{})
			},
		},
	})

	return m.Migrate()
}
