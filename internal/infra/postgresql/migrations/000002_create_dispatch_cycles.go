package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/storybird/internal/repository"
	"gorm.io/gorm"
)

func createDispatchCyclesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_dispatch_cycles",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DispatchCycleModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatch_cycles_created_at ON dispatch_cycles (created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DispatchCycleModel{})
		},
	}
}
