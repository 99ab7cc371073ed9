package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"gorm.io/gorm"
)

func createMailRunsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_mail_runs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RunModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_mail_runs_status_started ON mail_runs (status, started_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RunModel{})
		},
	}
}
