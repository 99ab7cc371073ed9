package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrations returns the ordered schema migrations of the run history store.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createMailRunsTable(),
		createMailDeliveriesTable(),
	}
}

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	return m.Migrate()
}
