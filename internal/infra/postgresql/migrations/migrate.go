package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var options = &gormigrate.Options{
	TableName:                 "storybird_migrations",
	IDColumnName:              "id",
	IDColumnSize:              255,
	UseTransaction:            true,
	ValidateUnknownMigrations: true,
}

func all() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createPushSubscriptionsTable(),
		createDispatchCyclesTable(),
	}
}

// Migrate applies pending schema migrations for subscriptions and dispatch history.
func Migrate(db *gorm.DB) error {
	return gormigrate.New(db, options, all()).Migrate()
}
