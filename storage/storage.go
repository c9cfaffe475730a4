// Package storage opens the backing store and applies schema migrations.
// The core needs a transactional query store with row-level locks; Postgres
// serves production and the pure-Go SQLite driver serves dev and tests.
package storage

import (
	"errors"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"darkgrid/core/models"
)

// ErrDSNRequired is returned when the backing store DSN is missing.
var ErrDSNRequired = errors.New("storage dsn must be configured")

// Open initialises the store from a DSN. Postgres URLs and keyword DSNs go
// through the postgres driver; anything else is treated as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	db, err := gorm.Open(dialectorFor(trimmed), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies all schema migrations for the simulation core.
func Migrate(db *gorm.DB) error {
	return models.AutoMigrate(db)
}

func dialectorFor(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}
