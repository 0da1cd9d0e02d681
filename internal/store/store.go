// Package store owns the single gorm/postgres session factory and the typed DAO
// modules every Cn component operates through (spec.md §3, "Ownership summary").
// The one exception is Store.DB, which hands the raw *gorm.DB to the retrieval
// package's pgvector index for its SQL cosine query.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tas-rag-core/config"
	"github.com/tas-rag-core/models"
)

// Store wraps the shared *gorm.DB connection pool (min 10 / max 20 per spec.md §5).
type Store struct {
	db *gorm.DB
}

func Open(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, models.NewConfigError("failed to open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, models.NewConfigError("failed to access underlying sql.DB", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	return &Store{db: db}, nil
}

// OpenWith wraps an already-open *gorm.DB, used by tests that substitute
// gorm.io/driver/sqlite for isolation.
func OpenWith(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate is forward-only and idempotent: AutoMigrate is safe to re-run (spec.md §6).
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.TaxonomyNode{},
		&models.Document{},
		&models.Chunk{},
		&models.Embedding{},
		&models.DocTaxonomy{},
		&models.HITLItem{},
		&models.Agent{},
		&models.CaseBankEntry{},
		&models.CaseBankArchive{},
		&models.ExecutionLog{},
	); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
