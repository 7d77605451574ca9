package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/yoockh/vibematch/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var PostgresDB *gorm.DB

func InitPostgres() error {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		return errors.New("POSTGRES_URI environment variable is not set")
	}
	db, err := OpenPostgres(uri)
	if err != nil {
		return err
	}
	PostgresDB = db
	return nil
}

// OpenPostgres opens a pooled gorm connection to dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection Pooling settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// EnsurePostgresSchema creates the vector extension, the relational tables and
// the two embedding tables sized to dims.
func EnsurePostgresSchema(db *gorm.DB, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid embedding dimensions %d", dims)
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create extension vector: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Profile{},
		&models.ProfileSkill{},
		&models.ProfileLookingFor{},
		&models.QueueEntry{},
		&models.Country{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	for _, kind := range []models.EmbeddingKind{models.EmbeddingGeneral, models.EmbeddingMatching} {
		table := kind.Table()
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				profile_id integer PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
				embedding vector(%d) NOT NULL,
				created_at timestamptz NOT NULL DEFAULT now(),
				updated_at timestamptz NOT NULL DEFAULT now()
			)`, table, dims),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_hnsw ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
		}
		for _, s := range stmts {
			if err := db.Exec(s).Error; err != nil {
				return fmt.Errorf("ensure %s: %w", table, err)
			}
		}
	}
	return nil
}
