// Package store maintains a queryable index of persisted results in a
// database, so evidence directories can be inspected without rescanning
// every result file.
package store

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/reportoor/pkg/config"
)

// Store provides persistence for the result index.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertResult(ctx context.Context, rec *ResultRecord) error
	ListResults(ctx context.Context) ([]ResultRecord, error)
	ListSynthetic(ctx context.Context) ([]ResultRecord, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database
// driver.
func NewStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&ResultRecord{}); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertResult inserts or updates a result record keyed by its result ID.
func (s *store) UpsertResult(ctx context.Context, rec *ResultRecord) error {
	result := s.db.WithContext(ctx).
		Where("result_id = ?", rec.ResultID).
		Assign(rec).
		FirstOrCreate(rec)
	if result.Error != nil {
		return fmt.Errorf("upserting result: %w", result.Error)
	}

	return nil
}

// ListResults returns all indexed results ordered by start time.
func (s *store) ListResults(ctx context.Context) ([]ResultRecord, error) {
	var recs []ResultRecord
	if err := s.db.WithContext(ctx).
		Order("start DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	return recs, nil
}

// ListSynthetic returns indexed synthetic results ordered by start time.
func (s *store) ListSynthetic(ctx context.Context) ([]ResultRecord, error) {
	var recs []ResultRecord
	if err := s.db.WithContext(ctx).
		Where("synthetic = ?", true).
		Order("start DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing synthetic results: %w", err)
	}

	return recs, nil
}

// CountByStatus counts indexed results with the given status.
func (s *store) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&ResultRecord{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}

	return count, nil
}
