package db

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"segflow/internal/config"
	"segflow/internal/model"
)

// Module provides the *gorm.DB for fx injection.
var Module = fx.Module("database",
	fx.Provide(New),
)

// dialector picks a gorm.Dialector from DatabaseURL's scheme: mysql://,
// postgres:// (or postgresql://), and sqlite:// (or a bare path ending in
// .db, or :memory:).
func dialector(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "mysql://"):
		return mysql.Open(strings.TrimPrefix(databaseURL, "mysql://")), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasSuffix(databaseURL, ".db") || databaseURL == ":memory:":
		return sqlite.Open(databaseURL), nil
	default:
		return nil, fmt.Errorf("db: unrecognized DATABASE_URL scheme: %q", databaseURL)
	}
}

// New opens the database with a five-attempt retry backoff and wires the
// ZapGormLogger for query/slow-query logging.
func New(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	d, err := dialector(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Info
	showSQL := true
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	}
	gormLogger := NewZapGormLogger(log, logLevel, showSQL)

	var db *gorm.DB
	for attempt := 1; attempt <= 5; attempt++ {
		db, err = gorm.Open(d, &gorm.Config{Logger: gormLogger})
		if err == nil {
			break
		}
		log.Warn("database not ready, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("db: automigrate: %w", err)
	}

	log.Info("database connection configured")
	return db, nil
}
