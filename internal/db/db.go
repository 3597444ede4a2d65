package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tiffin-tracker-backend/config"
	"tiffin-tracker-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, gormMode string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logMode(gormMode)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableConstraints && cfg.Driver == "postgres" {
		log.Info("applying postgres check constraints")
		if err := applyConstraintDDL(db); err != nil {
			log.Warn("failed to apply some constraint DDL, continuing without them", zap.Error(err))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the application tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.NotificationPreference{},
		&model.TiffinEntry{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		"ALTER TABLE tiffin_entries DROP CONSTRAINT IF EXISTS tiffin_entries_afternoon_range;",
		"ALTER TABLE tiffin_entries ADD CONSTRAINT tiffin_entries_afternoon_range CHECK (afternoon_count BETWEEN 0 AND 10);",
		"ALTER TABLE tiffin_entries DROP CONSTRAINT IF EXISTS tiffin_entries_evening_range;",
		"ALTER TABLE tiffin_entries ADD CONSTRAINT tiffin_entries_evening_range CHECK (evening_count BETWEEN 0 AND 10);",
		"ALTER TABLE tiffin_entries DROP CONSTRAINT IF EXISTS tiffin_entries_total_derived;",
		"ALTER TABLE tiffin_entries ADD CONSTRAINT tiffin_entries_total_derived CHECK (total_count = afternoon_count + evening_count);",
		// Partial index for the reminder query, which only ever reads enabled rows.
		"CREATE INDEX IF NOT EXISTS idx_notification_preferences_enabled_time ON notification_preferences (notification_time) WHERE enabled;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

func logMode(mode string) logger.LogLevel {
	switch mode {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
