// Package database opens GORM connections to PostgreSQL/TimescaleDB and
// defines the tables analysis runs are stored in.
package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/containergeometry/internal/log"
)

// CreateConnection opens a database connection with the standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // ErrRecordNotFound is mapped by the caller
			Colorful:                  false,
		},
	)

	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a TimescaleDB connection:", err)
		return nil, fmt.Errorf("unable to connect to TimescaleDB: %w", err)
	}
	log.Info("TimescaleDB connection successful")

	return db, nil
}

// Migrate creates or updates the run tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&RunRecord{}, &SegmentRecord{}); err != nil {
		return fmt.Errorf("could not migrate run tables: %w", err)
	}
	return nil
}
