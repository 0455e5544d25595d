package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ourchants/internal/config"
	"ourchants/internal/models"
)

// DatabaseManager manages the SQL connection behind the SQL record store
type DatabaseManager struct {
	gormDB *gorm.DB
	sqlDB  *sql.DB
	logger *zerolog.Logger
}

// GORMConfig is shared by every dialect
var GORMConfig = &gorm.Config{
	Logger:                 logger.Default.LogMode(logger.Silent),
	SkipDefaultTransaction: true,
	PrepareStmt:            true,
}

// Dialector returns the gorm dialector for driver
func Dialector(driver string, cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

// NewDatabaseManager connects, configures the pool and migrates the songs table
func NewDatabaseManager(driver string, cfg config.DatabaseConfig, log *zerolog.Logger) (*DatabaseManager, error) {
	dialector, err := Dialector(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, GORMConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if driver == config.DriverSQLite {
		// one writer; sqlite serializes anyway and in-memory databases are per connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := runHealthCheck(db); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info().Str("driver", driver).Msg("Database connected")
	}

	return &DatabaseManager{
		gormDB: db,
		sqlDB:  sqlDB,
		logger: log,
	}, nil
}

// NewDatabaseManagerFromExisting wraps an already opened gorm connection
func NewDatabaseManagerFromExisting(gormDB *gorm.DB, sqlDB *sql.DB) *DatabaseManager {
	return &DatabaseManager{
		gormDB: gormDB,
		sqlDB:  sqlDB,
	}
}

// Migrate creates or updates the songs table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Song{}); err != nil {
		return fmt.Errorf("failed to migrate songs table: %w", err)
	}
	return nil
}

// runHealthCheck performs a basic query to verify database connectivity
func runHealthCheck(db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error
}

// GetGormDB returns the GORM database instance
func (d *DatabaseManager) GetGormDB() *gorm.DB {
	return d.gormDB
}

// Close closes the database connection
func (d *DatabaseManager) Close() error {
	if d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}
