package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/nomadictuba2005/claude-code-api/domain/persistence"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	db          *gorm.DB
	requestRepo persistence.RequestRepository
	metricsRepo persistence.MetricsRepository
}

// NewDatabaseManager creates a new database manager instance
func NewDatabaseManager() *DatabaseManager {
	return &DatabaseManager{}
}

// Connect opens the request log database with the named driver
func (dm *DatabaseManager) Connect(ctx context.Context, driver, dsn string) error {
	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return err
	}

	logrus.WithField("driver", driver).Info("Connecting to request log database...")

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite serializes writers; a single connection also keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.db = db
	dm.requestRepo = NewRequestRepository(db)
	dm.metricsRepo = NewMetricsRepository(db)

	logrus.WithField("driver", driver).Info("Successfully connected to request log database")
	return nil
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required for driver %q", driver)
	}
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q (must be %s or %s)", driver, DriverSQLite, DriverPostgres)
	}
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate creates or updates the request log tables
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.AutoMigrate(&persistence.RequestRecord{}, &persistence.RequestMetrics{}); err != nil {
		return fmt.Errorf("failed to migrate request log tables: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// Health checks database connectivity
func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// GetRepositories returns initialized repositories
func (dm *DatabaseManager) GetRepositories() (persistence.RequestRepository, persistence.MetricsRepository) {
	return dm.requestRepo, dm.metricsRepo
}
