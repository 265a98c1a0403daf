package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"escrow-market/pkg/config"
	"escrow-market/pkg/models"
)

var DB *gorm.DB

// Initialize database connection
func Initialize(cfg *config.Config) error {
	db, err := Open(cfg.Database.Driver, cfg.GetDatabaseURL(), cfg.Database.LogQueries)
	if err != nil {
		return err
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Connection pool configuration. SQLite serializes writers itself, so a
	// single connection keeps transactions from failing with SQLITE_BUSY.
	if cfg.Database.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpen)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdle)
		sqlDB.SetConnMaxLifetime(cfg.Database.MaxLife)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	logrus.WithField("driver", cfg.Database.Driver).Info("Database connected successfully")
	return nil
}

// Open connects with the named driver without touching the global handle.
func Open(driver, dsn string, logQueries bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	level := logger.Warn
	if logQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := Migrate(DB); err != nil {
		return err
	}
	logrus.Info("Database migration completed successfully")
	return nil
}

// Migrate creates or updates every table on db.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.MarketConfigRecord{},
		&models.TreasuryRecord{},
		&models.UserLedgerRecord{},
		&models.ListingRecord{},
		&models.OfferRecord{},
		&models.AuctionRecord{},
		&models.SettlementRecord{},
		&models.SettlementTransferRecord{},
		&models.AssetCreator{},
		// Auth models
		&models.WalletSession{},
		&models.LoginAttempt{},
		&models.RateLimit{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SeedData stores asset creators for development. Existing rows are kept.
func SeedData(creators []models.AssetCreator) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	for _, creator := range creators {
		var existing models.AssetCreator
		result := DB.Where("asset = ? AND position = ?", creator.Asset, creator.Position).First(&existing)
		if result.Error == nil {
			continue
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check creator of %s: %w", creator.Asset, result.Error)
		}
		if err := DB.Create(&creator).Error; err != nil {
			return fmt.Errorf("failed to create creator of %s: %w", creator.Asset, err)
		}
		logrus.WithField("asset", creator.Asset).Debug("Seeded asset creator")
	}

	logrus.WithField("creators", len(creators)).Info("Database seeding completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

type txKey struct{}

// withTx attaches an open transaction to ctx.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the transaction carried by ctx, or db bound to ctx. Code
// called from inside a Store unit of work uses it to join that transaction.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Health check for database
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
