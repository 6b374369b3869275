package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// pure-Go driver registered as "sqlite"
	_ "modernc.org/sqlite"

	"cryptopulse/config"
	"cryptopulse/internal/models"
)

// gormWriter feeds gorm's error and slow-query lines into zerolog.
type gormWriter struct{ log zerolog.Logger }

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}

func newGormLogger(log zerolog.Logger) logger.Interface {
	return logger.New(gormWriter{log: log.With().Str("component", "gorm").Logger()}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true, // misses are normal lookups here
		ParameterizedQueries:      true,
	})
}

func NewDB(cfg *config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		// delivery_logs.rule_id must be able to dangle
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// OpenMemory opens a migrated, private in-memory SQLite database. The pool is
// pinned to one connection so the database lives as long as the handle.
func OpenMemory(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	db, err := NewDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + name + "?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Coin{},
		&models.CoinPrice{},
		&models.NotificationRule{},
		&models.DeliveryLog{},
		&models.PushToken{},
		&models.SystemSetting{},
		&models.User{},
		&models.Favorite{},
	)
}
