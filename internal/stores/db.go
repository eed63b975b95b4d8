// Package stores opens the database shared by the memory and session stores
package stores

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported database drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DBConfig selects and addresses the database
type DBConfig struct {
	Driver string

	// SQLite
	Path string

	// MySQL
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

// DBConfigFromConfig reads DB_DRIVER, DB_PATH and the MYSQL_* settings
func DBConfigFromConfig(cfg *utils.Config) DBConfig {
	return DBConfig{
		Driver:   cfg.GetWithDefault("DB_DRIVER", DriverSQLite),
		Path:     cfg.GetWithDefault("DB_PATH", "melissa.db"),
		User:     cfg.Get("MYSQL_USER"),
		Password: cfg.Get("MYSQL_ROOT_PASSWORD"),
		Host:     cfg.GetWithDefault("MYSQL_HOST", "localhost"),
		Port:     cfg.GetWithDefault("MYSQL_PORT", "3306"),
		Database: cfg.GetWithDefault("MYSQL_DATABASE", "melissa"),
	}
}

// DSN returns the driver specific data source name
func (c DBConfig) DSN() string {
	if c.Driver == DriverMySQL {
		dbConfig := mysql.Config{
			User:                 c.User,
			Passwd:               c.Password,
			Net:                  "tcp",
			Addr:                 fmt.Sprintf("%s:%s", c.Host, c.Port),
			DBName:               c.Database,
			ParseTime:            true,
			AllowNativePasswords: true,
		}
		return dbConfig.FormatDSN()
	}
	return c.Path
}

// Open connects to the configured database
func Open(cfg DBConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path != ":memory:" {
			if dir := filepath.Dir(cfg.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("failed to create database directory: %w", err)
				}
			}
		}
		dialector = sqlite.Open(cfg.DSN())
	case DriverMySQL:
		dialector = gormmysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	if cfg.Driver == DriverMySQL {
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetMaxOpenConns(10)
	} else {
		// sqlite allows a single writer, and each :memory: connection is its own database
		sqlDB.SetMaxOpenConns(1)
	}

	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}
