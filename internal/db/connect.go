package db

import (
	"fmt"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/rapidaid/internal/config"
)

// DSN builds the driver-specific data source name for cfg.
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "mysql":
		return mysqlDSN(cfg, cfg.Name), nil
	case "postgres":
		return postgresDSN(cfg, cfg.Name), nil
	case "sqlite":
		return cfg.Path + "?_busy_timeout=5000&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

func mysqlDSN(cfg config.DatabaseConfig, name string) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = name
	mc.ParseTime = true
	return mc.FormatDSN()
}

func postgresDSN(cfg config.DatabaseConfig, name string) string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=disable", cfg.Host, cfg.Port, name)
	if cfg.User != "" {
		dsn += " user=" + cfg.User
	}
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}
	return dsn
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// Connect opens a GORM connection to the configured database. SQLite
// connections are limited to a single open connection so writers queue in
// the pool instead of failing with SQLITE_BUSY.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	d, err := dialector(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", describe(cfg), err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s: %w", describe(cfg), err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// EnsureDatabase creates the configured database on the server if it does
// not exist yet. It is a no-op for SQLite, which creates the file on open.
func EnsureDatabase(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case "sqlite":
		return nil
	case "mysql":
		admin, err := gorm.Open(mysql.Open(mysqlDSN(cfg, "")), gormConfig())
		if err != nil {
			return fmt.Errorf("db: admin connect to %s: %w", describe(cfg), err)
		}
		defer closeDB(admin)
		sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Name)
		if err := admin.Exec(sql).Error; err != nil {
			return fmt.Errorf("db: create database %s: %w", cfg.Name, err)
		}
		return nil
	case "postgres":
		admin, err := gorm.Open(postgres.Open(postgresDSN(cfg, "postgres")), gormConfig())
		if err != nil {
			return fmt.Errorf("db: admin connect to %s: %w", describe(cfg), err)
		}
		defer closeDB(admin)
		var n int64
		if err := admin.Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", cfg.Name).Scan(&n).Error; err != nil {
			return fmt.Errorf("db: check database %s: %w", cfg.Name, err)
		}
		if n > 0 {
			return nil
		}
		if err := admin.Exec(fmt.Sprintf("CREATE DATABASE %q", cfg.Name)).Error; err != nil {
			return fmt.Errorf("db: create database %s: %w", cfg.Name, err)
		}
		return nil
	default:
		return fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db: close: %w", err)
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	_ = Close(db)
}

func describe(cfg config.DatabaseConfig) string {
	if cfg.Driver == "sqlite" {
		return "sqlite:" + cfg.Path
	}
	return fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
}
