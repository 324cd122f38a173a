// Package conn opens the database and cache connections used by the candle
// stores.
package conn

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	_defaultPostgresHost    = "localhost"
	_defaultPostgresPort    = 5432
	_defaultPostgresSSLMode = "disable"
	_defaultMaxOpenConns    = 10
	_defaultMaxIdleConns    = 2
	_defaultConnMaxLifetime = 30 * time.Minute
	_defaultSlowQuery       = 500 * time.Millisecond
)

// PostgresOption defines connection options for PostgreSQL. DSN wins over the
// individual fields.
type PostgresOption struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Params   map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// SlowQuery logs statements slower than this as warnings.
	SlowQuery time.Duration
}

// OpenPostgres opens a pooled gorm connection and pings it before returning.
func OpenPostgres(ctx context.Context, opt PostgresOption) (*gorm.DB, error) {
	if opt.SlowQuery <= 0 {
		opt.SlowQuery = _defaultSlowQuery
	}

	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{
		Logger: logger.New(gormWriter{}, logger.Config{
			SlowThreshold:             opt.SlowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	sqlDB.SetMaxOpenConns(valueOr(opt.MaxOpenConns, _defaultMaxOpenConns))
	sqlDB.SetMaxIdleConns(valueOr(opt.MaxIdleConns, _defaultMaxIdleConns))
	sqlDB.SetConnMaxLifetime(valueOr(opt.ConnMaxLifetime, _defaultConnMaxLifetime))

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	logs.Infof("postgres connected, host: %s, database: %s", valueOr(opt.Host, _defaultPostgresHost), opt.Database)
	return db, nil
}

// ClosePostgres closes the pool behind db.
func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt PostgresOption) dsn() string {
	if opt.DSN != "" {
		return opt.DSN
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", valueOr(opt.Host, _defaultPostgresHost), valueOr(opt.Port, _defaultPostgresPort)),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", valueOr(opt.SSLMode, _defaultPostgresSSLMode))
	for k, v := range opt.Params {
		if k != "" {
			query.Set(k, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// gormWriter routes gorm's logger into the process log.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	logs.Warnf(format, args...)
}

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
