// Package database centralises sqlx connection helpers.  The driver is
// go-sql-driver/mysql, the same MySQL database the store backend uses for
// users, role permissions, and the form audit table.
//
// Public entry points:
//
//	Open(ctx, dsn)                    – helper with conservative pool sizes.
//	OpenWithOptions(ctx, dsn, opts)   – fine-grained control.
//
// Both helpers Ping the database before returning, retrying a few times so
// the service can start alongside the database container.  Callers should
// Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Options tunes the pool.  Zero values take the defaults used by Open.
type Options struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	PingRetries int
	PingBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxOpen == 0 {
		o.MaxOpen = 15
	}
	if o.MaxIdle == 0 {
		o.MaxIdle = 5
	}
	if o.MaxLifetime == 0 {
		o.MaxLifetime = 30 * time.Minute
	}
	if o.PingBackoff == 0 {
		o.PingBackoff = time.Second
	}
	return o
}

// Open returns a *sqlx.DB with sane defaults: 15 max open, 5 idle, and a
// 30-minute connection lifetime.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, dsn, Options{})
}

// OpenWithOptions opens the pool and pings it up to 1+PingRetries times.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := Configure(ctx, db, opts); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies opts to db and waits for it to answer a ping.
func Configure(ctx context.Context, db *sqlx.DB, opts Options) error {
	opts = opts.withDefaults()
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.MaxLifetime)

	var err error
	for attempt := 0; attempt <= opts.PingRetries; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		zap.L().Warn("database ping failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if attempt == opts.PingRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.PingBackoff):
		}
	}
	return fmt.Errorf("database ping: %w", err)
}
