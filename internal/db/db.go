package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"parcelquote/internal/config"
)

// NewPool opens the pool backing the Postgres rate source. The service only
// reads rate tables, so every session is forced read-only.
func NewPool(ctx context.Context, dc config.DatabaseConfig) (*pgxpool.Pool, error) {
	if dc.URL == "" {
		return nil, errors.New("database url is not set")
	}
	cfg, err := pgxpool.ParseConfig(dc.URL)
	if err != nil {
		return nil, err
	}
	if dc.MaxConns > 0 {
		cfg.MaxConns = dc.MaxConns
	}
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	params := cfg.ConnConfig.RuntimeParams
	params["application_name"] = "parcelquote-api"
	params["client_encoding"] = "UTF8"
	params["timezone"] = "UTC"
	params["default_transaction_read_only"] = "on"
	// Server may ignore this depending on its configuration.
	if dc.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(dc.StatementTimeout.Milliseconds(), 10)
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}
