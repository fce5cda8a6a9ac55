package db

import (
	"context"
	"os"
	"testing"
	"time"

	"parcelquote/internal/config"
)

func TestNewPool_EmptyURL(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewPool_InvalidURL(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{URL: "://not a url"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNewPool_ReadOnlySession(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	pool, err := NewPool(t.Context(), config.DatabaseConfig{URL: dbURL, MaxConns: 2, StatementTimeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(t.Context()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := pool.Config().MaxConns; got != 2 {
		t.Fatalf("expected max conns 2, got %d", got)
	}
	var readOnly, timeout string
	if err := pool.QueryRow(t.Context(), "SHOW default_transaction_read_only").Scan(&readOnly); err != nil {
		t.Fatalf("show read only: %v", err)
	}
	if readOnly != "on" {
		t.Fatalf("expected read-only sessions, got %q", readOnly)
	}
	if err := pool.QueryRow(t.Context(), "SHOW statement_timeout").Scan(&timeout); err != nil {
		t.Fatalf("show statement_timeout: %v", err)
	}
	if timeout != "3s" {
		t.Fatalf("expected 3s statement timeout, got %q", timeout)
	}
}
