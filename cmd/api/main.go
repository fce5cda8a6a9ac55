package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"parcelquote/internal/auth"
	"parcelquote/internal/cache"
	"parcelquote/internal/config"
	"parcelquote/internal/db"
	"parcelquote/internal/logger"
	"parcelquote/internal/rate"
	"parcelquote/internal/server"
	"parcelquote/internal/tariff"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Error("api stopped with error", zap.Error(err))
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rateCache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	var pool *pgxpool.Pool
	if cfg.RateSource == "postgres" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err = db.NewPool(dbCtx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		// Verify connectivity proactively
		if err := pool.Ping(dbCtx); err != nil {
			return err
		}
	}

	reg, err := tariff.LoadRegistry(cfg.ProvidersFile)
	if err != nil {
		return err
	}
	src, err := tariff.NewSourceByName(cfg, tariff.Deps{
		HTTPClient: &http.Client{Timeout: cfg.Airtable.Timeout},
		Pool:       pool,
		Logger:     lg.Named("source"),
	})
	if err != nil {
		return err
	}
	agg := tariff.NewAggregator(reg, src, tariff.NewNormalizer(reg, cfg.Pricing.DefaultIncrementKg), rateCache, cfg.Cache.TTL, lg.Named("aggregator"))
	catalog := tariff.NewCatalog(reg, agg, rateCache, cfg.Cache.TTL, cfg.Pricing.ExchangeRate, cfg.Pricing.EURPerUSD, lg.Named("catalog"))

	composer := rate.NewComposer(rate.Pricing{
		ExchangeRate:        cfg.Pricing.ExchangeRate,
		ServiceFeeUSD:       cfg.Pricing.ServiceFeeUSD,
		DomesticShippingUSD: cfg.Pricing.DomesticShippingUSD,
	})

	deps := server.Deps{
		Records:     agg,
		Catalog:     catalog,
		Ranker:      rate.NewRanker(composer, lg.Named("ranker")),
		RequireAuth: cfg.Auth.Required,
		Logger:      lg.Named("http"),
	}
	if cfg.Auth.JWTSecret != "" {
		store, err := auth.StoreFromConfig(cfg.Auth)
		if err != nil {
			return err
		}
		tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
		deps.Auth = auth.NewService(store, tokens)
	} else {
		lg.Warn("auth.jwt_secret not set, login and admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.New(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("api listening",
			zap.String("addr", srv.Addr),
			zap.String("rate_source", cfg.RateSource),
			zap.String("cache", cfg.Cache.Provider),
			zap.Strings("companies", reg.Companies()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	lg.Info("api stopped")
	return nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, func(), error) {
	if cfg.Provider != "redis" {
		return cache.NewMemory(), func() {}, nil
	}
	client, err := cache.DialRedis(ctx, cfg.RedisURL, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedis(client, cfg.Prefix), func() { _ = client.Close() }, nil
}
