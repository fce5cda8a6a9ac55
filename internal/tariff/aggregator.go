package tariff

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"parcelquote/internal/cache"
	"parcelquote/internal/metrics"
	"parcelquote/internal/rate"
)

// Aggregator assembles the full record set across all providers and keeps it
// in the cache. Providers are fetched one after another; the channel tables of
// one provider are fetched concurrently.
type Aggregator struct {
	reg   *Registry
	src   Source
	norm  *Normalizer
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewAggregator(reg *Registry, src Source, norm *Normalizer, c cache.Cache, ttl time.Duration, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{reg: reg, src: src, norm: norm, cache: c, ttl: ttl, log: log}
}

// FetchAllRecords returns every normalized record, ordered by provider, then
// table, then source row. A table that cannot be read contributes no rows.
//
// Concurrent misses share one fetch. The fetch is detached from ctx so a
// caller that goes away still fills the cache for the next one.
func (a *Aggregator) FetchAllRecords(ctx context.Context) ([]rate.RateRecord, error) {
	key := cache.AllRecordsKey()
	if recs, ok := a.cached(ctx, key); ok {
		return recs, nil
	}

	ch := a.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if recs, ok := a.cached(fctx, key); ok {
			return recs, nil
		}
		recs, failed, total := a.fetchAll(fctx)
		if total > 0 && failed == total {
			a.log.Warn("every rate table failed, result not cached", zap.Int("tables", total))
			return recs, nil
		}
		a.store(fctx, key, recs)
		return recs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]rate.RateRecord), nil
	}
}

// FetchChannelRecords reads one channel table directly, bypassing the cache.
func (a *Aggregator) FetchChannelRecords(ctx context.Context, company, channel string) ([]rate.RateRecord, error) {
	p, t, err := a.reg.Table(company, channel)
	if err != nil {
		return nil, err
	}
	rows, err := a.src.FetchRawRows(ctx, p.SourceID, t.TableID)
	if err != nil {
		metrics.RateFetches.WithLabelValues(p.Company, "failed").Inc()
		return nil, err
	}
	metrics.RateFetches.WithLabelValues(p.Company, "ok").Inc()
	return a.normalizeRows(p.Company, t.Channel, rows), nil
}

// Invalidate drops the cached record set so the next read refetches.
func (a *Aggregator) Invalidate(ctx context.Context) error {
	return a.cache.Delete(ctx, cache.AllRecordsKey())
}

func (a *Aggregator) fetchAll(ctx context.Context) (recs []rate.RateRecord, failed, total int) {
	recs = make([]rate.RateRecord, 0)
	for _, p := range a.reg.Providers() {
		got, f := a.fetchProvider(ctx, p)
		recs = append(recs, got...)
		failed += f
		total += len(p.Tables)
		a.log.Info("fetched provider rates",
			zap.String("company", p.Company),
			zap.Int("records", len(got)),
			zap.Int("failed_tables", f))
	}
	a.log.Info("fetched all rates", zap.Int("records", len(recs)))
	return recs, failed, total
}

func (a *Aggregator) fetchProvider(ctx context.Context, p Provider) ([]rate.RateRecord, int) {
	slices := make([][]rate.RateRecord, len(p.Tables))
	failed := make([]bool, len(p.Tables))

	var g errgroup.Group
	for i, t := range p.Tables {
		g.Go(func() error {
			rows, err := a.src.FetchRawRows(ctx, p.SourceID, t.TableID)
			if err != nil {
				a.log.Warn("rate table fetch failed",
					zap.String("company", p.Company),
					zap.String("channel", t.Channel),
					zap.Error(err))
				metrics.RateFetches.WithLabelValues(p.Company, "failed").Inc()
				failed[i] = true
				return nil
			}
			metrics.RateFetches.WithLabelValues(p.Company, "ok").Inc()
			slices[i] = a.normalizeRows(p.Company, t.Channel, rows)
			return nil
		})
	}
	_ = g.Wait()

	n, nFailed := 0, 0
	for i := range slices {
		n += len(slices[i])
		if failed[i] {
			nFailed++
		}
	}
	out := make([]rate.RateRecord, 0, n)
	for _, s := range slices {
		out = append(out, s...)
	}
	metrics.RateRows.WithLabelValues(p.Company).Add(float64(len(out)))
	return out, nFailed
}

func (a *Aggregator) normalizeRows(company, channel string, rows []RawRow) []rate.RateRecord {
	out := make([]rate.RateRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, a.norm.Normalize(company, row, channel))
	}
	return out
}

func (a *Aggregator) cached(ctx context.Context, key string) ([]rate.RateRecord, bool) {
	b, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.log.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	var recs []rate.RateRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		a.log.Warn("rate cache entry unreadable", zap.String("key", key), zap.Error(err))
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return recs, true
}

func (a *Aggregator) store(ctx context.Context, key string, recs []rate.RateRecord) {
	b, err := json.Marshal(recs)
	if err != nil {
		a.log.Warn("encode rate cache entry failed", zap.Error(err))
		return
	}
	if err := a.cache.Set(ctx, key, b, a.ttl); err != nil {
		a.log.Warn("rate cache write failed", zap.String("key", key), zap.Error(err))
	}
}
