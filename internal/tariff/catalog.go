package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parcelquote/internal/cache"
	"parcelquote/internal/rate"
)

// DefaultVolumeCoefficient is the volumetric divisor shown on channel views.
const DefaultVolumeCoefficient = 6000

// Catalog serves the browse views over the registry and the record set:
// the company/channel/country cascade, base data and the channel list.
type Catalog struct {
	reg          *Registry
	agg          *Aggregator
	cache        cache.Cache
	ttl          time.Duration
	exchangeRate float64
	eurPerUSD    float64
	log          *zap.Logger
}

func NewCatalog(reg *Registry, agg *Aggregator, c cache.Cache, ttl time.Duration, exchangeRate, eurPerUSD float64, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	if exchangeRate <= 0 {
		exchangeRate = rate.DefaultPricing().ExchangeRate
	}
	return &Catalog{reg: reg, agg: agg, cache: c, ttl: ttl, exchangeRate: exchangeRate, eurPerUSD: eurPerUSD, log: log}
}

func (c *Catalog) Companies() []string { return c.reg.Companies() }

func (c *Catalog) Channels(company string) ([]string, error) {
	if _, ok := c.reg.Provider(company); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, company)
	}
	return c.reg.Channels(company), nil
}

// Overview is the top of the logistics cascade.
type Overview struct {
	Companies      []string `json:"companies"`
	TotalCountries int      `json:"totalCountries"`
	TotalRecords   int      `json:"totalRecords"`
}

func (c *Catalog) Overview(ctx context.Context) (Overview, error) {
	recs, err := c.agg.FetchAllRecords(ctx)
	if err != nil {
		return Overview{}, err
	}
	ix := BuildIndex(recs)
	return Overview{
		Companies:      c.reg.Companies(),
		TotalCountries: len(ix.CountryNames()),
		TotalRecords:   ix.Len(),
	}, nil
}

// ChannelCountries lists the destinations of one channel with their zones.
type ChannelCountries struct {
	Company   string              `json:"company"`
	Channel   string              `json:"channel"`
	Countries []string            `json:"countries"`
	Zones     map[string][]string `json:"zones"`
}

// ChannelCountries reads the channel's table directly and caches the answer
// per channel. A failed read yields an empty list that is not cached.
func (c *Catalog) ChannelCountries(ctx context.Context, company, channel string) (ChannelCountries, error) {
	if _, _, err := c.reg.Table(company, channel); err != nil {
		return ChannelCountries{}, err
	}
	key := cache.CountriesKey(company, channel)
	if b, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var out ChannelCountries
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
	} else if err != nil {
		c.log.Warn("countries cache read failed", zap.String("key", key), zap.Error(err))
	}

	out := ChannelCountries{Company: company, Channel: channel, Countries: []string{}, Zones: map[string][]string{}}
	recs, err := c.agg.FetchChannelRecords(ctx, company, channel)
	if err != nil {
		c.log.Warn("channel countries fetch failed",
			zap.String("company", company),
			zap.String("channel", channel),
			zap.Error(err))
		return out, nil
	}
	ix := BuildIndex(recs)
	out.Countries = ix.CountriesFor(company, channel)
	for _, cz := range ix.Countries() {
		if len(cz.Zones) > 0 {
			out.Zones[cz.Country] = cz.Zones
		}
	}

	if b, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.log.Warn("countries cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

// BaseData holds the option lists for the quote form.
type BaseData struct {
	Countries      []string `json:"countries"`
	Companies      []string `json:"companies"`
	Channels       []string `json:"channels"`
	TransportTypes []string `json:"transportTypes"`
}

func (c *Catalog) BaseData(ctx context.Context) (BaseData, error) {
	recs, err := c.agg.FetchAllRecords(ctx)
	if err != nil {
		return BaseData{}, err
	}
	ix := BuildIndex(recs)
	return BaseData{
		Countries:      ix.CountryNames(),
		Companies:      ix.Companies(),
		Channels:       ix.Channels(),
		TransportTypes: ix.TransportTypes(),
	}, nil
}

type ChannelFilter struct {
	Country       string
	Company       string
	TransportType string
	CargoType     rate.CargoType
}

// ChannelView is one tariff row as shown in the channel browser.
type ChannelView struct {
	ID                  string           `json:"id"`
	ChannelName         string           `json:"channelName"`
	Company             string           `json:"company"`
	TransportType       string           `json:"transportType"`
	Country             string           `json:"country"`
	Zone                string           `json:"zone,omitempty"`
	TimeRange           string           `json:"timeRange"`
	WeightRange         string           `json:"weightRange"`
	PriceCNY            float64          `json:"priceCNY"`
	PriceUSD            float64          `json:"priceUSD"`
	PriceEUR            float64          `json:"priceEUR"`
	RegistrationFee     float64          `json:"registrationFee"`
	MinWeight           float64          `json:"minWeight"`
	MaxWeight           float64          `json:"maxWeight"`
	MinimumChargeWeight float64          `json:"minimumChargeWeight"`
	Increment           float64          `json:"increment"`
	VolumeCoefficient   int              `json:"volumeCoefficient"`
	Restrictions        []rate.CargoType `json:"restrictions"`
	IsRecommended       bool             `json:"isRecommended"`
	Notes               string           `json:"notes"`
}

// ChannelViews lists the records passing every set filter field, in record order.
func (c *Catalog) ChannelViews(ctx context.Context, f ChannelFilter) ([]ChannelView, error) {
	recs, err := c.agg.FetchAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelView, 0)
	for _, r := range recs {
		if f.Country != "" && r.Country != f.Country {
			continue
		}
		if f.Company != "" && r.Company != f.Company {
			continue
		}
		if f.TransportType != "" && r.TransportType != f.TransportType {
			continue
		}
		if f.CargoType != "" && !rate.ChannelAccepts(r.DisplayName(), f.CargoType) {
			continue
		}
		out = append(out, c.view(r))
	}
	return out, nil
}

func (c *Catalog) view(r rate.RateRecord) ChannelView {
	b := rate.ParseBracket(r.WeightRangeText)
	minCharge := r.MinimumChargeWeightKg
	if minCharge <= 0 {
		minCharge = b.Min
	}
	usd := rate.ToUSD(r.PricePerKgCNY, c.exchangeRate)
	return ChannelView{
		ID:                  r.ID,
		ChannelName:         r.DisplayName(),
		Company:             r.Company,
		TransportType:       r.TransportType,
		Country:             r.Country,
		Zone:                r.Zone,
		TimeRange:           r.ReferenceTimeText,
		WeightRange:         r.WeightRangeText,
		PriceCNY:            r.PricePerKgCNY,
		PriceUSD:            rate.Round2(usd),
		PriceEUR:            rate.Round2(usd * c.eurPerUSD),
		RegistrationFee:     r.RegistrationFeeCNY,
		MinWeight:           b.Min,
		MaxWeight:           b.Max,
		MinimumChargeWeight: minCharge,
		Increment:           r.IncrementKg,
		VolumeCoefficient:   DefaultVolumeCoefficient,
		Restrictions:        rate.ChannelRestrictions(r.DisplayName()),
		IsRecommended:       r.Recommended,
		Notes:               fmt.Sprintf("挂号费: ¥%g", r.RegistrationFeeCNY),
	}
}
