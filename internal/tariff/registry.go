package tariff

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownChannel  = errors.New("unknown channel")
)

//go:embed providers.yaml
var defaultProviders []byte

// Canonical field names used as keys of a provider's alias table.
const (
	FieldCountry             = "country"
	FieldZone                = "zone"
	FieldReferenceTime       = "reference_time"
	FieldWeightRange         = "weight_range"
	FieldWeightRangeEnd      = "weight_range_end"
	FieldPricePerKg          = "price_per_kg"
	FieldRegistrationFee     = "registration_fee"
	FieldIncrement           = "increment"
	FieldMinimumChargeWeight = "minimum_charge_weight"
	FieldChannel             = "channel"
	FieldTransportType       = "transport_type"
	FieldRecommended         = "recommended"
)

// standardHeaders are the column headers of the reference tariff layout.
// They are tried after a provider's own aliases.
var standardHeaders = map[string][]string{
	FieldCountry:             {"国家/地区"},
	FieldZone:                {"分区"},
	FieldReferenceTime:       {"参考时效"},
	FieldWeightRange:         {"重量(KG)"},
	FieldPricePerKg:          {"运费(RMB/KG)"},
	FieldRegistrationFee:     {"挂号费(RMB/票)"},
	FieldIncrement:           {"进位制(KG)"},
	FieldMinimumChargeWeight: {"最低计费重(KG)"},
	FieldChannel:             {"渠道"},
	FieldTransportType:       {"运输方式"},
	FieldRecommended:         {"推荐"},
}

// Table is one channel of a provider.
type Table struct {
	Channel string `mapstructure:"channel"`
	TableID string `mapstructure:"table_id"`
}

type Provider struct {
	Company  string `mapstructure:"company"`
	SourceID string `mapstructure:"source_id"`
	// TransportType applies to rows that carry none; defaults to 空运.
	TransportType      string              `mapstructure:"transport_type"`
	DefaultIncrementKg float64             `mapstructure:"default_increment_kg"`
	Tables             []Table             `mapstructure:"tables"`
	Fields             map[string][]string `mapstructure:"fields"`
}

// Aliases lists the raw column names tried for a canonical field: the
// provider's own first, then the standard header.
func (p Provider) Aliases(field string) []string {
	own := p.Fields[field]
	std := standardHeaders[field]
	out := make([]string, 0, len(own)+len(std))
	out = append(out, own...)
	for _, h := range std {
		dup := false
		for _, o := range own {
			if o == h {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, h)
		}
	}
	return out
}

// Registry is the ordered set of providers. It is read-only after load.
type Registry struct {
	providers []Provider
	index     map[string]int
}

func NewRegistry(providers []Provider) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(providers))}
	for _, p := range providers {
		p.Company = strings.TrimSpace(p.Company)
		if p.Company == "" {
			return nil, fmt.Errorf("provider without company name")
		}
		if _, dup := r.index[p.Company]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Company)
		}
		if p.TransportType == "" {
			p.TransportType = "空运"
		}
		seen := make(map[string]bool, len(p.Tables))
		for _, t := range p.Tables {
			if t.Channel == "" || t.TableID == "" {
				return nil, fmt.Errorf("provider %q: table needs channel and table_id", p.Company)
			}
			if seen[t.Channel] {
				return nil, fmt.Errorf("provider %q: duplicate channel %q", p.Company, t.Channel)
			}
			seen[t.Channel] = true
		}
		r.index[p.Company] = len(r.providers)
		r.providers = append(r.providers, p)
	}
	return r, nil
}

// LoadRegistry reads providers from a YAML file, or from the built-in list
// when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path == "" {
		if err := v.ReadConfig(bytes.NewReader(defaultProviders)); err != nil {
			return nil, fmt.Errorf("read built-in providers: %w", err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read providers file: %w", err)
		}
	}
	var providers []Provider
	if err := v.UnmarshalKey("providers", &providers); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	return NewRegistry(providers)
}

func (r *Registry) Providers() []Provider { return r.providers }

func (r *Registry) Companies() []string {
	out := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Company)
	}
	return out
}

func (r *Registry) Provider(company string) (Provider, bool) {
	i, ok := r.index[company]
	if !ok {
		return Provider{}, false
	}
	return r.providers[i], true
}

// Channels returns the channel names of company in table order.
func (r *Registry) Channels(company string) []string {
	p, ok := r.Provider(company)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(p.Tables))
	for _, t := range p.Tables {
		out = append(out, t.Channel)
	}
	return out
}

func (r *Registry) Table(company, channel string) (Provider, Table, error) {
	p, ok := r.Provider(company)
	if !ok {
		return Provider{}, Table{}, fmt.Errorf("%w: %s", ErrUnknownProvider, company)
	}
	for _, t := range p.Tables {
		if t.Channel == channel {
			return p, t, nil
		}
	}
	return Provider{}, Table{}, fmt.Errorf("%w: %s/%s", ErrUnknownChannel, company, channel)
}
