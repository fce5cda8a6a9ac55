package rate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RateRecord is one normalized tariff row. Records are never mutated after
// normalization; a refresh replaces the whole set.
type RateRecord struct {
	ID            string `json:"id"`
	CreatedTime   string `json:"createdTime,omitempty"`
	Company       string `json:"company"`
	Channel       string `json:"channel"`
	TransportType string `json:"transportType"`
	Country       string `json:"country"`
	Zone          string `json:"zone,omitempty"`
	// WeightRangeText is the raw bracket expression, e.g. "0<W≤30".
	WeightRangeText    string  `json:"weightRange"`
	PricePerKgCNY      float64 `json:"pricePerKgCNY"`
	RegistrationFeeCNY float64 `json:"registrationFeeCNY"`
	// IncrementKg is the chargeable-weight rounding step. The normalizer fills in
	// the provider default when the row has none; zero disables rounding.
	IncrementKg float64 `json:"incrementKg"`
	// MinimumChargeWeightKg of zero means the row sets no floor.
	MinimumChargeWeightKg float64 `json:"minimumChargeWeightKg,omitempty"`
	ReferenceTimeText     string  `json:"referenceTime"`
	// Recommended is the provider's own recommendation mark, if the table has one.
	Recommended bool `json:"recommended,omitempty"`
}

// DisplayName is the channel label shown to staff: the channel table name, or
// country plus zone for tables that carry no channel column.
func (r RateRecord) DisplayName() string {
	if r.Channel != "" {
		return r.Channel
	}
	if r.Zone != "" {
		return r.Country + " " + r.Zone
	}
	return r.Country
}

type Currency string

const (
	CNY Currency = "CNY"
	USD Currency = "USD"
)

// VolumeFormula is the volumetric divisor. Clients send it either as a number
// or as a string ("6000").
type VolumeFormula int

const (
	Formula6000 VolumeFormula = 6000
	Formula8000 VolumeFormula = 8000
)

func (f *VolumeFormula) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid volumeFormula %q", s)
	}
	*f = VolumeFormula(n)
	return nil
}

func (f VolumeFormula) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(f)))
}

// Divisor falls back to 6000 when the formula is unset.
func (f VolumeFormula) Divisor() float64 {
	if f <= 0 {
		return float64(Formula6000)
	}
	return float64(f)
}

// PackageInfo describes the parcel being quoted. Routing hints (Company,
// ChannelName, Country) narrow matching to an exact triple when all are set.
type PackageInfo struct {
	Country         string        `json:"country,omitempty"`
	Weight          float64       `json:"weight" validate:"required,gt=0"`
	Length          float64       `json:"length" validate:"required,gt=0"`
	Width           float64       `json:"width" validate:"required,gt=0"`
	Height          float64       `json:"height" validate:"required,gt=0"`
	CargoType       CargoType     `json:"cargoType,omitempty" validate:"omitempty,oneof=general battery liquid sensitive"`
	ProductValue    float64       `json:"productValue,omitempty" validate:"gte=0"`
	ProductCurrency Currency      `json:"productCurrency,omitempty" validate:"omitempty,oneof=CNY USD"`
	ExchangeRate    float64       `json:"exchangeRate,omitempty" validate:"gte=0"`
	VolumeFormula   VolumeFormula `json:"volumeFormula,omitempty" validate:"omitempty,oneof=6000 8000"`
	Company         string        `json:"company,omitempty"`
	ChannelName     string        `json:"channelName,omitempty"`
	TransportType   string        `json:"transportType,omitempty"`
}

func (p PackageInfo) HasExactRouting() bool {
	return strings.TrimSpace(p.Company) != "" &&
		strings.TrimSpace(p.ChannelName) != "" &&
		strings.TrimSpace(p.Country) != ""
}

// matches reports whether rec is the exact (company, channel, country) the
// package asks for.
func (p PackageInfo) matches(rec RateRecord) bool {
	return rec.Company == p.Company && rec.Channel == p.ChannelName && rec.Country == p.Country
}
