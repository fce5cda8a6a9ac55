package tariff

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"parcelquote/internal/rate"
)

// RawRow is a tariff row as the source returns it: field names are whatever
// the provider's table uses.
type RawRow struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// Normalizer maps provider-specific rows onto rate.RateRecord using the
// alias tables of the registry. It never fails: missing fields take defaults.
type Normalizer struct {
	reg                *Registry
	defaultIncrementKg float64
}

func NewNormalizer(reg *Registry, defaultIncrementKg float64) *Normalizer {
	return &Normalizer{reg: reg, defaultIncrementKg: defaultIncrementKg}
}

// Normalize builds the canonical record for row. channelOverride, usually the
// table's channel name, wins over any channel column in the row.
func (n *Normalizer) Normalize(company string, row RawRow, channelOverride string) rate.RateRecord {
	p, ok := n.reg.Provider(company)
	if !ok {
		p = Provider{Company: company, TransportType: "空运"}
	}
	f := row.Fields

	channel := channelOverride
	if channel == "" {
		channel = getString(f, p.Aliases(FieldChannel))
	}
	transport := getString(f, p.Aliases(FieldTransportType))
	if transport == "" {
		transport = p.TransportType
	}

	increment := getFloat(f, p.Aliases(FieldIncrement))
	if increment <= 0 {
		increment = p.DefaultIncrementKg
	}
	if increment <= 0 {
		increment = n.defaultIncrementKg
	}

	return rate.RateRecord{
		ID:                    row.ID,
		CreatedTime:           row.CreatedTime,
		Company:               p.Company,
		Channel:               channel,
		TransportType:         transport,
		Country:               getString(f, p.Aliases(FieldCountry)),
		Zone:                  getString(f, p.Aliases(FieldZone)),
		WeightRangeText:       weightRange(f, p),
		PricePerKgCNY:         getFloat(f, p.Aliases(FieldPricePerKg)),
		RegistrationFeeCNY:    getFloat(f, p.Aliases(FieldRegistrationFee)),
		IncrementKg:           increment,
		MinimumChargeWeightKg: getFloat(f, p.Aliases(FieldMinimumChargeWeight)),
		ReferenceTimeText:     getString(f, p.Aliases(FieldReferenceTime)),
		Recommended:           getBool(f, p.Aliases(FieldRecommended)),
	}
}

// weightRange joins split start/end weight columns into "start<W≤end".
func weightRange(f map[string]any, p Provider) string {
	text := getString(f, p.Aliases(FieldWeightRange))
	end := getString(f, p.Aliases(FieldWeightRangeEnd))
	if end == "" {
		return text
	}
	if text == "" {
		return "W≤" + end
	}
	if _, err := cast.ToFloat64E(text); err == nil {
		return fmt.Sprintf("%s<W≤%s", text, end)
	}
	return text
}

// getAny returns the first non-nil value from the candidate keys. Airtable
// lookup columns arrive as arrays; their first element is used.
func getAny(m map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			return list[0]
		}
		return v
	}
	return nil
}

func getString(m map[string]any, keys []string) string {
	v := getAny(m, keys)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func getFloat(m map[string]any, keys []string) float64 {
	v := getAny(m, keys)
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func getBool(m map[string]any, keys []string) bool {
	v := getAny(m, keys)
	if s, ok := v.(string); ok {
		switch strings.TrimSpace(s) {
		case "是", "推荐", "Y", "y":
			return true
		}
	}
	return cast.ToBool(v)
}
