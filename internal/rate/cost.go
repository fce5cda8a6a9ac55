package rate

import "fmt"

// UnknownCompany labels rows whose provider could not be determined.
const UnknownCompany = "未知物流公司"

// Pricing holds the per-deployment constants of the cost formula.
type Pricing struct {
	ExchangeRate        float64 // CNY per USD
	ServiceFeeUSD       float64
	DomesticShippingUSD float64
}

func DefaultPricing() Pricing {
	return Pricing{ExchangeRate: 7, ServiceFeeUSD: 1.20, DomesticShippingUSD: 1.00}
}

// ChannelSnapshot is the channel as it looked when the quote was computed.
type ChannelSnapshot struct {
	ID                  string  `json:"id"`
	ChannelName         string  `json:"channelName"`
	Company             string  `json:"company"`
	TransportType       string  `json:"transportType"`
	Country             string  `json:"country"`
	Zone                string  `json:"zone,omitempty"`
	TimeRange           string  `json:"timeRange"`
	PriceUSD            float64 `json:"priceUSD"`
	PriceCNY            float64 `json:"priceCNY"`
	RegistrationFee     float64 `json:"registrationFee"`
	MinWeight           float64 `json:"minWeight"`
	MaxWeight           float64 `json:"maxWeight"`
	MinimumChargeWeight float64 `json:"minimumChargeWeight"`
	Increment           float64 `json:"increment"`
	IsRecommended       bool    `json:"isRecommended"`
	Notes               string  `json:"notes"`
}

// QuoteResult is one priced channel for one package. Money fields are rounded
// to two decimals; weights likewise.
type QuoteResult struct {
	Channel ChannelSnapshot `json:"channel"`

	ActualWeight float64 `json:"actualWeight"`
	VolumeWeight float64 `json:"volumeWeight"`
	ChargeWeight float64 `json:"chargeWeight"`
	ProductCost  float64 `json:"productCost"`

	InternationalShippingCNY float64 `json:"internationalShippingCNY"`
	DomesticShippingCNY      float64 `json:"domesticShippingCNY"`
	ServiceFeeCNY            float64 `json:"serviceFeeCNY"`
	TotalShippingCNY         float64 `json:"totalShippingCNY"`

	InternationalShippingUSD float64 `json:"internationalShippingUSD"`
	DomesticShippingUSD      float64 `json:"domesticShippingUSD"`
	ServiceFeeUSD            float64 `json:"serviceFeeUSD"`
	TotalShippingUSD         float64 `json:"totalShippingUSD"`

	RegistrationFeeCNY float64 `json:"registrationFeeCNY"`
	PricePerKgCNY      float64 `json:"pricePerKgCNY"`
	TotalCost          float64 `json:"totalCost"`
	TotalCostCNY       float64 `json:"totalCostCNY"`
	Currency           string  `json:"currency"`

	IsCheapest    bool `json:"isCheapest"`
	IsFastest     bool `json:"isFastest"`
	IsRecommended bool `json:"isRecommended"`
}

// Composer applies the landed-cost formula. One exchange rate is used for the
// whole quote: the package override when given, else the configured default.
type Composer struct {
	pricing Pricing
}

func NewComposer(p Pricing) *Composer {
	if p.ExchangeRate <= 0 {
		p.ExchangeRate = DefaultPricing().ExchangeRate
	}
	return &Composer{pricing: p}
}

func (c *Composer) Pricing() Pricing { return c.pricing }

// ExchangeRate resolves the CNY-per-USD rate for pkg.
func (c *Composer) ExchangeRate(pkg PackageInfo) float64 {
	if pkg.ExchangeRate > 0 {
		return pkg.ExchangeRate
	}
	return c.pricing.ExchangeRate
}

// Compose prices rec for pkg. chargeWeight is used un-rounded; only the
// returned figures are rounded.
func (c *Composer) Compose(rec RateRecord, pkg PackageInfo, chargeWeight, volumeWeight float64) QuoteResult {
	rate := c.ExchangeRate(pkg)

	intlCNY := chargeWeight*rec.PricePerKgCNY + rec.RegistrationFeeCNY
	domesticCNY := c.pricing.DomesticShippingUSD * rate
	serviceCNY := c.pricing.ServiceFeeUSD * rate
	totalShippingCNY := intlCNY + domesticCNY + serviceCNY
	totalShippingUSD := ToUSD(totalShippingCNY, rate)

	var productUSD, productCNY float64
	if pkg.ProductCurrency == CNY {
		productUSD = ToUSD(pkg.ProductValue, rate)
		productCNY = pkg.ProductValue
	} else {
		productUSD = pkg.ProductValue
		productCNY = ToCNY(pkg.ProductValue, rate)
	}

	return QuoteResult{
		Channel:      c.snapshot(rec, rate),
		ActualWeight: Round2(pkg.Weight),
		VolumeWeight: Round2(volumeWeight),
		ChargeWeight: Round2(chargeWeight),
		ProductCost:  Round2(productUSD),

		InternationalShippingCNY: Round2(intlCNY),
		DomesticShippingCNY:      Round2(domesticCNY),
		ServiceFeeCNY:            Round2(serviceCNY),
		TotalShippingCNY:         Round2(totalShippingCNY),

		InternationalShippingUSD: Round2(ToUSD(intlCNY, rate)),
		DomesticShippingUSD:      Round2(c.pricing.DomesticShippingUSD),
		ServiceFeeUSD:            Round2(c.pricing.ServiceFeeUSD),
		TotalShippingUSD:         Round2(totalShippingUSD),

		RegistrationFeeCNY: rec.RegistrationFeeCNY,
		PricePerKgCNY:      rec.PricePerKgCNY,
		TotalCost:          Round2(totalShippingUSD + productUSD),
		TotalCostCNY:       Round2(totalShippingCNY + productCNY),
		Currency:           string(USD),
	}
}

func (c *Composer) snapshot(rec RateRecord, rate float64) ChannelSnapshot {
	company := rec.Company
	if company == "" {
		company = UnknownCompany
	}
	b := ParseBracket(rec.WeightRangeText)
	return ChannelSnapshot{
		ID:                  rec.ID,
		ChannelName:         rec.DisplayName(),
		Company:             company,
		TransportType:       rec.TransportType,
		Country:             rec.Country,
		Zone:                rec.Zone,
		TimeRange:           rec.ReferenceTimeText,
		PriceUSD:            Round2(ToUSD(rec.PricePerKgCNY, rate)),
		PriceCNY:            rec.PricePerKgCNY,
		RegistrationFee:     rec.RegistrationFeeCNY,
		MinWeight:           b.Min,
		MaxWeight:           b.Max,
		MinimumChargeWeight: rec.MinimumChargeWeightKg,
		Increment:           rec.IncrementKg,
		IsRecommended:       rec.Recommended,
		Notes:               fmt.Sprintf("重量区间: %s, 挂号费: ¥%g", rec.WeightRangeText, rec.RegistrationFeeCNY),
	}
}

func ToUSD(cny, rate float64) float64 { return cny / rate }

func ToCNY(usd, rate float64) float64 { return usd * rate }
