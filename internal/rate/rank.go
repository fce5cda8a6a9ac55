package rate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Summary points at the tagged entries of a result list. Any of them may be nil.
type Summary struct {
	Cheapest    *QuoteResult `json:"cheapest"`
	Fastest     *QuoteResult `json:"fastest"`
	Recommended *QuoteResult `json:"recommended"`
}

// QuoteSet is the answer to an exact (company, channel, country) quote.
type QuoteSet struct {
	PackageInfo PackageInfo   `json:"packageInfo"`
	Results     []QuoteResult `json:"results"`
	Count       int           `json:"count"`
	Summary     Summary       `json:"summary"`
}

// Pick is the display card for one recommendation.
type Pick struct {
	Company  string `json:"company"`
	Channel  string `json:"channel"`
	Country  string `json:"country"`
	Price    string `json:"price"`
	PriceCNY string `json:"priceCNY"`
	Time     string `json:"time"`
	TimeDays int    `json:"timeDays,omitempty"`
	Reason   string `json:"reason"`
	Badge    string `json:"badge,omitempty"`
}

type Picks struct {
	Cheapest    *Pick `json:"cheapest"`
	Fastest     *Pick `json:"fastest"`
	Recommended *Pick `json:"recommended"`
}

// Recommendation is the cross-channel answer. When nothing qualifies only
// HasRecommendations and Message are set.
type Recommendation struct {
	HasRecommendations bool          `json:"hasRecommendations"`
	Message            string        `json:"message,omitempty"`
	TotalChannels      int           `json:"totalChannels,omitempty"`
	Results            []QuoteResult `json:"results,omitempty"`
	Summary            *Summary      `json:"summary,omitempty"`
	Recommendations    *Picks        `json:"recommendations,omitempty"`
}

// MultiQuote prices several products shipped on the same route.
type MultiQuote struct {
	Items []QuoteSet `json:"items"`
	// Grand totals add up the cheapest option of every quoted item.
	GrandTotalCNY float64 `json:"grandTotalCNY"`
	GrandTotalUSD float64 `json:"grandTotalUSD"`
	Unquoted      int     `json:"unquoted"`
}

const (
	reasonCheapest    = "最便宜"
	reasonFastest     = "最快送达"
	reasonRecommended = "综合推荐 (性价比最高)"
	badgeRecommended  = "推荐"

	// Packages heavier than this, by actual or volumetric weight, are rejected.
	maxPackageKg = 1e6
)

// Ranker matches records against a package, prices the matches and tags
// the cheapest, fastest and recommended ones.
type Ranker struct {
	composer *Composer
	log      *zap.Logger
}

func NewRanker(c *Composer, log *zap.Logger) *Ranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{composer: c, log: log}
}

// Quote prices the single channel named by pkg's routing hints.
func (r *Ranker) Quote(records []RateRecord, pkg PackageInfo) (QuoteSet, error) {
	if !pkg.HasExactRouting() {
		return QuoteSet{}, fmt.Errorf("%w: company, channelName and country are required", ErrInvalidPackage)
	}
	if err := checkDimensions(pkg); err != nil {
		return QuoteSet{}, err
	}

	results := r.priceMatching(records, pkg, pkg.matches)
	if len(results) > 0 {
		results[fastestIndex(results)].IsFastest = true
	}
	sortByCost(results)
	if len(results) > 0 {
		results[0].IsCheapest = true
		for i := range results {
			if results[i].Channel.IsRecommended {
				results[i].IsRecommended = true
				break
			}
		}
	}
	return QuoteSet{
		PackageInfo: pkg,
		Results:     results,
		Count:       len(results),
		Summary:     summarize(results),
	}, nil
}

// Recommend compares every channel serving pkg's destination that the cargo
// heuristic allows. Company and transport hints are ignored.
func (r *Ranker) Recommend(records []RateRecord, pkg PackageInfo) (Recommendation, error) {
	if err := checkDimensions(pkg); err != nil {
		return Recommendation{}, err
	}

	candidates := make([]RateRecord, 0, len(records))
	for _, rec := range records {
		if pkg.Country != "" && rec.Country != pkg.Country {
			continue
		}
		if !ChannelAccepts(rec.DisplayName(), pkg.CargoType) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return Recommendation{Message: noChannelMessage(pkg)}, nil
	}

	results := r.priceMatching(candidates, pkg, func(RateRecord) bool { return true })
	if len(results) == 0 {
		return Recommendation{Message: "抱歉，没有找到适合该包裹的渠道"}, nil
	}
	// Fastest and recommended ties go to the earlier record.
	results[fastestIndex(results)].IsFastest = true
	results[recommendedIndex(results)].IsRecommended = true
	sortByCost(results)
	results[0].IsCheapest = true

	summary := summarize(results)
	return Recommendation{
		HasRecommendations: true,
		TotalChannels:      len(results),
		Results:            results,
		Summary:            &summary,
		Recommendations: &Picks{
			Cheapest:    card(*summary.Cheapest, reasonCheapest),
			Fastest:     fastestCard(*summary.Fastest),
			Recommended: recommendedCard(*summary.Recommended),
		},
	}, nil
}

// QuoteMany quotes every package on its own route and sums the cheapest
// option of each. Packages with no matching channel count as unquoted.
func (r *Ranker) QuoteMany(records []RateRecord, pkgs []PackageInfo) (MultiQuote, error) {
	out := MultiQuote{Items: make([]QuoteSet, 0, len(pkgs))}
	var totalCNY, totalUSD float64
	for i, pkg := range pkgs {
		set, err := r.Quote(records, pkg)
		if err != nil {
			return MultiQuote{}, fmt.Errorf("package %d: %w", i+1, err)
		}
		out.Items = append(out.Items, set)
		if set.Summary.Cheapest == nil {
			out.Unquoted++
			continue
		}
		totalCNY += set.Summary.Cheapest.TotalCostCNY
		totalUSD += set.Summary.Cheapest.TotalCost
	}
	out.GrandTotalCNY = Round2(totalCNY)
	out.GrandTotalUSD = Round2(totalUSD)
	return out, nil
}

func (r *Ranker) priceMatching(records []RateRecord, pkg PackageInfo, keep func(RateRecord) bool) []QuoteResult {
	volume := VolumetricWeight(pkg.Length, pkg.Width, pkg.Height, pkg.VolumeFormula.Divisor())
	results := make([]QuoteResult, 0)
	for _, rec := range records {
		if !keep(rec) {
			continue
		}
		b := ParseBracket(rec.WeightRangeText)
		if !b.Parsed && strings.TrimSpace(rec.WeightRangeText) != "" {
			r.log.Debug("weight bracket not understood, treating as 0-999",
				zap.String("record", rec.ID),
				zap.String("company", rec.Company),
				zap.String("weightRange", rec.WeightRangeText))
		}
		if !b.Contains(pkg.Weight) {
			continue
		}
		charge := ChargeableWeight(pkg.Weight, volume, rec.MinimumChargeWeightKg, rec.IncrementKg)
		q := r.composer.Compose(rec, pkg, charge, volume)
		if !finite(q.TotalCost) || !finite(q.TotalCostCNY) {
			r.log.Warn("skipping record with non-finite cost",
				zap.String("record", rec.ID),
				zap.String("company", rec.Company),
				zap.Float64("pricePerKg", rec.PricePerKgCNY))
			continue
		}
		results = append(results, q)
	}
	return results
}

func checkDimensions(pkg PackageInfo) error {
	if pkg.Weight <= 0 || pkg.Length <= 0 || pkg.Width <= 0 || pkg.Height <= 0 {
		return fmt.Errorf("%w: weight and dimensions must be positive", ErrInvalidPackage)
	}
	volume := VolumetricWeight(pkg.Length, pkg.Width, pkg.Height, pkg.VolumeFormula.Divisor())
	if !finite(pkg.Weight) || !finite(volume) || pkg.Weight > maxPackageKg || volume > maxPackageKg {
		return fmt.Errorf("%w: weight and dimensions are out of range", ErrInvalidPackage)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortByCost(results []QuoteResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalCost < results[j].TotalCost
	})
}

// fastestIndex is the first entry with the fewest transit days.
func fastestIndex(results []QuoteResult) int {
	best := 0
	for i := 1; i < len(results); i++ {
		if TimeDays(results[i].Channel.TimeRange) < TimeDays(results[best].Channel.TimeRange) {
			best = i
		}
	}
	return best
}

// recommendedIndex minimizes totalCost/10 + transit days.
func recommendedIndex(results []QuoteResult) int {
	score := func(q QuoteResult) float64 {
		return q.TotalCost/10 + float64(TimeDays(q.Channel.TimeRange))
	}
	best := 0
	for i := 1; i < len(results); i++ {
		if score(results[i]) < score(results[best]) {
			best = i
		}
	}
	return best
}

func summarize(results []QuoteResult) Summary {
	var s Summary
	for i := range results {
		q := &results[i]
		if q.IsCheapest && s.Cheapest == nil {
			s.Cheapest = q
		}
		if q.IsFastest && s.Fastest == nil {
			s.Fastest = q
		}
		if q.IsRecommended && s.Recommended == nil {
			s.Recommended = q
		}
	}
	return s
}

func card(q QuoteResult, reason string) *Pick {
	return &Pick{
		Company:  q.Channel.Company,
		Channel:  q.Channel.ChannelName,
		Country:  q.Channel.Country,
		Price:    fmt.Sprintf("$%.2f", q.TotalCost),
		PriceCNY: fmt.Sprintf("¥%.2f", q.TotalCostCNY),
		Time:     q.Channel.TimeRange,
		Reason:   reason,
	}
}

func fastestCard(q QuoteResult) *Pick {
	p := card(q, reasonFastest)
	p.TimeDays = TimeDays(q.Channel.TimeRange)
	return p
}

func recommendedCard(q QuoteResult) *Pick {
	p := card(q, reasonRecommended)
	p.Badge = badgeRecommended
	return p
}

func noChannelMessage(pkg PackageInfo) string {
	cargo := "该类型"
	if pkg.CargoType != "" {
		cargo = pkg.CargoType.Label()
	}
	if pkg.Country == "" {
		return fmt.Sprintf("抱歉，暂无支持 %s 的物流渠道", cargo)
	}
	return fmt.Sprintf("抱歉，暂无支持 %s 的 %s 物流渠道", pkg.Country, cargo)
}
