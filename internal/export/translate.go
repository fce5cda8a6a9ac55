package export

import (
	"fmt"
	"regexp"

	"golang.org/x/text/language"
)

var (
	supported = []language.Tag{language.Chinese, language.English}
	matcher   = language.NewMatcher(supported)
)

// message keys
const (
	keySheet         = "sheet"
	keyIndex         = "index"
	keyCompany       = "company"
	keyChannel       = "channel"
	keyCountry       = "country"
	keyTransport     = "transport"
	keyTransit       = "transit"
	keyActualWeight  = "actual_weight"
	keyVolumeWeight  = "volume_weight"
	keyChargeWeight  = "charge_weight"
	keyUnitPrice     = "unit_price"
	keyIntl          = "international"
	keyDomestic      = "domestic"
	keyService       = "service"
	keyRegistration  = "registration"
	keyTotalShipping = "total_shipping"
	keyProductCost   = "product_cost"
	keyTotal         = "total"
	keyTotalCNY      = "total_cny"
	keyTags          = "tags"
	keyCheapest      = "cheapest"
	keyFastest       = "fastest"
	keyRecommended   = "recommended"
	keyDays          = "days"
	keyAllCountries  = "all_countries"
)

var catalogs = map[string]map[string]string{
	"zh": {
		keySheet:         "报价",
		keyIndex:         "序号",
		keyCompany:       "物流公司",
		keyChannel:       "渠道名称",
		keyCountry:       "国家/地区",
		keyTransport:     "运输方式",
		keyTransit:       "预计时效",
		keyActualWeight:  "实际重量(kg)",
		keyVolumeWeight:  "体积重量(kg)",
		keyChargeWeight:  "计费重量(kg)",
		keyUnitPrice:     "单价(USD/kg)",
		keyIntl:          "国际运费(USD)",
		keyDomestic:      "国内运费(USD)",
		keyService:       "服务费(USD)",
		keyRegistration:  "挂号费(CNY)",
		keyTotalShipping: "运费合计(USD)",
		keyProductCost:   "货值(USD)",
		keyTotal:         "总费用(USD)",
		keyTotalCNY:      "总费用(CNY)",
		keyTags:          "特殊标识",
		keyCheapest:      "最便宜",
		keyFastest:       "最快",
		keyRecommended:   "推荐",
		keyDays:          "%s天",
		keyAllCountries:  "全部",
	},
	"en": {
		keySheet:         "Quotes",
		keyIndex:         "No.",
		keyCompany:       "Carrier",
		keyChannel:       "Channel",
		keyCountry:       "Destination",
		keyTransport:     "Transport",
		keyTransit:       "Transit time",
		keyActualWeight:  "Actual weight (kg)",
		keyVolumeWeight:  "Volumetric weight (kg)",
		keyChargeWeight:  "Chargeable weight (kg)",
		keyUnitPrice:     "Unit price (USD/kg)",
		keyIntl:          "International (USD)",
		keyDomestic:      "Domestic (USD)",
		keyService:       "Service fee (USD)",
		keyRegistration:  "Registration fee (CNY)",
		keyTotalShipping: "Shipping total (USD)",
		keyProductCost:   "Product value (USD)",
		keyTotal:         "Total (USD)",
		keyTotalCNY:      "Total (CNY)",
		keyTags:          "Tags",
		keyCheapest:      "Cheapest",
		keyFastest:       "Fastest",
		keyRecommended:   "Recommended",
		keyDays:          "%s days",
		keyAllCountries:  "all",
	},
}

// Translator resolves export labels for one language. Unsupported languages
// fall back to Chinese.
type Translator struct {
	lang string
	msgs map[string]string
}

func NewTranslator(lang string) *Translator {
	_, idx := language.MatchStrings(matcher, lang)
	code := "zh"
	if supported[idx] == language.English {
		code = "en"
	}
	return &Translator{lang: code, msgs: catalogs[code]}
}

func (t *Translator) Lang() string { return t.lang }

func (t *Translator) T(key string) string {
	if m, ok := t.msgs[key]; ok {
		return m
	}
	return key
}

var bareDays = regexp.MustCompile(`^\d+(\s*[-~]\s*\d+)?$`)

// TransitTime adds a day unit to bare ranges such as "7-10"; text that
// already carries a unit is kept as is.
func (t *Translator) TransitTime(text string) string {
	if !bareDays.MatchString(text) {
		return text
	}
	return fmt.Sprintf(t.T(keyDays), text)
}
