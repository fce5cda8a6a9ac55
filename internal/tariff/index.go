package tariff

import (
	"sort"

	"parcelquote/internal/rate"
)

// CountryZones is a destination with the zones seen for it, in first-seen order.
type CountryZones struct {
	Country string   `json:"country"`
	Zones   []string `json:"zones"`
}

// Index answers lookup questions over one record set. Build a new one when
// the records change.
type Index struct {
	records        int
	countries      map[string]*CountryZones
	zones          []string
	companies      []string
	channels       []string
	transportTypes []string
	byChannel      map[channelKey]map[string]struct{}
}

type channelKey struct{ company, channel string }

func BuildIndex(records []rate.RateRecord) *Index {
	ix := &Index{
		records:   len(records),
		countries: make(map[string]*CountryZones),
		byChannel: make(map[channelKey]map[string]struct{}),
	}
	seenZone := map[string]bool{}
	seenCompany := map[string]bool{}
	seenChannel := map[string]bool{}
	seenTransport := map[string]bool{}
	for _, r := range records {
		appendOnce(&ix.companies, seenCompany, r.Company)
		appendOnce(&ix.channels, seenChannel, r.DisplayName())
		appendOnce(&ix.transportTypes, seenTransport, r.TransportType)
		if r.Country == "" {
			continue
		}
		cz, ok := ix.countries[r.Country]
		if !ok {
			cz = &CountryZones{Country: r.Country, Zones: []string{}}
			ix.countries[r.Country] = cz
		}
		if r.Zone != "" {
			if !contains(cz.Zones, r.Zone) {
				cz.Zones = append(cz.Zones, r.Zone)
			}
			appendOnce(&ix.zones, seenZone, r.Zone)
		}
		k := channelKey{r.Company, r.Channel}
		if ix.byChannel[k] == nil {
			ix.byChannel[k] = make(map[string]struct{})
		}
		ix.byChannel[k][r.Country] = struct{}{}
	}
	return ix
}

func (ix *Index) Len() int { return ix.records }

// Countries returns destinations sorted by name.
func (ix *Index) Countries() []CountryZones {
	out := make([]CountryZones, 0, len(ix.countries))
	for _, cz := range ix.countries {
		out = append(out, CountryZones{Country: cz.Country, Zones: append([]string{}, cz.Zones...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

func (ix *Index) CountryNames() []string {
	out := make([]string, 0, len(ix.countries))
	for c := range ix.countries {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Zones returns every zone in first-seen order.
func (ix *Index) Zones() []string { return append([]string{}, ix.zones...) }

func (ix *Index) Companies() []string { return append([]string{}, ix.companies...) }

func (ix *Index) Channels() []string { return append([]string{}, ix.channels...) }

func (ix *Index) TransportTypes() []string { return append([]string{}, ix.transportTypes...) }

// CountriesFor returns the sorted destinations served by one channel.
func (ix *Index) CountriesFor(company, channel string) []string {
	set := ix.byChannel[channelKey{company, channel}]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func appendOnce(list *[]string, seen map[string]bool, v string) {
	if v == "" || seen[v] {
		return
	}
	seen[v] = true
	*list = append(*list, v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
