package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parcelquote/internal/auth"
	"parcelquote/internal/cache"
	"parcelquote/internal/rate"
	"parcelquote/internal/tariff"
)

func tariffRow(id, country, bracket string, price float64, days string) tariff.RawRow {
	return tariff.RawRow{ID: id, Fields: map[string]any{
		"国家/地区":      country,
		"重量(KG)":     bracket,
		"运费(RMB/KG)": price,
		"参考时效":       days,
	}}
}

type fixture struct {
	handler http.Handler
	tokens  *auth.Tokens
	records *tariff.Aggregator
}

func newFixture(t *testing.T, requireAuth bool) fixture {
	t.Helper()
	reg, err := tariff.NewRegistry([]tariff.Provider{
		{Company: "云途物流", SourceID: "appYT", Tables: []tariff.Table{
			{Channel: "特惠普货", TableID: "t1"},
			{Channel: "特惠带电", TableID: "t2"},
		}},
		{Company: "燕文物流", SourceID: "appYW", Tables: []tariff.Table{
			{Channel: "专线普货", TableID: "t1"},
		}},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	src := tariff.NewStatic(map[string][]tariff.RawRow{
		tariff.StaticKey("appYT", "t1"): {
			tariffRow("yt1", "美国", "0<W≤30", 53, "7-10"),
			tariffRow("yt2", "英国", "0<W≤30", 60, "8-12"),
		},
		tariff.StaticKey("appYT", "t2"): {
			tariffRow("yt3", "美国", "0<W≤30", 70, "5-8"),
		},
		tariff.StaticKey("appYW", "t1"): {
			tariffRow("yw1", "美国", "0<W≤30", 45, "12-15"),
			tariffRow("yw2", "德国", "0<W≤30", 40, "10-14"),
		},
	})
	mem := cache.NewMemory()
	agg := tariff.NewAggregator(reg, src, tariff.NewNormalizer(reg, 0.01), mem, time.Minute, nil)
	cat := tariff.NewCatalog(reg, agg, mem, time.Minute, 7, 0.92, nil)

	store := auth.NewMemoryStore()
	if err := store.AddWithPassword(auth.User{ID: "admin", Name: "管理员", Phone: "18888888888", Role: auth.RoleAdmin}, "admin-pass"); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if err := store.AddWithPassword(auth.User{ID: "emp001", Name: "张三", Phone: "13900000001", Role: auth.RoleEmployee}, "emp-pass"); err != nil {
		t.Fatalf("add employee: %v", err)
	}
	tokens, err := auth.NewTokens("test-secret", time.Hour, "parcelquote")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	h := New(Deps{
		Records:     agg,
		Catalog:     cat,
		Ranker:      rate.NewRanker(rate.NewComposer(rate.DefaultPricing()), nil),
		Auth:        auth.NewService(store, tokens),
		RequireAuth: requireAuth,
	})
	return fixture{handler: h, tokens: tokens, records: agg}
}

func (f fixture) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := f.tokens.Issue(auth.User{ID: "u-" + role, Phone: "13900000009", Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func do(h http.Handler, method, target string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal %q: %v", rr.Body.String(), err)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.005 }

func endToEndPackage() map[string]any {
	return map[string]any{
		"company":     "云途物流",
		"channelName": "特惠普货",
		"country":     "美国",
		"weight":      5,
		"length":      30,
		"width":       30,
		"height":      10,
	}
}

func TestHealthz(t *testing.T) {
	h := New(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body 'ok', got %q", body)
	}
}

func TestRequestIDHeaderPresent(t *testing.T) {
	h := New(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rid := rr.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rid := rr.Header().Get("X-Request-ID"); rid != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", rid)
	}
}

func TestQuote_EndToEnd(t *testing.T) {
	f := newFixture(t, false)
	rr := do(f.handler, http.MethodPost, "/quote", map[string]any{"packageInfo": endToEndPackage()}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var res rate.QuoteSet
	decodeBody(t, rr, &res)
	if res.Count != 1 || len(res.Results) != 1 {
		t.Fatalf("expected one result, got %+v", res)
	}
	q := res.Results[0]
	if q.VolumeWeight != 1.5 || q.ChargeWeight != 5 {
		t.Fatalf("unexpected weights: volume=%v charge=%v", q.VolumeWeight, q.ChargeWeight)
	}
	if !near(q.InternationalShippingCNY, 265) || !near(q.TotalCost, 40.06) || !near(q.TotalCostCNY, 280.4) {
		t.Fatalf("unexpected totals: intl=%v usd=%v cny=%v", q.InternationalShippingCNY, q.TotalCost, q.TotalCostCNY)
	}
	if !q.IsCheapest || !q.IsFastest {
		t.Fatalf("single result should be cheapest and fastest: %+v", q)
	}
	if res.Summary.Cheapest == nil || res.Summary.Cheapest.Channel.ID != "yt1" {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
}

func TestQuote_OutOfBracketIsEmpty(t *testing.T) {
	f := newFixture(t, false)
	pkg := endToEndPackage()
	pkg["weight"] = 40
	rr := do(f.handler, http.MethodPost, "/quote", map[string]any{"packageInfo": pkg}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var res struct {
		Results []json.RawMessage `json:"results"`
		Count   int               `json:"count"`
	}
	decodeBody(t, rr, &res)
	if res.Results == nil || len(res.Results) != 0 || res.Count != 0 {
		t.Fatalf("expected empty results array, got %s", rr.Body.String())
	}
}

func TestQuote_RequiresToken(t *testing.T) {
	f := newFixture(t, true)
	body := map[string]any{"packageInfo": endToEndPackage()}

	rr := do(f.handler, http.MethodPost, "/quote", body, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr = do(f.handler, http.MethodPost, "/quote", body, f.token(t, auth.RoleEmployee))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d; body=%s", rr.Code, rr.Body.String())
	}
}

func TestRecommend(t *testing.T) {
	f := newFixture(t, false)
	pkg := map[string]any{"country": "美国", "weight": 5, "length": 30, "width": 30, "height": 10}

	rr := do(f.handler, http.MethodPost, "/recommend", map[string]any{"packageInfo": pkg}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var rec rate.Recommendation
	decodeBody(t, rr, &rec)
	if !rec.HasRecommendations || rec.TotalChannels != 3 {
		t.Fatalf("expected 3 channels, got %+v", rec)
	}
	if rec.Results[0].Channel.ChannelName != "专线普货" || !near(rec.Results[0].TotalCost, 34.34) {
		t.Fatalf("expected 专线普货 cheapest at 34.34, got %+v", rec.Results[0])
	}
	if rec.Recommendations == nil || rec.Recommendations.Fastest.Channel != "特惠带电" {
		t.Fatalf("expected 特惠带电 fastest, got %+v", rec.Recommendations)
	}

	pkg["cargoType"] = "带电"
	rr = do(f.handler, http.MethodPost, "/recommend", map[string]any{"packageInfo": pkg}, "")
	decodeBody(t, rr, &rec)
	if rec.TotalChannels != 1 || rec.Results[0].Channel.ChannelName != "特惠带电" {
		t.Fatalf("battery cargo should only reach 特惠带电, got %+v", rec.Results)
	}

	pkg["country"] = "英国"
	rr = do(f.handler, http.MethodPost, "/recommend", map[string]any{"packageInfo": pkg}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var empty map[string]any
	decodeBody(t, rr, &empty)
	if empty["hasRecommendations"] != false || empty["message"] != "抱歉，暂无支持 英国 的 带电 物流渠道" {
		t.Fatalf("unexpected empty recommendation: %s", rr.Body.String())
	}
}

func TestQuoteBatch(t *testing.T) {
	f := newFixture(t, false)
	other := endToEndPackage()
	other["country"] = "法国"
	rr := do(f.handler, http.MethodPost, "/quote/batch", map[string]any{
		"packages": []map[string]any{endToEndPackage(), endToEndPackage(), other},
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var mq rate.MultiQuote
	decodeBody(t, rr, &mq)
	if len(mq.Items) != 3 || mq.Unquoted != 1 {
		t.Fatalf("unexpected batch: items=%d unquoted=%d", len(mq.Items), mq.Unquoted)
	}
	if !near(mq.GrandTotalUSD, 80.12) || !near(mq.GrandTotalCNY, 560.8) {
		t.Fatalf("unexpected grand totals: usd=%v cny=%v", mq.GrandTotalUSD, mq.GrandTotalCNY)
	}
}

func TestChannels(t *testing.T) {
	f := newFixture(t, false)
	rr := do(f.handler, http.MethodGet, "/channels?country=%E7%BE%8E%E5%9B%BD&cargoType=battery", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var res struct {
		Channels []tariff.ChannelView `json:"channels"`
		Count    int                  `json:"count"`
	}
	decodeBody(t, rr, &res)
	if res.Count != 1 || res.Channels[0].ChannelName != "特惠带电" || res.Channels[0].PriceCNY != 70 {
		t.Fatalf("unexpected channels: %+v", res)
	}

	rr = do(f.handler, http.MethodGet, "/channels?company=%E7%87%95%E6%96%87%E7%89%A9%E6%B5%81", nil, "")
	decodeBody(t, rr, &res)
	if res.Count != 2 {
		t.Fatalf("expected 2 燕文物流 rows, got %d", res.Count)
	}
}

func TestLogisticsCascade(t *testing.T) {
	f := newFixture(t, false)

	rr := do(f.handler, http.MethodGet, "/logistics", nil, "")
	var ov tariff.Overview
	decodeBody(t, rr, &ov)
	if len(ov.Companies) != 2 || ov.TotalCountries != 3 || ov.TotalRecords != 5 {
		t.Fatalf("unexpected overview: %+v", ov)
	}

	rr = do(f.handler, http.MethodGet, "/logistics?company=%E4%BA%91%E9%80%94%E7%89%A9%E6%B5%81", nil, "")
	var cc struct {
		Company  string   `json:"company"`
		Channels []string `json:"channels"`
	}
	decodeBody(t, rr, &cc)
	if cc.Company != "云途物流" || strings.Join(cc.Channels, ",") != "特惠普货,特惠带电" {
		t.Fatalf("unexpected channels: %+v", cc)
	}

	rr = do(f.handler, http.MethodGet, "/logistics?company=%E4%BA%91%E9%80%94%E7%89%A9%E6%B5%81&channel=%E7%89%B9%E6%83%A0%E6%99%AE%E8%B4%A7", nil, "")
	var countries tariff.ChannelCountries
	decodeBody(t, rr, &countries)
	if strings.Join(countries.Countries, ",") != "美国,英国" {
		t.Fatalf("unexpected countries: %+v", countries)
	}
}

func TestCountries(t *testing.T) {
	f := newFixture(t, false)
	rr := do(f.handler, http.MethodGet, "/countries", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var bd tariff.BaseData
	decodeBody(t, rr, &bd)
	if len(bd.Countries) != 3 || len(bd.Companies) != 2 || len(bd.Channels) != 3 {
		t.Fatalf("unexpected base data: %+v", bd)
	}
	if len(bd.TransportTypes) != 1 || bd.TransportTypes[0] != "空运" {
		t.Fatalf("unexpected transport types: %v", bd.TransportTypes)
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, false)
	rr := do(f.handler, http.MethodPost, "/quote", map[string]any{"packageInfo": endToEndPackage()}, "")
	var set rate.QuoteSet
	decodeBody(t, rr, &set)

	rr = do(f.handler, http.MethodPost, "/export", map[string]any{
		"results": set.Results,
		"format":  "csv",
		"lang":    "en",
		"country": "美国",
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, ".csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if !strings.Contains(rr.Body.String(), "Carrier") || !strings.Contains(rr.Body.String(), "40.06") {
		t.Fatalf("unexpected csv body: %s", rr.Body.String())
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, true)

	rr := do(f.handler, http.MethodPost, "/auth/login", map[string]string{"phone": "13900000001", "password": "emp-pass"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var res auth.LoginResponse
	decodeBody(t, rr, &res)
	if res.User.ID != "emp001" || res.Token == "" {
		t.Fatalf("unexpected login response: %+v", res)
	}

	rr = do(f.handler, http.MethodPost, "/quote", map[string]any{"packageInfo": endToEndPackage()}, res.Token)
	if rr.Code != http.StatusOK {
		t.Fatalf("login token should authorize quotes, got %d", rr.Code)
	}
}

func TestAdminRefresh(t *testing.T) {
	f := newFixture(t, false)

	if rr := do(f.handler, http.MethodPost, "/admin/refresh", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := do(f.handler, http.MethodPost, "/admin/refresh", nil, f.token(t, auth.RoleEmployee)); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", rr.Code)
	}
	rr := do(f.handler, http.MethodPost, "/admin/refresh", nil, f.token(t, auth.RoleAdmin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d; body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, false)
	do(f.handler, http.MethodGet, "/countries", nil, "")
	rr := do(f.handler, http.MethodGet, "/metrics", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",route="/countries",status="200"}`) {
		t.Fatalf("expected route-labelled request counter in metrics output")
	}
	if !strings.Contains(body, "rate_table_fetches_total") {
		t.Fatalf("expected rate fetch counter in metrics output")
	}
}
