package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"parcelquote/internal/config"
)

const (
	defaultAirtableBaseURL = "https://api.airtable.com/v0"
	maxAirtablePages       = 1000
)

// Airtable lists tariff tables through the Airtable REST API.
type Airtable struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

// NewAirtable builds a client that authenticates with cfg.APIKey as a bearer
// token. A nil base client gets one bounded by cfg.Timeout.
func NewAirtable(cfg config.AirtableConfig, base *http.Client, log *zap.Logger) *Airtable {
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = base.Timeout

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAirtableBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Airtable{
		baseURL:    baseURL,
		httpClient: client,
		pageSize:   pageSize,
		maxRetries: retries,
		backoff:    500 * time.Millisecond,
		log:        log,
	}
}

type listResponse struct {
	Records []RawRow `json:"records"`
	Offset  string   `json:"offset"`
}

// FetchRawRows reads every page of a table in source order.
func (a *Airtable) FetchRawRows(ctx context.Context, sourceID, tableID string) ([]RawRow, error) {
	var rows []RawRow
	offset := ""
	for page := 0; page < maxAirtablePages; page++ {
		resp, err := a.listPage(ctx, sourceID, tableID, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, resp.Records...)
		if resp.Offset == "" {
			return rows, nil
		}
		offset = resp.Offset
	}
	return nil, fmt.Errorf("airtable %s/%s: more than %d pages", sourceID, tableID, maxAirtablePages)
}

func (a *Airtable) listPage(ctx context.Context, sourceID, tableID, offset string) (listResponse, error) {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(a.pageSize))
	if offset != "" {
		q.Set("offset", offset)
	}
	reqURL := a.baseURL + "/" + url.PathEscape(sourceID) + "/" + url.PathEscape(tableID) + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			wait := a.backoff * time.Duration(1<<(attempt-1))
			a.log.Debug("retrying airtable request",
				zap.String("source", sourceID),
				zap.String("table", tableID),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return listResponse{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		out, retry, err := a.do(ctx, reqURL)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return listResponse{}, fmt.Errorf("airtable %s/%s: %w", sourceID, tableID, lastErr)
}

// do performs one request. retry reports whether the failure is transient.
func (a *Airtable) do(ctx context.Context, reqURL string) (out listResponse, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return out, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return out, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return out, true, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, false, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, false, fmt.Errorf("decode response: %w", err)
	}
	return out, false, nil
}
