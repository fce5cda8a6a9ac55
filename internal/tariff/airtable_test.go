package tariff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelquote/internal/config"
)

func newTestAirtable(t *testing.T, h http.HandlerFunc) *Airtable {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a := NewAirtable(config.AirtableConfig{
		APIKey:     "key123",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		PageSize:   2,
	}, nil, nil)
	a.backoff = time.Millisecond
	return a
}

func TestAirtable_Pagination(t *testing.T) {
	a := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/appX/tblY" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("pageSize") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("offset") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "r1", "createdTime": "t1", "fields": map[string]any{"国家/地区": "美国"}},
					{"id": "r2", "createdTime": "t2", "fields": map[string]any{"国家/地区": "英国"}},
				},
				"offset": "next",
			})
		case "next":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "r3", "createdTime": "t3", "fields": map[string]any{"国家/地区": "德国"}},
				},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	rows, err := a.FetchRawRows(context.Background(), "appX", "tblY")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, "德国", rows[2].Fields["国家/地区"])
}

func TestAirtable_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	a := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"id":"r1","fields":{}}]}`))
	})

	rows, err := a.FetchRawRows(context.Background(), "appX", "tblY")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAirtable_GivesUp(t *testing.T) {
	var calls atomic.Int32
	a := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := a.FetchRawRows(context.Background(), "appX", "tblY")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")

	calls.Store(0)
	b := newTestAirtable(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
	})
	_, err = b.FetchRawRows(context.Background(), "appX", "tblY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}
