package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nlrail-data/internal/common/config"
	"github.com/nlrail-data/internal/common/logger"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(config.APIConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, logger.New(io.Discard))
	c.retryInterval = 10 * time.Millisecond
	return c
}

func TestFetchDisruptionsRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"d-1"},{"id":"d-2"}]`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	start := time.Now()
	records, err := c.FetchDisruptions(context.Background(), nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	// Two backoff delays: retryInterval + 2*retryInterval
	if elapsed < 30*time.Millisecond {
		t.Errorf("expected at least 30ms of backoff delay, took %v", elapsed)
	}
}

func TestFetchDisruptionsExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.FetchDisruptions(context.Background(), nil)

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial attempt plus maxRetries
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestFetchDisruptionsClientErrorIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.FetchDisruptions(context.Background(), nil)

	if err == nil {
		t.Fatal("expected error on 403")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", got)
	}
}

func TestFetchDisruptionsSendsAPIKeyAndSince(t *testing.T) {
	var gotKey, gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(HeaderAPIKey)
		gotSince = r.URL.Query().Get("since")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	since := time.Date(2026, 8, 19, 6, 0, 0, 0, time.UTC)
	c := newTestClient(server.URL)
	records, err := c.FetchDisruptions(context.Background(), &since)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty listing, got %d records", len(records))
	}
	if gotKey != "test-key" {
		t.Errorf("expected subscription key header, got %q", gotKey)
	}
	if gotSince != "2026-08-19T06:00:00Z" {
		t.Errorf("expected since parameter in RFC 3339, got %q", gotSince)
	}
}

func TestFetchStations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != stationsPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"payload":[
			{"code":"UT","name":"Utrecht Centraal","country":"NL","lat":52.09,"lng":5.11},
			{"code":"ASD","name":"Amsterdam Centraal","country":"NL","lat":52.38,"lng":4.90}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	stations, err := c.FetchStations(context.Background())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(stations))
	}
	if stations[0].Code != "UT" || stations[0].Latitude != 52.09 {
		t.Errorf("unexpected first station: %+v", stations[0])
	}
}

func TestFetchDisruptionsBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.FetchDisruptions(context.Background(), nil); err == nil {
		t.Fatal("expected decode error for non-array body")
	}
}
