package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nlrail-data/internal/common/config"
	"github.com/nlrail-data/internal/common/logger"
	"github.com/nlrail-data/pkg/disruptions/models"
)

const (
	HeaderAPIKey = "Ocp-Apim-Subscription-Key"
	UserAgent    = "nlrail-data/1.0"

	disruptionsPath = "/disruptions/v3"
	stationsPath    = "/reisinformatie-api/api/v2/stations"

	maxRetries = 3
)

// Client fetches disruption and station records from the NS gateway.
// Transient failures are retried with bounded exponential backoff
// (2s, 4s, 8s); exhaustion surfaces the last error to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger

	// retryInterval is the first backoff delay; shortened in tests
	retryInterval time.Duration
}

func NewClient(cfg config.APIConfig, log logger.Logger) *Client {
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		httpClient:    httpClient,
		logger:        log,
		retryInterval: 2 * time.Second,
	}
}

// FetchDisruptions returns the raw disruption records listed by the API.
// Records stay as raw JSON here so one malformed entry can be rejected
// downstream without losing the batch. since, when non-nil, narrows the
// listing to records updated after that instant.
func (c *Client) FetchDisruptions(ctx context.Context, since *time.Time) ([]json.RawMessage, error) {
	endpoint := c.baseURL + disruptionsPath
	if since != nil {
		endpoint += "?" + url.Values{"since": {since.UTC().Format(time.RFC3339)}}.Encode()
	}

	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching disruptions: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding disruption listing: %w", err)
	}

	c.logger.Info("Fetched disruption listing", "records", len(records))
	return records, nil
}

// FetchStations returns the static station list used to seed the
// reference table
func (c *Client) FetchStations(ctx context.Context) ([]models.APIStation, error) {
	body, err := c.getWithRetry(ctx, c.baseURL+stationsPath)
	if err != nil {
		return nil, fmt.Errorf("fetching stations: %w", err)
	}

	var response struct {
		Payload []models.APIStation `json:"payload"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding station listing: %w", err)
	}

	c.logger.Info("Fetched station listing", "stations", len(response.Payload))
	return response.Payload, nil
}

// getWithRetry issues a GET and retries network errors and 5xx
// responses; 4xx responses are permanent and fail immediately
func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte
	attempt := 0

	operation := func() error {
		attempt++
		var err error
		body, err = c.get(ctx, endpoint)
		if err != nil {
			c.logger.Warn("API request failed",
				"endpoint", endpoint,
				"attempt", attempt,
				"error", err)
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryInterval
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0
	expBackoff.MaxInterval = 8 * c.retryInterval

	err := backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(expBackoff, maxRetries), ctx),
	)
	if err != nil {
		return nil, err
	}

	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}
