// Package geo provides clients for the geographic enrichment services:
// Nominatim reverse geocoding, Nominatim nearby-POI search, and the Wikidata
// SPARQL proximity query. Each call is stateless and normalizes its outcome
// so the orchestrator can always inspect both the parsed result and the
// verbatim upstream payload.
package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
)

// Config holds geo client configuration.
type Config struct {
	// Nominatim API base URL
	BaseURL string

	// Wikidata SPARQL endpoint. Empty degrades the proximity query to an
	// explicit unavailable result.
	SPARQLEndpoint string

	// Required by the Nominatim and Wikidata usage policies.
	UserAgent string

	GeocodeTimeout time.Duration
	POITimeout     time.Duration
	SPARQLTimeout  time.Duration
}

// Client issues the outbound enrichment calls.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *logger.Logger
}

// NewClient creates a new geo client. Timeouts are applied per call via
// request contexts, so one unconfigured value never caps the others.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.GeocodeTimeout == 0 {
		cfg.GeocodeTimeout = 10 * time.Second
	}
	if cfg.POITimeout == 0 {
		cfg.POITimeout = 10 * time.Second
	}
	if cfg.SPARQLTimeout == 0 {
		cfg.SPARQLTimeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     log.WithField("component", "geo"),
	}
}

// CallError reports a failed enrichment call. It carries the service name
// and request URL so the orchestrator can compose the failure payload.
type CallError struct {
	Service string
	URL     string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// fmtCoord formats a coordinate without trailing zero noise, preserving
// full float precision in query strings.
func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// get performs one GET request with the given timeout and returns the raw
// response body. A non-200 status is an error.
func (c *Client) get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
