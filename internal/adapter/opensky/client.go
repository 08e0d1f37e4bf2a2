// Package opensky fetches raw state vectors from the OpenSky Network REST API.
package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rookhaven/flightmap/internal/domain"
)

const (
	defaultBaseURL = "https://opensky-network.org/api"

	// Connection pool settings. The service issues one request per refresh,
	// so the pool mainly keeps the TLS session warm between manual refreshes.
	maxIdleConns        = 10
	maxConnsPerHost     = 5
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// NetworkError is a transport-level failure: timeout, DNS, connection reset,
// or a non-2xx response. StatusCode is 0 when the request never completed.
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("opensky: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("opensky: request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FeedFormatError means the response arrived but the envelope could not be
// decoded into the expected shape.
type FeedFormatError struct {
	Err error
}

func (e *FeedFormatError) Error() string {
	return fmt.Sprintf("opensky: malformed feed envelope: %v", e.Err)
}

func (e *FeedFormatError) Unwrap() error { return e.Err }

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API endpoint, useful for testing.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithToken sets a bearer token attached to every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// Client fetches live state vectors from the OpenSky `/states/all` endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates an OpenSky API client with connection pooling.
func NewClient(opts ...ClientOption) *Client {
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// stateEnvelope mirrors the JSON shape returned by /states/all. A null or
// absent `states` field decodes to a nil slice.
type stateEnvelope struct {
	Time   int64                   `json:"time"`
	States []domain.RawStateVector `json:"states"`
}

// FetchRawStates retrieves the current raw state-vector rows. It returns the
// rows exactly as provided by the feed; validation happens downstream. A
// missing `states` field means zero flights, not an error. There is no retry
// built in: retry is a caller policy.
func (c *Client) FetchRawStates(ctx context.Context) ([]domain.RawStateVector, error) {
	url := fmt.Sprintf("%s/states/all", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the pooled connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &NetworkError{StatusCode: resp.StatusCode}
	}

	var envelope stateEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &FeedFormatError{Err: err}
	}

	return envelope.States, nil
}
