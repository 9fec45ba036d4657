// Package client calls the fortune server's random horoscope endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"horoscope/internal/models"
)

var (
	// ErrNotFound means the server has no eligible horoscope.
	ErrNotFound = errors.New("no horoscope available")
	// ErrUnavailable means the server could not be reached or failed.
	ErrUnavailable = errors.New("horoscope service unavailable")
	// ErrTimeout means the request did not complete in time.
	ErrTimeout = errors.New("horoscope request timed out")
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 1 << 20

// Client fetches random horoscopes over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error string `json:"error"`
}

// Random draws one horoscope, skipping excludeID when it is positive.
func (c *Client) Random(ctx context.Context, excludeID int64) (models.Horoscope, error) {
	endpoint := c.baseURL + "/fortune/random"
	if excludeID > 0 {
		endpoint += "?" + url.Values{"exclude": {strconv.FormatInt(excludeID, 10)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Horoscope{}, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Horoscope{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Horoscope{}, classifyTransport(ctx, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Horoscope{}, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		if eb.Error == "" {
			eb.Error = http.StatusText(resp.StatusCode)
		}
		return models.Horoscope{}, fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, eb.Error)
	}

	var h models.Horoscope
	if err := json.Unmarshal(body, &h); err != nil {
		return models.Horoscope{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if h.ID == 0 {
		return models.Horoscope{}, fmt.Errorf("%w: response has no id", ErrUnavailable)
	}
	return h, nil
}

// classifyTransport maps deadline failures to ErrTimeout and the rest to ErrUnavailable.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
