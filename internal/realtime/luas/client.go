package luas

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the forecast analysis page, queried with ?id=<stop>
const DefaultBaseURL = "https://luasforecasts.rpa.ie/analysis/view.aspx"

// maxBodyBytes is the largest forecast page accepted
const maxBodyBytes = 2 << 20

// Client fetches and parses Luas forecast pages, one request per stop
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// ClientOptions configures a Client. Zero values disable the timeout and the limiter.
type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// NewClient creates a new forecast client
func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}

	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return c
}

// StopURL builds the forecast page URL for a stop
func (c *Client) StopURL(stopID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("id", stopID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch returns the raw markup of a stop's forecast page.
// Any transport error, non-2xx status or oversized page is returned as a *FetchFailure.
func (c *Client) Fetch(ctx context.Context, stopID string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &FetchFailure{StopID: stopID, Cause: fmt.Errorf("rate limit wait canceled: %w", err)}
		}
	}

	stopURL, err := c.StopURL(stopID)
	if err != nil {
		return "", &FetchFailure{StopID: stopID, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stopURL, nil)
	if err != nil {
		return "", &FetchFailure{StopID: stopID, Cause: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &FetchFailure{StopID: stopID, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchFailure{
			StopID:     stopID,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("forecast page returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", &FetchFailure{StopID: stopID, Cause: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(body) > maxBodyBytes {
		return "", &FetchFailure{StopID: stopID, Cause: fmt.Errorf("%w: over %d bytes", ErrPageTooLarge, maxBodyBytes)}
	}

	return string(body), nil
}

// FetchStop fetches and parses one stop. Dropped rows are logged and the
// remaining rows are returned; a fetch or page-level parse failure is returned
// as the error.
func (c *Client) FetchStop(ctx context.Context, stopID string) (*StopSnapshot, error) {
	html, err := c.Fetch(ctx, stopID)
	if err != nil {
		return nil, err
	}
	capturedAt := time.Now().UTC()

	ext, err := ExtractTable(stopID, html)
	if err != nil {
		return nil, err
	}

	for _, rf := range ext.RowFailures {
		log.Printf("Luas: %v", rf)
	}

	return &StopSnapshot{
		StopID:     stopID,
		CapturedAt: capturedAt,
		RowCount:   len(ext.Rows),
		Message:    ext.Message,
		Rows:       ext.Rows,
	}, nil
}
