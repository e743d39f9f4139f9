package api

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
)

// DefaultRetryAfter is assumed when a 429 arrives without a usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

var (
	// ErrSymbolNotFound is returned when the API has no data for a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrMalformedResponse is returned when a 2xx body lacks required fields.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError represents an error status from the Finnhub API.
type APIError struct {
	StatusCode      int
	Message         string
	Body            []byte
	RetryAfterDelay time.Duration // server-requested wait, set for 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finnhub api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// RetryAfter returns the server-requested delay before the next attempt, or 0.
func (e *APIError) RetryAfter() time.Duration {
	return e.RetryAfterDelay
}

// parseRetryAfter reads a Retry-After header given as delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// doRequest performs an HTTP request with the given method and path.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	if c.token != "" {
		query.Set("token", c.token)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			delay, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			if !ok {
				delay = DefaultRetryAfter
			}
			apiErr.RetryAfterDelay = delay
			c.logger.Warn("rate limited by quote api",
				"path", path,
				"retry_after", delay,
			)
		}
		return nil, apiErr
	}

	return body, nil
}

// get performs a single GET request and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: unmarshal: %w", ErrMalformedResponse, err)
	}

	return nil
}
