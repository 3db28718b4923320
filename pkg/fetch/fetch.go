// Package fetch implements the remote fetch adapter: HTTP retrieval of
// document bytes with optional basic authentication.
//
// The adapter surfaces network failures, authentication failures, and
// non-success statuses as distinct error kinds so callers can decide how to
// react. It never retries; retry policy belongs to the calling layer.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindNetwork indicates the request never produced an HTTP response.
	KindNetwork Kind = "network"

	// KindAuth indicates the server rejected the supplied credentials.
	KindAuth Kind = "auth"

	// KindStatus indicates a non-success, non-auth HTTP status.
	KindStatus Kind = "status"
)

// Error is a classified fetch failure.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		return fmt.Sprintf("fetch %s: network error: %v", e.URL, e.Err)
	case KindAuth:
		return fmt.Sprintf("fetch %s: authentication failed (status %d)", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error { return e.Err }

// Credentials carries basic-auth credentials.
type Credentials struct {
	Username string
	Password string
}

// Fetcher retrieves remote bytes plus a content-type hint.
type Fetcher interface {
	Get(ctx context.Context, url string, creds *Credentials) ([]byte, string, error)
}

// Client is the default HTTP-backed fetcher.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewClient returns a fetcher with the given per-request timeout.
func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "fetch").Logger(),
	}
}

// Get retrieves the resource, returning its body and content-type hint.
func (c *Client) Get(ctx context.Context, url string, creds *Credentials) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched remote resource")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", &Error{Kind: KindAuth, URL: url, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", &Error{Kind: KindStatus, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &Error{Kind: KindNetwork, URL: url, Err: err}
	}

	return body, resp.Header.Get("Content-Type"), nil
}
