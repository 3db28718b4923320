package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/weftlang/weft/pkg/fetch"
)

// RunRequest describes a remote execution request.
type RunRequest struct {
	// Name labels the document for format resolution and run history.
	Name string

	// Data is the document body.
	Data []byte

	// ContentType hints the document format.
	ContentType string

	// Format, EntryPoint, Marker, Allow, ValueFormat, and Partial mirror the
	// run command's flags.
	Format      string
	EntryPoint  string
	Marker      string
	Allow       []string
	ValueFormat string
	Partial     bool
}

// Client talks to a remote runner service.
type Client struct {
	http *http.Client
	base string
}

// NewClient returns a client for the runner service at base.
func NewClient(base string) *Client {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		http: &http.Client{Timeout: 10 * time.Minute},
		base: strings.TrimSuffix(base, "/"),
	}
}

// Run executes a document on the remote service.
func (c *Client) Run(ctx context.Context, req RunRequest, creds *fetch.Credentials) (*RunResponse, error) {
	q := url.Values{}
	if req.Name != "" {
		q.Set("name", req.Name)
	}
	if req.Format != "" {
		q.Set("format", req.Format)
	}
	if req.EntryPoint != "" {
		q.Set("entry", req.EntryPoint)
	}
	if req.Marker != "" {
		q.Set("marker", req.Marker)
	}
	if len(req.Allow) > 0 {
		q.Set("allow", strings.Join(req.Allow, ","))
	}
	if req.ValueFormat != "" {
		q.Set("out", req.ValueFormat)
	}
	if req.Partial {
		q.Set("partial", strconv.FormatBool(req.Partial))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/run?"+q.Encode(), bytes.NewReader(req.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to build run request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if creds != nil {
		httpReq.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("run request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnprocessableEntity:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("run request rejected: %s", resp.Status)
	default:
		return nil, fmt.Errorf("run request failed: %s", resp.Status)
	}

	var out RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode run response: %w", err)
	}
	return &out, nil
}
