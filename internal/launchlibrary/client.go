// Package launchlibrary fetches upcoming launches from a Launch Library 2 API.
package launchlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// DefaultBaseURL is the public upcoming-launch endpoint.
const DefaultBaseURL = "https://ll.thespacedevs.com/2.2.0/launch/upcoming/"

const (
	defaultPageSize = 50
	defaultMaxPages = 4
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 512
)

// Opts holds configuration options for the Client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
	PageSize   int
	MaxPages   int
	UserAgent  string
}

// Option defines a configuration option for the Client.
type Option func(*Opts)

// WithBaseURL overrides the upcoming-launch endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithPageSize sets the number of launches requested per page.
func WithPageSize(n int) Option {
	return func(o *Opts) { o.PageSize = n }
}

// WithMaxPages bounds how many next links are followed.
func WithMaxPages(n int) Option {
	return func(o *Opts) { o.MaxPages = n }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Opts) { o.UserAgent = ua }
}

// Client reads the upcoming launch list.
type Client struct {
	baseURL   string
	http      *http.Client
	pageSize  int
	maxPages  int
	userAgent string
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	cfg := Opts{
		BaseURL:   DefaultBaseURL,
		PageSize:  defaultPageSize,
		MaxPages:  defaultMaxPages,
		UserAgent: "LaunchPipe",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		http:      cfg.HTTPClient,
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxPages,
		userAgent: cfg.UserAgent,
	}
}

// Upcoming fetches every page of upcoming launches up to the page cap.
// Any failed page fails the whole call.
func (c *Client) Upcoming(ctx context.Context) ([]models.LaunchRecord, error) {
	next, err := c.firstPageURL()
	if err != nil {
		return nil, err
	}

	var records []models.LaunchRecord
	seen := make(map[string]bool)
	for page := 0; next != "" && page < c.maxPages; page++ {
		resp, err := c.fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Results {
			if raw.ID == "" || seen[raw.ID] {
				continue
			}
			seen[raw.ID] = true
			records = append(records, raw.record())
		}
		next = resp.Next
	}
	slog.Debug("Client.Upcoming: fetched launches", "count", len(records), "truncated", next != "")
	return records, nil
}

func (c *Client) firstPageURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("mode", "detailed")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (*pageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Warn("Client.fetch: unexpected status", "status", resp.StatusCode, "url", pageURL)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode feed page: %w", err)
	}
	return &page, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned status %d: %s", e.Code, e.Body)
}
