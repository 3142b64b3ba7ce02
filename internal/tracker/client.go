// Package tracker talks to the Jira Cloud REST API (v3). It only creates
// issues; everything else about the tracker is out of reach on purpose.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/voicetrack/voicetrack/internal/types"
)

const (
	createIssuePath = "/rest/api/3/issue"

	// DefaultRequestsPerSecond keeps bulk applies polite to the tracker
	DefaultRequestsPerSecond = 5.0

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

// Config holds tracker connection settings
type Config struct {
	Site              string // e.g. https://acme.atlassian.net
	Email             string
	APIToken          string
	HTTPClient        *http.Client // Optional
	RequestsPerSecond float64      // Optional; <= 0 uses DefaultRequestsPerSecond
}

// Client creates issues through the Jira REST API
type Client struct {
	site       string
	email      string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient validates cfg and returns a client. No request is made.
func NewClient(cfg Config) (*Client, error) {
	site, err := NormalizeSite(cfg.Site)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, fmt.Errorf("%w: tracker email is required (set JIRA_EMAIL)", types.ErrPrecondition)
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("%w: tracker API token is required (set JIRA_API_TOKEN)", types.ErrPrecondition)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	return &Client{
		site:       site,
		email:      strings.TrimSpace(cfg.Email),
		token:      strings.TrimSpace(cfg.APIToken),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// NormalizeSite turns "acme.atlassian.net" or "https://acme.atlassian.net/"
// into "https://acme.atlassian.net". Plain http is kept for local test servers.
func NormalizeSite(site string) (string, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return "", fmt.Errorf("%w: tracker site is required (set JIRA_SITE)", types.ErrPrecondition)
	}
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid tracker site %q", types.ErrPrecondition, site)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("%w: unsupported tracker site scheme %q", types.ErrPrecondition, u.Scheme)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// Site returns the normalized base address
func (c *Client) Site() string {
	return c.site
}

// IssueURL is the browse link for an issue key
func (c *Client) IssueURL(key string) string {
	return IssueURL(c.site, key)
}

// IssueURL is the browse link for an issue key on site
func IssueURL(site, key string) string {
	return strings.TrimRight(site, "/") + "/browse/" + key
}

// CreatedIssue is the tracker's answer to a create call
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
	URL  string `json:"-"`
}

// APIError is a non-success response from the tracker
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("tracker API returned %d", e.Status)
	}
	return fmt.Sprintf("tracker API returned %d: %s", e.Status, types.Truncate(body, 500))
}

// CreateIssue performs exactly one create call. It never retries.
func (c *Client) CreateIssue(ctx context.Context, req CreateRequest) (*CreatedIssue, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode create request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site+createIssuePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.SetBasicAuth(c.email, c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tracker request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker response: %w", err)
	}

	slog.Debug("tracker create issue", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var created CreatedIssue
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to parse tracker response: %w", err)
	}
	if created.Key == "" {
		return nil, fmt.Errorf("tracker response has no issue key: %s", types.Truncate(string(body), 200))
	}
	created.URL = c.IssueURL(created.Key)
	return &created, nil
}
