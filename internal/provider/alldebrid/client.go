// Package alldebrid adapts the AllDebrid v4 API: a long-lived API key
// unlocks restricted links into direct download URLs.
package alldebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinoosan/debrix/internal/creds"
	"github.com/tinoosan/debrix/internal/data"
	"github.com/tinoosan/debrix/internal/metrics"
	"github.com/tinoosan/debrix/internal/provider"
)

const (
	defaultBaseURL = "https://api.alldebrid.com/v4"
	agent          = "debrix"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	creds   *creds.Manager
	log     *slog.Logger
}

var _ provider.Provider = (*Client)(nil)

func New(log *slog.Logger, apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
	// The API key never expires; the refresh call validates it once and the
	// record stays valid for the process lifetime.
	c.creds = creds.NewManager(log, "alldebrid", 0, c.refresh)
	return c
}

// NewFromEnv reads ALLDEBRID_APIKEY (required) and ALLDEBRID_API_URL.
func NewFromEnv(log *slog.Logger) (*Client, error) {
	key := os.Getenv("ALLDEBRID_APIKEY")
	if key == "" {
		return nil, fmt.Errorf("ALLDEBRID_APIKEY is not set")
	}
	return New(log, key, os.Getenv("ALLDEBRID_API_URL")), nil
}

func (c *Client) Name() string { return "alldebrid" }

// Matches always reports true: alldebrid is the catch-all provider and must
// be registered last.
func (c *Client) Matches(string) bool { return true }

func (c *Client) Creds() *creds.Manager { return c.creds }

func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.creds.EnsureValid(ctx)
	return err
}

func (c *Client) Authenticated() bool { return c.creds.Authenticated() }

// --- API wire types ---

type apiResp struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type userData struct {
	User struct {
		Username string `json:"username"`
	} `json:"user"`
}

type unlockData struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
}

type redirectorData struct {
	Links []string `json:"links"`
	Link  string   `json:"link"`
}

type linkInfosData struct {
	Infos []linkInfo `json:"infos"`
}

type linkInfo struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Link     string    `json:"link"`
	Host     string    `json:"host"`
	Error    *apiError `json:"error,omitempty"`
}

// refresh validates the API key against /user. The stored token is the key
// itself; a rejected key stores nothing.
func (c *Client) refresh(ctx context.Context) (string, error) {
	q := url.Values{"agent": {agent}, "apikey": {c.apiKey}}
	raw, err := c.call(ctx, "user", http.MethodGet, c.baseURL+"/user?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var u userData
	if err := json.Unmarshal(raw, &u); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	c.log.Info("authenticated with alldebrid", "username", u.User.Username)
	return c.apiKey, nil
}

// Resolve exchanges a restricted link for a direct URL and filename via
// /link/unlock.
func (c *Client) Resolve(ctx context.Context, rawURL, _ string) (*provider.Resolved, error) {
	if _, err := c.creds.EnsureValid(ctx); err != nil {
		return nil, err
	}
	q := url.Values{"agent": {agent}, "apikey": {c.apiKey}, "link": {rawURL}}
	raw, err := c.call(ctx, "link/unlock", http.MethodGet, c.baseURL+"/link/unlock?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unlock link: %w", err)
	}
	var u unlockData
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode unlock: %w", err)
	}
	filename := u.Filename
	if filename == "" {
		filename = "download"
	}
	c.log.Info("unlocked link", "host", hostOf(rawURL), "filename", filename)
	return &provider.Resolved{URL: u.Link, Filename: filename}, nil
}

// Browse resolves a link through the redirector and fetches file infos for
// every redirected link.
func (c *Client) Browse(ctx context.Context, rawURL, password string) ([]data.File, error) {
	if _, err := c.creds.EnsureValid(ctx); err != nil {
		return nil, err
	}

	form := url.Values{"link": {rawURL}}
	raw, err := c.call(ctx, "link/redirector", http.MethodPost, c.baseURL+"/link/redirector", form)
	if err != nil {
		return nil, fmt.Errorf("redirector: %w", err)
	}
	var rd redirectorData
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, fmt.Errorf("decode redirector: %w", err)
	}
	links := rd.Links
	if len(links) == 0 && rd.Link != "" {
		links = []string{rd.Link}
	}
	if len(links) == 0 {
		// Hosts without an intermediate page redirect to themselves.
		links = []string{rawURL}
	}

	form = url.Values{}
	for _, l := range links {
		form.Add("link[]", l)
	}
	if password != "" {
		form.Set("password", password)
	}
	raw, err = c.call(ctx, "link/infos", http.MethodPost, c.baseURL+"/link/infos", form)
	if err != nil {
		return nil, fmt.Errorf("link infos: %w", err)
	}
	var li linkInfosData
	if err := json.Unmarshal(raw, &li); err != nil {
		return nil, fmt.Errorf("decode link infos: %w", err)
	}

	files := make([]data.File, 0, len(li.Infos))
	for _, info := range li.Infos {
		if info.Error != nil || info.Link == "" {
			continue
		}
		files = append(files, data.File{
			Filename:  info.Filename,
			Size:      info.Size,
			SizeHuman: data.HumanSize(info.Size),
			Link:      info.Link,
			Host:      info.Host,
			Supported: true,
		})
	}
	return files, nil
}

// call issues one API request and unwraps the response envelope.
func (c *Client) call(ctx context.Context, op, method, callURL string, form url.Values) (json.RawMessage, error) {
	timer := prometheus.NewTimer(metrics.ProviderLatency.WithLabelValues("alldebrid", op))
	defer timer.ObserveDuration()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, callURL, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("alldebrid", op).Inc()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("alldebrid", op).Inc()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ProviderErrors.WithLabelValues("alldebrid", op).Inc()
		return nil, fmt.Errorf("alldebrid http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var ar apiResp
	if err := json.Unmarshal(b, &ar); err != nil {
		metrics.ProviderErrors.WithLabelValues("alldebrid", op).Inc()
		return nil, fmt.Errorf("alldebrid decode: %w", err)
	}
	if ar.Status != "success" {
		metrics.ProviderErrors.WithLabelValues("alldebrid", op).Inc()
		if ar.Error != nil {
			return nil, fmt.Errorf("alldebrid %s: %s", ar.Error.Code, ar.Error.Message)
		}
		return nil, fmt.Errorf("alldebrid status %q", ar.Status)
	}
	return ar.Data, nil
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Host
	}
	return ""
}
