// Package gofile adapts gofile.io: direct links require a short-lived
// account token obtained by creating an anonymous account. The token is
// renewed in the background by a creds.Renewer wired up at boot.
package gofile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinoosan/debrix/internal/creds"
	"github.com/tinoosan/debrix/internal/data"
	"github.com/tinoosan/debrix/internal/metrics"
	"github.com/tinoosan/debrix/internal/provider"
)

const (
	defaultBaseURL = "https://api.gofile.io"
	// Site token the gofile web app sends with content lookups.
	websiteToken = "4fd6sg89d7s6"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// DefaultTokenTTL is how long an anonymous account token is trusted
	// before it is refreshed.
	DefaultTokenTTL = 9 * time.Minute
)

var (
	ErrBadURL   = errors.New("invalid gofile url format")
	ErrPassword = errors.New("password required or incorrect password")
)

type Client struct {
	baseURL string
	http    *http.Client
	creds   *creds.Manager
	log     *slog.Logger
}

var _ provider.Provider = (*Client)(nil)

func New(log *slog.Logger, ttl time.Duration, baseURL string) *Client {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
	c.creds = creds.NewManager(log, "gofile", ttl, c.refresh)
	return c
}

// NewFromEnv reads GOFILE_TOKEN_TTL_MIN and GOFILE_API_URL.
func NewFromEnv(log *slog.Logger) *Client {
	ttl := DefaultTokenTTL
	if v := os.Getenv("GOFILE_TOKEN_TTL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Minute
		}
	}
	return New(log, ttl, os.Getenv("GOFILE_API_URL"))
}

func (c *Client) Name() string { return "gofile" }

func (c *Client) Matches(rawURL string) bool {
	return strings.Contains(rawURL, "gofile.io")
}

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
}

type accountData struct {
	Token string `json:"token"`
}

type content struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	Name           string             `json:"name"`
	Size           int64              `json:"size"`
	Link           string             `json:"link"`
	PasswordStatus string             `json:"passwordStatus,omitempty"`
	Children       map[string]content `json:"children,omitempty"`
}

// refresh creates an anonymous account and returns its token.
func (c *Client) refresh(ctx context.Context) (string, error) {
	timer := prometheus.NewTimer(metrics.ProviderLatency.WithLabelValues("gofile", "accounts"))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts", nil)
	if err != nil {
		return "", err
	}
	c.setBrowserHeaders(req.Header)

	raw, err := c.do(req, "accounts")
	if err != nil {
		return "", err
	}
	var acc accountData
	if err := json.Unmarshal(raw, &acc); err != nil {
		return "", fmt.Errorf("decode account: %w", err)
	}
	if acc.Token == "" {
		return "", fmt.Errorf("account response carried no token")
	}
	c.log.Info("created gofile anonymous account")
	return acc.Token, nil
}

// Resolve returns a direct download URL and the headers the gofile CDN
// requires. Direct URLs pass through untouched; share links go through the
// contents API. Folder links are rejected toward Browse.
func (c *Client) Resolve(ctx context.Context, rawURL, password string) (*provider.Resolved, error) {
	token, err := c.creds.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	if isDirectURL(rawURL) {
		name := rawURL[strings.LastIndex(rawURL, "/")+1:]
		if unescaped, uerr := url.PathUnescape(name); uerr == nil {
			name = unescaped
		}
		if name == "" {
			name = "download"
		}
		return &provider.Resolved{URL: rawURL, Filename: name, Header: c.downloadHeader(rawURL, token)}, nil
	}

	id, err := ParseContentID(rawURL)
	if err != nil {
		return nil, err
	}
	info, err := c.contentInfo(ctx, token, id, password)
	if err != nil {
		return nil, err
	}
	if info.Type == "folder" {
		return nil, data.ErrIsFolder
	}
	return &provider.Resolved{URL: info.Link, Filename: info.Name, Header: c.downloadHeader(info.Link, token)}, nil
}

// Browse lists the files behind a share link, walking folders recursively.
// File names inside folders carry their path prefix.
func (c *Client) Browse(ctx context.Context, rawURL, password string) ([]data.File, error) {
	token, err := c.creds.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}
	id, err := ParseContentID(rawURL)
	if err != nil {
		return nil, err
	}
	info, err := c.contentInfo(ctx, token, id, password)
	if err != nil {
		return nil, err
	}

	var files []data.File
	if info.Type == "folder" {
		files, err = c.walkFolder(ctx, token, info, password, "")
		if err != nil {
			return nil, err
		}
	} else {
		files = append(files, fileEntry(info.Name, info))
	}
	return files, nil
}

func (c *Client) walkFolder(ctx context.Context, token string, folder *content, password, prefix string) ([]data.File, error) {
	var files []data.File
	for _, child := range folder.Children {
		if child.Type == "folder" {
			// Children are shallow: fetch the folder to get its own children.
			sub, err := c.contentInfo(ctx, token, child.ID, password)
			if err != nil {
				return nil, err
			}
			subFiles, err := c.walkFolder(ctx, token, sub, password, prefix+child.Name+"/")
			if err != nil {
				return nil, err
			}
			files = append(files, subFiles...)
			continue
		}
		files = append(files, fileEntry(prefix+child.Name, &child))
	}
	return files, nil
}

func fileEntry(name string, ct *content) data.File {
	return data.File{
		Filename:  name,
		Size:      ct.Size,
		SizeHuman: data.HumanSize(ct.Size),
		Link:      ct.Link,
		Host:      "gofile.io",
		ID:        ct.ID,
		Supported: true,
	}
}

func (c *Client) contentInfo(ctx context.Context, token, id, password string) (*content, error) {
	timer := prometheus.NewTimer(metrics.ProviderLatency.WithLabelValues("gofile", "contents"))
	defer timer.ObserveDuration()

	callURL := c.baseURL + "/contents/" + id + "?wt=" + websiteToken + "&cache=true"
	if password != "" {
		sum := sha256.Sum256([]byte(password))
		callURL += "&password=" + hex.EncodeToString(sum[:])
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callURL, nil)
	if err != nil {
		return nil, err
	}
	c.setBrowserHeaders(req.Header)
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := c.do(req, "contents")
	if err != nil {
		return nil, err
	}
	var ct content
	if err := json.Unmarshal(raw, &ct); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if ct.PasswordStatus != "" && ct.PasswordStatus != "passwordOk" {
		return nil, ErrPassword
	}
	return &ct, nil
}

func (c *Client) do(req *http.Request, op string) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("gofile", op).Inc()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("gofile", op).Inc()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ProviderErrors.WithLabelValues("gofile", op).Inc()
		return nil, fmt.Errorf("gofile http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var ar apiResp
	if err := json.Unmarshal(b, &ar); err != nil {
		metrics.ProviderErrors.WithLabelValues("gofile", op).Inc()
		return nil, fmt.Errorf("gofile decode: %w", err)
	}
	if ar.Status != "ok" {
		metrics.ProviderErrors.WithLabelValues("gofile", op).Inc()
		return nil, fmt.Errorf("gofile status %q", ar.Status)
	}
	return ar.Data, nil
}

func (c *Client) setBrowserHeaders(h http.Header) {
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Connection", "keep-alive")
}

// downloadHeader builds the headers the gofile CDN expects on file fetches:
// the account token rides in a cookie, not an Authorization header.
func (c *Client) downloadHeader(downloadURL, token string) http.Header {
	h := http.Header{}
	h.Set("Cookie", "accountToken="+token)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Referer", downloadURL)
	h.Set("Origin", "https://gofile.io")
	return h
}

// ParseContentID extracts the content ID from a gofile share link
// (https://gofile.io/d/<id>).
func ParseContentID(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "/d/") {
		return "", ErrBadURL
	}
	id := rawURL[strings.LastIndex(rawURL, "/")+1:]
	if id == "" {
		return "", ErrBadURL
	}
	return id, nil
}

func isDirectURL(rawURL string) bool {
	return strings.Contains(rawURL, "/download/web/") || strings.Contains(rawURL, "file-")
}
