// Package creds owns the access-token lifecycle for one upstream provider.
// All authenticated provider calls go through EnsureValid first; at most one
// refresh is ever in flight per manager.
package creds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinoosan/debrix/internal/metrics"
)

// ErrUnavailable is returned when a refresh fails and no valid token exists.
var ErrUnavailable = errors.New("credentials unavailable")

// RefreshFunc performs the provider-specific refresh call and returns the new
// token. On error no partial state is stored.
type RefreshFunc func(ctx context.Context) (string, error)

// Manager holds one provider's credential record. A ttl of zero means the
// token never expires (long-lived API keys).
type Manager struct {
	mu       sync.RWMutex
	token    string
	issuedAt time.Time

	name    string
	ttl     time.Duration
	refresh RefreshFunc
	log     *slog.Logger
}

func NewManager(log *slog.Logger, name string, ttl time.Duration, refresh RefreshFunc) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{name: name, ttl: ttl, refresh: refresh, log: log}
}

// Token returns the current token, which may be empty or stale. Callers that
// need a usable token use EnsureValid.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Authenticated reports whether a token has ever been obtained.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// IsValid reports whether a token exists and has not outlived its ttl.
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validLocked()
}

func (m *Manager) validLocked() bool {
	if m.token == "" {
		return false
	}
	if m.ttl <= 0 {
		return true
	}
	return time.Since(m.issuedAt) < m.ttl
}

// EnsureValid returns a valid token, refreshing it first if needed. Callers
// that arrive while a refresh is in flight block on the same lock and observe
// its result instead of issuing a second refresh.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.validLocked() {
		tok := m.token
		m.mu.RUnlock()
		return tok, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check: another caller may have refreshed while this one waited.
	if m.validLocked() {
		return m.token, nil
	}

	m.log.Info("token invalid or expired, refreshing", "provider", m.name)
	tok, err := m.refresh(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(m.name, "error").Inc()
		return "", fmt.Errorf("refresh %s: %w: %v", m.name, ErrUnavailable, err)
	}
	if tok == "" {
		metrics.TokenRefreshes.WithLabelValues(m.name, "error").Inc()
		return "", fmt.Errorf("refresh %s: %w: empty token", m.name, ErrUnavailable)
	}
	m.token = tok
	m.issuedAt = time.Now()
	metrics.TokenRefreshes.WithLabelValues(m.name, "ok").Inc()
	m.log.Info("token refreshed", "provider", m.name, "ttl", m.ttl)
	return tok, nil
}

// Invalidate discards the current token. The next EnsureValid refreshes.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.issuedAt = time.Time{}
}
