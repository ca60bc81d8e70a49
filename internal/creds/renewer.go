package creds

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Renewer keeps a manager's token fresh from the background so foreground
// requests rarely observe an expired one. It refreshes on a fixed period and
// falls back to a short delay after a failed attempt.
type Renewer struct {
	m          *Manager
	interval   time.Duration
	retryDelay time.Duration
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewRenewer(log *slog.Logger, m *Manager, interval, retryDelay time.Duration) *Renewer {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = m.ttl / 2
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if retryDelay <= 0 {
		retryDelay = time.Minute
	}
	return &Renewer{m: m, interval: interval, retryDelay: retryDelay, log: log}
}

// Run starts the renewal loop. The first refresh happens immediately.
func (r *Renewer) Run() {
	r.stop = make(chan struct{})
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			wait := r.interval
			if _, err := r.m.EnsureValid(r.ctx); err != nil {
				if r.ctx.Err() != nil {
					return
				}
				r.log.Error("background token refresh failed", "provider", r.m.name, "err", err)
				wait = r.retryDelay
			}
			t := time.NewTimer(wait)
			select {
			case <-r.stop:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()
	r.log.Info("token renewal task started", "provider", r.m.name, "interval", r.interval)
}

// Stop signals the loop and waits for it to terminate. A signal received
// while the loop is sleeping ends it without starting another refresh; an
// in-flight refresh is cancelled through the loop's context.
func (r *Renewer) Stop() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	r.cancel()
	r.wg.Wait()
	r.log.Info("token renewal task stopped", "provider", r.m.name)
}
