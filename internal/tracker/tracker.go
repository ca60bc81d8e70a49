// Package tracker consumes transfer events, settles repository state and
// fans events out to websocket subscribers.
package tracker

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinoosan/debrix/internal/data"
	"github.com/tinoosan/debrix/internal/metrics"
	"github.com/tinoosan/debrix/internal/repo"
)

type Tracker struct {
	repo   repo.TransferRepo
	events <-chan Event
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	stop chan struct{}
	wg   sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a Tracker that processes transfer events and mutates the
// repository accordingly.
func New(log *slog.Logger, repo repo.TransferRepo, events <-chan Event) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{repo: repo, events: events, log: log, ctx: context.Background(), subs: make(map[int]chan Event)}
}

// Run starts the tracking loop.
func (t *Tracker) Run() {
	t.stop = make(chan struct{})
	t.ctx, t.cancel = context.WithCancel(t.ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.stop:
				return
			case e, ok := <-t.events:
				if !ok {
					return
				}
				t.handle(e)
			}
		}
	}()
}

// Stop terminates the tracking loop and waits for it.
func (t *Tracker) Stop() {
	if t.stop != nil {
		close(t.stop)
		if t.cancel != nil {
			t.cancel()
		}
		t.wg.Wait()
	}
}

// Subscribe registers a consumer for the event feed. Slow consumers drop
// events rather than stall the loop. The returned func unsubscribes.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Event, 16)
	t.subs[id] = ch
	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
}

func (t *Tracker) handle(e Event) {
	metrics.TransferEvents.WithLabelValues(strings.ToLower(string(e.Type))).Inc()

	switch e.Type {
	case EventStart:
		// Record is created by the service; nothing to settle yet.
	case EventProgress:
		if err := t.repo.SetProgress(t.ctx, e.TransferID, e.Bytes); err != nil {
			t.log.Error("set progress", "id", e.TransferID, "err", err)
		}
	case EventComplete:
		if err := t.repo.SetStatus(t.ctx, e.TransferID, data.StatusComplete, e.Bytes, ""); err != nil {
			t.log.Error("set status", "id", e.TransferID, "err", err)
		}
	case EventFailed:
		if err := t.repo.SetStatus(t.ctx, e.TransferID, data.StatusFailed, e.Bytes, e.Error); err != nil {
			t.log.Error("set status", "id", e.TransferID, "err", err)
		}
	default:
		t.log.Info("ignoring unknown event type", "type", e.Type)
		return
	}

	t.broadcast(e)
}

func (t *Tracker) broadcast(e Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, sub := range t.subs {
		select {
		case sub <- e:
		default:
		}
	}
}
