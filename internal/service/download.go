package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinoosan/debrix/internal/data"
	"github.com/tinoosan/debrix/internal/provider"
	"github.com/tinoosan/debrix/internal/relay"
	"github.com/tinoosan/debrix/internal/repo"
	"github.com/tinoosan/debrix/internal/tracker"
)

// Download orchestrates link resolution, transfer bookkeeping and the relay.
type Download interface {
	Resolve(ctx context.Context, rawURL, filename, password string) (*data.Transfer, *provider.Resolved, error)
	Stream(ctx context.Context, res *provider.Resolved) *relay.Stream
	Progress(t *data.Transfer, bytes int64)
	Finish(t *data.Transfer, bytes int64, streamErr error)
	Browse(ctx context.Context, rawURL, password string) (*data.Listing, error)
	Status(ctx context.Context) []data.ProviderStatus
	Transfers(ctx context.Context) (data.Transfers, error)
	Transfer(ctx context.Context, id string) (*data.Transfer, error)
}

type download struct {
	reg   *provider.Registry
	relay *relay.Client
	repo  repo.TransferRepo
	rep   tracker.Reporter
	log   *slog.Logger
}

func NewDownload(log *slog.Logger, reg *provider.Registry, rel *relay.Client, repo repo.TransferRepo, rep tracker.Reporter) Download {
	return &download{reg: reg, relay: rel, repo: repo, rep: rep, log: log}
}

// Resolve selects the provider for the link, exchanges it for a direct URL
// and records the transfer.
func (ds *download) Resolve(ctx context.Context, rawURL, filename, password string) (*data.Transfer, *provider.Resolved, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil, data.ErrInvalidSource
	}
	p := ds.reg.ForURL(rawURL)
	if p == nil {
		return nil, nil, fmt.Errorf("no provider for url")
	}
	ds.log.Info("resolving link", "provider", p.Name())

	res, err := p.Resolve(ctx, rawURL, password)
	if err != nil {
		return nil, nil, err
	}
	if filename != "" {
		res.Filename = filename
	}
	if res.Filename == "" {
		res.Filename = "download"
	}

	t, err := ds.repo.Add(ctx, &data.Transfer{
		Source:   rawURL,
		Provider: p.Name(),
		Filename: res.Filename,
		Status:   data.StatusActive,
	})
	if err != nil {
		return nil, nil, err
	}

	ds.report(tracker.Event{TransferID: t.ID, Type: tracker.EventStart, Provider: t.Provider, Filename: t.Filename})
	return t, res, nil
}

// Stream opens a relay for the resolved link. The caller drains it and
// reports the outcome through Finish.
func (ds *download) Stream(ctx context.Context, res *provider.Resolved) *relay.Stream {
	return ds.relay.Stream(ctx, res.URL, res.Header)
}

// Progress publishes the relay's current cursor for an in-flight transfer.
func (ds *download) Progress(t *data.Transfer, bytes int64) {
	ds.report(tracker.Event{TransferID: t.ID, Type: tracker.EventProgress, Provider: t.Provider, Bytes: bytes})
}

// Finish settles the transfer record through the tracker.
func (ds *download) Finish(t *data.Transfer, bytes int64, streamErr error) {
	if streamErr != nil {
		ds.report(tracker.Event{TransferID: t.ID, Type: tracker.EventFailed, Provider: t.Provider, Bytes: bytes, Error: streamErr.Error()})
		return
	}
	ds.report(tracker.Event{TransferID: t.ID, Type: tracker.EventComplete, Provider: t.Provider, Bytes: bytes})
}

func (ds *download) Browse(ctx context.Context, rawURL, password string) (*data.Listing, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, data.ErrInvalidSource
	}
	p := ds.reg.ForURL(rawURL)
	if p == nil {
		return nil, fmt.Errorf("no provider for url")
	}
	files, err := p.Browse(ctx, rawURL, password)
	if err != nil {
		return nil, err
	}
	return &data.Listing{
		URL:               rawURL,
		TotalFiles:        len(files),
		Files:             files,
		PasswordProtected: password != "",
		Service:           p.Name(),
	}, nil
}

func (ds *download) Status(ctx context.Context) []data.ProviderStatus {
	out := make([]data.ProviderStatus, 0, len(ds.reg.All()))
	for _, p := range ds.reg.All() {
		out = append(out, data.ProviderStatus{Service: p.Name(), Authenticated: p.Authenticated()})
	}
	return out
}

func (ds *download) Transfers(ctx context.Context) (data.Transfers, error) {
	return ds.repo.List(ctx)
}

func (ds *download) Transfer(ctx context.Context, id string) (*data.Transfer, error) {
	return ds.repo.Get(ctx, id)
}

func (ds *download) report(e tracker.Event) {
	if ds.rep == nil {
		return
	}
	e.Time = time.Now()
	ds.rep.Report(e)
}
