package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinoosan/debrix/internal/config"
	"github.com/tinoosan/debrix/internal/creds"
	"github.com/tinoosan/debrix/internal/logging"
	"github.com/tinoosan/debrix/internal/metrics"
	"github.com/tinoosan/debrix/internal/provider"
	"github.com/tinoosan/debrix/internal/provider/alldebrid"
	"github.com/tinoosan/debrix/internal/provider/gofile"
	"github.com/tinoosan/debrix/internal/relay"
	"github.com/tinoosan/debrix/internal/repo"
	"github.com/tinoosan/debrix/internal/router"
	"github.com/tinoosan/debrix/internal/service"
	"github.com/tinoosan/debrix/internal/tracker"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	metrics.Register()

	ad, err := alldebrid.NewFromEnv(logger)
	if err != nil {
		logger.Error("alldebrid setup", "err", err)
		os.Exit(1)
	}
	// Validate the API key before accepting traffic.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ad.Authenticate(startupCtx); err != nil {
		startupCancel()
		logger.Error("alldebrid authentication failed", "err", err)
		os.Exit(1)
	}
	startupCancel()

	gf := gofile.NewFromEnv(logger)
	renewer := creds.NewRenewer(logger, gf.Creds(), 0, time.Minute)
	renewer.Run()

	reg := provider.NewRegistry(gf, ad)

	var transferRepo repo.TransferRepo
	if cfg.RepoBackend == "postgres" {
		pg, err := repo.NewPostgresRepoFromEnv()
		if err != nil {
			logger.Error("postgres setup", "err", err)
			os.Exit(1)
		}
		defer func() { _ = pg.Close() }()
		transferRepo = pg
		logger.Info("using postgres transfer repo")
	} else {
		transferRepo = repo.NewInMemoryTransferRepo()
		logger.Info("using in-memory transfer repo")
	}

	events := make(chan tracker.Event, 64)
	trk := tracker.New(logger, transferRepo, events)
	trk.Run()

	rel := relay.New(logger, relay.Config{
		ChunkSize:       cfg.ChunkSize,
		MaxRetries:      cfg.MaxRetries,
		Backoff:         cfg.RetryBackoff,
		ConnectTimeout:  cfg.ConnectTimeout,
		ReadIdleTimeout: cfg.ReadIdleTimeout,
	})

	svc := service.NewDownload(logger, reg, rel, transferRepo, tracker.NewChanReporter(events))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.New(logger, svc, trk),
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: relayed downloads legitimately run for a long time.
	}

	go func() {
		logger.Info("starting debrix", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received terminate, graceful shutdown", "signal", sig.String())

	timeoutContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(timeoutContext); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	// Shutdown is complete only once the background tasks have joined.
	renewer.Stop()
	trk.Stop()
}
