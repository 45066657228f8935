package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/jobstr/harvester/internal/api"
	"github.com/jobstr/harvester/internal/config"
	"github.com/jobstr/harvester/internal/core/keys"
	"github.com/jobstr/harvester/internal/fault"
	"github.com/jobstr/harvester/internal/harvest"
	"github.com/jobstr/harvester/internal/logging"
	"github.com/jobstr/harvester/internal/metrics"
	"github.com/jobstr/harvester/internal/output"
	"github.com/jobstr/harvester/internal/relay"
	"github.com/jobstr/harvester/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("invalid configuration")
		os.Exit(fault.ExitCode(err))
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Errorf("harvester stopped: %s error", fault.KindOf(err))
		os.Exit(fault.ExitCode(err))
	}
	logger.Info("harvester stopped")
}

func run(cfg config.Config, logger *logrus.Logger) error {
	pair, err := keys.DecodeSecretKey(cfg.PrivateKey)
	if err != nil {
		return fault.Wrap(fault.KindConfig, "PRIVATE_KEY", err)
	}
	if cfg.ProxyAddr != "" {
		if _, err := relay.SocksDialer(cfg.ProxyAddr); err != nil {
			return fault.Wrap(fault.KindConfig, "HARVEST_PROXY", err)
		}
	}
	logger.Infof("identity %s", pair.Npub())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Infof("received %s, shutting down...", sig)
		cancel()
	}()

	session, err := relay.Connect(ctx, relay.Options{
		URLs:      cfg.Relays,
		Keys:      pair,
		Logger:    logger,
		ProxyAddr: cfg.ProxyAddr,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer session.Close()

	var archive store.Archive
	if cfg.ArchiveDSN != "" {
		archive, err = store.Open(ctx, cfg.ArchiveDSN)
		if err != nil {
			return fault.Wrap(fault.KindArchive, "open archive", err)
		}
		defer archive.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	status := harvest.NewStatus()
	clock := clockwork.NewRealClock()

	h := harvest.NewHarvester(session, output.NewWriter(cfg.OutputPath), archive, harvest.Options{
		Hashtag:      cfg.Hashtag,
		Lookback:     cfg.Lookback,
		QueryTimeout: cfg.QueryTimeout,
		Mode:         cfg.OutputMode,
	}, clock, m, logger)
	poller := harvest.NewPoller(h, cfg.Interval, harvest.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
	}, clock, status, m, logger)

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: api.NewRouter(api.Deps{
				Config:   cfg,
				Npub:     pair.Npub(),
				Status:   status,
				Archive:  archive,
				Gatherer: reg,
			}),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		}
		go func() {
			logger.Infof("http listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("http listener failed")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("http shutdown")
			}
		}()
	}

	return poller.Run(ctx)
}
