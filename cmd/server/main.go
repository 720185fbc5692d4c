package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"transplant/internal/disclosure"
	donorHandler "transplant/internal/donor/handler"
	donorService "transplant/internal/donor/service"
	"transplant/internal/matching"
	"transplant/internal/platform/config"
	"transplant/internal/platform/httpserver"
	"transplant/internal/platform/logger"
	"transplant/internal/platform/metrics"
	requestHandler "transplant/internal/request/handler"
	requestService "transplant/internal/request/service"
	"transplant/internal/request/worker"
	"transplant/internal/sla"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	st := newStores(infra, cfg)
	publisher := newAuditPublisher(st.audit, log)

	notifier := newNotifier(infra, log, m)
	defer notifier.Close()

	storage, err := newBundleStorage(cfg)
	if err != nil {
		return err
	}
	infra.bucket = storage

	matcher := matching.New(st.requests, st.donors, st.profiles,
		matching.WithLogger(log),
		matching.WithMetrics(m),
	)
	pool := donorService.NewPool(st.donors, st.profiles)
	lifecycle := requestService.New(st.requests, st.transplants, st.sequence, pool, st.runner,
		requestService.WithLogger(log),
		requestService.WithAuditPublisher(publisher),
		requestService.WithNotifier(notifier),
		requestService.WithMetrics(m),
		requestService.WithRequestTTL(cfg.Request.DefaultTTL),
		requestService.WithCompatibilityChecker(matcher),
	)
	slaService := sla.New(st.requests, st.runner,
		sla.WithLogger(log),
		sla.WithAuditPublisher(publisher),
		sla.WithNotifier(notifier),
		sla.WithMetrics(m),
	)
	registry := donorService.New(st.donors, st.profiles, st.runner,
		donorService.WithLogger(log),
		donorService.WithAuditPublisher(publisher),
		donorService.WithNotifier(notifier),
	)
	gate := disclosure.New(st.requests, st.donors, storage, st.runner,
		disclosure.WithLogger(log),
		disclosure.WithAuditPublisher(publisher),
		disclosure.WithMetrics(m),
	)

	router := newRouter(cfg.Server, log, infra, publisher,
		requestHandler.New(lifecycle, matcher, slaService, log),
		donorHandler.New(registry, gate, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	sweeper := worker.NewExpirySweeper(lifecycle, slaService,
		worker.WithInterval(cfg.Request.SweepInterval),
		worker.WithLogger(log),
		worker.WithGauge(m),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	if relay := newOutboxRelay(infra, cfg.Kafka, log, m); relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("starting transplant service", "addr", cfg.Server.Addr, "persistence", infra.backend())
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownGrace)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
