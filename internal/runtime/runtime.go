// Package runtime assembles the tonewire daemon: embedded bus, event store,
// node registry, and the source → pipeline → playback service chain.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonewirelabs/tonewire-core/internal/bus"
	"github.com/tonewirelabs/tonewire-core/internal/config"
	"github.com/tonewirelabs/tonewire-core/internal/eventstore"
	"github.com/tonewirelabs/tonewire-core/internal/natsserver"
	"github.com/tonewirelabs/tonewire-core/internal/nodes"
	"github.com/tonewirelabs/tonewire-core/internal/pipeline"
	"github.com/tonewirelabs/tonewire-core/internal/playback"
	"github.com/tonewirelabs/tonewire-core/internal/source"
)

const pruneInterval = time.Hour

type healthChecker interface {
	Healthy() bool
}

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	checks        []healthChecker
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component in dependency order and blocks until the
// context is cancelled, then tears them down in reverse.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer busClient.Close()
	r.checks = append(r.checks, busClient)

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()
	r.startPruneLoop(ctx, store)

	registry, err := nodes.NewRegistry(ctx, r.cfg.Node, r.localOutput(), busClient, r.logger)
	if err != nil {
		return fmt.Errorf("start node registry: %w", err)
	}
	defer registry.Close()
	r.checks = append(r.checks, registry)

	if r.cfg.Source.Enabled {
		producer, err := source.NewProducer(r.cfg.Source)
		if err != nil {
			return fmt.Errorf("build source producer: %w", err)
		}
		sourceService := source.NewService(ctx, r.cfg.Source, busClient, producer, r.logger)
		if err := sourceService.Start(); err != nil {
			return fmt.Errorf("start source service: %w", err)
		}
		defer sourceService.Close()
		r.checks = append(r.checks, sourceService)
	}

	pipelineService, err := pipeline.NewService(ctx, r.cfg.Encoder, busClient, store, r.logger)
	if err != nil {
		return fmt.Errorf("build pipeline service: %w", err)
	}
	if err := pipelineService.Start(); err != nil {
		return fmt.Errorf("start pipeline service: %w", err)
	}
	defer pipelineService.Close()
	r.checks = append(r.checks, pipelineService)

	if r.cfg.Playback.Enabled {
		sink, err := playback.NewSink(r.cfg.Playback)
		if err != nil {
			return fmt.Errorf("build playback sink: %w", err)
		}
		playbackService := playback.NewService(ctx, r.cfg.Playback, busClient, store, sink, r.logger)
		if err := playbackService.Start(); err != nil {
			return fmt.Errorf("start playback service: %w", err)
		}
		defer playbackService.Close()
		r.checks = append(r.checks, playbackService)
	}

	r.startHTTP()
	r.startMetrics(metricsHandler)

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("scheme", string(pipelineService.Scheme())),
		slog.String("addr", r.httpServer.Addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// localOutput advertises this runtime's playback capability to the registry.
func (r *Runtime) localOutput() nodes.Output {
	return nodes.Output{
		Name:       r.cfg.Playback.Mode,
		SampleRate: r.cfg.Playback.SampleRate,
		Schemes:    []string{r.cfg.Encoder.Scheme},
	}
}

func (r *Runtime) startHTTP() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) startMetrics(handler http.Handler) {
	if handler == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.metricsServer = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// startPruneLoop reapplies retention periodically; Open already pruned once.
func (r *Runtime) startPruneLoop(ctx context.Context, store *eventstore.Store) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := store.Prune(ctx); err != nil {
					r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	for _, check := range r.checks {
		if !check.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
