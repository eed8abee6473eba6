// ServiceGrid Orchestrator — приводит grid к deployment plan.
//
// Orchestrator:
//   - Получает тики от scheduler'а и планы из API
//   - Сравнивает документы агентов, сервисов и instances с планом
//   - Ставит tasks агентам и machine provisioner'у
//   - Выполняет tasks provisioner'а (машины и процессы агентов)
//
// С PostgreSQL работает только один экземпляр: остальные ждут
// advisory lock. С GRID_LOCAL_AGENTS агенты поднимаются в этом же
// процессе на локальных машинах.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/ServiceGrid/internal/api"
	"github.com/shaiso/ServiceGrid/internal/backend"
	"github.com/shaiso/ServiceGrid/internal/cloud"
	"github.com/shaiso/ServiceGrid/internal/config"
	"github.com/shaiso/ServiceGrid/internal/effector"
	"github.com/shaiso/ServiceGrid/internal/grid"
	"github.com/shaiso/ServiceGrid/internal/orchestrator"
	"github.com/shaiso/ServiceGrid/internal/provisioner"
	"github.com/shaiso/ServiceGrid/internal/repo"
	"github.com/shaiso/ServiceGrid/internal/scheduler"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

const leaderLock = "servicegrid-orchestrator"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log)
	logger.Info("starting servicegrid-orchestrator", "store", cfg.Backend.Store)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := backend.Open(ctx, cfg.Backend, logger)
	if err != nil {
		logger.Error("failed to open backend", "error", err)
		os.Exit(1)
	}
	defer be.Close()

	// Один оркестратор на хранилище
	if be.Pool != nil {
		lease, err := repo.Acquire(ctx, be.Pool, leaderLock, 5*time.Second, logger)
		if err != nil {
			logger.Error("failed to acquire leadership", "error", err)
			os.Exit(1)
		}
		defer lease.Release(context.Background())
		logger.Info("leadership acquired")
	}

	scheme := cfg.Grid.Scheme()

	// HTTP mux: /healthz + /metrics + API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{
		Scheme: scheme,
		Store:  be.Store,
		Broker: be.Broker,
		Logger: logger,
	}).RegisterRoutes(mux)

	server := &http.Server{Addr: cfg.HTTP.Addr(), Handler: mux}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if cfg.Grid.LocalAgents {
		err = runLocal(ctx, cfg, be, logger)
	} else {
		err = runDistributed(ctx, cfg, be, logger)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if err != nil {
		logger.Error("servicegrid-orchestrator failed", "error", err)
		os.Exit(1)
	}
	logger.Info("servicegrid-orchestrator stopped")
}

// runLocal поднимает весь grid в процессе: агенты живут на машинах LocalDriver.
func runLocal(ctx context.Context, cfg *config.Config, be *backend.Backend, logger *slog.Logger) error {
	eff, err := cfg.Agent.NewEffector()
	if err != nil {
		return err
	}

	g := grid.New(grid.Config{
		Scheme:             cfg.Grid.Scheme(),
		Store:              be.Store,
		Broker:             be.Broker,
		PersistedLog:       be.PersistedLog,
		UnreachableTimeout: cfg.Grid.UnreachableTimeout,
		BootstrapTimeout:   cfg.Grid.BootstrapTimeout,
		Effector:           func(string) effector.Effector { return eff },
		Schedule:           cfg.Grid.TickSchedule,
		PollInterval:       cfg.Grid.PollInterval,
		Logger:             logger,
	})

	if err := g.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case <-ctx.Done():
		g.Stop()
		return nil
	case err := <-errCh:
		g.Stop()
		return err
	}
}

// runDistributed запускает workers оркестратора и provisioner'а.
// Агенты — отдельные процессы servicegrid-agent.
func runDistributed(ctx context.Context, cfg *config.Config, be *backend.Backend, logger *slog.Logger) error {
	if cfg.Backend.Store == config.StoreMemory {
		logger.Warn("memory store is not shared with agent processes, set GRID_LOCAL_AGENTS=true or use postgres/etcd")
	}

	scheme := cfg.Grid.Scheme()

	orch := orchestrator.New(orchestrator.Config{
		Scheme:             scheme,
		Store:              be.Store,
		Broker:             be.Broker,
		UnreachableTimeout: cfg.Grid.UnreachableTimeout,
		BootstrapTimeout:   cfg.Grid.BootstrapTimeout,
		Logger:             logger,
	})

	// Машины выделяет драйвер, процесс агента стартует снаружи
	prov := provisioner.New(provisioner.Config{
		Scheme: scheme,
		Driver: cloud.NewLocalDriver(cloud.LocalConfig{Logger: logger}),
		Logger: logger,
	})

	workers := []*worker.Worker{
		worker.New(worker.Config{
			Runtime: worker.NewRuntime(worker.RuntimeConfig{
				ConsumerID:   orch.ID(),
				Kind:         "orchestrator",
				Store:        be.Store,
				Broker:       be.Broker,
				PersistedLog: be.PersistedLog,
				Registry:     orch.Registry(),
				Logger:       logger,
			}),
			Conn:         be.Conn,
			PollInterval: cfg.Grid.PollInterval,
			Logger:       logger,
		}),
		worker.New(worker.Config{
			Runtime: worker.NewRuntime(worker.RuntimeConfig{
				ConsumerID: prov.ID(),
				Kind:       "provisioner",
				Store:      be.Store,
				Broker:     be.Broker,
				Registry:   prov.Registry(),
				Logger:     logger,
			}),
			Conn:         be.Conn,
			PollInterval: cfg.Grid.PollInterval,
			Logger:       logger,
		}),
	}

	for _, w := range workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	sched, err := scheduler.New(scheduler.Config{
		Broker:    be.Broker,
		Producers: []string{orch.ID()},
		Schedule:  cfg.Grid.TickSchedule,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	// Ожидаем сигнал завершения или фатальную ошибку worker'а
	select {
	case <-ctx.Done():
		return nil
	case <-workers[0].Done():
		return workers[0].Err()
	case <-workers[1].Done():
		return workers[1].Err()
	}
}
