// ServiceGrid Agent — процесс агента на машине.
//
// Agent:
//   - Отвечает на pings оркестратора
//   - Устанавливает, запускает, останавливает и удаляет service instances
//     через effector (nop, delay, webhook)
//   - При рестарте процесса сообщает об этом себе AgentRestartedTask
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

	"github.com/shaiso/ServiceGrid/internal/agent"
	"github.com/shaiso/ServiceGrid/internal/backend"
	"github.com/shaiso/ServiceGrid/internal/config"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log)

	if cfg.Agent.ID == "" {
		logger.Error("AGENT_ID is required")
		os.Exit(1)
	}
	logger = telemetry.WithAgentID(logger, cfg.Agent.ID)
	logger.Info("starting servicegrid-agent", "effector", cfg.Agent.Effector)

	eff, err := cfg.Agent.NewEffector()
	if err != nil {
		logger.Error("failed to create effector", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := backend.Open(ctx, cfg.Backend, logger)
	if err != nil {
		logger.Error("failed to open backend", "error", err)
		os.Exit(1)
	}
	defer be.Close()

	a := agent.New(agent.Config{
		ID:       cfg.Agent.ID,
		Store:    be.Store,
		Broker:   be.Broker,
		Effector: eff,
		Logger:   logger,
	})

	if err := a.Boot(ctx); err != nil {
		logger.Error("failed to boot agent", "error", err)
		os.Exit(1)
	}

	w := worker.New(worker.Config{
		Runtime: worker.NewRuntime(worker.RuntimeConfig{
			ConsumerID: a.ID(),
			Kind:       "agent",
			Store:      be.Store,
			Broker:     be.Broker,
			Registry:   a.Registry(),
			Logger:     logger,
		}),
		Conn:         be.Conn,
		PollInterval: cfg.Grid.PollInterval,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.HTTP.Addr(), Handler: mux}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения или фатальную ошибку
	select {
	case <-ctx.Done():
	case <-w.Done():
	}

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if err := w.Err(); err != nil {
		logger.Error("servicegrid-agent failed", "error", err)
		os.Exit(1)
	}
	logger.Info("servicegrid-agent stopped")
}
