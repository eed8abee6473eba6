package api

import (
	"log/slog"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	scheme domain.Scheme
	store  store.Store
	broker broker.Broker
	clock  worker.Clock
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Scheme domain.Scheme
	Store  store.Store
	Broker broker.Broker

	// Clock — источник ProducerTimestamp для plan tasks (по умолчанию SystemClock).
	Clock  worker.Clock
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = worker.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Handler{
		scheme: cfg.Scheme,
		store:  cfg.Store,
		broker: cfg.Broker,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
}

// stateID переводит путь из URL в id документа.
// Полный id (с корнем схемы) принимается как есть.
func (h *Handler) stateID(path string) string {
	if path == "" {
		return h.scheme.Root
	}
	if len(path) >= len(h.scheme.Root) && path[:len(h.scheme.Root)] == h.scheme.Root {
		return path
	}
	return h.scheme.Root + path
}
