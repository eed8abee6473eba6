package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/config"
	"github.com/shaiso/ServiceGrid/internal/etcd"
	"github.com/shaiso/ServiceGrid/internal/mq"
	"github.com/shaiso/ServiceGrid/internal/repo"
	"github.com/shaiso/ServiceGrid/internal/store"
)

// Backend — открытые хранилище, broker и журнал persistent tasks.
type Backend struct {
	Store  store.Store
	Broker broker.Broker

	// PersistedLog — журнал persistent tasks.
	PersistedLog broker.Broker

	// Pool — соединения PostgreSQL (nil для memory).
	Pool *pgxpool.Pool

	// Conn — соединение RabbitMQ (nil, если уведомлений нет).
	Conn *mq.Connection

	closers []func() error
}

// Open открывает backend по конфигурации.
//
//  1. Хранилище состояний и очереди tasks.
//  2. RabbitMQ, если задан URL. Недоступный RabbitMQ не ошибка:
//     workers остаются на polling.
//  3. Broker оборачивается в broker.Notifying (метрики и уведомления).
func Open(ctx context.Context, cfg config.Backend, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{}

	// 1. Store и broker
	var tasks broker.Broker
	var err error
	switch cfg.Store {
	case config.StoreMemory:
		b.Store = store.NewMemoryStore()
		tasks = broker.NewMemoryBroker()
		b.PersistedLog = broker.NewMemoryBroker()

	case config.StorePostgres:
		if err = b.openPostgres(ctx, cfg.DatabaseURL); err != nil {
			break
		}
		b.Store = repo.NewStateRepo(b.Pool)
		tasks = repo.NewTaskRepo(b.Pool, repo.TasksTable)
		b.PersistedLog = repo.NewTaskRepo(b.Pool, repo.PersistedTasksTable)

	case config.StoreEtcd:
		var states *etcd.StateStore
		states, err = etcd.NewStateStore(etcd.Config{
			Endpoints: cfg.EtcdEndpoints,
			Prefix:    cfg.EtcdPrefix,
		})
		if err != nil {
			break
		}
		b.closers = append(b.closers, states.Close)
		b.Store = states

		// Tasks в etcd не живут
		if err = b.openPostgres(ctx, cfg.DatabaseURL); err != nil {
			break
		}
		tasks = repo.NewTaskRepo(b.Pool, repo.TasksTable)
		b.PersistedLog = repo.NewTaskRepo(b.Pool, repo.PersistedTasksTable)

	default:
		err = fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Store)
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	logger.Info("state backend opened", "store", cfg.Store)

	// 2. RabbitMQ
	var notifier broker.Notifier
	if cfg.RabbitMQURL != "" {
		conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		} else {
			b.Conn = conn
			b.closers = append(b.closers, conn.Close)

			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			notifier = mq.NewPublisher(conn, logger)
			logger.Info("RabbitMQ connected")
		}
	}

	// 3. Broker
	b.Broker = broker.NewNotifying(tasks, notifier, logger)

	return b, nil
}

func (b *Backend) openPostgres(ctx context.Context, dsn string) error {
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	b.Pool = pool
	b.closers = append(b.closers, func() error {
		pool.Close()
		return nil
	})

	if err := repo.Migrate(ctx, pool); err != nil {
		return err
	}
	return nil
}

// Close закрывает всё, что открыл Open, в обратном порядке.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
