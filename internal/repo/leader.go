package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lease — удерживаемый session advisory lock.
//
// Lock живёт, пока жива сессия: процесс, потерявший соединение,
// теряет и lock.
type Lease struct {
	conn *pgxpool.Conn
	key  int64
	name string
}

// LockKey переводит имя lock'а в ключ pg_advisory_lock.
func LockKey(name string) int64 {
	return int64(xxhash.Sum64String(name))
}

// TryAcquire берёт lock name, если он свободен, иначе ErrNotLeader.
func TryAcquire(ctx context.Context, pool *pgxpool.Pool, name string) (*Lease, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	key := LockKey(name)

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrNotLeader
	}

	return &Lease{conn: conn, key: key, name: name}, nil
}

// Acquire ждёт lock name, проверяя его каждые interval.
//
// Так второй экземпляр оркестратора остаётся в резерве,
// пока первый жив.
func Acquire(ctx context.Context, pool *pgxpool.Pool, name string, interval time.Duration, logger *slog.Logger) (*Lease, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var lease *Lease
	err := retry.Do(
		func() error {
			var err error
			lease, err = TryAcquire(ctx, pool, name)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if errors.Is(err, ErrNotLeader) {
				logger.Debug("waiting for leadership", "lock", name, "attempt", n+1)
				return
			}
			logger.Warn("leadership check failed", "lock", name, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("leadership acquired", "lock", name)
	return lease, nil
}

// Release отпускает lock и возвращает соединение в пул.
func (l *Lease) Release(ctx context.Context) error {
	defer l.conn.Release()

	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
		return fmt.Errorf("advisory unlock %s: %w", l.name, err)
	}
	return nil
}
