package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Default configuration values.
const (
	defaultSchedule     = "@every 2s"
	defaultPollInterval = 500 * time.Millisecond
	defaultPostAttempts = 3
)

// Scheduler — источник TaskProducerTask.
//
// По расписанию отправляет каждому producer'у TaskProducerTask.
// Дедупликация брокера не даёт тикам накапливаться, пока producer
// не разобрал предыдущий.
type Scheduler struct {
	broker    broker.Broker
	producers []string
	schedule  cron.Schedule
	clock     worker.Clock
	logger    *slog.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	nextDue time.Time

	// Lifecycle
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Broker broker.Broker

	// Producers — ids consumer'ов, получающих тики.
	Producers []string

	// Schedule — расписание тиков (default: "@every 2s").
	Schedule string

	// PollInterval — как часто проверяется наступление тика (default: 500ms).
	PollInterval time.Duration

	Clock  worker.Clock
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = defaultSchedule
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	clock := cfg.Clock
	if clock == nil {
		clock = worker.SystemClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		broker:       cfg.Broker,
		producers:    cfg.Producers,
		schedule:     schedule,
		clock:        clock,
		logger:       logger,
		pollInterval: pollInterval,
	}, nil
}

// Tick отправляет тики, если наступило время по расписанию.
//
// 1. Проверяет, наступил ли следующий тик
// 2. Отправляет TaskProducerTask каждому producer'у
// 3. Вычисляет время следующего тика
//
// Ошибка одного producer'а не блокирует остальных.
// Возвращает количество принятых брокером tasks.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.clock.Now()

	// 1. Рано
	s.mu.Lock()
	due := s.nextDue
	s.mu.Unlock()
	if now.Before(due) {
		return 0, nil
	}

	// 2. Отправляем
	var posted int
	var firstErr error
	for _, producer := range s.producers {
		ok, err := s.post(ctx, producer, now)
		if err != nil {
			s.logger.Error("failed to post producer tick",
				"consumer_id", producer,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			posted++
		}
	}

	// 3. Следующий тик
	s.mu.Lock()
	s.nextDue = s.schedule.Next(now)
	s.mu.Unlock()

	return posted, firstErr
}

// post отправляет один тик с повтором при временной ошибке брокера.
func (s *Scheduler) post(ctx context.Context, producer string, now time.Time) (bool, error) {
	task, err := domain.NewTask(domain.TaskTypeProducer, producer, producer, nil)
	if err != nil {
		return false, err
	}
	task.ProducerTimestamp = now

	var posted bool
	err = retry.Do(
		func() error {
			var err error
			posted, err = s.broker.PostNewTask(ctx, task)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(defaultPostAttempts),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return false, fmt.Errorf("post tick to %s: %w", producer, err)
	}
	return posted, nil
}

// Start запускает цикл тиков в отдельной горутине.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Tick(ctx); err != nil {
					s.logger.Warn("scheduler tick failed", "error", err)
				}
			}
		}
	}()

	s.logger.Info("scheduler started", "producers", len(s.producers))
}

// Stop останавливает цикл тиков.
func (s *Scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
