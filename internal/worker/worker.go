package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/shaiso/ServiceGrid/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval  = time.Second
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
)

// Worker крутит Runtime одного consumer'а.
//
// Worker:
//   - При старте восстанавливает consumer (Runtime.Recover)
//   - Получает уведомления о новых tasks из RabbitMQ (event-driven)
//   - Периодически опрашивает очередь consumer'а (polling fallback)
//   - Останавливается на первой фатальной ошибке runtime
type Worker struct {
	runtime *Runtime

	// MQ
	conn *mq.Connection

	// Configuration
	pollInterval  time.Duration
	retryAttempts uint

	wakeCh chan struct{}
	doneCh chan struct{}

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex

	errMu sync.Mutex
	err   error
}

// Config — конфигурация Worker.
type Config struct {
	Runtime *Runtime

	// Conn — соединение RabbitMQ (опционально; nil — только polling).
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 1s)

	// RetryAttempts — попытки Recover при старте (default: 3).
	RetryAttempts uint

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	retryAttempts := cfg.RetryAttempts
	if retryAttempts == 0 {
		retryAttempts = defaultRetryAttempts
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		runtime:       cfg.Runtime,
		conn:          cfg.Conn,
		pollInterval:  pollInterval,
		retryAttempts: retryAttempts,
		wakeCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
		logger:        logger.With("consumer_id", cfg.Runtime.ConsumerID()),
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer уведомлений task.posted (если есть соединение RabbitMQ)
//   - Polling горутину
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "poll_interval", w.pollInterval)

	// Восстанавливаем consumer: persisted log и зависшая task
	err := retry.Do(
		func() error { return w.runtime.Recover(ctx) },
		retry.Context(ctx),
		retry.Attempts(w.retryAttempts),
		retry.Delay(defaultRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !IsFatal(err) }),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("recover failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		cancel()
		return err
	}

	if w.conn != nil {
		queue, err := mq.DeclareConsumerQueue(ctx, w.conn, w.runtime.ConsumerID())
		if err != nil {
			w.logger.Warn("failed to declare consumer queue, polling only", "error", err)
		} else {
			listener := mq.NewListener(w.conn, w.logger, queue, w.handleTaskPosted)

			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				if err := listener.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("task.posted consumer error", "error", err)
				}
			}()
		}
	}

	// Запускаем polling
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.doneCh)
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// Done закрывается, когда цикл обработки завершился.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// Err возвращает фатальную ошибку, остановившую Worker.
func (w *Worker) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Wake просит Worker проверить очередь, не дожидаясь тика.
func (w *Worker) Wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// handleTaskPosted обрабатывает уведомление из очереди consumer'а.
func (w *Worker) handleTaskPosted(_ context.Context, event mq.TaskPosted) error {
	if event.ConsumerID != w.runtime.ConsumerID() {
		return nil
	}
	w.logger.Debug("received task.posted event", "event_id", event.ID, "task_type", event.TaskType)
	w.Wake()
	return nil
}

// pollLoop — основной цикл: очередь разбирается по тику и по уведомлению.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый проход сразу при старте (tasks, пришедшие пока были выключены)
	if !w.drain(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wakeCh:
		}

		if !w.drain(ctx) {
			return
		}
	}
}

// drain выполняет tasks, пока очередь не опустеет.
// Возвращает false, если Worker должен остановиться.
func (w *Worker) drain(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		consumed, err := w.runtime.ConsumeNextTask(ctx)
		if err != nil {
			if IsFatal(err) {
				w.fail(err)
				return false
			}
			if !consumed || errors.Is(err, ErrTaskRequeued) {
				// очередь или хранилище недоступны: ждём следующего тика
				w.logger.Warn("failed to start task", "error", err)
				return true
			}
			w.logger.Warn("task execution failed", "error", err)
			continue
		}

		if !consumed {
			return true
		}
	}
}

// fail запоминает фатальную ошибку и останавливает обработку.
func (w *Worker) fail(err error) {
	w.errMu.Lock()
	w.err = err
	w.errMu.Unlock()

	w.logger.Error("worker stopped on fatal error", "error", err)

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
}
