package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
)

// Runtime выполняет tasks одного consumer'а.
//
// Runtime не хранит состояние между tasks: всё, что нужно обработчику,
// читается из store. Перед выполнением task записывается в executing_task
// собственного документа, после — поле очищается и task дописывается
// в tasks_history. Tasks одного consumer'а выполняются строго по одной.
type Runtime struct {
	consumerID string
	kind       string

	store    store.Store
	broker   broker.Broker
	log      broker.Broker
	registry *Registry
	clock    Clock
	logger   *slog.Logger
}

// RuntimeConfig — конфигурация Runtime.
type RuntimeConfig struct {
	// ConsumerID — id consumer'а (очередь и собственный документ).
	ConsumerID string

	// Kind — метка consumer'а в метриках: orchestrator, agent, provisioner.
	Kind string

	Store  store.Store
	Broker broker.Broker

	// PersistedLog — durable журнал persistent tasks (опционально).
	PersistedLog broker.Broker

	Registry *Registry

	// Clock (опционально; по умолчанию SystemClock).
	Clock Clock

	Logger *slog.Logger
}

// NewRuntime создаёт Runtime.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	kind := cfg.Kind
	if kind == "" {
		kind = "consumer"
	}

	return &Runtime{
		consumerID: cfg.ConsumerID,
		kind:       kind,
		store:      cfg.Store,
		broker:     cfg.Broker,
		log:        cfg.PersistedLog,
		registry:   registry,
		clock:      clock,
		logger:     telemetry.WithConsumerID(logger, cfg.ConsumerID),
	}
}

// ConsumerID возвращает id consumer'а.
func (r *Runtime) ConsumerID() string {
	return r.consumerID
}

// Now возвращает время часов runtime.
func (r *Runtime) Now() time.Time {
	return r.clock.Now()
}

// ConsumeNextTask достаёт и выполняет следующую task.
// Возвращает false, если очередь пуста.
func (r *Runtime) ConsumeNextTask(ctx context.Context) (bool, error) {
	task, err := r.broker.RemoveNextTask(ctx, r.consumerID)
	if errors.Is(err, broker.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove next task: %w", err)
	}

	// Task уже вне брокера: если она не дошла до executing_task,
	// её нужно вернуть, иначе она потеряется
	if r.registry.isPersistent(task.Type) {
		if err := r.persist(ctx, task); err != nil {
			return true, r.requeue(ctx, task, err)
		}
	}

	notStarted, err := r.execute(ctx, task)
	if notStarted {
		return true, r.requeue(ctx, task, err)
	}
	return true, err
}

// Execute выполняет одну task.
//
// Ошибки, оборачивающие ErrFatal, означают нарушение инварианта;
// остальные ошибки относятся только к этой task.
func (r *Runtime) Execute(ctx context.Context, task *domain.Task) error {
	_, err := r.execute(ctx, task)
	return err
}

// execute выполняет task. true — task не удалось записать
// в executing_task, обработчик не вызывался.
func (r *Runtime) execute(ctx context.Context, task *domain.Task) (bool, error) {
	// 1. Ищем обработчик
	b, err := r.registry.get(task.Type)
	if err != nil {
		return false, err
	}

	logger := telemetry.WithTask(r.logger, task.ID.String(), string(task.Type), task.StateID)
	ctx = telemetry.WithLogger(ctx, logger)

	// 2. Занимаем собственный документ
	own := newStateHandle(r.store, r.consumerID, logger)
	if err := r.begin(ctx, own, task); err != nil {
		return true, err
	}

	// 3. Выполняем
	start := time.Now()
	target, execErr := r.dispatch(ctx, b, task, own)
	telemetry.TaskDuration.WithLabelValues(string(task.Type)).Observe(time.Since(start).Seconds())

	result := "ok"
	if execErr != nil {
		result = "error"
	}
	telemetry.TasksExecuted.WithLabelValues(r.kind, string(task.Type), result).Inc()

	// 4. Освобождаем документ (и при ошибке обработчика тоже)
	record := !b.noHistory && execErr == nil
	if err := r.end(ctx, own, task, record); err != nil {
		return false, errors.Join(execErr, err)
	}

	// 5. История чужого документа
	if record && target != nil && target != own {
		if err := r.recordOnTarget(ctx, target, task); err != nil {
			return false, err
		}
	}

	if execErr != nil {
		if IsFatal(execErr) {
			logger.Error("task failed fatally", "error", execErr)
		} else {
			logger.Warn("task failed", "error", execErr)
		}
		return false, fmt.Errorf("execute %s: %w", task.Type, execErr)
	}

	logger.Debug("task executed", "kind", b.kind.String())
	return false, nil
}

// requeue возвращает в брокер task, выполнение которой не началось.
// Если и это не удалось, task потеряна: ошибка фатальная.
func (r *Runtime) requeue(ctx context.Context, task *domain.Task, cause error) error {
	if _, err := r.broker.PostNewTask(ctx, task); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTaskLost, task.Type, task.ID, errors.Join(cause, err))
	}

	r.logger.Warn("task returned to queue",
		"task_type", task.Type,
		"task_id", task.ID,
		"error", cause,
	)
	return fmt.Errorf("%w: %w", ErrTaskRequeued, cause)
}

// dispatch вызывает обработчик и возвращает handle документа, который он менял.
func (r *Runtime) dispatch(ctx context.Context, b *binding, task *domain.Task, own *StateHandle) (*StateHandle, error) {
	switch b.kind {
	case KindProducer:
		return own, r.produce(ctx, b, own)

	case KindImpersonating:
		target := own
		if task.StateID != "" && task.StateID != r.consumerID {
			target = newStateHandle(r.store, task.StateID, telemetry.FromContext(ctx))
		}
		return target, b.handle(ctx, task, target)

	default:
		return own, b.handle(ctx, task, own)
	}
}

// produce вызывает producers и отправляет созданные ими tasks.
func (r *Runtime) produce(ctx context.Context, b *binding, own *StateHandle) error {
	now := r.clock.Now()

	for _, fn := range b.produce {
		tasks, err := fn(ctx, now, own)
		if err != nil {
			return err
		}

		for _, t := range tasks {
			if t.ProducerID == "" {
				t.ProducerID = r.consumerID
			}
			if t.ProducerTimestamp.IsZero() {
				t.ProducerTimestamp = now
			}

			if _, err := r.broker.PostNewTask(ctx, t); err != nil {
				return fmt.Errorf("post %s to %s: %w", t.Type, t.ConsumerID, err)
			}
		}
	}

	return nil
}

// begin записывает task в executing_task собственного документа.
func (r *Runtime) begin(ctx context.Context, own *StateHandle, task *domain.Task) error {
	return own.patch(ctx, func(fields map[string]json.RawMessage) error {
		if raw, ok := fields[fieldExecutingTask]; ok && string(raw) != "null" {
			return fmt.Errorf("%w: consumer %s, task %s", ErrTaskInFlight, r.consumerID, task.Type)
		}
		return setExecutingTask(fields, task)
	})
}

// end очищает executing_task и, если record, дописывает историю.
func (r *Runtime) end(ctx context.Context, own *StateHandle, task *domain.Task, record bool) error {
	return own.patch(ctx, func(fields map[string]json.RawMessage) error {
		if err := setExecutingTask(fields, nil); err != nil {
			return err
		}
		if !record {
			return nil
		}
		return appendHistory(fields, task.Summary())
	})
}

// recordOnTarget дописывает историю в документ impersonating task,
// если обработчик его создал или он уже был.
func (r *Runtime) recordOnTarget(ctx context.Context, target *StateHandle, task *domain.Task) error {
	exists, err := target.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	return target.patch(ctx, func(fields map[string]json.RawMessage) error {
		return appendHistory(fields, task.Summary())
	})
}

// persist сохраняет persistent task в журнал, вытесняя предыдущую
// task того же типа для того же документа.
func (r *Runtime) persist(ctx context.Context, task *domain.Task) error {
	if r.log == nil {
		return nil
	}

	pending, err := r.log.PendingTasks(ctx, r.consumerID)
	if err != nil {
		return fmt.Errorf("read persisted log: %w", err)
	}

	for range pending {
		old, err := r.log.RemoveNextTask(ctx, r.consumerID)
		if errors.Is(err, broker.ErrEmpty) {
			break
		}
		if err != nil {
			return fmt.Errorf("compact persisted log: %w", err)
		}
		if old.Type == task.Type && old.StateID == task.StateID {
			continue
		}
		if _, err := r.log.PostNewTask(ctx, old); err != nil {
			return fmt.Errorf("compact persisted log: %w", err)
		}
	}

	if _, err := r.log.PostNewTask(ctx, task); err != nil {
		return fmt.Errorf("append persisted log: %w", err)
	}
	return nil
}

// Recover готовит consumer к работе после рестарта.
//
//  1. Persistent tasks из журнала возвращаются в очередь.
//  2. Task, оставшаяся в executing_task после падения, снимается
//     и ставится в очередь заново.
func (r *Runtime) Recover(ctx context.Context) error {
	if r.log != nil {
		persisted, err := r.log.PendingTasks(ctx, r.consumerID)
		if err != nil {
			return fmt.Errorf("read persisted log: %w", err)
		}
		for _, task := range persisted {
			posted, err := r.broker.PostNewTask(ctx, task)
			if err != nil {
				return fmt.Errorf("replay %s: %w", task.Type, err)
			}
			if posted {
				r.logger.Info("replayed persisted task", "task_type", task.Type, "task_id", task.ID)
			}
		}
	}

	own := newStateHandle(r.store, r.consumerID, r.logger)
	stale, err := own.executingTask(ctx)
	if err != nil {
		return err
	}
	if stale == nil {
		return nil
	}

	r.logger.Warn("found task left in flight, re-posting",
		"task_type", stale.Type,
		"task_id", stale.ID,
	)

	if err := own.patch(ctx, func(fields map[string]json.RawMessage) error {
		return setExecutingTask(fields, nil)
	}); err != nil {
		return err
	}

	if _, err := r.broker.PostNewTask(ctx, stale); err != nil {
		return fmt.Errorf("re-post %s: %w", stale.Type, err)
	}
	return nil
}
