package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
)

// Служебные поля ConsumerState, которые runtime меняет сам.
const (
	fieldExecutingTask = "executing_task"
	fieldTasksHistory  = "tasks_history"
)

// StateHandle — доступ к одному документу в рамках выполнения одной task.
//
// Первый Get читает документ и запоминает etag. Put пишет с запомненным
// etag и сдвигает его. Между Get и Put документ повторно не читается.
type StateHandle struct {
	store  store.Store
	id     string
	logger *slog.Logger

	loaded bool
	etag   store.Etag
	body   []byte
}

func newStateHandle(s store.Store, id string, logger *slog.Logger) *StateHandle {
	return &StateHandle{store: s, id: id, logger: logger}
}

// ID возвращает id документа.
func (h *StateHandle) ID() string {
	return h.id
}

// Etag возвращает последний известный etag документа.
func (h *StateHandle) Etag() store.Etag {
	return h.etag
}

// Exists сообщает, есть ли документ.
func (h *StateHandle) Exists(ctx context.Context) (bool, error) {
	if err := h.load(ctx); err != nil {
		return false, err
	}
	return len(h.body) > 0, nil
}

// Get декодирует документ в out. Возвращает false, если документа нет.
func (h *StateHandle) Get(ctx context.Context, out any) (bool, error) {
	if err := h.load(ctx); err != nil {
		return false, err
	}
	if len(h.body) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(h.body, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", h.id, err)
	}
	return true, nil
}

// Put сериализует v и записывает документ.
func (h *StateHandle) Put(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", h.id, err)
	}

	if err := h.load(ctx); err != nil {
		return err
	}
	return h.putRaw(ctx, body)
}

func (h *StateHandle) load(ctx context.Context) error {
	if h.loaded {
		return nil
	}

	doc, err := h.store.Get(ctx, h.id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.etag, h.body = store.EmptyEtag, nil
	case err != nil:
		return fmt.Errorf("get %s: %w", h.id, err)
	default:
		h.etag, h.body = doc.Etag, doc.Body
	}

	h.loaded = true
	return nil
}

// putRaw пишет body с кэшированным etag.
//
// Конфликт с текущим EMPTY означает, что документ пропал (хранилище
// сброшено): запись повторяется один раз как создание. Любой другой
// конфликт — второй живой writer.
func (h *StateHandle) putRaw(ctx context.Context, body []byte) error {
	etag, err := h.store.Put(ctx, h.id, body, h.etag)

	if conflict, ok := store.AsConflict(err); ok && conflict.Current == store.EmptyEtag {
		telemetry.StateConflicts.WithLabelValues("true").Inc()
		h.logger.Warn("state document disappeared, recreating",
			"state_id", h.id,
			"expected_etag", conflict.Expected.String(),
		)
		etag, err = h.store.Put(ctx, h.id, body, store.EmptyEtag)
	}

	if conflict, ok := store.AsConflict(err); ok {
		telemetry.StateConflicts.WithLabelValues("false").Inc()
		return fmt.Errorf("%w: %w", ErrConcurrentWriter, conflict)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", h.id, err)
	}

	h.etag, h.body = etag, body
	return nil
}

// patch меняет отдельные поля документа, не трогая остальные.
func (h *StateHandle) patch(ctx context.Context, fn func(fields map[string]json.RawMessage) error) error {
	if err := h.load(ctx); err != nil {
		return err
	}

	fields := make(map[string]json.RawMessage)
	if len(h.body) > 0 {
		if err := json.Unmarshal(h.body, &fields); err != nil {
			return fmt.Errorf("unmarshal %s: %w", h.id, err)
		}
	}

	if err := fn(fields); err != nil {
		return err
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", h.id, err)
	}
	return h.putRaw(ctx, body)
}

// executingTask возвращает task из поля executing_task (nil, если поле пустое).
func (h *StateHandle) executingTask(ctx context.Context) (*domain.Task, error) {
	if err := h.load(ctx); err != nil {
		return nil, err
	}
	if len(h.body) == 0 {
		return nil, nil
	}

	var cs domain.ConsumerState
	if err := json.Unmarshal(h.body, &cs); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", h.id, err)
	}
	return cs.ExecutingTask, nil
}

// setExecutingTask записывает task в executing_task (nil очищает поле).
func setExecutingTask(fields map[string]json.RawMessage, task *domain.Task) error {
	if task == nil {
		delete(fields, fieldExecutingTask)
		return nil
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal executing task: %w", err)
	}
	fields[fieldExecutingTask] = raw
	return nil
}

// appendHistory дописывает запись в tasks_history.
func appendHistory(fields map[string]json.RawMessage, record domain.TaskRecord) error {
	var history []json.RawMessage
	if raw, ok := fields[fieldTasksHistory]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &history); err != nil {
			return fmt.Errorf("unmarshal tasks history: %w", err)
		}
	}

	entry, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	history = append(history, entry)

	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal tasks history: %w", err)
	}
	fields[fieldTasksHistory] = raw
	return nil
}

// Handle — типизированный StateHandle.
type Handle[T any] struct {
	raw *StateHandle
}

// Typed оборачивает StateHandle в Handle[T].
func Typed[T any](h *StateHandle) *Handle[T] {
	return &Handle[T]{raw: h}
}

// ID возвращает id документа.
func (h *Handle[T]) ID() string {
	return h.raw.ID()
}

// Get возвращает документ или nil, если его нет.
func (h *Handle[T]) Get(ctx context.Context) (*T, error) {
	var v T
	found, err := h.raw.Get(ctx, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// Put записывает документ.
func (h *Handle[T]) Put(ctx context.Context, v *T) error {
	return h.raw.Put(ctx, v)
}
