package worker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// Kind — вид обработчика.
type Kind int

const (
	// KindConsumer меняет собственный документ consumer'а.
	KindConsumer Kind = iota

	// KindImpersonating меняет документ task.StateID.
	KindImpersonating

	// KindProducer создаёт новые tasks по TaskProducerTask.
	KindProducer
)

// String возвращает имя вида для логов.
func (k Kind) String() string {
	switch k {
	case KindConsumer:
		return "consumer"
	case KindImpersonating:
		return "impersonating"
	case KindProducer:
		return "producer"
	default:
		return "unknown"
	}
}

// HandlerFunc выполняет task над документом state.
//
// Для KindConsumer state — собственный документ consumer'а,
// для KindImpersonating — документ task.StateID.
type HandlerFunc func(ctx context.Context, task *domain.Task, state *StateHandle) error

// ProducerFunc возвращает tasks, которые нужно отправить.
// ProducerID и ProducerTimestamp проставляет runtime.
type ProducerFunc func(ctx context.Context, now time.Time, own *StateHandle) ([]*domain.Task, error)

// Consumer адаптирует типизированный обработчик к HandlerFunc.
func Consumer[T any](fn func(ctx context.Context, task *domain.Task, state *Handle[T]) error) HandlerFunc {
	return func(ctx context.Context, task *domain.Task, state *StateHandle) error {
		return fn(ctx, task, Typed[T](state))
	}
}

// Producer адаптирует типизированный producer к ProducerFunc.
func Producer[T any](fn func(ctx context.Context, now time.Time, own *Handle[T]) ([]*domain.Task, error)) ProducerFunc {
	return func(ctx context.Context, now time.Time, own *StateHandle) ([]*domain.Task, error) {
		return fn(ctx, now, Typed[T](own))
	}
}

// binding — обработчик, привязанный к типу task.
type binding struct {
	kind    Kind
	handle  HandlerFunc
	produce []ProducerFunc

	// noHistory — task не попадает в tasks_history.
	noHistory bool

	// persistent — task сохраняется в persisted log.
	persistent bool
}

// Option настраивает binding.
type Option func(*binding)

// NoHistory отключает запись task в tasks_history.
func NoHistory() Option {
	return func(b *binding) { b.noHistory = true }
}

// Persistent помечает task для persisted log.
func Persistent() Option {
	return func(b *binding) { b.persistent = true }
}

// Registry — таблица обработчиков consumer'а по типу task.
//
// Заполняется при создании executor'а, во время работы не меняется.
type Registry struct {
	bindings map[domain.TaskType]*binding
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[domain.TaskType]*binding)}
}

// Register привязывает обработчик собственного документа.
func (r *Registry) Register(taskType domain.TaskType, fn HandlerFunc, opts ...Option) {
	r.bind(taskType, &binding{kind: KindConsumer, handle: fn}, opts)
}

// RegisterImpersonating привязывает обработчик чужого документа.
func (r *Registry) RegisterImpersonating(taskType domain.TaskType, fn HandlerFunc, opts ...Option) {
	r.bind(taskType, &binding{kind: KindImpersonating, handle: fn}, opts)
}

// RegisterProducer добавляет producer. Все producers вызываются
// по одной TaskProducerTask в порядке регистрации.
func (r *Registry) RegisterProducer(fn ProducerFunc) {
	b, ok := r.bindings[domain.TaskTypeProducer]
	if !ok {
		b = &binding{kind: KindProducer, noHistory: true}
		r.bindings[domain.TaskTypeProducer] = b
	}
	b.produce = append(b.produce, fn)
}

func (r *Registry) bind(taskType domain.TaskType, b *binding, opts []Option) {
	for _, opt := range opts {
		opt(b)
	}
	r.bindings[taskType] = b
}

// Kind возвращает вид обработчика для типа task.
func (r *Registry) Kind(taskType domain.TaskType) (Kind, error) {
	b, err := r.get(taskType)
	if err != nil {
		return 0, err
	}
	return b.kind, nil
}

// Types возвращает зарегистрированные типы tasks по алфавиту.
func (r *Registry) Types() []domain.TaskType {
	types := make([]domain.TaskType, 0, len(r.bindings))
	for t := range r.bindings {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (r *Registry) get(taskType domain.TaskType) (*binding, error) {
	b, ok := r.bindings[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, taskType)
	}
	return b, nil
}

func (r *Registry) isPersistent(taskType domain.TaskType) bool {
	b, ok := r.bindings[taskType]
	return ok && b.persistent
}
