package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// MemoryBroker — Broker в памяти процесса.
//
// Tasks хранятся сериализованными, чтобы consumer не делил
// указатели с producer'ом.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][]pendingTask
}

type pendingTask struct {
	fingerprint string
	body        []byte
}

// NewMemoryBroker создаёт пустой MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string][]pendingTask)}
}

// PostNewTask добавляет task, если эквивалентной ещё нет в очереди.
func (b *MemoryBroker) PostNewTask(_ context.Context, task *domain.Task) (bool, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return false, fmt.Errorf("marshal task: %w", err)
	}
	fingerprint := task.Fingerprint()

	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[task.ConsumerID]
	for _, p := range queue {
		if p.fingerprint == fingerprint {
			return false, nil
		}
	}

	b.queues[task.ConsumerID] = append(queue, pendingTask{fingerprint: fingerprint, body: body})
	return true, nil
}

// RemoveNextTask достаёт первую task очереди.
func (b *MemoryBroker) RemoveNextTask(_ context.Context, consumerID string) (*domain.Task, error) {
	b.mu.Lock()
	queue := b.queues[consumerID]
	if len(queue) == 0 {
		b.mu.Unlock()
		return nil, ErrEmpty
	}
	next := queue[0]
	b.queues[consumerID] = queue[1:]
	b.mu.Unlock()

	return decode(next.body)
}

// PendingTasks возвращает снимок очереди.
func (b *MemoryBroker) PendingTasks(_ context.Context, consumerID string) ([]*domain.Task, error) {
	b.mu.Lock()
	queue := append([]pendingTask(nil), b.queues[consumerID]...)
	b.mu.Unlock()

	tasks := make([]*domain.Task, 0, len(queue))
	for _, p := range queue {
		task, err := decode(p.body)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Consumers возвращает ids consumer'ов с непустыми очередями.
func (b *MemoryBroker) Consumers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for id, queue := range b.queues {
		if len(queue) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clear удаляет все очереди (имитация рестарта брокера).
func (b *MemoryBroker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = make(map[string][]pendingTask)
}

func decode(body []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}
