package broker

import (
	"context"
	"errors"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// ErrEmpty — в очереди consumer'а нет tasks.
var ErrEmpty = errors.New("no pending tasks")

// Broker — очереди tasks по consumer'ам.
//
// Для одного consumer'а tasks выдаются строго FIFO.
type Broker interface {
	// PostNewTask добавляет task в хвост очереди task.ConsumerID.
	// Возвращает false, если эквивалентная task уже ожидает
	// (сравнение без ProducerTimestamp и ID).
	PostNewTask(ctx context.Context, task *domain.Task) (bool, error)

	// RemoveNextTask достаёт первую task очереди или возвращает ErrEmpty.
	RemoveNextTask(ctx context.Context, consumerID string) (*domain.Task, error)

	// PendingTasks возвращает снимок очереди без изменения.
	PendingTasks(ctx context.Context, consumerID string) ([]*domain.Task, error)
}
