package effector

import (
	"context"
	"errors"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// Ошибки effectors.
var (
	// ErrEffectorNotFound — тип effector'а не найден в реестре.
	ErrEffectorNotFound = errors.New("effector type not found")

	// ErrInvalidConfig — невалидная конфигурация effector'а.
	ErrInvalidConfig = errors.New("invalid effector config")

	// ErrCancelled — применение перехода отменено.
	ErrCancelled = errors.New("effector cancelled")
)

// Effector — внешнее действие агента при переходе instance.
//
// Агент вызывает Apply до записи нового progress: если Apply вернул
// ошибку, progress не меняется и оркестратор повторит task.
// Apply должен быть идемпотентным.
type Effector interface {
	// Type возвращает тип effector'а.
	Type() string

	// Apply выполняет переход.
	// Effector должен проверять ctx.Done() для graceful shutdown.
	Apply(ctx context.Context, t Transition) error
}

// Transition — переход service instance на агенте.
type Transition struct {
	InstanceID string                  `json:"instance_id"`
	ServiceID  string                  `json:"service_id"`
	AgentID    string                  `json:"agent_id"`
	From       domain.InstanceProgress `json:"from"`
	To         domain.InstanceProgress `json:"to"`
}
