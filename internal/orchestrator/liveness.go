package orchestrator

import (
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// Liveness — доступность агента на текущем проходе.
type Liveness int

const (
	// Undetermined — данных недостаточно, ждём.
	Undetermined Liveness = iota

	// Reachable — агент недавно отвечал на ping.
	Reachable

	// Unreachable — агент считается потерянным.
	Unreachable
)

// String возвращает имя класса для логов и метрик.
func (l Liveness) String() string {
	switch l {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "undetermined"
	}
}

// classify определяет доступность агента.
//
//  1. Reachable: агент запущен и отвечал на ping не позже unreachableTimeout назад.
//  2. Unreachable: есть неотвеченный ping текущего поколения старше
//     unreachableTimeout. Ping прошлого поколения устарел и не учитывается.
//  3. Unreachable: агент ни разу не был запущен, это не первый проход sync,
//     и самый старый неотвеченный ping ждёт не меньше bootstrapTimeout.
//  4. Иначе Undetermined.
func (o *Orchestrator) classify(now time.Time, agent *domain.AgentState, pending []*domain.Task, firstPass bool) Liveness {
	running := agent != nil && agent.Progress.IsAgentRunning()

	// 1. Свежий ответ
	if running && agent.LastPingSourceTimestamp != nil &&
		now.Sub(*agent.LastPingSourceTimestamp) <= o.unreachableTimeout {
		return Reachable
	}

	// 2. Неотвеченный ping текущего поколения
	generation := agent.Generation()
	var oldest *time.Time
	for _, task := range pending {
		if task.Type != domain.TaskTypePingAgent {
			continue
		}

		if oldest == nil || task.ProducerTimestamp.Before(*oldest) {
			ts := task.ProducerTimestamp
			oldest = &ts
		}

		payload, err := domain.ParsePayload[domain.PingAgentPayload](task)
		if err != nil {
			o.logger.Warn("malformed ping task", "task_id", task.ID, "error", err)
			continue
		}
		if payload.Generation == generation && now.Sub(task.ProducerTimestamp) > o.unreachableTimeout {
			return Unreachable
		}
	}

	// 3. Агент так и не появился
	if !running && !firstPass {
		if oldest == nil {
			if o.bootstrapTimeout == 0 {
				return Unreachable
			}
		} else if now.Sub(*oldest) >= o.bootstrapTimeout {
			return Unreachable
		}
	}

	return Undetermined
}
