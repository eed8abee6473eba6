package grid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Step выполняет один проход reconciliation.
//
//  1. Оркестратор получает TaskProducerTask.
//  2. Очереди оркестратора, provisioner'а и агентов разбираются
//     раундами, пока в них что-то есть.
//
// Фатальная ошибка любого runtime прерывает Step. Остальные ошибки
// tasks логируются: reconciliation повторит task на следующем проходе.
func (g *Grid) Step(ctx context.Context) error {
	tick, err := domain.NewTask(domain.TaskTypeProducer, g.orch.ID(), g.orch.ID(), nil)
	if err != nil {
		return err
	}
	tick.ProducerTimestamp = g.clock.Now()
	if _, err := g.broker.PostNewTask(ctx, tick); err != nil {
		return fmt.Errorf("post tick: %w", err)
	}

	return g.settle(ctx)
}

// Run выполняет steps проходов, сдвигая ручные часы на interval
// после каждого. С системными часами interval игнорируется.
func (g *Grid) Run(ctx context.Context, steps int, interval time.Duration) error {
	for i := 0; i < steps; i++ {
		if err := g.Step(ctx); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if clock, ok := g.clock.(*worker.ManualClock); ok {
			clock.Advance(interval)
		}
	}
	return nil
}

// settle разбирает очереди раундами, пока они не опустеют.
func (g *Grid) settle(ctx context.Context) error {
	for round := 0; round < g.maxRounds; round++ {
		consumed := 0
		for _, rt := range g.runtimes() {
			n, err := g.drain(ctx, rt)
			if err != nil {
				return err
			}
			consumed += n
		}
		if consumed == 0 {
			return nil
		}
	}

	return fmt.Errorf("grid did not settle in %d rounds", g.maxRounds)
}

// runtimes возвращает runtimes в порядке разбора очередей:
// оркестратор, provisioner, агенты по id.
func (g *Grid) runtimes() []*worker.Runtime {
	result := []*worker.Runtime{g.orchRuntime, g.provRuntime}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.agentIDsLocked() {
		result = append(result, g.agents[id].runtime)
	}
	return result
}

// drain выполняет все tasks из очереди runtime.
func (g *Grid) drain(ctx context.Context, rt *worker.Runtime) (int, error) {
	n := 0
	for {
		consumed, err := rt.ConsumeNextTask(ctx)
		if consumed {
			n++
		}
		if err != nil {
			if worker.IsFatal(err) {
				return n, fmt.Errorf("%s: %w", rt.ConsumerID(), err)
			}
			g.logger.Warn("task failed", "consumer_id", rt.ConsumerID(), "error", err)
			if errors.Is(err, worker.ErrTaskRequeued) {
				// task вернулась в очередь, повтор на следующем проходе
				return n - 1, nil
			}
		}
		if !consumed {
			return n, nil
		}
	}
}
