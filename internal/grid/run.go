package grid

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/ServiceGrid/internal/scheduler"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

// Start запускает grid в фоне.
//
//  1. Оркестратор и provisioner восстанавливаются после рестарта.
//  2. Scheduler начинает отправлять тики оркестратору.
//  3. Фоновый цикл разбирает очереди каждые PollInterval.
//
// Фатальная ошибка останавливает цикл, её возвращает Wait.
func (g *Grid) Start(ctx context.Context) error {
	// 1. Recover
	for _, rt := range []*worker.Runtime{g.orchRuntime, g.provRuntime} {
		if err := rt.Recover(ctx); err != nil {
			return fmt.Errorf("recover %s: %w", rt.ConsumerID(), err)
		}
	}

	// 2. Scheduler
	sched, err := scheduler.New(scheduler.Config{
		Broker:    g.broker,
		Producers: []string{g.orch.ID()},
		Schedule:  g.schedule,
		Clock:     g.clock,
		Logger:    g.logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	g.sched = sched
	g.cancel = cancel
	g.errCh = make(chan error, 1)
	g.mu.Unlock()

	sched.Start(ctx)

	// 3. Цикл
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.loop(ctx)
	}()

	g.logger.Info("grid started",
		"orchestrator_id", g.orch.ID(),
		"provisioner_id", g.prov.ID(),
		"poll_interval", g.pollInterval,
	)
	return nil
}

func (g *Grid) loop(ctx context.Context) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := g.settle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Error("grid stopped on fatal error", "error", err)
			g.errCh <- err
			return
		}
	}
}

// Wait блокируется до остановки фонового цикла и возвращает
// фатальную ошибку, если цикл остановился из-за неё.
func (g *Grid) Wait() error {
	g.wg.Wait()

	g.mu.Lock()
	errCh := g.errCh
	g.mu.Unlock()

	if errCh == nil {
		return nil
	}
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Stop останавливает scheduler и фоновый цикл.
func (g *Grid) Stop() {
	g.mu.Lock()
	sched, cancel := g.sched, g.cancel
	g.sched, g.cancel = nil, nil
	g.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()

	g.logger.Info("grid stopped")
}
