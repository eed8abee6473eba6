package effector

import (
	"context"
	"fmt"
	"time"
)

// TypeDelay — effector задержки.
const TypeDelay = "delay"

// Delay имитирует длительную установку или запуск instance.
//
// Поддерживает graceful shutdown через context cancellation.
type Delay struct {
	duration time.Duration
}

// NewDelay создаёт новый Delay.
func NewDelay(duration time.Duration) (*Delay, error) {
	if duration < 0 {
		return nil, fmt.Errorf("%w: %s: negative duration %s", ErrInvalidConfig, TypeDelay, duration)
	}
	return &Delay{duration: duration}, nil
}

// Type возвращает тип effector'а.
func (d *Delay) Type() string {
	return TypeDelay
}

// Apply ждёт заданное время.
func (d *Delay) Apply(ctx context.Context, _ Transition) error {
	timer := time.NewTimer(d.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
