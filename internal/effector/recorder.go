package effector

import (
	"context"
	"sync"
)

// TypeRecorder — effector, запоминающий переходы.
const TypeRecorder = "recorder"

// Recorder запоминает применённые переходы. Используется при
// симуляции grid в одном процессе.
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

// Type возвращает тип effector'а.
func (r *Recorder) Type() string {
	return TypeRecorder
}

// Apply запоминает переход.
func (r *Recorder) Apply(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return nil
}

// Transitions возвращает копию запомненных переходов.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}
