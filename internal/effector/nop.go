package effector

import "context"

// TypeNop — effector без внешних действий.
const TypeNop = "nop"

// Nop только меняет progress.
type Nop struct{}

// Type возвращает тип effector'а.
func (Nop) Type() string {
	return TypeNop
}

// Apply ничего не делает.
func (Nop) Apply(context.Context, Transition) error {
	return nil
}
