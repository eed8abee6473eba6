package worker

import (
	"errors"
	"fmt"
)

// ErrFatal — нарушение инварианта runtime. Runner останавливается.
var ErrFatal = errors.New("fatal task runtime error")

// Фатальные ошибки runtime (все оборачивают ErrFatal).
var (
	// ErrTaskInFlight — у consumer'а уже есть выполняющаяся task.
	ErrTaskInFlight = fmt.Errorf("%w: another task is in flight", ErrFatal)

	// ErrNoHandler — для типа task не зарегистрирован обработчик.
	ErrNoHandler = fmt.Errorf("%w: no handler for task type", ErrFatal)

	// ErrConcurrentWriter — документ изменён другим живым writer'ом.
	ErrConcurrentWriter = fmt.Errorf("%w: concurrent writer", ErrFatal)

	// ErrTaskLost — task извлечена из брокера, не выполнена и не возвращена.
	ErrTaskLost = fmt.Errorf("%w: task lost", ErrFatal)
)

// Ошибки runner'а.
var (
	// ErrRunnerStopped — runner остановлен.
	ErrRunnerStopped = errors.New("runner stopped")

	// ErrTaskRequeued — task не начала выполняться и вернулась в очередь.
	// Повторять стоит не раньше следующего тика.
	ErrTaskRequeued = errors.New("task returned to queue")
)

// IsFatal проверяет, является ли ошибка фатальной для runtime.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
