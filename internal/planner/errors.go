package planner

import "errors"

// Ошибки валидации спецификации сервисов.
var (
	// ErrEmptyName — сервис без имени.
	ErrEmptyName = errors.New("service has empty name")

	// ErrInvalidName — имя сервиса не годится для id.
	ErrInvalidName = errors.New("invalid service name")

	// ErrDuplicateService — несколько сервисов с одинаковым именем.
	ErrDuplicateService = errors.New("duplicate service")

	// ErrInstancesOutOfRange — число instances вне [min, max].
	ErrInstancesOutOfRange = errors.New("instances out of range")

	// ErrInvalidLifecycle — недопустимый целевой progress instances.
	ErrInvalidLifecycle = errors.New("invalid instance lifecycle")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Service string // имя сервиса, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Service != "" {
		return "service " + e.Service + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(service, field, message string, err error) *ValidationError {
	return &ValidationError{
		Service: service,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
