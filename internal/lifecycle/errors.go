package lifecycle

import "errors"

// Ошибки разбора описания графа.
var (
	// ErrEmptySpec — описание не содержит ни одного состояния.
	ErrEmptySpec = errors.New("lifecycle spec has no states")

	// ErrInvalidState — пустое или некорректное имя состояния.
	ErrInvalidState = errors.New("invalid state name")
)
