package domain

import "errors"

// Ошибки валидации.
var (
	// ErrInvalidPlan — deployment plan не прошёл валидацию.
	ErrInvalidPlan = errors.New("invalid deployment plan")

	// ErrInvalidTask — task без обязательных полей.
	ErrInvalidTask = errors.New("invalid task")
)
