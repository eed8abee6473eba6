package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrPlanRejected — новый deployment plan не принят.
	ErrPlanRejected = errors.New("deployment plan rejected")
)
