package scheduler

import "errors"

// ErrInvalidSchedule — расписание не разбирается.
var ErrInvalidSchedule = errors.New("invalid tick schedule")
