package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер расписаний тиков.
//
// Поддерживает дескрипторы (@every 2s, @hourly) и cron-выражения
// с необязательным полем секунд.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule разбирает расписание тиков.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}
	return schedule, nil
}

// ValidateSchedule проверяет валидность расписания.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}
