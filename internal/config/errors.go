package config

import "errors"

// ErrInvalidConfig — значения окружения несовместимы.
var ErrInvalidConfig = errors.New("invalid config")
