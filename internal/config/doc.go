// Package config читает конфигурацию процессов service grid из окружения.
package config
