package config

import (
	"fmt"
	"time"

	"github.com/vrischmann/envconfig"

	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/effector"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
)

// Backends хранилища состояний.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreEtcd     = "etcd"
)

// Backend — где живут документы, очереди tasks и уведомления.
type Backend struct {
	// Store — memory, postgres или etcd. Очереди tasks для etcd
	// хранятся в PostgreSQL.
	Store string `envconfig:"STORE_BACKEND,default=memory"`

	DatabaseURL   string   `envconfig:"DB_URL,optional"`
	EtcdEndpoints []string `envconfig:"ETCD_ENDPOINTS,default=localhost:2379"`
	EtcdPrefix    string   `envconfig:"ETCD_PREFIX,default=/servicegrid/"`

	// RabbitMQURL — уведомления task.posted. Без него workers только опрашивают очереди.
	RabbitMQURL string `envconfig:"RABBITMQ_URL,optional"`
}

// Grid — параметры reconciliation.
type Grid struct {
	ServerURL          string        `envconfig:"GRID_SERVER_URL,default=http://localhost:8080/"`
	UnreachableTimeout time.Duration `envconfig:"GRID_UNREACHABLE_TIMEOUT,default=30s"`
	BootstrapTimeout   time.Duration `envconfig:"GRID_BOOTSTRAP_TIMEOUT,default=0s"`
	TickSchedule       string        `envconfig:"GRID_TICK_SCHEDULE,default=@every 2s"`
	PollInterval       time.Duration `envconfig:"GRID_POLL_INTERVAL,default=1s"`

	// LocalAgents — агенты поднимаются в процессе оркестратора (cloud.LocalDriver).
	LocalAgents bool `envconfig:"GRID_LOCAL_AGENTS,default=false"`
}

// Scheme возвращает схему ids grid.
func (g Grid) Scheme() domain.Scheme {
	return domain.NewScheme(g.ServerURL)
}

// Agent — параметры процесса агента.
type Agent struct {
	ID             string        `envconfig:"AGENT_ID,optional"`
	Effector       string        `envconfig:"AGENT_EFFECTOR,default=nop"`
	EffectorDelay  time.Duration `envconfig:"AGENT_EFFECTOR_DELAY,default=1s"`
	WebhookURL     string        `envconfig:"AGENT_WEBHOOK_URL,optional"`
	WebhookTimeout time.Duration `envconfig:"AGENT_WEBHOOK_TIMEOUT,default=10s"`
}

// NewEffector создаёт effector, выбранный AGENT_EFFECTOR.
func (a Agent) NewEffector() (effector.Effector, error) {
	registry, err := effector.DefaultRegistry(effector.Config{
		Delay:          a.EffectorDelay,
		WebhookURL:     a.WebhookURL,
		WebhookTimeout: a.WebhookTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	eff, err := registry.Get(a.Effector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return eff, nil
}

// HTTP — порт служебного HTTP сервера процесса.
type HTTP struct {
	Port int `envconfig:"HTTP_PORT,default=8080"`
}

// Addr возвращает адрес для http.ListenAndServe.
func (h HTTP) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

// Config — конфигурация процесса service grid.
type Config struct {
	Log     telemetry.LogConfig
	Backend Backend
	Grid    Grid
	Agent   Agent
	HTTP    HTTP
}

// Load читает конфигурацию из окружения.
//
// Секции читаются по отдельности, ключи не получают префикс секции.
func Load() (*Config, error) {
	var cfg Config

	sections := []struct {
		name string
		v    any
	}{
		{"log", &cfg.Log},
		{"backend", &cfg.Backend},
		{"grid", &cfg.Grid},
		{"agent", &cfg.Agent},
		{"http", &cfg.HTTP},
	}
	for _, s := range sections {
		if err := envconfig.Init(s.v); err != nil {
			return nil, fmt.Errorf("read %s config: %w", s.name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность секций.
func (c *Config) Validate() error {
	switch c.Backend.Store {
	case StoreMemory, StorePostgres, StoreEtcd:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.Backend.Store)
	}

	if c.Backend.Store == StoreEtcd && len(c.Backend.EtcdEndpoints) == 0 {
		return fmt.Errorf("%w: ETCD_ENDPOINTS is empty", ErrInvalidConfig)
	}
	if c.Grid.UnreachableTimeout <= 0 {
		return fmt.Errorf("%w: GRID_UNREACHABLE_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.Grid.BootstrapTimeout < 0 {
		return fmt.Errorf("%w: GRID_BOOTSTRAP_TIMEOUT must not be negative", ErrInvalidConfig)
	}
	return nil
}
