package effector

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config — параметры стандартных effectors.
type Config struct {
	// Delay — длительность перехода для delay.
	Delay time.Duration

	// WebhookURL — адрес для webhook. Пустой адрес: webhook не регистрируется.
	WebhookURL string

	// WebhookTimeout — таймаут запроса webhook.
	WebhookTimeout time.Duration
}

// Registry — реестр effectors по типу. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	effectors map[string]Effector
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{effectors: make(map[string]Effector)}
}

// DefaultRegistry создаёт реестр со стандартными effectors.
func DefaultRegistry(cfg Config) (*Registry, error) {
	r := NewRegistry()
	r.Register(Nop{})

	delay, err := NewDelay(cfg.Delay)
	if err != nil {
		return nil, err
	}
	r.Register(delay)

	if cfg.WebhookURL != "" {
		webhook, err := NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout)
		if err != nil {
			return nil, err
		}
		r.Register(webhook)
	}

	return r, nil
}

// Register регистрирует effector. Effector того же типа перезаписывается.
func (r *Registry) Register(e Effector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effectors[e.Type()] = e
}

// Get возвращает effector по типу.
// Возвращает ErrEffectorNotFound, если effector не найден.
func (r *Registry) Get(effectorType string) (Effector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.effectors[effectorType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEffectorNotFound, effectorType)
	}
	return e, nil
}

// Types возвращает типы зарегистрированных effectors.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.effectors))
	for t := range r.effectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
