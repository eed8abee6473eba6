package domain

import (
	"fmt"
	"strings"
)

// Scheme строит иерархические ids документов.
//
// Корень задаётся один раз при старте процесса и передаётся через Config,
// глобальных корневых ids нет.
type Scheme struct {
	// Root — префикс всех ids, например "http://localhost:8080/".
	Root string
}

// NewScheme создаёт Scheme, нормализуя завершающий "/".
func NewScheme(root string) Scheme {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return Scheme{Root: root}
}

// Orchestrator возвращает id оркестратора.
func (s Scheme) Orchestrator() string {
	return s.Root + "orchestrator/"
}

// Provisioner возвращает id machine provisioner'а.
func (s Scheme) Provisioner() string {
	return s.Root + "provisioner/"
}

// ServicesPrefix возвращает общий префикс ids сервисов.
func (s Scheme) ServicesPrefix() string {
	return s.Root + "services/"
}

// AgentsPrefix возвращает общий префикс ids агентов.
func (s Scheme) AgentsPrefix() string {
	return s.Root + "agents/"
}

// Service возвращает id сервиса.
func (s Scheme) Service(name string) string {
	return s.ServicesPrefix() + name + "/"
}

// Instance возвращает id instance сервиса с порядковым номером index.
func (s Scheme) Instance(serviceName string, index int) string {
	return fmt.Sprintf("%sinstances/%d/", s.Service(serviceName), index)
}

// Agent возвращает id агента, на котором размещается instance index сервиса.
func (s Scheme) Agent(serviceName string, index int) string {
	return fmt.Sprintf("%s%s-%d/", s.AgentsPrefix(), serviceName, index)
}
