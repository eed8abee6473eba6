package planner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

// serviceName — имя сервиса становится частью id документов.
var serviceName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Допустимые целевые progress instances.
var validLifecycles = map[domain.InstanceProgress]bool{
	domain.InstanceInstalled: true,
	domain.InstanceStarted:   true,
	domain.InstanceStopped:   true,
}

// ServiceSpec — описание сервиса в файле плана.
//
//	services:
//	  - name: web
//	    instances: 3
//	    min: 1
//	    max: 5
//	    lifecycle: INSTANCE_STARTED
type ServiceSpec struct {
	Name        string                  `yaml:"name" json:"name"`
	DisplayName string                  `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Instances   int                     `yaml:"instances" json:"instances"`
	Min         int                     `yaml:"min,omitempty" json:"min,omitempty"`
	Max         int                     `yaml:"max,omitempty" json:"max,omitempty"`
	Lifecycle   domain.InstanceProgress `yaml:"lifecycle,omitempty" json:"lifecycle,omitempty"`
}

// File — файл плана.
type File struct {
	Services []ServiceSpec `yaml:"services" json:"services"`
}

// Parse разбирает YAML. Неизвестные поля — ошибка.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	return &f, nil
}

// LoadFile читает и разбирает файл плана.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data)
}

// Validate проверяет спецификации сервисов.
//
// Проверяет:
// - Непустые и уникальные имена, пригодные для id
// - instances в пределах [min, max] (max 0 — без ограничения)
// - Целевой progress instances
func Validate(f *File) error {
	seen := make(map[string]bool)

	for _, svc := range f.Services {
		if svc.Name == "" {
			return NewValidationError("", "name", "service has empty name", ErrEmptyName)
		}
		if !serviceName.MatchString(svc.Name) {
			return NewValidationError(svc.Name, "name",
				fmt.Sprintf("name must match %s", serviceName), ErrInvalidName)
		}
		if seen[svc.Name] {
			return NewValidationError(svc.Name, "name",
				fmt.Sprintf("duplicate service: %s", svc.Name), ErrDuplicateService)
		}
		seen[svc.Name] = true

		if svc.Instances < 0 || svc.Instances < svc.Min || (svc.Max > 0 && svc.Instances > svc.Max) {
			return NewValidationError(svc.Name, "instances",
				fmt.Sprintf("%d instances, allowed [%d, %d]", svc.Instances, svc.Min, svc.Max), ErrInstancesOutOfRange)
		}

		if svc.Lifecycle != "" && !validLifecycles[svc.Lifecycle] {
			return NewValidationError(svc.Name, "lifecycle",
				fmt.Sprintf("unsupported lifecycle %s", svc.Lifecycle), ErrInvalidLifecycle)
		}
	}

	return nil
}

// Build строит deployment plan: каждый instance на отдельном агенте.
//
// Ids детерминированы: повторная сборка того же файла даёт тот же план,
// а увеличение instances только добавляет instances и агентов в конец.
func Build(scheme domain.Scheme, f *File) (domain.DeploymentPlan, error) {
	if err := Validate(f); err != nil {
		return domain.DeploymentPlan{}, err
	}

	plan := domain.DeploymentPlan{Services: make([]domain.ServicePlan, 0, len(f.Services))}

	for _, svc := range f.Services {
		displayName := svc.DisplayName
		if displayName == "" {
			displayName = svc.Name
		}

		maxInstances := svc.Max
		if maxInstances == 0 {
			maxInstances = svc.Instances
		}

		sp := domain.ServicePlan{
			Config: domain.ServiceConfig{
				ServiceID:        scheme.Service(svc.Name),
				DisplayName:      displayName,
				PlannedInstances: svc.Instances,
				MinInstances:     svc.Min,
				MaxInstances:     maxInstances,
			},
			Instances: make([]domain.InstancePlan, 0, svc.Instances),
		}

		for i := 0; i < svc.Instances; i++ {
			sp.Instances = append(sp.Instances, domain.InstancePlan{
				InstanceID:       scheme.Instance(svc.Name, i),
				AgentID:          scheme.Agent(svc.Name, i),
				DesiredLifecycle: svc.Lifecycle,
			})
		}

		plan.Services = append(plan.Services, sp)
	}

	return plan, nil
}

// Scale возвращает копию файла с новым числом instances сервиса.
func Scale(f *File, name string, instances int) (*File, error) {
	out := &File{Services: append([]ServiceSpec(nil), f.Services...)}
	for i := range out.Services {
		if out.Services[i].Name == name {
			out.Services[i].Instances = instances
			return out, Validate(out)
		}
	}
	return nil, NewValidationError(name, "name", fmt.Sprintf("unknown service: %s", name), ErrInvalidName)
}
