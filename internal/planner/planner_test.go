package planner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

var scheme = domain.NewScheme("http://grid/")

const planYAML = `
services:
  - name: web
    instances: 2
    min: 1
    max: 5
  - name: db
    display_name: Database
    instances: 1
    lifecycle: INSTANCE_INSTALLED
`

func TestBuild(t *testing.T) {
	f, err := Parse([]byte(planYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	plan, err := Build(scheme, f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(plan.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(plan.Services))
	}

	web := plan.Services[0]
	if web.Config.ServiceID != "http://grid/services/web/" {
		t.Errorf("service id = %s", web.Config.ServiceID)
	}
	if web.Config.DisplayName != "web" || web.Config.MinInstances != 1 || web.Config.MaxInstances != 5 {
		t.Errorf("config = %+v", web.Config)
	}
	if len(web.Instances) != 2 {
		t.Fatalf("web instances = %d", len(web.Instances))
	}
	if got := web.Instances[1]; got.InstanceID != "http://grid/services/web/instances/1/" || got.AgentID != "http://grid/agents/web-1/" {
		t.Errorf("instance = %+v", got)
	}
	if web.Instances[0].Desired() != domain.InstanceStarted {
		t.Errorf("default desired = %s", web.Instances[0].Desired())
	}

	db := plan.Services[1]
	if db.Config.DisplayName != "Database" || db.Config.MaxInstances != 1 {
		t.Errorf("db config = %+v", db.Config)
	}
	if db.Instances[0].Desired() != domain.InstanceInstalled {
		t.Errorf("db desired = %s", db.Instances[0].Desired())
	}

	if err := plan.Validate(); err != nil {
		t.Errorf("built plan is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		specs   []ServiceSpec
		wantErr error
	}{
		{"valid", []ServiceSpec{{Name: "web", Instances: 1}}, nil},
		{"empty plan", nil, nil},
		{"zero instances", []ServiceSpec{{Name: "web"}}, nil},
		{"empty name", []ServiceSpec{{Instances: 1}}, ErrEmptyName},
		{"bad name", []ServiceSpec{{Name: "Web/1", Instances: 1}}, ErrInvalidName},
		{"duplicate", []ServiceSpec{{Name: "web", Instances: 1}, {Name: "web", Instances: 2}}, ErrDuplicateService},
		{"below min", []ServiceSpec{{Name: "web", Instances: 1, Min: 2}}, ErrInstancesOutOfRange},
		{"above max", []ServiceSpec{{Name: "web", Instances: 6, Max: 5}}, ErrInstancesOutOfRange},
		{"negative", []ServiceSpec{{Name: "web", Instances: -1}}, ErrInstancesOutOfRange},
		{"bad lifecycle", []ServiceSpec{{Name: "web", Instances: 1, Lifecycle: domain.InstanceUnreachable}}, ErrInvalidLifecycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&File{Services: tt.specs})
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("services:\n  - name: web\n    replicas: 3\n"))
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}

	f, err := Parse(nil)
	if err != nil || len(f.Services) != 0 {
		t.Errorf("empty input: %v, %+v", err, f)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(planYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(f.Services) != 2 {
		t.Errorf("services = %d", len(f.Services))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestScale(t *testing.T) {
	f := &File{Services: []ServiceSpec{{Name: "web", Instances: 1, Max: 3}}}

	scaled, err := Scale(f, "web", 3)
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}
	if scaled.Services[0].Instances != 3 || f.Services[0].Instances != 1 {
		t.Errorf("scaled = %d, original = %d", scaled.Services[0].Instances, f.Services[0].Instances)
	}

	if _, err := Scale(f, "web", 4); !errors.Is(err, ErrInstancesOutOfRange) {
		t.Errorf("expected ErrInstancesOutOfRange, got %v", err)
	}
	if _, err := Scale(f, "api", 1); err == nil {
		t.Errorf("expected error for unknown service")
	}
}
