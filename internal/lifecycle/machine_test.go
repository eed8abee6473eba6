package lifecycle

import (
	"errors"
	"slices"
	"testing"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

func TestNext_ShortestHop(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		current string
		target  string
		want    string
		ok      bool
	}{
		{"ring forward two hops", "s1->s2->s3->s1", "s2", "s1", "s3", true},
		{"ring wraps", "s1->s2->s3->s1", "s3", "s2", "s1", true},
		{"branch unreachable from sibling", "s1->s2->s3 s1->s4", "s2", "s4", "", false},
		{"branch reachable from root", "s1->s2->s3 s1->s4", "s1", "s4", "s4", true},
		{"mixed chain with bidirectional", "s3->s1<->s2", "s3", "s2", "s1", true},
		{"bidirectional back edge", "s3->s1<->s2", "s2", "s1", "s1", true},
		{"one-way edge is not reversible", "s3->s1<->s2", "s1", "s3", "", false},
		{"disconnected components", "s1<->s2,s3->s4", "s1", "s3", "", false},
		{"alternative bidirectional syntax", "a<>b c<-->d", "d", "c", "c", true},
		{"shortest of two paths", "a->b->c->d a->d", "a", "d", "d", true},
		{"unknown state", "a->b", "x", "b", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.spec)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.spec, err)
			}

			got, ok := m.Next(tt.current, tt.target)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Next(%s, %s) = (%q, %v), want (%q, %v)", tt.current, tt.target, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNext_SameStateIsIdempotent(t *testing.T) {
	specs := []string{
		"s1->s2->s3->s1",
		"s1->s2->s3 s1->s4",
		"s3->s1<->s2",
		"s1<->s2,s3->s4",
		domain.AgentLifecycle,
		domain.InstanceLifecycle,
		domain.ServiceLifecycle,
	}

	for _, spec := range specs {
		m := MustParse(spec)
		for _, s := range m.States() {
			if got, ok := m.Next(s, s); !ok || got != s {
				t.Errorf("spec %q: Next(%s, %s) = (%q, %v)", spec, s, s, got, ok)
			}
		}
	}
}

func TestParse_SingularAndRepeatedStates(t *testing.T) {
	m, err := Parse("a->b, b->c\tc  d a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c", "d"}
	if !slices.Equal(m.States(), want) {
		t.Errorf("states = %v, want %v", m.States(), want)
	}
	if len(m.Successors("d")) != 0 {
		t.Errorf("singular state d should have no transitions, got %v", m.Successors("d"))
	}
	if got := m.Path("a", "c"); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("path = %v", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		spec string
		err  error
	}{
		{"", ErrEmptySpec},
		{" , ", ErrEmptySpec},
		{"->b", ErrInvalidState},
		{"a->", ErrInvalidState},
		{"a-->b", ErrInvalidState},
	}

	for _, tt := range tests {
		if _, err := Parse(tt.spec); !errors.Is(err, tt.err) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.spec, err, tt.err)
		}
	}
}

func TestDomainLifecycles(t *testing.T) {
	agent := MustParse(domain.AgentLifecycle)
	instance := MustParse(domain.InstanceLifecycle)
	service := MustParse(domain.ServiceLifecycle)

	agentHops := []struct {
		current, target, want domain.AgentProgress
	}{
		{domain.AgentPlanned, domain.AgentStarted, domain.AgentMachineStarted},
		{domain.AgentMachineStarted, domain.AgentStarted, domain.AgentStarted},
		{domain.AgentStarted, domain.AgentMachineTerminated, domain.AgentMachineMarkedForTermination},
		{domain.AgentMachineStarted, domain.AgentMachineTerminated, domain.AgentTerminatingMachine},
		{domain.AgentPlanned, domain.AgentMachineTerminated, domain.AgentMachineTerminated},
		{domain.AgentMachineMarkedForTermination, domain.AgentMachineTerminated, domain.AgentTerminatingMachine},
		{domain.AgentMachineTerminated, domain.AgentStarted, domain.AgentPlanned},
	}
	for _, h := range agentHops {
		if got, ok := Next(agent, h.current, h.target); !ok || got != h.want {
			t.Errorf("agent Next(%s, %s) = %s, want %s", h.current, h.target, got, h.want)
		}
	}

	instanceHops := []struct {
		current, target, want domain.InstanceProgress
	}{
		{domain.InstancePlanned, domain.InstanceStarted, domain.InstanceInstalled},
		{domain.InstanceInstalled, domain.InstanceStarted, domain.InstanceStarted},
		{domain.InstanceStarted, domain.InstanceUninstalled, domain.InstanceStopped},
		{domain.InstanceStopped, domain.InstanceUninstalled, domain.InstanceUninstalled},
		{domain.InstancePlanned, domain.InstanceUninstalled, domain.InstanceUninstalled},
	}
	for _, h := range instanceHops {
		if got, ok := Next(instance, h.current, h.target); !ok || got != h.want {
			t.Errorf("instance Next(%s, %s) = %s, want %s", h.current, h.target, got, h.want)
		}
	}

	// INSTANCE_UNREACHABLE поглощающее: из него никуда не попасть
	if _, ok := Next(instance, domain.InstanceUnreachable, domain.InstanceStarted); ok {
		t.Error("INSTANCE_UNREACHABLE should be absorbing")
	}

	if got, _ := Next(service, domain.ServiceInstalled, domain.ServiceUninstalled); got != domain.ServiceUninstalling {
		t.Errorf("service uninstall hop = %s", got)
	}
	if got, _ := Next(service, domain.ServiceInstalled, domain.ServiceInstalling); got != domain.ServiceInstalling {
		t.Errorf("service toggle hop = %s", got)
	}
}
