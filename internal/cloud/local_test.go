package cloud

import (
	"context"
	"errors"
	"testing"
)

func TestLocalDriver_Lifecycle(t *testing.T) {
	ctx := context.Background()

	var started, stopped []string
	d := NewLocalDriver(LocalConfig{
		OnAgentStart: func(_ context.Context, m Machine) error {
			started = append(started, m.AgentID)
			return nil
		},
		OnMachineStop: func(m Machine) {
			stopped = append(stopped, m.AgentID)
		},
	})

	m1, err := d.StartMachine(ctx, "agent-a")
	if err != nil {
		t.Fatalf("StartMachine: %v", err)
	}
	m2, _ := d.StartMachine(ctx, "agent-b")

	if m1.ID == m2.ID || m1.IPAddress == m2.IPAddress {
		t.Errorf("machines not unique: %+v %+v", m1, m2)
	}
	if m1.IPAddress != "10.0.0.1" {
		t.Errorf("ip = %s, want 10.0.0.1", m1.IPAddress)
	}

	if err := d.StartAgent(ctx, m1); err != nil {
		t.Fatalf("StartAgent: %v", err)
	}
	if len(started) != 1 || started[0] != "agent-a" {
		t.Errorf("started = %v", started)
	}

	if err := d.TerminateMachine(ctx, m1.ID); err != nil {
		t.Fatalf("TerminateMachine: %v", err)
	}
	if err := d.TerminateMachine(ctx, m1.ID); err != nil {
		t.Errorf("second TerminateMachine: %v", err)
	}
	if len(stopped) != 1 {
		t.Errorf("stopped = %v, want one stop", stopped)
	}

	if err := d.StartAgent(ctx, m1); !errors.Is(err, ErrMachineNotFound) {
		t.Errorf("expected ErrMachineNotFound, got %v", err)
	}
	if len(d.Machines()) != 1 {
		t.Errorf("machines = %v", d.Machines())
	}
}

func TestLocalDriver_Kill(t *testing.T) {
	ctx := context.Background()

	var stopped []string
	d := NewLocalDriver(LocalConfig{
		OnMachineStop: func(m Machine) { stopped = append(stopped, m.AgentID) },
	})

	if d.Kill("agent-a") {
		t.Errorf("Kill without machine returned true")
	}

	m, _ := d.StartMachine(ctx, "agent-a")
	if !d.Kill("agent-a") {
		t.Fatalf("Kill returned false")
	}
	if len(stopped) != 1 || stopped[0] != "agent-a" {
		t.Errorf("stopped = %v", stopped)
	}
	if err := d.StartAgent(ctx, m); !errors.Is(err, ErrMachineNotFound) {
		t.Errorf("expected ErrMachineNotFound after kill, got %v", err)
	}
}
