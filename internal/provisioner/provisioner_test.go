package provisioner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/cloud"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

const agentID = "http://grid/agents/web-0/"

type fixture struct {
	store   *store.MemoryStore
	driver  *cloud.LocalDriver
	prov    *Provisioner
	runtime *worker.Runtime
	started []cloud.Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: store.NewMemoryStore()}
	f.driver = cloud.NewLocalDriver(cloud.LocalConfig{
		OnAgentStart: func(_ context.Context, m cloud.Machine) error {
			f.started = append(f.started, m)
			return nil
		},
	})
	f.prov = New(Config{Scheme: domain.NewScheme("http://grid/"), Driver: f.driver})
	f.runtime = worker.NewRuntime(worker.RuntimeConfig{
		ConsumerID: f.prov.ID(),
		Kind:       "provisioner",
		Store:      f.store,
		Broker:     broker.NewMemoryBroker(),
		Registry:   f.prov.Registry(),
	})
	return f
}

func (f *fixture) execute(t *testing.T, taskType domain.TaskType) {
	t.Helper()
	task, err := domain.NewTask(taskType, f.prov.ID(), agentID, nil)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := f.runtime.Execute(context.Background(), task); err != nil {
		t.Fatalf("execute %s: %v", taskType, err)
	}
}

func (f *fixture) agent(t *testing.T) *domain.AgentState {
	t.Helper()
	a, _, err := store.Read[domain.AgentState](context.Background(), f.store, agentID)
	if err != nil {
		t.Fatalf("read agent: %v", err)
	}
	return a
}

func (f *fixture) save(t *testing.T, a *domain.AgentState) {
	t.Helper()
	ctx := context.Background()
	etag := store.EmptyEtag
	if doc, err := f.store.Get(ctx, agentID); err == nil {
		etag = doc.Etag
	} else if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get agent: %v", err)
	}
	if _, err := store.Write(ctx, f.store, agentID, a, etag); err != nil {
		t.Fatalf("write agent: %v", err)
	}
}

func TestProvisioner_StartsMachineAndAgent(t *testing.T) {
	f := newFixture(t)

	lastPing := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.save(t, &domain.AgentState{
		Progress:                domain.AgentPlanned,
		NumberOfMachineStarts:   1,
		NumberOfAgentStarts:     2,
		LastPingSourceTimestamp: &lastPing,
	})

	f.execute(t, domain.TaskTypeStartMachine)

	a := f.agent(t)
	if a.Progress != domain.AgentMachineStarted {
		t.Fatalf("progress = %s", a.Progress)
	}
	if a.MachineID == "" || a.IPAddress == "" {
		t.Errorf("machine not recorded: %+v", a)
	}
	if a.NumberOfMachineStarts != 2 || a.NumberOfAgentStarts != 0 {
		t.Errorf("counters = %d/%d, want 2/0", a.NumberOfMachineStarts, a.NumberOfAgentStarts)
	}
	if a.LastPingSourceTimestamp != nil {
		t.Errorf("last ping not cleared")
	}

	// Повтор ничего не меняет
	f.execute(t, domain.TaskTypeStartMachine)
	if got := len(f.driver.Machines()); got != 1 {
		t.Errorf("machines = %d, want 1", got)
	}

	f.execute(t, domain.TaskTypeStartAgent)
	a = f.agent(t)
	if a.Progress != domain.AgentStarted || a.NumberOfAgentStarts != 1 {
		t.Errorf("agent = %s/%d", a.Progress, a.NumberOfAgentStarts)
	}
	if len(f.started) != 1 || f.started[0].AgentID != agentID || f.started[0].IPAddress != a.IPAddress {
		t.Errorf("started = %+v", f.started)
	}

	f.execute(t, domain.TaskTypeStartAgent)
	if len(f.started) != 1 {
		t.Errorf("agent started twice")
	}
}

func TestProvisioner_Terminate(t *testing.T) {
	tests := []struct {
		name     string
		task     domain.TaskType
		progress domain.AgentProgress
		want     domain.AgentProgress
		killed   bool
	}{
		{"marked agent", domain.TaskTypeTerminateMachine, domain.AgentMachineMarkedForTermination, domain.AgentMachineTerminated, true},
		{"machine without agent", domain.TaskTypeTerminateMachine, domain.AgentMachineStarted, domain.AgentMachineTerminated, true},
		{"interrupted termination", domain.TaskTypeTerminateMachine, domain.AgentTerminatingMachine, domain.AgentMachineTerminated, true},
		{"planned agent", domain.TaskTypeTerminateMachine, domain.AgentPlanned, domain.AgentMachineTerminated, false},
		{"running agent is not drained", domain.TaskTypeTerminateMachine, domain.AgentStarted, domain.AgentStarted, false},
		{"non-responsive agent", domain.TaskTypeTerminateMachineOfNonResponsiveAgt, domain.AgentStarted, domain.AgentMachineTerminated, true},
		{"already terminated", domain.TaskTypeTerminateMachineOfNonResponsiveAgt, domain.AgentMachineTerminated, domain.AgentMachineTerminated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			m, _ := f.driver.StartMachine(context.Background(), agentID)
			f.save(t, &domain.AgentState{Progress: tt.progress, MachineID: m.ID, IPAddress: m.IPAddress})

			f.execute(t, tt.task)

			if got := f.agent(t).Progress; got != tt.want {
				t.Errorf("progress = %s, want %s", got, tt.want)
			}
			if killed := len(f.driver.Machines()) == 0; killed != tt.killed {
				t.Errorf("machine terminated = %v, want %v", killed, tt.killed)
			}
		})
	}
}
