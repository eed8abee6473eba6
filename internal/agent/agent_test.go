package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/effector"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

const (
	agentID    = "http://grid/agents/web-0/"
	otherAgent = "http://grid/agents/api-0/"
	serviceID  = "http://grid/services/web/"
	instanceID = "http://grid/services/web/instances/0/"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type failingEffector struct{}

func (failingEffector) Type() string { return "failing" }

func (failingEffector) Apply(context.Context, effector.Transition) error {
	return errors.New("disk full")
}

type fixture struct {
	store    *store.MemoryStore
	broker   *broker.MemoryBroker
	recorder *effector.Recorder
	agent    *Agent
	runtime  *worker.Runtime
}

func newFixture(t *testing.T, eff effector.Effector) *fixture {
	t.Helper()

	f := &fixture{
		store:    store.NewMemoryStore(),
		broker:   broker.NewMemoryBroker(),
		recorder: &effector.Recorder{},
	}
	if eff == nil {
		eff = f.recorder
	}

	clock := worker.NewManualClock(t0)
	f.agent = New(Config{
		ID:       agentID,
		Store:    f.store,
		Broker:   f.broker,
		Effector: eff,
		Clock:    clock,
	})
	f.runtime = worker.NewRuntime(worker.RuntimeConfig{
		ConsumerID: agentID,
		Kind:       "agent",
		Store:      f.store,
		Broker:     f.broker,
		Registry:   f.agent.Registry(),
		Clock:      clock,
	})
	return f
}

func (f *fixture) execute(t *testing.T, taskType domain.TaskType, stateID string, payload any, at time.Time) error {
	t.Helper()
	task, err := domain.NewTask(taskType, agentID, stateID, payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	task.ProducerTimestamp = at
	return f.runtime.Execute(context.Background(), task)
}

func (f *fixture) save(t *testing.T, id string, v any) {
	t.Helper()
	ctx := context.Background()
	etag := store.EmptyEtag
	if doc, err := f.store.Get(ctx, id); err == nil {
		etag = doc.Etag
	}
	if _, err := store.Write(ctx, f.store, id, v, etag); err != nil {
		t.Fatalf("write %s: %v", id, err)
	}
}

func readState[T any](t *testing.T, f *fixture, id string) *T {
	t.Helper()
	v, _, err := store.Read[T](context.Background(), f.store, id)
	if err != nil {
		t.Fatalf("read %s: %v", id, err)
	}
	return v
}

func TestPing_KeepsLatestTimestamp(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, agentID, &domain.AgentState{Progress: domain.AgentStarted})

	pings := []struct {
		at   time.Time
		want time.Time
	}{
		{t0.Add(10 * time.Second), t0.Add(10 * time.Second)},
		{t0.Add(5 * time.Second), t0.Add(10 * time.Second)},
		{t0.Add(20 * time.Second), t0.Add(20 * time.Second)},
	}

	for i, p := range pings {
		if err := f.execute(t, domain.TaskTypePingAgent, agentID, domain.PingAgentPayload{}, p.at); err != nil {
			t.Fatalf("ping %d: %v", i, err)
		}
		got := readState[domain.AgentState](t, f, agentID)
		if got.LastPingSourceTimestamp == nil || !got.LastPingSourceTimestamp.Equal(p.want) {
			t.Errorf("ping %d: last ping = %v, want %v", i, got.LastPingSourceTimestamp, p.want)
		}
		if len(got.TasksHistory) != 0 {
			t.Errorf("ping %d: pings must not be recorded in history", i)
		}
	}
}

func TestPing_RestoresLostState(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, agentID, &domain.AgentState{
		Progress:              domain.AgentStarted,
		ServiceInstanceIDs:    []string{instanceID},
		NumberOfMachineStarts: 1,
		NumberOfAgentStarts:   1,
	})

	if err := f.execute(t, domain.TaskTypePingAgent, agentID, nil, t0); err != nil {
		t.Fatalf("ping: %v", err)
	}

	f.store.Clear()

	at := t0.Add(time.Minute)
	if err := f.execute(t, domain.TaskTypePingAgent, agentID, nil, at); err != nil {
		t.Fatalf("ping after reset: %v", err)
	}

	got := readState[domain.AgentState](t, f, agentID)
	if got.Progress != domain.AgentStarted || !got.HasInstance(instanceID) {
		t.Errorf("state not restored: %+v", got)
	}
	if got.NumberOfMachineStarts != 1 || got.NumberOfAgentStarts != 1 {
		t.Errorf("counters not restored: %+v", got.Generation())
	}
	if got.LastPingSourceTimestamp == nil || !got.LastPingSourceTimestamp.Equal(at) {
		t.Errorf("last ping = %v, want %v", got.LastPingSourceTimestamp, at)
	}
	if got.ExecutingTask != nil {
		t.Errorf("executing task left")
	}
}

func TestBoot_ReportsRestart(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		state    *domain.AgentState
		restarts bool
	}{
		{"no state", nil, false},
		{"fresh machine", &domain.AgentState{Progress: domain.AgentMachineStarted}, false},
		{"started, never pinged", &domain.AgentState{Progress: domain.AgentStarted}, false},
		{"started and pinged", &domain.AgentState{Progress: domain.AgentStarted, LastPingSourceTimestamp: &t0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.state != nil {
				f.save(t, agentID, tt.state)
			}

			if err := f.agent.Boot(ctx); err != nil {
				t.Fatalf("Boot: %v", err)
			}

			pending, _ := f.broker.PendingTasks(ctx, agentID)
			if got := len(pending) == 1; got != tt.restarts {
				t.Fatalf("pending = %d tasks, want restart %v", len(pending), tt.restarts)
			}
			if !tt.restarts {
				return
			}

			if _, err := f.runtime.ConsumeNextTask(ctx); err != nil {
				t.Fatalf("consume: %v", err)
			}
			got := readState[domain.AgentState](t, f, agentID)
			if got.NumberOfAgentRestarts != 1 {
				t.Errorf("agent restarts = %d, want 1", got.NumberOfAgentRestarts)
			}
		})
	}
}

func TestTransition_DrivesInstanceThroughEffector(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, instanceID, &domain.ServiceInstanceState{
		Progress:  domain.InstancePlanned,
		AgentID:   agentID,
		ServiceID: serviceID,
	})

	steps := []struct {
		task domain.TaskType
		want domain.InstanceProgress
	}{
		{domain.TaskTypeStartServiceInstance, domain.InstancePlanned},
		{domain.TaskTypeInstallServiceInstance, domain.InstanceInstalled},
		{domain.TaskTypeInstallServiceInstance, domain.InstanceInstalled},
		{domain.TaskTypeStartServiceInstance, domain.InstanceStarted},
		{domain.TaskTypeStopServiceInstance, domain.InstanceStopped},
		{domain.TaskTypeUninstallServiceInstance, domain.InstanceUninstalled},
	}

	for i, step := range steps {
		if err := f.execute(t, step.task, instanceID, nil, t0); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := readState[domain.ServiceInstanceState](t, f, instanceID).Progress; got != step.want {
			t.Fatalf("step %d (%s): progress = %s, want %s", i, step.task, got, step.want)
		}
	}

	transitions := f.recorder.Transitions()
	if len(transitions) != 4 {
		t.Fatalf("effector calls = %d, want 4", len(transitions))
	}
	first := transitions[0]
	if first.From != domain.InstancePlanned || first.To != domain.InstanceInstalled || first.ServiceID != serviceID {
		t.Errorf("first transition = %+v", first)
	}
}

func TestTransition_SkipsForeignInstance(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, instanceID, &domain.ServiceInstanceState{
		Progress:  domain.InstancePlanned,
		AgentID:   otherAgent,
		ServiceID: serviceID,
	})

	if err := f.execute(t, domain.TaskTypeInstallServiceInstance, instanceID, nil, t0); err != nil {
		t.Fatalf("install: %v", err)
	}
	if got := readState[domain.ServiceInstanceState](t, f, instanceID).Progress; got != domain.InstancePlanned {
		t.Errorf("progress = %s, want unchanged", got)
	}
	if len(f.recorder.Transitions()) != 0 {
		t.Errorf("effector called for foreign instance")
	}
}

func TestTransition_EffectorErrorKeepsProgress(t *testing.T) {
	f := newFixture(t, failingEffector{})
	f.save(t, instanceID, &domain.ServiceInstanceState{
		Progress:  domain.InstancePlanned,
		AgentID:   agentID,
		ServiceID: serviceID,
	})

	err := f.execute(t, domain.TaskTypeInstallServiceInstance, instanceID, nil, t0)
	if err == nil {
		t.Fatalf("expected effector error")
	}
	if worker.IsFatal(err) {
		t.Errorf("effector error must not be fatal: %v", err)
	}
	if got := readState[domain.ServiceInstanceState](t, f, instanceID).Progress; got != domain.InstancePlanned {
		t.Errorf("progress = %s, want unchanged", got)
	}
}

func TestRecoverServiceInstanceState(t *testing.T) {
	payload := domain.RecoverServiceInstanceStatePayload{ServiceID: serviceID, AgentID: agentID}

	tests := []struct {
		name  string
		state *domain.ServiceInstanceState
		want  domain.InstanceProgress
	}{
		{"missing", nil, domain.InstancePlanned},
		{"unreachable", &domain.ServiceInstanceState{Progress: domain.InstanceUnreachable, AgentID: agentID, ServiceID: serviceID}, domain.InstancePlanned},
		{"running", &domain.ServiceInstanceState{Progress: domain.InstanceStarted, AgentID: agentID, ServiceID: serviceID}, domain.InstanceStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.state != nil {
				f.save(t, instanceID, tt.state)
			}

			if err := f.execute(t, domain.TaskTypeRecoverServiceInstanceState, instanceID, payload, t0); err != nil {
				t.Fatalf("recover: %v", err)
			}

			got := readState[domain.ServiceInstanceState](t, f, instanceID)
			if got.Progress != tt.want || got.AgentID != agentID || got.ServiceID != serviceID {
				t.Errorf("instance = %+v", got)
			}
		})
	}
}

func TestRemoveServiceInstance(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, agentID, &domain.AgentState{
		Progress:           domain.AgentStarted,
		ServiceInstanceIDs: []string{instanceID, "http://grid/services/web/instances/1/"},
	})

	ref := domain.InstanceRefPayload{InstanceID: instanceID}
	for i := 0; i < 2; i++ {
		if err := f.execute(t, domain.TaskTypeRemoveServiceInstanceFromAgent, agentID, ref, t0); err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
	}

	got := readState[domain.AgentState](t, f, agentID)
	if got.HasInstance(instanceID) || len(got.ServiceInstanceIDs) != 1 {
		t.Errorf("instances = %v", got.ServiceInstanceIDs)
	}
	if len(got.TasksHistory) != 2 {
		t.Errorf("history = %d records, want 2", len(got.TasksHistory))
	}
}

func TestRecoverServiceInstanceState_FromLocalCopy(t *testing.T) {
	f := newFixture(t, nil)
	payload := domain.RecoverServiceInstanceStatePayload{ServiceID: serviceID, AgentID: agentID}

	f.save(t, instanceID, &domain.ServiceInstanceState{
		Progress:  domain.InstancePlanned,
		AgentID:   agentID,
		ServiceID: serviceID,
	})
	for _, task := range []domain.TaskType{domain.TaskTypeInstallServiceInstance, domain.TaskTypeStartServiceInstance} {
		if err := f.execute(t, task, instanceID, nil, t0); err != nil {
			t.Fatalf("%s: %v", task, err)
		}
	}
	if err := f.execute(t, domain.TaskTypeSetInstanceProperty, instanceID,
		domain.SetInstancePropertyPayload{Key: "color", Value: "blue"}, t0); err != nil {
		t.Fatalf("set property: %v", err)
	}

	// Хранилище grid потеряно, машина и процесс агента живы
	f.store.Clear()

	if err := f.execute(t, domain.TaskTypeRecoverServiceInstanceState, instanceID, payload, t0); err != nil {
		t.Fatalf("recover: %v", err)
	}

	got := readState[domain.ServiceInstanceState](t, f, instanceID)
	if got.Progress != domain.InstanceStarted || got.AgentID != agentID || got.ServiceID != serviceID {
		t.Errorf("instance = %+v", got)
	}
	if got.Properties["color"] != "blue" {
		t.Errorf("properties = %v", got.Properties)
	}

	// Переходы не повторялись
	if n := len(f.recorder.Transitions()); n != 2 {
		t.Errorf("effector calls = %d, want 2", n)
	}
}

func TestSetInstanceProperty(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, instanceID, &domain.ServiceInstanceState{
		Progress:  domain.InstanceStarted,
		AgentID:   agentID,
		ServiceID: serviceID,
	})
	foreign := "http://grid/services/api/instances/0/"
	f.save(t, foreign, &domain.ServiceInstanceState{
		Progress:  domain.InstanceStarted,
		AgentID:   otherAgent,
		ServiceID: "http://grid/services/api/",
	})

	steps := []struct {
		stateID string
		key     string
		value   string
		want    map[string]string
	}{
		{instanceID, "color", "blue", map[string]string{"color": "blue"}},
		{instanceID, "size", "xl", map[string]string{"color": "blue", "size": "xl"}},
		{instanceID, "color", "", map[string]string{"size": "xl"}},
		{foreign, "color", "red", nil},
	}

	for i, step := range steps {
		payload := domain.SetInstancePropertyPayload{Key: step.key, Value: step.value}
		if err := f.execute(t, domain.TaskTypeSetInstanceProperty, step.stateID, payload, t0); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		got := readState[domain.ServiceInstanceState](t, f, step.stateID).Properties
		if len(got) != len(step.want) {
			t.Fatalf("step %d: properties = %v, want %v", i, got, step.want)
		}
		for k, v := range step.want {
			if got[k] != v {
				t.Errorf("step %d: %s = %q, want %q", i, k, got[k], v)
			}
		}
	}
}
