package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
	"github.com/shaiso/ServiceGrid/internal/telemetry"
	"github.com/shaiso/ServiceGrid/internal/worker"
)

type testEnv struct {
	scheme domain.Scheme
	store  *store.MemoryStore
	broker *broker.MemoryBroker
	mux    *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		scheme: domain.NewScheme("http://grid.test/"),
		store:  store.NewMemoryStore(),
		broker: broker.NewMemoryBroker(),
		mux:    http.NewServeMux(),
	}

	h := NewHandler(Config{
		Scheme: env.scheme,
		Store:  env.store,
		Broker: env.broker,
		Clock:  worker.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	h.RegisterRoutes(env.mux)

	return env
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func TestStates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	agentID := env.scheme.Agent("web", 0)
	state := domain.AgentState{Progress: domain.AgentStarted, IPAddress: "10.0.0.1"}
	if _, err := store.Write(ctx, env.store, agentID, state, store.EmptyEtag); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := store.Write(ctx, env.store, env.scheme.Service("web"), domain.ServiceState{}, store.EmptyEtag); err != nil {
		t.Fatalf("Write: %v", err)
	}

	t.Run("list by prefix", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/states?prefix=agents/", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		ids := decodeData[[]string](t, rec)
		if len(ids) != 1 || ids[0] != agentID {
			t.Errorf("ids = %v, want [%s]", ids, agentID)
		}
	})

	t.Run("list all", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/states", "", "")
		ids := decodeData[[]string](t, rec)
		if len(ids) != 2 {
			t.Errorf("ids = %v, want 2", ids)
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/states/agents/web-0/", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeData[StateResponse](t, rec)
		if resp.ID != agentID || resp.Etag == "" {
			t.Errorf("response = %+v", resp)
		}

		var got domain.AgentState
		if err := json.Unmarshal(resp.State, &got); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		if got.Progress != domain.AgentStarted || got.IPAddress != "10.0.0.1" {
			t.Errorf("state = %+v", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/states/agents/db-0/", "", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestSubmitDeploymentPlan_YAML(t *testing.T) {
	env := newTestEnv(t)

	body := "services:\n  - name: web\n    instances: 2\n"
	rec := env.do(t, http.MethodPost, "/api/v1/deployment-plan", "application/yaml", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	resp := decodeData[SubmitPlanResponse](t, rec)
	if len(resp.AgentIDs) != 2 || resp.ServiceIDs[0] != env.scheme.Service("web") {
		t.Errorf("response = %+v", resp)
	}

	pending, err := env.broker.PendingTasks(context.Background(), env.scheme.Orchestrator())
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(pending) != 1 || pending[0].Type != domain.TaskTypeUpdateDeploymentPlan {
		t.Fatalf("pending = %v, want one UpdateDeploymentPlanTask", pending)
	}

	payload, err := domain.ParsePayload[domain.UpdateDeploymentPlanPayload](pending[0])
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(payload.Plan.Services) != 1 || len(payload.Plan.Services[0].Instances) != 2 {
		t.Errorf("plan = %+v", payload.Plan)
	}
	if !pending[0].ProducerTimestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("producer timestamp = %v", pending[0].ProducerTimestamp)
	}
}

func TestSubmitDeploymentPlan_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{
			name:        "broken json",
			contentType: "application/json",
			body:        "{",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown yaml field",
			contentType: "application/yaml",
			body:        "services:\n  - name: web\n    replicas: 2\n",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "duplicate service",
			contentType: "application/json",
			body: `{"services":[
				{"config":{"service_id":"http://grid.test/services/web/"},"instances":[]},
				{"config":{"service_id":"http://grid.test/services/web/"},"instances":[]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/api/v1/deployment-plan", tt.contentType, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			pending, _ := env.broker.PendingTasks(context.Background(), env.scheme.Orchestrator())
			if len(pending) != 0 {
				t.Errorf("rejected plan was posted: %v", pending)
			}
		})
	}
}

func TestGetDeploymentPlan(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/deployment-plan", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	plan := &domain.DeploymentPlan{Services: []domain.ServicePlan{{
		Config: domain.ServiceConfig{ServiceID: env.scheme.Service("db"), PlannedInstances: 1},
		Instances: []domain.InstancePlan{{
			InstanceID: env.scheme.Instance("db", 0),
			AgentID:    env.scheme.Agent("db", 0),
		}},
	}}}
	_, err := store.Write(context.Background(), env.store, env.scheme.Orchestrator(),
		domain.OrchestratorState{Plan: plan}, store.EmptyEtag)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/deployment-plan", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeData[DeploymentPlanResponse](t, rec)
	if resp.Plan == nil || resp.Plan.ServiceIDs()[0] != env.scheme.Service("db") {
		t.Errorf("plan = %+v", resp.Plan)
	}
}

func TestListTasks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/tasks", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	agentID := env.scheme.Agent("web", 0)
	task, err := domain.NewTask(domain.TaskTypePingAgent, agentID, agentID, nil)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if _, err := env.broker.PostNewTask(context.Background(), task); err != nil {
		t.Fatalf("PostNewTask: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tasks?consumer=agents/web-0/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	tasks := decodeData[[]TaskResponse](t, rec)
	if len(tasks) != 1 || tasks[0].Type != domain.TaskTypePingAgent || tasks[0].ConsumerID != agentID {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestRecovery(t *testing.T) {
	h := Chain(Recovery(slogDiscard()), Logging(slogDiscard()))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLogging_RequestID(t *testing.T) {
	var seen *slog.Logger
	h := Logging(slogDiscard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = telemetry.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"generated", ""},
		{"propagated", "req-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if got == "" || (tt.header != "" && got != tt.header) {
				t.Errorf("%s = %q", requestIDHeader, got)
			}
			if rec.Code != http.StatusTeapot {
				t.Errorf("status = %d", rec.Code)
			}
			if seen == nil || seen == slog.Default() {
				t.Error("handler did not get request logger")
			}
		})
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetInstanceProperty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	instanceID := env.scheme.Instance("web", 0)
	agentID := env.scheme.Agent("web", 0)
	inst := domain.ServiceInstanceState{
		Progress:  domain.InstanceStarted,
		AgentID:   agentID,
		ServiceID: env.scheme.Service("web"),
	}
	if _, err := store.Write(ctx, env.store, instanceID, inst, store.EmptyEtag); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"broken json", `{`, http.StatusBadRequest},
		{"no key", `{"instance_id":"services/web/instances/0/"}`, http.StatusBadRequest},
		{"unknown instance", `{"instance_id":"services/web/instances/9/","key":"color"}`, http.StatusNotFound},
		{"relative id", `{"instance_id":"services/web/instances/0/","key":"color","value":"blue"}`, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/instance-properties", "application/json", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	tasks, err := env.broker.PendingTasks(ctx, agentID)
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Type != domain.TaskTypeSetInstanceProperty || tasks[0].StateID != instanceID {
		t.Fatalf("agent queue = %+v", tasks)
	}
	payload, err := domain.ParsePayload[domain.SetInstancePropertyPayload](tasks[0])
	if err != nil || payload.Key != "color" || payload.Value != "blue" {
		t.Errorf("payload = %+v, err = %v", payload, err)
	}
}
