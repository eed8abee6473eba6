package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/ServiceGrid/internal/api"
	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
	"github.com/shaiso/ServiceGrid/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *broker.MemoryBroker, domain.Scheme) {
	t.Helper()

	scheme := domain.NewScheme("http://grid.test/")
	b := broker.NewMemoryBroker()

	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Scheme: scheme,
		Store:  store.NewMemoryStore(),
		Broker: b,
	}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, b, scheme
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()

	var discard bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&discard)
	cmd.SetErr(&discard)
	return cmd.Execute()
}

func TestPlanApply(t *testing.T) {
	srv, b, scheme := newTestServer(t)

	path := filepath.Join(t.TempDir(), "services.yaml")
	data := "services:\n  - name: web\n    instances: 1\n    max: 5\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var buf bytes.Buffer
	client := NewClient(srv.URL)
	out := &Output{w: &buf, errW: &buf}

	cmd := NewPlanCmd(func() *Client { return client }, func() *Output { return out })
	if err := runCmd(t, cmd, "apply", "-f", path, "--scale", "web=3"); err != nil {
		t.Fatalf("plan apply: %v", err)
	}

	if !strings.Contains(buf.String(), "Plan submitted to "+scheme.Orchestrator()) {
		t.Errorf("output = %q", buf.String())
	}

	pending, err := b.PendingTasks(t.Context(), scheme.Orchestrator())
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	payload, err := domain.ParsePayload[domain.UpdateDeploymentPlanPayload](pending[0])
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if n := len(payload.Plan.Services[0].Instances); n != 3 {
		t.Errorf("instances = %d, want 3", n)
	}
}

func TestPlanApply_InvalidScale(t *testing.T) {
	srv, b, scheme := newTestServer(t)

	path := filepath.Join(t.TempDir(), "services.yaml")
	if err := os.WriteFile(path, []byte("services:\n  - name: web\n    instances: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	client := NewClient(srv.URL)
	out := &Output{w: &bytes.Buffer{}, errW: &bytes.Buffer{}}
	cmd := NewPlanCmd(func() *Client { return client }, func() *Output { return out })

	if err := runCmd(t, cmd, "apply", "-f", path, "--scale", "web"); err == nil {
		t.Error("expected error for scale without value")
	}

	pending, _ := b.PendingTasks(t.Context(), scheme.Orchestrator())
	if len(pending) != 0 {
		t.Errorf("plan was submitted: %v", pending)
	}
}

func TestClient_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := NewClient(srv.URL + "/")

	_, err := client.GetDeploymentPlan()
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("GetDeploymentPlan error = %v, want NOT_FOUND", err)
	}

	_, err = client.GetState("http://grid.test/agents/web-0/")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("GetState error = %v, want NOT_FOUND", err)
	}

	ids, err := client.ListStates("agents/")
	if err != nil || len(ids) != 0 {
		t.Errorf("ListStates = %v, %v", ids, err)
	}
}

func TestRelativeID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"http://localhost:8080/agents/web-0/", "agents/web-0/"},
		{"agents/web-0/", "agents/web-0/"},
		{"/services/db/", "services/db/"},
	}

	for _, tt := range tests {
		if got := relativeID(tt.id); got != tt.want {
			t.Errorf("relativeID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		id       string
		body     string
		wantKind string
		detail   string
		wantErr  bool
	}{
		{"http://g/agents/web-0/", `{"progress":"AGENT_STARTED","ip_address":"10.0.0.1"}`, "agent", "10.0.0.1", false},
		{"http://g/services/web/", `{"progress":"SERVICE_INSTALLED","instance_ids":["a","b"]}`, "service", "2 instances", false},
		{"http://g/services/web/instances/0/", `{"progress":"INSTANCE_STARTED","agent_id":"x"}`, "instance", "x", false},
		{"http://g/agents/web-1/", `{"progress":`, "agent", "", true},
	}

	for _, tt := range tests {
		s, err := summarize(&StateResponse{ID: tt.id, State: []byte(tt.body)})
		if (err != nil) != tt.wantErr {
			t.Errorf("summarize(%s) error = %v", tt.id, err)
		}
		if s.Kind != tt.wantKind || s.Detail != tt.detail || s.Progress == "" {
			t.Errorf("summarize(%s) = %+v", tt.id, s)
		}
	}
}

func TestOutputSummaries(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{w: &buf, errW: &buf}

	err := out.Summaries([]stateSummary{
		{Kind: "instance", ID: "i", Progress: "INSTANCE_PLANNED"},
		{Kind: "service", ID: "s", Progress: "SERVICE_PLANNED"},
		{Kind: "agent", ID: "a", Progress: "PLANNED"},
	})
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q, want header and three rows", lines)
	}
	for i, kind := range []string{"agent", "service", "instance"} {
		if !strings.HasPrefix(lines[i+1], kind) {
			t.Errorf("row %d = %q, want %s first", i+1, lines[i+1], kind)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[1]), "-") {
		t.Errorf("empty detail not rendered as '-': %q", lines[1])
	}
}

func TestOutputTasks(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)

	tests := []struct {
		ts   string
		want string
	}{
		{"2024-01-01T00:00:18Z", "42s"},
		{"2024-01-01T00:02:00Z", "0s"},
		{"yesterday", "yesterday"},
	}

	for _, tt := range tests {
		if got := taskAge(tt.ts, now); got != tt.want {
			t.Errorf("taskAge(%q) = %q, want %q", tt.ts, got, tt.want)
		}
	}

	var buf bytes.Buffer
	out := &Output{jsonMode: true, w: &buf, errW: &buf}
	if err := out.Tasks([]TaskResponse{{ID: "t1", Type: "PingAgentTask"}}, now); err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if !strings.Contains(buf.String(), `"type": "PingAgentTask"`) {
		t.Errorf("json = %s", buf.String())
	}
}

func TestStateSetProperty(t *testing.T) {
	scheme := domain.NewScheme("http://grid.test/")
	st := store.NewMemoryStore()
	b := broker.NewMemoryBroker()

	mux := http.NewServeMux()
	api.NewHandler(api.Config{Scheme: scheme, Store: st, Broker: b}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	instanceID := scheme.Instance("web", 0)
	agentID := scheme.Agent("web", 0)
	inst := &domain.ServiceInstanceState{Progress: domain.InstanceStarted, AgentID: agentID, ServiceID: scheme.Service("web")}
	if _, err := store.Write(t.Context(), st, instanceID, inst, store.EmptyEtag); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var buf bytes.Buffer
	client := NewClient(srv.URL)
	out := &Output{w: &buf, errW: &buf}
	cmd := NewStateCmd(func() *Client { return client }, func() *Output { return out })

	if err := runCmd(t, cmd, "set-property", instanceID, "color"); err == nil {
		t.Error("expected error for property without '='")
	}
	if err := runCmd(t, cmd, "set-property", instanceID, "color=blue"); err != nil {
		t.Fatalf("set-property: %v", err)
	}
	if !strings.Contains(buf.String(), "sent to "+agentID) {
		t.Errorf("output = %q", buf.String())
	}

	pending, err := b.PendingTasks(t.Context(), agentID)
	if err != nil || len(pending) != 1 || pending[0].Type != domain.TaskTypeSetInstanceProperty {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	payload, err := domain.ParsePayload[domain.SetInstancePropertyPayload](pending[0])
	if err != nil || payload.Key != "color" || payload.Value != "blue" {
		t.Errorf("payload = %+v, %v", payload, err)
	}
}
