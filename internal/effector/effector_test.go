package effector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

var transition = Transition{
	InstanceID: "http://grid/services/web/instances/0/",
	ServiceID:  "http://grid/services/web/",
	AgentID:    "http://grid/agents/web-0/",
	From:       domain.InstancePlanned,
	To:         domain.InstanceInstalled,
}

func TestDefaultRegistry(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"without webhook", Config{}, []string{TypeDelay, TypeNop}},
		{"with webhook", Config{WebhookURL: "http://hooks/"}, []string{TypeDelay, TypeNop, TypeWebhook}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := DefaultRegistry(tt.cfg)
			if err != nil {
				t.Fatalf("DefaultRegistry: %v", err)
			}
			got := r.Types()
			if len(got) != len(tt.want) {
				t.Fatalf("types = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("types = %v, want %v", got, tt.want)
				}
			}
		})
	}

	r := NewRegistry()
	if _, err := r.Get("unknown"); !errors.Is(err, ErrEffectorNotFound) {
		t.Errorf("expected ErrEffectorNotFound, got %v", err)
	}
}

func TestDelay(t *testing.T) {
	if _, err := NewDelay(-time.Second); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	d, err := NewDelay(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewDelay: %v", err)
	}

	start := time.Now()
	if err := d.Apply(context.Background(), transition); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Apply returned after %s", elapsed)
	}

	slow, _ := NewDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Apply(ctx, transition); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestWebhook_PostsTransition(t *testing.T) {
	var got Transition
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	w, err := NewWebhook(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	if err := w.Apply(context.Background(), transition); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != transition {
		t.Errorf("received %+v, want %+v", got, transition)
	}
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "install failed", http.StatusBadGateway)
	}))
	defer server.Close()

	w, _ := NewWebhook(server.URL, time.Second)
	err := w.Apply(context.Background(), transition)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", httpErr.StatusCode)
	}

	if _, err := NewWebhook("", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Apply(context.Background(), transition)

	got := r.Transitions()
	if len(got) != 1 || got[0] != transition {
		t.Errorf("transitions = %+v", got)
	}
}
