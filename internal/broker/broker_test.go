package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/ServiceGrid/internal/domain"
)

func newTask(t *testing.T, taskType domain.TaskType, consumer string, payload any) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(taskType, consumer, consumer, payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	task.ProducerID = "orchestrator/"
	task.ProducerTimestamp = time.Now()
	return task
}

func TestMemoryBroker_DedupIgnoresTimestamp(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	first := newTask(t, domain.TaskTypePingAgent, "agents/a/", domain.PingAgentPayload{})
	second := newTask(t, domain.TaskTypePingAgent, "agents/a/", domain.PingAgentPayload{})
	second.ProducerTimestamp = first.ProducerTimestamp.Add(time.Minute)

	posted, err := b.PostNewTask(ctx, first)
	if err != nil || !posted {
		t.Fatalf("first post: posted=%v err=%v", posted, err)
	}

	posted, err = b.PostNewTask(ctx, second)
	if err != nil {
		t.Fatalf("second post: %v", err)
	}
	if posted {
		t.Error("task differing only in timestamp should be deduplicated")
	}

	pending, _ := b.PendingTasks(ctx, "agents/a/")
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(pending))
	}
	if !pending[0].ProducerTimestamp.Equal(first.ProducerTimestamp) {
		t.Error("the oldest task should stay pending")
	}
}

func TestMemoryBroker_DifferentTasksKeepFIFO(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	ping := newTask(t, domain.TaskTypePingAgent, "agents/a/", domain.PingAgentPayload{})
	newer := newTask(t, domain.TaskTypePingAgent, "agents/a/", domain.PingAgentPayload{
		Generation: domain.AgentGeneration{MachineStarts: 1},
	})

	for _, task := range []*domain.Task{ping, newer} {
		if posted, err := b.PostNewTask(ctx, task); err != nil || !posted {
			t.Fatalf("post: posted=%v err=%v", posted, err)
		}
	}

	got, err := b.RemoveNextTask(ctx, "agents/a/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != ping.ID {
		t.Errorf("expected first posted task, got %s", got.ID)
	}

	got, _ = b.RemoveNextTask(ctx, "agents/a/")
	if got.ID != newer.ID {
		t.Errorf("expected second posted task, got %s", got.ID)
	}

	if _, err := b.RemoveNextTask(ctx, "agents/a/"); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestMemoryBroker_QueuesAreIsolated(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	b.PostNewTask(ctx, newTask(t, domain.TaskTypePingAgent, "agents/a/", nil))
	b.PostNewTask(ctx, newTask(t, domain.TaskTypePingAgent, "agents/b/", nil))

	pending, _ := b.PendingTasks(ctx, "agents/a/")
	if len(pending) != 1 || pending[0].ConsumerID != "agents/a/" {
		t.Errorf("unexpected pending tasks %v", pending)
	}
}

func TestMemoryBroker_RepostAfterRemove(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	task := newTask(t, domain.TaskTypePingAgent, "agents/a/", nil)
	b.PostNewTask(ctx, task)
	b.RemoveNextTask(ctx, "agents/a/")

	posted, _ := b.PostNewTask(ctx, task)
	if !posted {
		t.Error("task should be accepted again once it left the queue")
	}
}

type recordingNotifier struct {
	consumers []string
}

func (r *recordingNotifier) NotifyTaskPosted(_ context.Context, consumerID string, _ domain.TaskType) error {
	r.consumers = append(r.consumers, consumerID)
	return nil
}

func TestNotifying_NotifiesOnlyNewTasks(t *testing.T) {
	notifier := &recordingNotifier{}
	b := NewNotifying(NewMemoryBroker(), notifier, nil)
	ctx := context.Background()

	task := newTask(t, domain.TaskTypePingAgent, "agents/a/", nil)
	b.PostNewTask(ctx, task)
	b.PostNewTask(ctx, task)

	if len(notifier.consumers) != 1 || notifier.consumers[0] != "agents/a/" {
		t.Errorf("expected one notification, got %v", notifier.consumers)
	}
}
