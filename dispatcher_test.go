package aep

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aep/aep/health"
)

// TestDispatcher_EchoRoundTrip: a registered "echo" handler returns the
// JSON value it received.
func TestDispatcher_EchoRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", &stubAgent{name: "echo"})
	d := NewDispatcher(reg, WithMaxConcurrentTasks(4))

	task := NewTask("echo", json.RawMessage(`"hello"`))
	d.Submit(context.Background(), task)

	reply := <-task.Reply
	if reply.Err != nil {
		t.Fatalf("unexpected error: %v", reply.Err)
	}
	if string(reply.Result) != `"hello"` {
		t.Errorf("got %s, want %q", reply.Result, `"hello"`)
	}
}

func TestDispatcher_UnknownAgent(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithMaxConcurrentTasks(4))
	task := NewTask("missing", json.RawMessage(`{}`))
	d.Submit(context.Background(), task)

	reply := <-task.Reply
	unknown, ok := reply.Err.(*ErrUnknownAgent)
	if !ok {
		t.Fatalf("got %v, want *ErrUnknownAgent", reply.Err)
	}
	if unknown.Name != "missing" {
		t.Errorf("got name %q, want %q", unknown.Name, "missing")
	}
}

// TestDispatcher_Timeout: a handler that never completes within its
// deadline yields ErrTimeout within deadline+epsilon.
func TestDispatcher_Timeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("sleepy", &stubAgent{name: "sleepy", delay: 500 * time.Millisecond})
	d := NewDispatcher(reg, WithMaxConcurrentTasks(4), WithTaskDeadline(100*time.Millisecond))

	task := NewTask("sleepy", json.RawMessage(`{}`))
	start := time.Now()
	d.Submit(context.Background(), task)

	reply := <-task.Reply
	elapsed := time.Since(start)

	if _, ok := reply.Err.(*ErrTimeout); !ok {
		t.Fatalf("got %v, want *ErrTimeout", reply.Err)
	}
	if elapsed < 100*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("timeout fired after %v, want within 100-200ms", elapsed)
	}
}

// TestDispatcher_HandlerFailed verifies a handler error surfaces as
// ErrHandlerFailed rather than being silently swallowed.
func TestDispatcher_HandlerFailed(t *testing.T) {
	reg := NewRegistry()
	reg.Register("broken", &stubAgent{name: "broken", err: errTest})
	d := NewDispatcher(reg, WithMaxConcurrentTasks(4))

	task := NewTask("broken", json.RawMessage(`{}`))
	d.Submit(context.Background(), task)

	reply := <-task.Reply
	failed, ok := reply.Err.(*ErrHandlerFailed)
	if !ok {
		t.Fatalf("got %v, want *ErrHandlerFailed", reply.Err)
	}
	if failed.Agent != "broken" {
		t.Errorf("got agent %q, want %q", failed.Agent, "broken")
	}
}

// TestDispatcher_BoundedConcurrency verifies that with capacity N, the
// (N+1)th concurrently submitted task is rejected with ErrQueueFull rather
// than queued.
func TestDispatcher_BoundedConcurrency(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slow", &stubAgent{name: "slow", delay: 200 * time.Millisecond})
	d := NewDispatcher(reg, WithMaxConcurrentTasks(2), WithTaskDeadline(time.Second))

	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = NewTask("slow", json.RawMessage(`{}`))
		d.Submit(context.Background(), tasks[i])
	}

	queueFull := 0
	for i := range tasks {
		reply := <-tasks[i].Reply
		if _, ok := reply.Err.(*ErrQueueFull); ok {
			queueFull++
		}
	}
	if queueFull != 1 {
		t.Errorf("got %d QueueFull rejections, want 1", queueFull)
	}
}

// TestDispatcher_ReportsHealthAfterCompletion verifies a configured
// Aggregator observes an agent's health once it has handled a task.
func TestDispatcher_ReportsHealthAfterCompletion(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", &stubAgent{name: "echo", typ: "builtin"})
	agg := health.NewAggregator()
	d := NewDispatcher(reg, WithMaxConcurrentTasks(4), WithHealthAggregator(agg))

	task := NewTask("echo", json.RawMessage(`"hi"`))
	d.Submit(context.Background(), task)
	<-task.Reply

	snapshots := agg.Snapshots()
	if len(snapshots) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snapshots))
	}
	if snapshots[0].Name != "echo" || snapshots[0].Type != "builtin" {
		t.Errorf("unexpected snapshot: %+v", snapshots[0])
	}
}

var errTest = errors.New("boom")
