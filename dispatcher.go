package aep

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aep/aep/health"
	"github.com/aep/aep/memory"
)

// DefaultTaskDeadline is the wall-clock deadline applied to a handler
// invocation when the Dispatcher is not configured with an override.
const DefaultTaskDeadline = 30 * time.Second

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxConcurrentTasks sets the admission semaphore's capacity. Defaults
// to 1 (effectively serialised) if never set — callers should always
// provide an explicit value.
func WithMaxConcurrentTasks(n int) DispatcherOption {
	return func(d *Dispatcher) { d.sem = make(chan struct{}, n) }
}

// WithTaskDeadline overrides DefaultTaskDeadline.
func WithTaskDeadline(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.deadline = d }
}

// WithDispatcherLogger sets the structured logger. Defaults to a
// discarding logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMemoryEngine attaches the Embedding Memory Engine handed to every
// agent invocation. Agents that don't need memory can ignore the
// argument; it is nil if never configured.
func WithMemoryEngine(m *memory.Engine) DispatcherOption {
	return func(d *Dispatcher) { d.memory = m }
}

// WithInstruments attaches the Lifecycle/Health metric instruments the
// dispatcher reports dispatch outcomes into. Nil (the default) disables
// metric recording without requiring callers to special-case it.
func WithInstruments(i *health.Instruments) DispatcherOption {
	return func(d *Dispatcher) { d.instruments = i }
}

// WithHealthAggregator attaches the Lifecycle/Health aggregator the
// dispatcher reports per-agent health snapshots into after every
// completed (non-queue-full, non-unknown-agent) invocation. Nil (the
// default) disables snapshot reporting.
func WithHealthAggregator(a *health.Aggregator) DispatcherOption {
	return func(d *Dispatcher) { d.aggregator = a }
}

// Dispatcher executes tasks against a Registry under a global concurrency
// bound and a per-task deadline. Admission is non-blocking: when the
// concurrency semaphore has no free permit, the task is rejected with
// ErrQueueFull rather than queued, so callers see backpressure
// immediately instead of waiting behind an unbounded backlog.
type Dispatcher struct {
	registry    *Registry
	sem         chan struct{}
	deadline    time.Duration
	logger      *slog.Logger
	memory      *memory.Engine
	instruments *health.Instruments
	aggregator  *health.Aggregator
}

// NewDispatcher builds a Dispatcher bound to registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		sem:      make(chan struct{}, 1),
		deadline: DefaultTaskDeadline,
		logger:   discardLogger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit admits task for execution. It never blocks: if no concurrency
// permit is immediately available, ErrQueueFull is sent on task.Reply and
// Submit returns. Otherwise the handler runs on its own goroutine and
// Submit returns before it completes; exactly one Reply is always sent.
func (d *Dispatcher) Submit(ctx context.Context, task Task) {
	select {
	case d.sem <- struct{}{}:
	default:
		d.logger.Debug("dispatch rejected, queue full", "agent", task.AgentName)
		d.recordOutcome(ctx, "queue_full")
		sendReply(task.Reply, Reply{Err: &ErrQueueFull{}})
		return
	}
	go d.run(ctx, task)
}

func (d *Dispatcher) run(ctx context.Context, task Task) {
	defer func() { <-d.sem }()

	agent, err := d.registry.Lookup(task.AgentName)
	if err != nil {
		d.logger.Debug("dispatch failed: unknown agent", "agent", task.AgentName)
		d.recordOutcome(ctx, "unknown_agent")
		sendReply(task.Reply, Reply{Err: &ErrUnknownAgent{Name: task.AgentName}})
		return
	}

	// The registry lock is released by Lookup before we ever await the
	// handler — the handler must never run while holding a registry lock.
	callCtx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	type handlerOutcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan handlerOutcome, 1)
	go func() {
		result, err := agent.Handle(callCtx, task.Input, d.memory)
		done <- handlerOutcome{result: result, err: err}
	}()

	start := time.Now()
	select {
	case out := <-done:
		if out.err != nil {
			d.logger.Error("handler failed", "agent", task.AgentName, "duration", time.Since(start), "error", out.err)
			d.recordOutcome(ctx, "handler_failed")
			d.reportHealth(agent)
			sendReply(task.Reply, Reply{Err: &ErrHandlerFailed{Agent: task.AgentName, Message: out.err.Error()}})
			return
		}
		d.logger.Debug("handler succeeded", "agent", task.AgentName, "duration", time.Since(start))
		d.recordOutcome(ctx, "ok")
		d.reportHealth(agent)
		sendReply(task.Reply, Reply{Result: out.result})
	case <-callCtx.Done():
		d.logger.Error("handler timed out", "agent", task.AgentName, "deadline", d.deadline)
		d.recordOutcome(ctx, "timeout")
		d.reportHealth(agent)
		sendReply(task.Reply, Reply{Err: &ErrTimeout{Agent: task.AgentName, Deadline: d.deadline.String()}})
	}
}

// recordOutcome increments DispatchOutcomes tagged by outcome, if metric
// instruments were configured. outcome is one of queue_full, unknown_agent,
// handler_failed, ok, timeout.
func (d *Dispatcher) recordOutcome(ctx context.Context, outcome string) {
	if d.instruments == nil || d.instruments.DispatchOutcomes == nil {
		return
	}
	d.instruments.DispatchOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// reportHealth pushes agent's current health into the aggregator, if one
// was configured, so /health reflects agents that have actually handled
// traffic.
func (d *Dispatcher) reportHealth(agent Agent) {
	if d.aggregator == nil {
		return
	}
	h := agent.Health()
	d.aggregator.Report(health.AgentSnapshot{Name: agent.Name(), Type: agent.Type(), Status: h.Status})
}

// sendReply delivers r on ch. Task.Reply is always constructed with a
// capacity-1 buffer (see NewTask), so this send completes immediately even
// if the caller has already stopped listening — the dispatcher never
// blocks or panics on a dropped reply channel.
func sendReply(ch chan Reply, r Reply) {
	ch <- r
}
