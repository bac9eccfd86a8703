package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/aep/aep/health"
)

// queueCapacity is the bounded MPSC queue depth fed to the dedicated
// worker thread.
const queueCapacity = 100

// sendTimeout is the backpressure admission window: if the queue stays
// full for this long, the caller receives ErrBridgeBusy rather than
// blocking indefinitely.
const sendTimeout = 5 * time.Second

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the structured logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithInstruments attaches the Lifecycle/Health metric instruments the
// bridge reports queue depth into. Nil (the default) disables recording.
func WithInstruments(i *health.Instruments) BridgeOption {
	return func(b *Bridge) { b.instruments = i }
}

// WithModules configures a fixed set of on-disk modules to preload at
// Start time. Only files directly under dir whose SHA-256 hex digest
// appears in allowedHashes are loaded; every other file is skipped with a
// log event rather than aborting the worker, per the security policy's
// script allowlist.
func WithModules(dir string, allowedHashes []string) BridgeOption {
	return func(b *Bridge) {
		b.moduleDir = dir
		b.allowedModuleHashes = make(map[string]bool, len(allowedHashes))
		for _, h := range allowedHashes {
			b.allowedModuleHashes[h] = true
		}
	}
}

// Bridge calls into a single-threaded external interpreter safely from
// many concurrent goroutines. The interpreter is entered only from the
// dedicated OS thread Start pins for the lifetime of the Bridge.
type Bridge struct {
	allowlist map[string]bool
	executor  Executor
	requests  chan request
	logger    *slog.Logger

	instruments *health.Instruments

	moduleDir           string
	allowedModuleHashes map[string]bool
	modules             []Module

	closeOnce sync.Once
	downMu    sync.RWMutex
	down      bool
}

// New builds a Bridge. allowedFunctions is the compile-time function
// allowlist. executor is the foreign runtime endpoint: Start launches it
// (handing over the allowlisted modules) and every Call happens on the
// worker thread, never concurrently.
func New(allowedFunctions []string, executor Executor, opts ...BridgeOption) *Bridge {
	allow := make(map[string]bool, len(allowedFunctions))
	for _, f := range allowedFunctions {
		allow[f] = true
	}
	b := &Bridge{
		allowlist: allow,
		executor:  executor,
		requests:  make(chan request, queueCapacity),
		logger:    discardLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the dedicated worker loop until ctx is cancelled. Call this
// exactly once, on its own goroutine; Start pins the goroutine to its OS
// thread for its entire lifetime so the interpreter is never entered from
// any other thread.
func (b *Bridge) Start(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer b.markDown()

	if b.moduleDir != "" {
		b.loadModules()
	}
	if err := b.executor.Start(b.modules); err != nil {
		b.logger.Error("bridge executor failed to start", "error", err)
		return
	}
	defer func() { _ = b.executor.Close() }()

	b.logger.Info("bridge worker started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge worker stopping", "reason", ctx.Err())
			return
		case req, ok := <-b.requests:
			if !ok {
				return
			}
			b.serve(req)
		}
	}
}

func (b *Bridge) serve(req request) {
	if !b.allowlist[req.functionName] {
		req.reply <- response{err: &ErrFunctionNotAllowed{Function: req.functionName}}
		return
	}

	result, err := b.invoke(req.functionName, req.argument)
	if err != nil {
		req.reply <- response{err: &ErrForeignExecutionError{Function: req.functionName, Message: err.Error()}}
		return
	}
	req.reply <- response{result: result}
}

// invoke runs the executor with panic isolation: an exception in one
// request never brings down the worker or affects subsequent requests.
func (b *Bridge) invoke(functionName string, argument json.RawMessage) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrForeignExecutionError{Function: functionName, Message: "panic during execution"}
		}
	}()
	return b.executor.Call(functionName, argument)
}

// Submit enqueues a call to functionName and blocks until the worker
// replies or ctx is cancelled. Admission itself uses a 5-second
// send-timeout independent of ctx: if the queue is full for that long,
// Submit returns ErrBridgeBusy.
func (b *Bridge) Submit(ctx context.Context, functionName string, argument json.RawMessage) (result string, err error) {
	if b.isDown() {
		return "", &ErrBridgeDown{}
	}

	req := request{functionName: functionName, argument: argument, reply: make(chan response, 1)}

	defer func() {
		// The worker may close b.requests between our isDown() check and
		// the send below; a send on a closed channel panics rather than
		// blocking, so treat it the same as an observed-down bridge.
		if r := recover(); r != nil {
			result, err = "", &ErrBridgeDown{}
		}
	}()

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case b.requests <- req:
		b.recordQueueDepth(ctx, 1)
	case <-timer.C:
		return "", &ErrBridgeBusy{}
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer b.recordQueueDepth(ctx, -1)

	select {
	case resp := <-req.reply:
		return resp.result, resp.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// recordQueueDepth adjusts BridgeQueueDepth by delta, if metric
// instruments were configured.
func (b *Bridge) recordQueueDepth(ctx context.Context, delta int64) {
	if b.instruments == nil || b.instruments.BridgeQueueDepth == nil {
		return
	}
	b.instruments.BridgeQueueDepth.Add(ctx, delta, metric.WithAttributes())
}

func (b *Bridge) markDown() {
	b.downMu.Lock()
	b.down = true
	b.downMu.Unlock()
	b.closeOnce.Do(func() {
		close(b.requests)
		// Fail every request still sitting in the queue: pending and
		// future requests alike surface ErrBridgeDown once the worker
		// has exited, rather than hanging until the caller's context
		// expires.
		for req := range b.requests {
			req.reply <- response{err: &ErrBridgeDown{}}
		}
	})
}

func (b *Bridge) isDown() bool {
	b.downMu.RLock()
	defer b.downMu.RUnlock()
	return b.down
}

// Down reports whether the worker thread has exited. Exported for callers
// outside the package (e.g. an Agent wrapper reporting health).
func (b *Bridge) Down() bool {
	return b.isDown()
}
