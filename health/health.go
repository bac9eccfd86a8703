// Package health is the Lifecycle/Health component: OTEL trace/metric
// provider wiring plus the counters the rest of the platform reports
// into (dispatch outcomes, plugin load outcomes, bridge queue depth) and
// per-agent health aggregation.
package health

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/aep/aep/health"

// Instruments holds the OTEL instruments the platform reports into.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	DispatchOutcomes metric.Int64Counter
	PluginOutcomes   metric.Int64Counter
	BridgeQueueDepth metric.Int64UpDownCounter
}

// InitOption configures Init.
type InitOption func(*initConfig)

type initConfig struct {
	endpointURL string
}

// WithEndpointURL directs both exporters at an explicit OTLP-HTTP
// endpoint instead of the standard OTEL_EXPORTER_OTLP_* env vars.
func WithEndpointURL(u string) InitOption {
	return func(c *initConfig) { c.endpointURL = u }
}

// Init wires OTLP-HTTP trace and metric exporters and installs the
// resulting tracer/meter providers globally. There is no OTEL log
// pipeline: the platform's structured logs go through slog. Exporter
// configuration comes from standard OTEL_EXPORTER_OTLP_* env vars
// unless WithEndpointURL overrides it.
func Init(ctx context.Context, opts ...InitOption) (*Instruments, func(context.Context) error, error) {
	var cfg initConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("aep")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	var traceOpts []otlptracehttp.Option
	var metricOpts []otlpmetrichttp.Option
	if cfg.endpointURL != "" {
		traceOpts = append(traceOpts, otlptracehttp.WithEndpointURL(cfg.endpointURL))
		metricOpts = append(metricOpts, otlpmetrichttp.WithEndpointURL(cfg.endpointURL))
	}

	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}
	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	dispatchOutcomes, err := meter.Int64Counter("aep.dispatch.outcomes",
		metric.WithDescription("Dispatcher task outcomes by result"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	pluginOutcomes, err := meter.Int64Counter("aep.plugin.load_outcomes",
		metric.WithDescription("Plugin load attempts by result"),
		metric.WithUnit("{plugin}"))
	if err != nil {
		return nil, err
	}
	bridgeQueueDepth, err := meter.Int64UpDownCounter("aep.bridge.queue_depth",
		metric.WithDescription("In-flight foreign-runtime bridge requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Meter:            meter,
		DispatchOutcomes: dispatchOutcomes,
		PluginOutcomes:   pluginOutcomes,
		BridgeQueueDepth: bridgeQueueDepth,
	}, nil
}

// AgentSnapshot is a point-in-time health read for one registered agent.
type AgentSnapshot struct {
	Name   string
	Type   string
	Status string
}

// Aggregator collects per-agent health snapshots on demand. It holds no
// reference to the registry itself; callers push snapshots as they
// observe them, keeping this package free of an import on the root
// package.
type Aggregator struct {
	mu        sync.RWMutex
	snapshots map[string]AgentSnapshot
}

// NewAggregator builds an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{snapshots: make(map[string]AgentSnapshot)}
}

// Report records or replaces the snapshot for an agent.
func (a *Aggregator) Report(s AgentSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[s.Name] = s
}

// Remove drops a snapshot, e.g. when an agent is unregistered.
func (a *Aggregator) Remove(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.snapshots, name)
}

// Snapshots returns a copy of every currently tracked agent snapshot.
func (a *Aggregator) Snapshots() []AgentSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AgentSnapshot, 0, len(a.snapshots))
	for _, s := range a.snapshots {
		out = append(out, s)
	}
	return out
}
