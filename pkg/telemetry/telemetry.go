// Package telemetry provides OpenTelemetry-based tracing and metrics for
// a swarm node: distributed tracing across the bus/ledger/plan/auction
// path with OTLP export, and a RED (Rate, Errors, Duration) metric set
// per tracked operation. Disabled by default — a node with no collector
// configured pays no OTLP dial cost, matching pkg/cas and pkg/ledger's
// own disabled-by-default backend selection.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmmesh/substrate/pkg/config"
)

// Config configures the OpenTelemetry providers for one node.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	OTLPEndpoint   string  // e.g. "localhost:4317"
	SampleRate     float64 // 0.0 to 1.0
	BatchTimeout   time.Duration
	Insecure       bool
}

// FromNodeConfig builds a telemetry Config from the node's env-driven
// config.Config (spec.md's ambient observability stack: off unless a
// collector endpoint is explicitly configured).
func FromNodeConfig(cfg *config.Config) *Config {
	return &Config{
		ServiceName:    "swarmnode",
		ServiceVersion: "0.1.0",
		Enabled:        cfg.OTLPEndpoint != "",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Insecure:       true,
	}
}

// Provider manages a node's trace and meter providers and its RED metric
// instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	opCounter        metric.Int64Counter
	errCounter       metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// New creates a node's telemetry provider. If cfg.Enabled is false (the
// default), it returns a no-op Provider whose every method is safe to
// call but does nothing — no OTLP connection is attempted.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	p := &Provider{config: cfg, logger: slog.Default().With("component", "telemetry")}

	if cfg == nil || !cfg.Enabled {
		p.logger.Debug("telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("telemetry: init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("telemetry: init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("swarmmesh.substrate", trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter("swarmmesh.substrate", metric.WithInstrumentationVersion(cfg.ServiceVersion))

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("telemetry: init RED metrics: %w", err)
	}

	p.logger.Info("telemetry initialized", "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error
	if p.opCounter, err = p.meter.Int64Counter("swarm.operations.total",
		metric.WithDescription("Total tracked operations processed"), metric.WithUnit("{operation}")); err != nil {
		return err
	}
	if p.errCounter, err = p.meter.Int64Counter("swarm.operations.errors",
		metric.WithDescription("Total tracked operation failures"), metric.WithUnit("{error}")); err != nil {
		return err
	}
	if p.durationHist, err = p.meter.Float64Histogram("swarm.operation.duration",
		metric.WithDescription("Tracked operation duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return err
	}
	if p.activeOperations, err = p.meter.Int64UpDownCounter("swarm.operations.active",
		metric.WithDescription("Currently in-flight tracked operations"), metric.WithUnit("{operation}")); err != nil {
		return err
	}
	return nil
}

// Shutdown flushes and releases the underlying providers. Safe to call on
// a disabled (no-op) Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.Error("trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.Error("metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// TrackOperation wraps a named operation (e.g. "ledger.transfer",
// "bus.publish", "auction.settle") with a span plus RED metrics. The
// returned func must be called with the operation's terminal error (nil
// on success) when it completes.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	tracer := p.tracer
	if tracer == nil {
		tracer = otel.Tracer("swarmmesh.substrate")
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))

	if p.activeOperations != nil {
		p.activeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.opCounter != nil {
		p.opCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		duration := time.Since(start)
		if p.activeOperations != nil {
			p.activeOperations.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.durationHist != nil {
			p.durationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.errCounter != nil {
				allAttrs := append(append([]attribute.KeyValue{}, attrs...), attribute.String("error.type", fmt.Sprintf("%T", err)))
				p.errCounter.Add(ctx, 1, metric.WithAttributes(allAttrs...))
			}
		}
		span.End()
	}
}
