package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceVersion = "1.0.0"

// Options selects where telemetry goes. When Enabled is false spans and
// metrics are still produced but never exported.
type Options struct {
	Enabled        bool
	ServiceName    string
	OTLPEndpoint   string
	ExportInterval time.Duration
}

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	tracer         trace.Tracer
	meter          metric.Meter
}

// New builds the tracer and meter providers and installs them, together with
// the W3C trace-context propagator, as the otel globals.
func New(ctx context.Context, opts Options) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, err
	}

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	meterOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	loggerOpts := []sdklog.LoggerProviderOption{
		sdklog.WithResource(res),
	}

	if opts.Enabled {
		traceExporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(opts.OTLPEndpoint+"/v1/traces"),
			otlptracehttp.WithInsecure(), // Use for local development
		)
		if err != nil {
			return nil, err
		}
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(traceExporter))

		metricExporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpointURL(opts.OTLPEndpoint+"/v1/metrics"),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		interval := opts.ExportInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval)),
		))

		logExporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(opts.OTLPEndpoint+"/v1/logs"),
			otlploghttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		loggerOpts = append(loggerOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	}

	tp := NewProvider(opts.ServiceName,
		sdktrace.NewTracerProvider(tracerOpts...),
		sdkmetric.NewMeterProvider(meterOpts...),
	)
	tp.loggerProvider = sdklog.NewLoggerProvider(loggerOpts...)

	otel.SetTracerProvider(tp.tracerProvider)
	otel.SetMeterProvider(tp.meterProvider)
	global.SetLoggerProvider(tp.loggerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// NewProvider wraps already configured SDK providers without touching the
// otel globals. Tests use it with in-memory exporters and manual readers. Its
// logger provider has no processor, so log records are dropped.
func NewProvider(name string, tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) *Provider {
	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		loggerProvider: sdklog.NewLoggerProvider(),
		tracer:         tp.Tracer(name),
		meter:          mp.Meter(name),
	}
}

func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// LoggerProvider feeds the otelslog bridge in package logging.
func (p *Provider) LoggerProvider() log.LoggerProvider {
	return p.loggerProvider
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.tracerProvider.Shutdown(ctx),
		p.meterProvider.Shutdown(ctx),
		p.loggerProvider.Shutdown(ctx),
	)
}
