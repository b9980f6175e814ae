// Package observability bootstraps zap and the OpenTelemetry SDKs.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ServiceVersion = "1.0.0"
	TracesPath     = "/v1/traces"
	LogsPath       = "/v1/logs"
	ExportTimeout  = 30 * time.Second
	MaxQueueSize   = 2048
)

// Settings selects the OTLP/HTTP collector. An empty Endpoint disables export.
type Settings struct {
	ServiceName string
	Endpoint    string
	AuthHeader  string
}

func (s Settings) Enabled() bool { return s.Endpoint != "" }

func (s Settings) headers() map[string]string {
	if s.AuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": s.AuthHeader}
}

func newResource(s Settings) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(s.ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
}

func noopShutdown(context.Context) error { return nil }

// SetupTracingSDK installs a global TracerProvider exporting over OTLP/HTTP
// and the W3C trace-context propagator. The provider stays the otel no-op
// one when export is disabled.
func SetupTracingSDK(ctx context.Context, s Settings) (shutdown func(context.Context) error, err error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !s.Enabled() {
		return noopShutdown, nil
	}

	res, err := newResource(s)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(s.Endpoint),
		otlptracehttp.WithURLPath(TracesPath),
		otlptracehttp.WithHeaders(s.headers()),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("OTLP trace exporter: %w", err)
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter,
		sdktrace.WithExportTimeout(ExportTimeout),
		sdktrace.WithMaxQueueSize(MaxQueueSize),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// SetupLoggingSDK installs a global LoggerProvider for the otelzap bridge.
func SetupLoggingSDK(ctx context.Context, s Settings) (shutdown func(context.Context) error, err error) {
	if !s.Enabled() {
		return noopShutdown, nil
	}

	res, err := newResource(s)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(s.Endpoint),
		otlploghttp.WithURLPath(LogsPath),
		otlploghttp.WithHeaders(s.headers()),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("OTLP log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(ExportTimeout),
			sdklog.WithMaxQueueSize(MaxQueueSize),
		)),
	)
	global.SetLoggerProvider(lp)
	return lp.Shutdown, nil
}

// Setup runs both SDK setups and returns a combined shutdown.
func Setup(ctx context.Context, s Settings) (func(context.Context) error, error) {
	traceShutdown, traceErr := SetupTracingSDK(ctx, s)
	logShutdown, logErr := SetupLoggingSDK(ctx, s)
	shutdown := func(ctx context.Context) error {
		return errors.Join(logShutdown(ctx), traceShutdown(ctx))
	}
	return shutdown, errors.Join(traceErr, logErr)
}
