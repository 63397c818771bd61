// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry initialises OpenTelemetry tracing for the notification
// mailer and offers span helpers for the event and mail paths.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
)

// InstrumentationName names the tracer used by every span of this module.
const InstrumentationName = "github.com/telekom/issuemail"

// Options configures the OpenTelemetry TracerProvider.
type Options struct {
	// Enabled controls whether tracing is active. When false, a no-op
	// TracerProvider is installed and the shutdown function is a no-op.
	Enabled bool

	// ServiceName is the service.name resource attribute.
	// Default: "issuemail"
	ServiceName string

	ServiceVersion string

	// Exporter selects the trace exporter: "otlp" (default), "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector endpoint (e.g. "otel-collector:4317").
	// Ignored when Exporter is not "otlp".
	Endpoint string

	// Insecure disables TLS for the OTLP gRPC connection.
	Insecure bool

	// SamplingRate is the probability of sampling a trace (0.0-1.0).
	SamplingRate float64

	Logger *zap.SugaredLogger
}

// OptionsFromConfig maps the telemetry configuration section onto Options.
func OptionsFromConfig(cfg config.Telemetry, serviceVersion string, log *zap.SugaredLogger) Options {
	return Options{
		Enabled:        cfg.Enabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Exporter:       cfg.Exporter,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SamplingRate:   cfg.SamplingRate,
		Logger:         log,
	}
}

// ShutdownFunc gracefully shuts down the TracerProvider, flushing pending spans.
type ShutdownFunc func(ctx context.Context) error

// Init installs the global TracerProvider and propagator.
// When opts.Enabled is false a no-op provider is installed and the returned
// ShutdownFunc always returns nil.
func Init(ctx context.Context, opts Options) (trace.TracerProvider, ShutdownFunc, error) {
	if !opts.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	if opts.ServiceName == "" {
		opts.ServiceName = "issuemail"
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if opts.SamplingRate <= 0 || opts.SamplingRate > 1.0 {
		log.Warnw("OTel sampling rate out of range, sampling everything", "provided", opts.SamplingRate)
		opts.SamplingRate = 1.0
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating OTel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch opts.Exporter {
	case "otlp", "":
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(opts.Endpoint),
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating OTLP gRPC exporter: %w", err)
		}
		log.Infow("OTel OTLP exporter initialized", "endpoint", opts.Endpoint, "insecure", opts.Insecure)

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		log.Infow("OTel stdout exporter initialized")

	case "none":
		log.Infow("OTel tracing enabled with no exporter")

	default:
		return nil, nil, fmt.Errorf("unknown OTel exporter %q: supported values are otlp, stdout, none", opts.Exporter)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(opts.SamplingRate),
		)),
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warnw("OpenTelemetry internal error", "error", err)
	}))

	log.Infow("OpenTelemetry tracing initialized",
		"serviceName", opts.ServiceName,
		"exporter", opts.Exporter,
		"samplingRate", opts.SamplingRate,
	)

	shutdown := func(ctx context.Context) error {
		log.Infow("Shutting down OpenTelemetry TracerProvider")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}

	return tp, shutdown, nil
}

// StartSpan starts a span on the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
