// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/config"
)

func restoreProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInitDisabled(t *testing.T) {
	restoreProvider(t)

	ctx := context.Background()
	tp, shutdown, err := Init(ctx, Options{Enabled: false})
	if err != nil {
		t.Fatalf("Init(disabled) returned error: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			t.Errorf("shutdown returned error: %v", err)
		}
	}()

	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop.TracerProvider, got %T", tp)
	}
}

func TestInitExporters(t *testing.T) {
	for _, exporter := range []string{"none", "stdout", "otlp"} {
		t.Run(exporter, func(t *testing.T) {
			restoreProvider(t)

			ctx := context.Background()
			tp, shutdown, err := Init(ctx, Options{
				Enabled:      true,
				Exporter:     exporter,
				Endpoint:     "localhost:0",
				Insecure:     true,
				SamplingRate: 0.5,
				Logger:       zap.NewNop().Sugar(),
			})
			if err != nil {
				t.Fatalf("Init(%s) returned error: %v", exporter, err)
			}
			t.Cleanup(func() { _ = shutdown(ctx) })

			if _, ok := tp.(*sdktrace.TracerProvider); !ok {
				t.Errorf("expected sdk TracerProvider, got %T", tp)
			}
		})
	}
}

func TestInitInvalidExporter(t *testing.T) {
	_, _, err := Init(context.Background(), Options{
		Enabled:  true,
		Exporter: "invalid-exporter",
	})
	if err == nil {
		t.Fatal("expected error for invalid exporter, got nil")
	}
}

func TestInitSamplingRateClamped(t *testing.T) {
	for _, rate := range []float64{-0.5, 0, 2.0} {
		restoreProvider(t)
		ctx := context.Background()
		tp, shutdown, err := Init(ctx, Options{Enabled: true, Exporter: "none", SamplingRate: rate})
		if err != nil {
			t.Fatalf("Init(rate=%v) returned error: %v", rate, err)
		}
		_ = shutdown(ctx)
		if tp == nil {
			t.Fatal("TracerProvider is nil")
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Telemetry{
		Enabled:      true,
		ServiceName:  "mailer",
		Exporter:     "stdout",
		Endpoint:     "collector:4317",
		Insecure:     true,
		SamplingRate: 0.25,
	}, "1.2.3", nil)

	if !opts.Enabled || opts.ServiceName != "mailer" || opts.Exporter != "stdout" ||
		opts.Endpoint != "collector:4317" || !opts.Insecure || opts.SamplingRate != 0.25 ||
		opts.ServiceVersion != "1.2.3" {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestStartAndEndSpan(t *testing.T) {
	restoreProvider(t)
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, sent := StartSpan(context.Background(), "mail.send", attribute.String("mail.item", "a"))
	EndSpan(sent, nil)
	_, failed := StartSpan(context.Background(), "mail.send", attribute.String("mail.item", "b"))
	EndSpan(failed, errors.New("smtp down"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Unset {
		t.Errorf("successful span status = %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "smtp down" {
		t.Errorf("failed span status = %+v", spans[1].Status())
	}
	if spans[0].InstrumentationScope().Name != InstrumentationName {
		t.Errorf("instrumentation scope = %q", spans[0].InstrumentationScope().Name)
	}
}
