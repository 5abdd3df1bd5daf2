// Package metrics records generation metrics through the OpenTelemetry
// metrics API. Setup installs a Prometheus-backed meter provider and serves
// /metrics; tests build a Recorder on a ManualReader instead.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"limbo/internal/infra/config"
)

const meterName = "limbo"

// durationBuckets are in seconds; generations span a few LLM round-trips.
var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Recorder holds the metric instruments. A nil *Recorder records nothing.
type Recorder struct {
	generations        metric.Int64Counter
	iterations         metric.Int64Counter
	toolCalls          metric.Int64Counter
	hookFailures       metric.Int64Counter
	generationDuration metric.Float64Histogram
}

// NewRecorder creates the instruments on mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	m := mp.Meter(meterName)
	r := &Recorder{}
	var err error

	if r.generations, err = m.Int64Counter("limbo.generations",
		metric.WithDescription("Chat generations by llm and outcome."),
	); err != nil {
		return nil, err
	}
	if r.iterations, err = m.Int64Counter("limbo.generation.iterations",
		metric.WithDescription("Generation loop iterations by llm."),
	); err != nil {
		return nil, err
	}
	if r.toolCalls, err = m.Int64Counter("limbo.tool.calls",
		metric.WithDescription("Settled tool calls by tool and status."),
	); err != nil {
		return nil, err
	}
	if r.hookFailures, err = m.Int64Counter("limbo.plugin.hook_failures",
		metric.WithDescription("Failed plugin hook invocations by plugin and hook."),
	); err != nil {
		return nil, err
	}
	if r.generationDuration, err = m.Float64Histogram("limbo.generation.duration",
		metric.WithDescription("Wall time of chat generations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordGeneration counts a finished generation. outcome is "done" or "aborted".
func (r *Recorder) RecordGeneration(ctx context.Context, llmID, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("llm", llmID), attribute.String("outcome", outcome))
	r.generations.Add(ctx, 1, attrs)
	r.generationDuration.Record(ctx, d.Seconds(), attrs)
}

func (r *Recorder) RecordIteration(ctx context.Context, llmID string) {
	if r == nil {
		return
	}
	r.iterations.Add(ctx, 1, metric.WithAttributes(attribute.String("llm", llmID)))
}

func (r *Recorder) RecordToolCall(ctx context.Context, toolID, status string) {
	if r == nil {
		return
	}
	r.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", toolID), attribute.String("status", status)))
}

func (r *Recorder) RecordHookFailure(ctx context.Context, pluginID, hook string) {
	if r == nil {
		return
	}
	r.hookFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("plugin", pluginID), attribute.String("hook", hook)))
}

// Setup installs the global meter provider and returns a Recorder bound to it
// plus a shutdown function. When metrics are disabled a noop provider is used.
func Setup(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) (*Recorder, func(context.Context) error, error) {
	if !cfg.Enabled {
		mp := noop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		rec, err := NewRecorder(mp)
		return rec, func(context.Context) error { return nil }, err
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	rec, err := NewRecorder(mp)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("listen metrics on %s: %w", cfg.Addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", ln.Addr().String())

	shutdown := func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return rec, shutdown, nil
}
