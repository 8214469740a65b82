// Package observer provides OTEL-based observability for aidra's workflow
// engine, agent loop, and tool dispatch.
//
// It exposes an aidra.Tracer implementation via NewTracer, plus a set of
// counters and histograms callers can feed from workflow/agent-loop
// callbacks. Export to any OTEL-compatible backend via the standard OTEL
// env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	aidralog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/aidra/observer"

// Instruments holds the OTEL instruments aidra's core emits to.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger aidralog.Logger

	LLMRequests    metric.Int64Counter
	ToolExecutions metric.Int64Counter
	WorkflowRuns   metric.Int64Counter
	AgentSteps     metric.Int64Counter

	LLMDuration      metric.Float64Histogram
	ToolDuration     metric.Float64Histogram
	WorkflowDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Configuration comes from standard OTEL env vars. Returns a
// shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("aidra")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	llmRequests, err := meter.Int64Counter("llm.requests", metric.WithDescription("LLM adapter call count"), metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	toolExecutions, err := meter.Int64Counter("tool.executions", metric.WithDescription("Tool dispatch count"), metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}
	workflowRuns, err := meter.Int64Counter("workflow.runs", metric.WithDescription("Workflow run count"), metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	agentSteps, err := meter.Int64Counter("agent.steps", metric.WithDescription("Agent loop step count"), metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}
	llmDuration, err := meter.Float64Histogram("llm.duration", metric.WithDescription("LLM call duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("tool.duration", metric.WithDescription("Tool execution duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	workflowDuration, err := meter.Float64Histogram("workflow.duration", metric.WithDescription("Workflow run duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer: tracer, Meter: meter, Logger: logger,
		LLMRequests: llmRequests, ToolExecutions: toolExecutions, WorkflowRuns: workflowRuns, AgentSteps: agentSteps,
		LLMDuration: llmDuration, ToolDuration: toolDuration, WorkflowDuration: workflowDuration,
	}, nil
}
