package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for OpenIntent spans.
var (
	AttrTaskID       = attribute.Key("openintent.task.id")
	AttrSessionID    = attribute.Key("openintent.session.id")
	AttrToolName     = attribute.Key("openintent.tool.name")
	AttrModel        = attribute.Key("openintent.llm.model")
	AttrTokensInput  = attribute.Key("openintent.llm.tokens.input")
	AttrTokensOutput = attribute.Key("openintent.llm.tokens.output")
	AttrAgentTurn    = attribute.Key("openintent.agent.turn")
	AttrStepIndex    = attribute.Key("openintent.step.index")
	AttrDevTaskID    = attribute.Key("openintent.devtask.id")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (LLM API, GitHub).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
