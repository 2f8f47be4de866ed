package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/peruse-ai/peruse/pkg/utils"
)

// TracingCaller records every LLM call under a span carrying the prompt,
// temperature, and response. With the default noop tracer provider this is
// zero-overhead and drop-in compatible.
type TracingCaller struct {
	inner   Caller
	tracer  trace.Tracer
	counter *utils.TokenCounter
}

func NewTracingCaller(inner Caller) *TracingCaller {
	return &TracingCaller{inner: inner, tracer: otel.Tracer("peruse/llm")}
}

// WithTokenCounter adds exact prompt token counts to the span attributes.
func (t *TracingCaller) WithTokenCounter(counter *utils.TokenCounter) *TracingCaller {
	t.counter = counter
	return t
}

func (t *TracingCaller) Call(ctx context.Context, prompt string, temperature float64) (string, error) {
	promptTokens := utils.EstimateTokens(prompt)
	if t.counter != nil {
		promptTokens = t.counter.Count(prompt)
	}
	ctx, span := t.tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.Int("prompt_length", len(prompt)),
		attribute.Int("prompt_tokens", promptTokens),
		attribute.Float64("temperature", temperature),
	))
	defer span.End()

	response, err := t.inner.Call(ctx, prompt, temperature)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(
		attribute.Int("response_length", len(response)),
		attribute.String("prompt", prompt),
		attribute.String("response", response),
	)
	return response, nil
}
