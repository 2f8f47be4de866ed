package splitter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline orchestrates the text splitting stages:
//
//	html_clean? → split → mark → llm.query → parse → gap_handler →
//	enhance? → join? → offset_restore?
//
// The cleaner and restorer must be provided together or not at all. The
// orchestrator performs no correctness logic beyond argument wiring; errors
// from any stage propagate.
type Pipeline struct {
	splitter   SentenceSplitter
	marker     MarkerStrategy
	llm        LLMStrategy
	parser     ResponseParser
	gapHandler GapHandler
	enhancer   Enhancer
	joiner     GroupJoiner
	cleaner    HTMLCleaner
	restorer   OffsetRestorer
	tracer     trace.Tracer
}

// PipelineConfig collects the pipeline's stage implementations. Enhancer,
// Joiner, Cleaner and Restorer are optional.
type PipelineConfig struct {
	Splitter   SentenceSplitter
	Marker     MarkerStrategy
	LLM        LLMStrategy
	Parser     ResponseParser
	GapHandler GapHandler
	Enhancer   Enhancer
	Joiner     GroupJoiner
	Cleaner    HTMLCleaner
	Restorer   OffsetRestorer
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Splitter == nil || cfg.Marker == nil || cfg.LLM == nil || cfg.Parser == nil || cfg.GapHandler == nil {
		return nil, fmt.Errorf("splitter, marker, llm, parser and gap handler are required")
	}
	if (cfg.Cleaner == nil) != (cfg.Restorer == nil) {
		return nil, fmt.Errorf("html cleaner and offset restorer must both be provided or both be nil")
	}
	return &Pipeline{
		splitter:   cfg.Splitter,
		marker:     cfg.Marker,
		llm:        cfg.LLM,
		parser:     cfg.Parser,
		gapHandler: cfg.GapHandler,
		enhancer:   cfg.Enhancer,
		joiner:     cfg.Joiner,
		cleaner:    cfg.Cleaner,
		restorer:   cfg.Restorer,
		tracer:     otel.Tracer("peruse/splitter"),
	}, nil
}

// Run executes the full pipeline on the input text.
func (p *Pipeline) Run(ctx context.Context, text string) (SplitResult, error) {
	ctx, runSpan := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("input_length", len(text)),
	))
	defer runSpan.End()

	var mapping OffsetMapping
	hasMapping := false
	if p.cleaner != nil {
		_, span := p.tracer.Start(ctx, "html_clean")
		text, mapping = p.cleaner.Clean(text)
		hasMapping = true
		span.SetAttributes(attribute.Int("clean_length", len(text)))
		span.End()
	}

	_, span := p.tracer.Start(ctx, "split")
	sentences := p.splitter.Split(text)
	span.SetAttributes(attribute.Int("sentence_count", len(sentences)))
	span.End()

	_, span = p.tracer.Start(ctx, "mark")
	marked := p.marker.Mark(text, sentences)
	span.SetAttributes(attribute.Int("tagged_text_length", len(marked.TaggedText)))
	span.End()

	llmCtx, span := p.tracer.Start(ctx, "llm.query")
	response, err := p.llm.Query(llmCtx, marked)
	if err != nil {
		span.RecordError(err)
		span.End()
		return SplitResult{}, err
	}
	span.SetAttributes(attribute.Int("response_length", len(response)))
	span.End()

	_, span = p.tracer.Start(ctx, "parse")
	groups, err := p.parser.Parse(response, marked.SentenceCount)
	if err != nil {
		span.RecordError(err)
		span.End()
		return SplitResult{}, err
	}
	span.SetAttributes(attribute.Int("group_count", len(groups)))
	span.End()

	gapCtx, span := p.tracer.Start(ctx, "gap_handler")
	groups, err = p.gapHandler.Handle(gapCtx, groups, marked.SentenceCount, sentences)
	if err != nil {
		span.RecordError(err)
		span.End()
		return SplitResult{}, err
	}
	span.SetAttributes(attribute.Int("group_count", len(groups)))
	span.End()

	if p.enhancer != nil {
		enhanceCtx, span := p.tracer.Start(ctx, "enhance")
		groups, err = p.enhancer.Enhance(enhanceCtx, groups, sentences)
		if err != nil {
			span.RecordError(err)
			span.End()
			return SplitResult{}, err
		}
		span.SetAttributes(attribute.Int("group_count", len(groups)))
		span.End()
	}

	if p.joiner != nil {
		_, span := p.tracer.Start(ctx, "join")
		groups = p.joiner.Join(groups, sentences)
		sentences, groups, err = JoinSentencesByGroups(groups, sentences)
		if err != nil {
			span.RecordError(err)
			span.End()
			return SplitResult{}, err
		}
		span.SetAttributes(
			attribute.Int("sentence_count", len(sentences)),
			attribute.Int("group_count", len(groups)),
		)
		span.End()
	}

	result := SplitResult{Sentences: sentences, Groups: groups}

	if p.restorer != nil && hasMapping {
		_, span := p.tracer.Start(ctx, "offset_restore")
		result, err = p.restorer.Restore(result, mapping)
		if err != nil {
			span.RecordError(err)
			span.End()
			return SplitResult{}, err
		}
		span.SetAttributes(attribute.Int("sentence_count", len(result.Sentences)))
		span.End()
	}

	return result, nil
}
