package tasks

import (
	"context"
	"fmt"

	"github.com/peruse-ai/peruse/pkg/splitter"
	"github.com/peruse-ai/peruse/pkg/store"
)

// splitTemperature keeps topic extraction deterministic across re-runs so
// the prompt cache actually hits.
const splitTemperature = 0.0

// SplitTopicHandler runs the sentence-splitting and topic-labeling
// pipeline over a submission's content and stores the resulting sentences
// and topic groups.
type SplitTopicHandler struct {
	env Env
}

func NewSplitTopicHandler(env Env) *SplitTopicHandler {
	return &SplitTopicHandler{env: env}
}

func (h *SplitTopicHandler) Name() string { return TaskSplitTopicGeneration }

func (h *SplitTopicHandler) Run(ctx context.Context, sub *store.Submission) error {
	// html_content preserves formatting and wins when present
	source := sub.HTMLContent
	isHTML := source != ""
	if source == "" {
		source = sub.TextContent
	}
	if source == "" {
		return fmt.Errorf("no text content to process")
	}

	pipeline, err := h.buildPipeline(isHTML)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(ctx, source)
	if err != nil {
		return fmt.Errorf("split pipeline: %w", err)
	}

	topics := make([]store.Topic, 0, len(result.Groups))
	for _, g := range result.Groups {
		topics = append(topics, store.Topic{Label: g.Label, Ranges: g.Ranges})
	}

	err = h.env.Submissions.UpdateResults(ctx, sub.ID, store.ResultsPatch{
		Sentences: &result.Sentences,
		Topics:    &topics,
	})
	if err != nil {
		return err
	}

	h.env.logger().Info("split/topic generation completed",
		"submission_id", sub.ID,
		"sentences", len(result.Sentences),
		"topics", len(topics))
	return nil
}

func (h *SplitTopicHandler) buildPipeline(isHTML bool) (*splitter.Pipeline, error) {
	cfg := splitter.PipelineConfig{
		Splitter:   splitter.NewNormalizingSplitter(splitter.NewRegexSplitter(), 0, 0),
		Marker:     splitter.NewBracketMarker(),
		LLM:        splitter.NewTopicQuerier(h.env.LLM, splitTemperature, h.env.MaxChunkChars),
		Parser:     splitter.NewTopicRangeParser(),
		GapHandler: splitter.NewLLMGapHandler(h.env.LLM, splitTemperature),
		Enhancer:   splitter.NewShortSentenceEnhancer(h.env.LLM, 0, splitTemperature),
		Joiner:     splitter.NewAdjacentJoiner(),
	}
	if isHTML {
		cfg.Cleaner = splitter.NewStructuralTagStripCleaner()
		cfg.Restorer = splitter.NewMappingOffsetRestorer()
	}
	return splitter.NewPipeline(cfg)
}
