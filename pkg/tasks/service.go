package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peruse-ai/peruse/pkg/store"
)

// Service orchestrates the submission lifecycle: creating submissions with
// their full task set, refreshing artifacts, and repeating failed entries.
type Service struct {
	submissions store.SubmissionStore
	queue       store.QueueStore
	logger      *slog.Logger
}

func NewService(submissions store.SubmissionStore, queue store.QueueStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{submissions: submissions, queue: queue, logger: logger}
}

// Submit creates a submission and enqueues the full task set.
func (s *Service) Submit(ctx context.Context, htmlContent, textContent, sourceURL string) (*store.Submission, error) {
	names := AllTasks()
	sub, err := s.submissions.Create(ctx, htmlContent, textContent, sourceURL, names)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	if err := s.enqueue(ctx, sub.ID, names); err != nil {
		return nil, err
	}
	s.logger.Info("submission created", "submission_id", sub.ID, "tasks", len(names))
	return sub, nil
}

// Refresh re-runs the requested tasks and their downstream closure:
// results owned by the closure are cleared, in-flight entries for those
// types removed, and fresh pending entries inserted. Returns the expanded
// task list.
func (s *Service) Refresh(ctx context.Context, submissionID string, requested []string) ([]string, error) {
	names, err := ExpandRecalculation(requested)
	if err != nil {
		return nil, err
	}
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		return nil, err
	}

	if err := s.submissions.ClearResults(ctx, submissionID, names, ResultFields(names)); err != nil {
		return nil, fmt.Errorf("clear results: %w", err)
	}
	if err := s.queue.DeleteInFlight(ctx, submissionID, names); err != nil {
		return nil, fmt.Errorf("delete in-flight entries: %w", err)
	}
	if err := s.enqueue(ctx, submissionID, names); err != nil {
		return nil, err
	}

	s.logger.Info("submission refreshed", "submission_id", submissionID, "tasks", names)
	return names, nil
}

// AddTask enqueues exactly one task at the given priority, clearing only
// that task's results. Priority zero means the registry default; the
// downstream closure is not touched.
func (s *Service) AddTask(ctx context.Context, submissionID, taskType string, priority int) (*store.QueueEntry, error) {
	if !IsKnown(taskType) {
		return nil, fmt.Errorf("unknown task %q", taskType)
	}
	if priority == 0 {
		priority = Priority(taskType)
	}
	if priority < 1 || priority > 10 {
		return nil, fmt.Errorf("priority must be between 1 and 10")
	}
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		return nil, err
	}

	names := []string{taskType}
	if err := s.submissions.ClearResults(ctx, submissionID, names, ResultFields(names)); err != nil {
		return nil, fmt.Errorf("clear results: %w", err)
	}
	if err := s.queue.DeleteInFlight(ctx, submissionID, names); err != nil {
		return nil, fmt.Errorf("delete in-flight entries: %w", err)
	}
	entry, err := s.queue.Enqueue(ctx, submissionID, taskType, priority)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}

	s.logger.Info("task enqueued", "submission_id", submissionID, "task", taskType, "priority", priority)
	return entry, nil
}

// Repeat re-enqueues one queue entry's task together with its downstream
// closure, clearing the corresponding results first.
func (s *Service) Repeat(ctx context.Context, entryID string) ([]string, error) {
	entry, err := s.queue.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !IsKnown(entry.TaskType) {
		return nil, fmt.Errorf("unknown task %q", entry.TaskType)
	}
	return s.Refresh(ctx, entry.SubmissionID, []string{entry.TaskType})
}

// DeleteSubmission removes a submission and every queue entry referencing
// it.
func (s *Service) DeleteSubmission(ctx context.Context, submissionID string) error {
	if err := s.submissions.Delete(ctx, submissionID); err != nil {
		return err
	}
	if err := s.queue.DeleteBySubmission(ctx, submissionID); err != nil {
		return fmt.Errorf("delete queue entries: %w", err)
	}
	s.logger.Info("submission deleted", "submission_id", submissionID)
	return nil
}

// enqueue inserts pending entries for the named tasks, skipping types that
// already have a pending or processing entry on this submission.
func (s *Service) enqueue(ctx context.Context, submissionID string, names []string) error {
	entries, err := s.queue.List(ctx, store.QueueFilter{SubmissionID: submissionID, Limit: 1000})
	if err != nil {
		return fmt.Errorf("list queue entries: %w", err)
	}
	inFlight := make(map[string]bool)
	for _, e := range entries {
		if e.Status == store.StatusPending || e.Status == store.StatusProcessing {
			inFlight[e.TaskType] = true
		}
	}
	for _, name := range names {
		if inFlight[name] {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, submissionID, name, Priority(name)); err != nil {
			return fmt.Errorf("enqueue %s: %w", name, err)
		}
	}
	return nil
}
