package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/peruse-ai/peruse/pkg/store"
)

// DefaultPollInterval is the queue backoff when no work is claimable.
const DefaultPollInterval = 2 * time.Second

// Worker polls the task queue and executes claimed entries. Tasks run to
// completion: a shutdown lets the in-flight task finish before the loop
// exits.
type Worker struct {
	id           string
	queue        store.QueueStore
	submissions  store.SubmissionStore
	handlers     map[string]Handler
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewWorker(queue store.QueueStore, submissions store.SubmissionStore, handlers map[string]Handler, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := "worker-" + uuid.NewString()
	return &Worker{
		id:           id,
		queue:        queue,
		submissions:  submissions,
		handlers:     handlers,
		pollInterval: pollInterval,
		logger:       logger.With("worker_id", id),
	}
}

// ID returns the worker's stable identity used in queue claims.
func (w *Worker) ID() string { return w.id }

// Run polls until ctx is canceled. A task claimed before cancellation is
// drained, not aborted.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		default:
		}

		worked, err := w.pollOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("poll failed", "error", err)
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// pollOnce claims entries until it finds one whose prerequisites are met,
// runs it, and reports whether anything was executed. Entries released for
// unmet prerequisites are excluded from re-claiming within this round so
// the loop terminates.
func (w *Worker) pollOnce(ctx context.Context) (bool, error) {
	var excludeIDs []string
	for {
		entry, err := w.queue.Claim(ctx, w.id, excludeIDs)
		if errors.Is(err, store.ErrNoTask) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("claim: %w", err)
		}

		sub, err := w.submissions.GetByID(ctx, entry.SubmissionID)
		if errors.Is(err, store.ErrNotFound) {
			w.failEntry(ctx, entry, nil, "submission not found")
			return true, nil
		}
		if err != nil {
			if relErr := w.queue.Release(ctx, entry.ID); relErr != nil {
				w.logger.Error("release failed", "entry_id", entry.ID, "error", relErr)
			}
			return false, fmt.Errorf("load submission: %w", err)
		}

		if unmet := w.unmetDependency(sub, entry.TaskType); unmet != "" {
			w.logger.Debug("prerequisite not completed, releasing",
				"entry_id", entry.ID,
				"task_type", entry.TaskType,
				"waiting_on", unmet)
			if err := w.queue.Release(ctx, entry.ID); err != nil {
				return false, fmt.Errorf("release: %w", err)
			}
			excludeIDs = append(excludeIDs, entry.ID)
			continue
		}

		w.process(ctx, entry, sub)
		return true, nil
	}
}

func (w *Worker) unmetDependency(sub *store.Submission, taskType string) string {
	for _, dep := range Dependencies(taskType) {
		if sub.Tasks[dep].Status != store.StatusCompleted {
			return dep
		}
	}
	return ""
}

// process runs one claimed entry end to end. The handler gets a context
// detached from cancellation so a shutdown signal drains instead of
// aborting mid-task.
func (w *Worker) process(ctx context.Context, entry *store.QueueEntry, sub *store.Submission) {
	log := w.logger.With(
		"entry_id", entry.ID,
		"submission_id", sub.ID,
		"task_type", entry.TaskType)

	handler, ok := w.handlers[entry.TaskType]
	if !ok {
		w.failEntry(ctx, entry, sub, fmt.Sprintf("no handler for task type %q", entry.TaskType))
		return
	}

	runCtx := context.WithoutCancel(ctx)

	if err := w.submissions.UpdateTaskStatus(runCtx, sub.ID, entry.TaskType, store.StatusProcessing, ""); err != nil {
		log.Error("mark processing failed", "error", err)
	}

	log.Info("task started")
	start := time.Now()
	err := handler.Run(runCtx, sub)
	if err != nil {
		log.Error("task failed", "error", err, "duration", time.Since(start))
		w.failEntry(runCtx, entry, sub, err.Error())
		return
	}

	if err := w.queue.Complete(runCtx, entry.ID); err != nil {
		log.Error("mark queue entry completed failed", "error", err)
	}
	if err := w.submissions.UpdateTaskStatus(runCtx, sub.ID, entry.TaskType, store.StatusCompleted, ""); err != nil {
		log.Error("mark task completed failed", "error", err)
	}
	log.Info("task completed", "duration", time.Since(start))
}

func (w *Worker) failEntry(ctx context.Context, entry *store.QueueEntry, sub *store.Submission, msg string) {
	if err := w.queue.Fail(ctx, entry.ID, msg); err != nil {
		w.logger.Error("mark queue entry failed failed", "entry_id", entry.ID, "error", err)
	}
	if sub != nil {
		if err := w.submissions.UpdateTaskStatus(ctx, sub.ID, entry.TaskType, store.StatusFailed, msg); err != nil {
			w.logger.Error("mark task failed failed", "submission_id", sub.ID, "error", err)
		}
	}
}
