package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a submission or queue entry does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoTask is returned by Claim when no claimable entry exists.
var ErrNoTask = errors.New("no claimable task")

// SubmissionFilter narrows List calls. Zero values mean no constraint;
// Limit 0 falls back to the store default.
type SubmissionFilter struct {
	SubmissionID string
	Status       string
	Limit        int
}

// QueueFilter narrows queue listings.
type QueueFilter struct {
	SubmissionID string
	Status       string
	Limit        int
}

// SubmissionStore is the durable submission lifecycle.
type SubmissionStore interface {
	// Create inserts a new submission with the given content and the task
	// map initialized to pending for every name in taskNames.
	Create(ctx context.Context, htmlContent, textContent, sourceURL string, taskNames []string) (*Submission, error)
	GetByID(ctx context.Context, submissionID string) (*Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]*Submission, error)
	Delete(ctx context.Context, submissionID string) error

	// UpdateTaskStatus flips one task's status, stamping started_at on
	// processing and completed_at on completed/failed.
	UpdateTaskStatus(ctx context.Context, submissionID, taskName, status, errMsg string) error
	// UpdateResults deep-merges the non-nil patch fields into results.
	UpdateResults(ctx context.Context, submissionID string, patch ResultsPatch) error
	// ClearResults resets the named tasks to pending with null timestamps
	// and errors, and unsets the named result fields.
	ClearResults(ctx context.Context, submissionID string, taskNames, resultFields []string) error
}

// QueueStore is the persistent task queue.
type QueueStore interface {
	Enqueue(ctx context.Context, submissionID, taskType string, priority int) (*QueueEntry, error)
	// Claim atomically flips the highest-priority pending entry (priority
	// ascending, then created_at ascending) to processing, binding it to
	// workerID. Entries in excludeIDs are skipped; ErrNoTask when nothing
	// is claimable.
	Claim(ctx context.Context, workerID string, excludeIDs []string) (*QueueEntry, error)
	// Release puts a claimed entry back to pending without counting a
	// retry.
	Release(ctx context.Context, entryID string) error
	Complete(ctx context.Context, entryID string) error
	// Fail marks the entry failed and increments retry_count.
	Fail(ctx context.Context, entryID, errMsg string) error
	Get(ctx context.Context, entryID string) (*QueueEntry, error)
	List(ctx context.Context, filter QueueFilter) ([]*QueueEntry, error)
	Delete(ctx context.Context, entryID string) error
	// DeleteInFlight removes pending and processing entries for the given
	// task types on one submission (all types when taskTypes is empty).
	DeleteInFlight(ctx context.Context, submissionID string, taskTypes []string) error
	DeleteBySubmission(ctx context.Context, submissionID string) error
}

// CacheStore is the content-addressed prompt cache. Put must be backed by
// a unique constraint on the hash.
type CacheStore interface {
	Get(ctx context.Context, promptHash string) (string, bool, error)
	Put(ctx context.Context, promptHash, prompt, response string) error
}
