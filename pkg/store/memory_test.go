package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peruse-ai/peruse/pkg/splitter"
)

func TestMemorySubmissions_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	subs := NewMemory().Submissions()

	sub, err := subs.Create(ctx, "<p>html</p>", "text", "http://src", []string{"a", "b"})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "<p>html</p>", sub.HTMLContent)
	require.Len(t, sub.Tasks, 2)
	assert.Equal(t, StatusPending, sub.Tasks["a"].Status)
	assert.Equal(t, StatusPending, sub.OverallStatus())

	got, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = subs.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySubmissions_List(t *testing.T) {
	ctx := context.Background()
	subs := NewMemory().Submissions()

	first, err := subs.Create(ctx, "", "one", "", []string{"a"})
	require.NoError(t, err)
	second, err := subs.Create(ctx, "", "two", "", []string{"a"})
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		out, err := subs.List(ctx, SubmissionFilter{})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, second.ID, out[0].ID)
		assert.Equal(t, first.ID, out[1].ID)
	})

	t.Run("limit", func(t *testing.T) {
		out, err := subs.List(ctx, SubmissionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("status filter", func(t *testing.T) {
		require.NoError(t, subs.UpdateTaskStatus(ctx, first.ID, "a", StatusCompleted, ""))
		out, err := subs.List(ctx, SubmissionFilter{Status: StatusCompleted})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, first.ID, out[0].ID)
	})

	t.Run("status filter applies before the limit", func(t *testing.T) {
		// "first" is completed (above) but older than "second", which is
		// pending; a limit of 1 must still find it
		out, err := subs.List(ctx, SubmissionFilter{Status: StatusCompleted, Limit: 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, first.ID, out[0].ID)
	})

	t.Run("id filter", func(t *testing.T) {
		out, err := subs.List(ctx, SubmissionFilter{SubmissionID: second.ID})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, second.ID, out[0].ID)
	})
}

func TestMemorySubmissions_UpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	subs := NewMemory().Submissions()
	sub, err := subs.Create(ctx, "", "text", "", []string{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, subs.UpdateTaskStatus(ctx, sub.ID, "a", StatusProcessing, ""))
	got, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Tasks["a"].Status)
	assert.NotNil(t, got.Tasks["a"].StartedAt)
	assert.Equal(t, StatusProcessing, got.OverallStatus())

	require.NoError(t, subs.UpdateTaskStatus(ctx, sub.ID, "a", StatusFailed, "boom"))
	got, err = subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Tasks["a"].Error)
	assert.Equal(t, "boom", *got.Tasks["a"].Error)
	assert.NotNil(t, got.Tasks["a"].CompletedAt)
	assert.Equal(t, StatusFailed, got.OverallStatus())

	assert.ErrorIs(t, subs.UpdateTaskStatus(ctx, "missing", "a", StatusPending, ""), ErrNotFound)
}

func TestMemorySubmissions_Results(t *testing.T) {
	ctx := context.Background()
	subs := NewMemory().Submissions()
	sub, err := subs.Create(ctx, "", "text", "", []string{"a"})
	require.NoError(t, err)

	sentences := []splitter.Sentence{{Index: 0, Text: "hello"}}
	summary := []string{"brief"}

	require.NoError(t, subs.UpdateResults(ctx, sub.ID, ResultsPatch{Sentences: &sentences}))
	require.NoError(t, subs.UpdateResults(ctx, sub.ID, ResultsPatch{Summary: &summary}))

	got, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sentences, got.Results.Sentences, "untouched fields survive later patches")
	assert.Equal(t, summary, got.Results.Summary)

	t.Run("clear resets named fields and task states", func(t *testing.T) {
		require.NoError(t, subs.UpdateTaskStatus(ctx, sub.ID, "a", StatusCompleted, ""))
		require.NoError(t, subs.ClearResults(ctx, sub.ID, []string{"a"}, []string{"summary"}))

		got, err := subs.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Results.Summary)
		assert.Equal(t, sentences, got.Results.Sentences)
		assert.Equal(t, StatusPending, got.Tasks["a"].Status)
	})
}

func TestMemoryQueue_ClaimOrdering(t *testing.T) {
	ctx := context.Background()
	queue := NewMemory().Queue()

	low, err := queue.Enqueue(ctx, "sub", "low-prio", 3)
	require.NoError(t, err)
	high, err := queue.Enqueue(ctx, "sub", "high-prio", 1)
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, "sub", "high-prio-later", 1)
	require.NoError(t, err)

	claimed, err := queue.Claim(ctx, "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, high.ID, claimed.ID, "lowest priority number first")
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.Equal(t, "w1", claimed.WorkerID)
	assert.NotNil(t, claimed.StartedAt)

	claimed, err = queue.Claim(ctx, "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID, "ties break by creation order")

	claimed, err = queue.Claim(ctx, "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, low.ID, claimed.ID)

	_, err = queue.Claim(ctx, "w1", nil)
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestMemoryQueue_ClaimExcludes(t *testing.T) {
	ctx := context.Background()
	queue := NewMemory().Queue()

	first, err := queue.Enqueue(ctx, "sub", "a", 1)
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, "sub", "b", 1)
	require.NoError(t, err)

	claimed, err := queue.Claim(ctx, "w1", []string{first.ID})
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	_, err = queue.Claim(ctx, "w1", []string{first.ID})
	assert.ErrorIs(t, err, ErrNoTask, "excluded pending entries are not claimable")
}

func TestMemoryQueue_Lifecycle(t *testing.T) {
	ctx := context.Background()
	queue := NewMemory().Queue()
	entry, err := queue.Enqueue(ctx, "sub", "a", 1)
	require.NoError(t, err)

	t.Run("release returns the entry to pending", func(t *testing.T) {
		_, err := queue.Claim(ctx, "w1", nil)
		require.NoError(t, err)
		require.NoError(t, queue.Release(ctx, entry.ID))

		got, err := queue.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Empty(t, got.WorkerID)
		assert.Nil(t, got.StartedAt)
	})

	t.Run("fail records the error and bumps the retry count", func(t *testing.T) {
		_, err := queue.Claim(ctx, "w1", nil)
		require.NoError(t, err)
		require.NoError(t, queue.Fail(ctx, entry.ID, "boom"))

		got, err := queue.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "boom", got.Error)
		assert.Equal(t, 1, got.RetryCount)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("complete stamps completion", func(t *testing.T) {
		entry, err := queue.Enqueue(ctx, "sub", "b", 1)
		require.NoError(t, err)
		_, err = queue.Claim(ctx, "w1", nil)
		require.NoError(t, err)
		require.NoError(t, queue.Complete(ctx, entry.ID))

		got, err := queue.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})
}

func TestMemoryQueue_DeleteInFlight(t *testing.T) {
	ctx := context.Background()
	queue := NewMemory().Queue()

	pending, err := queue.Enqueue(ctx, "sub", "a", 1)
	require.NoError(t, err)
	done, err := queue.Enqueue(ctx, "sub", "b", 1)
	require.NoError(t, err)
	other, err := queue.Enqueue(ctx, "other", "a", 1)
	require.NoError(t, err)

	claimed, err := queue.Claim(ctx, "w1", []string{pending.ID, other.ID})
	require.NoError(t, err)
	require.Equal(t, done.ID, claimed.ID)
	require.NoError(t, queue.Complete(ctx, done.ID))

	t.Run("type filter removes only matching pending entries", func(t *testing.T) {
		require.NoError(t, queue.DeleteInFlight(ctx, "sub", []string{"a"}))
		_, err := queue.Get(ctx, pending.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = queue.Get(ctx, done.ID)
		assert.NoError(t, err, "completed entries are kept")
		_, err = queue.Get(ctx, other.ID)
		assert.NoError(t, err, "other submissions are untouched")
	})

	t.Run("delete by submission removes everything for it", func(t *testing.T) {
		require.NoError(t, queue.DeleteBySubmission(ctx, "sub"))
		_, err := queue.Get(ctx, done.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = queue.Get(ctx, other.ID)
		assert.NoError(t, err)
	})
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory().Cache()

	resp, ok, err := cache.Get(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, resp)

	require.NoError(t, cache.Put(ctx, "h1", "prompt", "answer"))
	resp, ok, err = cache.Get(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "answer", resp)

	require.NoError(t, cache.Put(ctx, "h1", "prompt", "other"))
	resp, _, err = cache.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "answer", resp, "first insert wins")
	assert.Equal(t, 1, cache.Len())
}

func TestSubmission_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"no tasks", nil, StatusPending},
		{"all pending", []string{StatusPending, StatusPending}, StatusPending},
		{"any failed wins", []string{StatusCompleted, StatusFailed, StatusProcessing}, StatusFailed},
		{"processing beats pending", []string{StatusProcessing, StatusPending}, StatusProcessing},
		{"all completed", []string{StatusCompleted, StatusCompleted}, StatusCompleted},
		{"mixed completed and pending", []string{StatusCompleted, StatusPending}, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Submission{Tasks: map[string]TaskState{}}
			for i, st := range tt.statuses {
				sub.Tasks[string(rune('a'+i))] = TaskState{Status: st}
			}
			assert.Equal(t, tt.want, sub.OverallStatus())
		})
	}
}
