package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store with the same semantics as the Mongo
// implementation, used in tests and single-process setups.
type Memory struct {
	mu          sync.Mutex
	submissions map[string]*Submission
	entries     map[string]*QueueEntry
	cache       map[string]CacheEntry
	seq         int64
}

func NewMemory() *Memory {
	return &Memory{
		submissions: make(map[string]*Submission),
		entries:     make(map[string]*QueueEntry),
		cache:       make(map[string]CacheEntry),
	}
}

func (m *Memory) Submissions() *MemorySubmissions { return &MemorySubmissions{m: m} }
func (m *Memory) Queue() *MemoryQueue             { return &MemoryQueue{m: m} }
func (m *Memory) Cache() *MemoryCache             { return &MemoryCache{m: m} }

// now returns a strictly increasing timestamp so created_at ordering is
// deterministic even within one clock tick.
func (m *Memory) now() time.Time {
	m.seq++
	return time.Now().UTC().Add(time.Duration(m.seq) * time.Nanosecond)
}

func cloneSubmission(s *Submission) *Submission {
	cp := *s
	cp.Tasks = make(map[string]TaskState, len(s.Tasks))
	for k, v := range s.Tasks {
		cp.Tasks[k] = v
	}
	return &cp
}

func cloneEntry(e *QueueEntry) *QueueEntry {
	cp := *e
	return &cp
}

// MemorySubmissions implements SubmissionStore in memory.
type MemorySubmissions struct {
	m *Memory
}

var _ SubmissionStore = (*MemorySubmissions)(nil)

func (s *MemorySubmissions) Create(_ context.Context, htmlContent, textContent, sourceURL string, taskNames []string) (*Submission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := s.m.now()
	tasks := make(map[string]TaskState, len(taskNames))
	for _, name := range taskNames {
		tasks[name] = TaskState{Status: StatusPending}
	}
	sub := &Submission{
		ID:          uuid.NewString(),
		HTMLContent: htmlContent,
		TextContent: textContent,
		SourceURL:   sourceURL,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tasks:       tasks,
	}
	s.m.submissions[sub.ID] = sub
	return cloneSubmission(sub), nil
}

func (s *MemorySubmissions) GetByID(_ context.Context, submissionID string) (*Submission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.submissions[submissionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSubmission(sub), nil
}

func (s *MemorySubmissions) List(_ context.Context, filter SubmissionFilter) ([]*Submission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*Submission
	for _, sub := range s.m.submissions {
		if filter.SubmissionID != "" && sub.ID != filter.SubmissionID {
			continue
		}
		if filter.Status != "" && sub.OverallStatus() != filter.Status {
			continue
		}
		out = append(out, cloneSubmission(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := clampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySubmissions) Delete(_ context.Context, submissionID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.submissions[submissionID]; !ok {
		return ErrNotFound
	}
	delete(s.m.submissions, submissionID)
	return nil
}

func (s *MemorySubmissions) UpdateTaskStatus(_ context.Context, submissionID, taskName, status, errMsg string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.submissions[submissionID]
	if !ok {
		return ErrNotFound
	}
	now := s.m.now()
	state := sub.Tasks[taskName]
	state.Status = status
	switch status {
	case StatusProcessing:
		state.StartedAt = &now
	case StatusCompleted, StatusFailed:
		state.CompletedAt = &now
	}
	if errMsg != "" {
		msg := errMsg
		state.Error = &msg
	}
	sub.Tasks[taskName] = state
	sub.UpdatedAt = now
	return nil
}

func (s *MemorySubmissions) UpdateResults(_ context.Context, submissionID string, patch ResultsPatch) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.submissions[submissionID]
	if !ok {
		return ErrNotFound
	}
	r := &sub.Results
	if patch.Sentences != nil {
		r.Sentences = *patch.Sentences
	}
	if patch.Topics != nil {
		r.Topics = *patch.Topics
	}
	if patch.Subtopics != nil {
		r.Subtopics = *patch.Subtopics
	}
	if patch.Summary != nil {
		r.Summary = *patch.Summary
	}
	if patch.SummaryMappings != nil {
		r.SummaryMappings = *patch.SummaryMappings
	}
	if patch.TopicSummaries != nil {
		r.TopicSummaries = *patch.TopicSummaries
	}
	if patch.TopicMindmaps != nil {
		r.TopicMindmaps = *patch.TopicMindmaps
	}
	if patch.MindmapNodes != nil {
		r.MindmapNodes = *patch.MindmapNodes
	}
	if patch.MindmapStats != nil {
		r.MindmapStats = *patch.MindmapStats
	}
	if patch.TopicRelationships != nil {
		r.TopicRelationships = *patch.TopicRelationships
	}
	if patch.Insides != nil {
		r.Insides = *patch.Insides
	}
	if patch.PrefixTree != nil {
		r.PrefixTree = *patch.PrefixTree
	}
	sub.UpdatedAt = s.m.now()
	return nil
}

func (s *MemorySubmissions) ClearResults(_ context.Context, submissionID string, taskNames, resultFields []string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.submissions[submissionID]
	if !ok {
		return ErrNotFound
	}
	for _, name := range taskNames {
		sub.Tasks[name] = TaskState{Status: StatusPending}
	}
	r := &sub.Results
	for _, field := range resultFields {
		switch field {
		case "sentences":
			r.Sentences = nil
		case "topics":
			r.Topics = nil
		case "subtopics":
			r.Subtopics = nil
		case "summary":
			r.Summary = nil
		case "summary_mappings":
			r.SummaryMappings = nil
		case "topic_summaries":
			r.TopicSummaries = nil
		case "topic_mindmaps":
			r.TopicMindmaps = nil
		case "mindmap_nodes":
			r.MindmapNodes = nil
		case "mindmap_stats":
			r.MindmapStats = nil
		case "topic_relationships":
			r.TopicRelationships = nil
		case "insides":
			r.Insides = nil
		case "prefix_tree":
			r.PrefixTree = nil
		}
	}
	sub.UpdatedAt = s.m.now()
	return nil
}

// MemoryQueue implements QueueStore in memory.
type MemoryQueue struct {
	m *Memory
}

var _ QueueStore = (*MemoryQueue)(nil)

func (q *MemoryQueue) Enqueue(_ context.Context, submissionID, taskType string, priority int) (*QueueEntry, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	entry := &QueueEntry{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		TaskType:     taskType,
		Priority:     priority,
		Status:       StatusPending,
		CreatedAt:    q.m.now(),
	}
	q.m.entries[entry.ID] = entry
	return cloneEntry(entry), nil
}

func (q *MemoryQueue) Claim(_ context.Context, workerID string, excludeIDs []string) (*QueueEntry, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var best *QueueEntry
	for _, e := range q.m.entries {
		if e.Status != StatusPending || excluded[e.ID] {
			continue
		}
		if best == nil ||
			e.Priority < best.Priority ||
			(e.Priority == best.Priority && e.CreatedAt.Before(best.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrNoTask
	}
	now := q.m.now()
	best.Status = StatusProcessing
	best.StartedAt = &now
	best.WorkerID = workerID
	return cloneEntry(best), nil
}

func (q *MemoryQueue) Release(_ context.Context, entryID string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	if e, ok := q.m.entries[entryID]; ok {
		e.Status = StatusPending
		e.StartedAt = nil
		e.WorkerID = ""
	}
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, entryID string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	if e, ok := q.m.entries[entryID]; ok {
		now := q.m.now()
		e.Status = StatusCompleted
		e.CompletedAt = &now
	}
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, entryID, errMsg string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	if e, ok := q.m.entries[entryID]; ok {
		now := q.m.now()
		e.Status = StatusFailed
		e.CompletedAt = &now
		e.Error = errMsg
		e.RetryCount++
	}
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, entryID string) (*QueueEntry, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	e, ok := q.m.entries[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (q *MemoryQueue) List(_ context.Context, filter QueueFilter) ([]*QueueEntry, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	var out []*QueueEntry
	for _, e := range q.m.entries {
		if filter.SubmissionID != "" && e.SubmissionID != filter.SubmissionID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := clampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Delete(_ context.Context, entryID string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	if _, ok := q.m.entries[entryID]; !ok {
		return ErrNotFound
	}
	delete(q.m.entries, entryID)
	return nil
}

func (q *MemoryQueue) DeleteInFlight(_ context.Context, submissionID string, taskTypes []string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	types := make(map[string]bool, len(taskTypes))
	for _, t := range taskTypes {
		types[t] = true
	}
	for id, e := range q.m.entries {
		if e.SubmissionID != submissionID {
			continue
		}
		if e.Status != StatusPending && e.Status != StatusProcessing {
			continue
		}
		if len(types) > 0 && !types[e.TaskType] {
			continue
		}
		delete(q.m.entries, id)
	}
	return nil
}

func (q *MemoryQueue) DeleteBySubmission(_ context.Context, submissionID string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	for id, e := range q.m.entries {
		if e.SubmissionID == submissionID {
			delete(q.m.entries, id)
		}
	}
	return nil
}

// MemoryCache implements CacheStore in memory.
type MemoryCache struct {
	m *Memory
}

var _ CacheStore = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, promptHash string) (string, bool, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	entry, ok := c.m.cache[promptHash]
	if !ok {
		return "", false, nil
	}
	return entry.Response, true, nil
}

func (c *MemoryCache) Put(_ context.Context, promptHash, prompt, response string) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if _, ok := c.m.cache[promptHash]; ok {
		// first insert wins, mirroring the unique-index behavior
		return nil
	}
	c.m.cache[promptHash] = CacheEntry{
		PromptHash: promptHash,
		Prompt:     prompt,
		Response:   response,
		CreatedAt:  time.Now().UTC(),
	}
	return nil
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return len(c.m.cache)
}
