// Package store defines the persistent model for submissions, the task
// queue, and the prompt cache, with MongoDB and in-memory implementations.
package store

import (
	"time"

	"github.com/peruse-ai/peruse/pkg/splitter"
)

// Task and queue entry statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TaskState tracks one task's lifecycle on a submission.
type TaskState struct {
	Status      string     `bson:"status" json:"status"`
	StartedAt   *time.Time `bson:"started_at" json:"started_at"`
	CompletedAt *time.Time `bson:"completed_at" json:"completed_at"`
	Error       *string    `bson:"error" json:"error"`
}

// Topic is a labeled set of sentence ranges produced by the splitting
// pipeline.
type Topic struct {
	Label  []string                 `bson:"label" json:"label"`
	Ranges []splitter.SentenceRange `bson:"ranges" json:"ranges"`
}

// Subtopic is one sub-chapter of a topic, referencing sentences by 1-based
// position within the parent topic's sentence block.
type Subtopic struct {
	Name        string `bson:"name" json:"name"`
	Sentences   []int  `bson:"sentences" json:"sentences"`
	ParentTopic string `bson:"parent_topic" json:"parent_topic"`
}

// SummaryMapping ties one summary sentence back to its source group.
type SummaryMapping struct {
	SummaryIndex    int    `bson:"summary_index" json:"summary_index"`
	SummarySentence string `bson:"summary_sentence" json:"summary_sentence"`
	SourceSentences []int  `bson:"source_sentences" json:"source_sentences"`
}

// MindmapTree is the nested per-topic mind-map structure.
type MindmapTree struct {
	Name       string                  `bson:"name" json:"name"`
	Importance int                     `bson:"importance" json:"importance"`
	Type       string                  `bson:"type" json:"type"`
	Children   map[string]*MindmapTree `bson:"children" json:"children"`
}

// MindmapNode is the flat-list projection of a mind-map node.
type MindmapNode struct {
	Name        string `bson:"name" json:"name"`
	Path        string `bson:"path" json:"path"`
	Importance  int    `bson:"importance" json:"importance"`
	Type        string `bson:"type" json:"type"`
	Topic       string `bson:"topic" json:"topic"`
	HasChildren bool   `bson:"has_children" json:"has_children"`
}

// MindmapStats carries importance and type histograms over all nodes.
type MindmapStats struct {
	ImportanceHistogram map[string]int `bson:"importance_histogram" json:"importance_histogram"`
	TypeHistogram       map[string]int `bson:"type_histogram" json:"type_histogram"`
}

// TopicRelationship is a typed edge between two topics.
type TopicRelationship struct {
	Source       string `bson:"source" json:"source"`
	Relationship string `bson:"relationship" json:"relationship"`
	Target       string `bson:"target" json:"target"`
	Description  string `bson:"description" json:"description"`
}

// Inside is one passage classified as insightful or not.
type Inside struct {
	Text           string `bson:"text" json:"text"`
	IsInside       bool   `bson:"is_inside" json:"is_inside"`
	ParagraphIndex int    `bson:"paragraph_index" json:"paragraph_index"`
}

// PrefixTreeNode is a node of the compressed vocabulary trie. Terminal
// nodes carry a count and the sorted 1-based sentence numbers the word
// occurs in.
type PrefixTreeNode struct {
	Children  map[string]*PrefixTreeNode `bson:"children,omitempty" json:"children,omitempty"`
	Count     int                        `bson:"count,omitempty" json:"count,omitempty"`
	Sentences []int                      `bson:"sentences,omitempty" json:"sentences,omitempty"`
}

// Results is the accumulated artifact bag of a submission. Every field is
// owned by exactly one task and only written by it.
type Results struct {
	Sentences          []splitter.Sentence     `bson:"sentences" json:"sentences"`
	Topics             []Topic                 `bson:"topics" json:"topics"`
	Subtopics          []Subtopic              `bson:"subtopics" json:"subtopics"`
	Summary            []string                `bson:"summary" json:"summary"`
	SummaryMappings    []SummaryMapping        `bson:"summary_mappings" json:"summary_mappings"`
	TopicSummaries     map[string]string       `bson:"topic_summaries" json:"topic_summaries"`
	TopicMindmaps      map[string]*MindmapTree `bson:"topic_mindmaps" json:"topic_mindmaps"`
	MindmapNodes       []MindmapNode           `bson:"mindmap_nodes" json:"mindmap_nodes"`
	MindmapStats       *MindmapStats           `bson:"mindmap_stats" json:"mindmap_stats"`
	TopicRelationships []TopicRelationship     `bson:"topic_relationships" json:"topic_relationships"`
	Insides            []Inside                `bson:"insides" json:"insides"`
	PrefixTree         *PrefixTreeNode         `bson:"prefix_tree" json:"prefix_tree"`
}

// ResultsPatch is a deep-merge partial update of Results: only non-nil
// fields are written.
type ResultsPatch struct {
	Sentences          *[]splitter.Sentence
	Topics             *[]Topic
	Subtopics          *[]Subtopic
	Summary            *[]string
	SummaryMappings    *[]SummaryMapping
	TopicSummaries     *map[string]string
	TopicMindmaps      *map[string]*MindmapTree
	MindmapNodes       *[]MindmapNode
	MindmapStats       **MindmapStats
	TopicRelationships *[]TopicRelationship
	Insides            *[]Inside
	PrefixTree         **PrefixTreeNode
}

// fields returns the patch as result-field-name → value pairs, nil fields
// skipped.
func (p ResultsPatch) fields() map[string]any {
	out := make(map[string]any)
	if p.Sentences != nil {
		out["sentences"] = *p.Sentences
	}
	if p.Topics != nil {
		out["topics"] = *p.Topics
	}
	if p.Subtopics != nil {
		out["subtopics"] = *p.Subtopics
	}
	if p.Summary != nil {
		out["summary"] = *p.Summary
	}
	if p.SummaryMappings != nil {
		out["summary_mappings"] = *p.SummaryMappings
	}
	if p.TopicSummaries != nil {
		out["topic_summaries"] = *p.TopicSummaries
	}
	if p.TopicMindmaps != nil {
		out["topic_mindmaps"] = *p.TopicMindmaps
	}
	if p.MindmapNodes != nil {
		out["mindmap_nodes"] = *p.MindmapNodes
	}
	if p.MindmapStats != nil {
		out["mindmap_stats"] = *p.MindmapStats
	}
	if p.TopicRelationships != nil {
		out["topic_relationships"] = *p.TopicRelationships
	}
	if p.Insides != nil {
		out["insides"] = *p.Insides
	}
	if p.PrefixTree != nil {
		out["prefix_tree"] = *p.PrefixTree
	}
	return out
}

// Submission is the durable state of one submitted article.
type Submission struct {
	ID          string               `bson:"submission_id" json:"submission_id"`
	HTMLContent string               `bson:"html_content" json:"html_content"`
	TextContent string               `bson:"text_content" json:"text_content"`
	SourceURL   string               `bson:"source_url" json:"source_url"`
	CreatedAt   time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at" json:"updated_at"`
	Tasks       map[string]TaskState `bson:"tasks" json:"tasks"`
	Results     Results              `bson:"results" json:"results"`
}

// OverallStatus reduces the per-task statuses to one value. The check
// order is failed, then processing, then all-completed, then pending.
func (s *Submission) OverallStatus() string {
	anyProcessing := false
	allCompleted := len(s.Tasks) > 0
	for _, t := range s.Tasks {
		switch t.Status {
		case StatusFailed:
			return StatusFailed
		case StatusProcessing:
			anyProcessing = true
		}
		if t.Status != StatusCompleted {
			allCompleted = false
		}
	}
	if anyProcessing {
		return StatusProcessing
	}
	if allCompleted {
		return StatusCompleted
	}
	return StatusPending
}

// QueueEntry is one persistent unit of work.
type QueueEntry struct {
	ID           string     `bson:"_id" json:"id"`
	SubmissionID string     `bson:"submission_id" json:"submission_id"`
	TaskType     string     `bson:"task_type" json:"task_type"`
	Priority     int        `bson:"priority" json:"priority"`
	Status       string     `bson:"status" json:"status"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	StartedAt    *time.Time `bson:"started_at" json:"started_at"`
	CompletedAt  *time.Time `bson:"completed_at" json:"completed_at"`
	WorkerID     string     `bson:"worker_id" json:"worker_id"`
	RetryCount   int        `bson:"retry_count" json:"retry_count"`
	Error        string     `bson:"error" json:"error"`
}

// CacheEntry is one memoized prompt/response pair.
type CacheEntry struct {
	PromptHash string    `bson:"prompt_hash" json:"prompt_hash"`
	Prompt     string    `bson:"prompt" json:"prompt"`
	Response   string    `bson:"response" json:"response"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
