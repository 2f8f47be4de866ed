// Package tasks contains the task registry, the derived-artifact handlers,
// the worker loop, and the submission-level orchestration service.
package tasks

import (
	"fmt"
	"sort"
)

// Canonical task names.
const (
	TaskSplitTopicGeneration = "split_topic_generation"
	TaskSubtopicsGeneration  = "subtopics_generation"
	TaskSummarization        = "summarization"
	TaskMindmap              = "mindmap"
	TaskInsides              = "insides"
	TaskPrefixTree           = "prefix_tree"
)

// TokenAll expands to the full task set in refresh requests.
const TokenAll = "all"

// priorities orders queue claims: lower wins unconditionally across
// classes.
var priorities = map[string]int{
	TaskSplitTopicGeneration: 1,
	TaskSubtopicsGeneration:  2,
	TaskSummarization:        3,
	TaskMindmap:              3,
	TaskInsides:              3,
	TaskPrefixTree:           3,
}

// dependencies maps a task to its prerequisites. Every derived task waits
// on the split alone.
var dependencies = map[string][]string{
	TaskSplitTopicGeneration: nil,
	TaskSubtopicsGeneration:  {TaskSplitTopicGeneration},
	TaskSummarization:        {TaskSplitTopicGeneration},
	TaskMindmap:              {TaskSplitTopicGeneration},
	TaskInsides:              {TaskSplitTopicGeneration},
	TaskPrefixTree:           {TaskSplitTopicGeneration},
}

// resultFields maps a task to the result keys it owns. clear_results uses
// this to wipe exactly the artifacts a re-run will rewrite.
var resultFields = map[string][]string{
	TaskSplitTopicGeneration: {"sentences", "topics"},
	TaskSubtopicsGeneration:  {"subtopics"},
	TaskSummarization:        {"summary", "summary_mappings", "topic_summaries"},
	TaskMindmap:              {"topic_mindmaps", "mindmap_nodes", "mindmap_stats", "topic_relationships"},
	TaskInsides:              {"insides"},
	TaskPrefixTree:           {"prefix_tree"},
}

// AllTasks returns every registered task name in priority order.
func AllTasks() []string {
	names := make([]string, 0, len(priorities))
	for name := range priorities {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if priorities[names[i]] != priorities[names[j]] {
			return priorities[names[i]] < priorities[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// IsKnown reports whether name is a registered task.
func IsKnown(name string) bool {
	_, ok := priorities[name]
	return ok
}

// Priority returns the queue priority class of a task.
func Priority(name string) int {
	if p, ok := priorities[name]; ok {
		return p
	}
	return 99
}

// Dependencies returns the prerequisite tasks of name.
func Dependencies(name string) []string {
	return dependencies[name]
}

// ResultFields returns the result keys owned by the given tasks,
// deduplicated, in registry order.
func ResultFields(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range AllTasks() {
		requested := false
		for _, n := range names {
			if n == name {
				requested = true
				break
			}
		}
		if !requested {
			continue
		}
		for _, field := range resultFields[name] {
			if !seen[field] {
				seen[field] = true
				out = append(out, field)
			}
		}
	}
	return out
}

// ExpandRecalculation expands a refresh request into its transitive
// downstream closure: re-running a task forces a re-run of everything
// that depends on it. The token "all" (or an empty request) selects the
// full set. Unknown names are an error.
func ExpandRecalculation(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return AllTasks(), nil
	}
	for _, name := range requested {
		if name == TokenAll {
			return AllTasks(), nil
		}
		if !IsKnown(name) {
			return nil, fmt.Errorf("unknown task %q", name)
		}
	}

	// reverse edges: dependency -> dependents
	dependents := make(map[string][]string)
	for task, deps := range dependencies {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], task)
		}
	}

	selected := make(map[string]bool)
	queue := append([]string(nil), requested...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if selected[name] {
			continue
		}
		selected[name] = true
		queue = append(queue, dependents[name]...)
	}

	var out []string
	for _, name := range AllTasks() {
		if selected[name] {
			out = append(out, name)
		}
	}
	return out, nil
}
