package tasks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/peruse-ai/peruse/pkg/store"
)

var mindmapNodeTypes = map[string]bool{
	"concept":      true,
	"entity":       true,
	"action":       true,
	"example":      true,
	"attribute":    true,
	"relationship": true,
}

var topicRelationshipTypes = map[string]bool{
	"extends":        true,
	"example_of":     true,
	"contrasts_with": true,
	"supports":       true,
	"prerequisite":   true,
	"related_to":     true,
}

const mindmapPromptTemplate = `You are given a text where every word is followed by a numbered marker |#N#|.
Your task is to extract a mind map structure from this text by identifying the word ranges that represent topics and subtopics.

CRITICAL INSTRUCTIONS FOR BREVITY AND MEANINGFUL EXTRACTION:
- EXTRACT ONLY THE MOST MEANINGFUL KEY TERMS: Focus on the core concepts that define each topic.
- PRIORITIZE BREVITY ABOVE ALL ELSE: Node titles must be as short as possible while retaining meaning.
- IDEAL LENGTH: 1-3 words maximum. Never exceed 4 words unless absolutely necessary for clarity.
- FOCUS ON ESSENTIAL WORDS: Extract only nouns, verbs, and critical modifiers. Eliminate all filler words.
- AVOID REDUNDANCY: Don't repeat words across hierarchy levels. Each level should add new information.
- SELECT THE MOST SPECIFIC TERMS: Choose the most precise and informative words from the text.
- PREFER SINGLE WORD NOUNS: If a concept can be represented by a single noun, use that.
- ELIMINATE CONNECTING WORDS: Remove articles (the, a, an), conjunctions (and, but), prepositions (in, on), etc.
- AVOID ADJECTIVES UNLESS CRITICAL: Only include adjectives if they fundamentally change the meaning.

Return a hierarchical list of word ranges, one line per branch, in the format:
Topic_Range, Subtopic_Range | importance | type

Format for a range is: start-end
Where 'start' is the marker number of the first word and 'end' is the marker number of the last word (inclusive).
'importance' is an integer from 1 (minor detail) to 5 (central idea).
'type' is one of: concept, entity, action, example, attribute, relationship.

Example:
Text: The |#0#| quick |#1#| brown |#2#| fox |#3#| jumps |#4#| over |#5#| the |#6#| lazy |#7#| dog |#8#|
Mind map:
3-3, 8-8 | 4 | entity

<content>
{marked_text}
</content>

Mind map:`

const relationshipsPromptTemplate = `You are given a list of topics extracted from one article.
Identify meaningful relationships between pairs of topics.

Output format (one relationship per line):
source topic | relationship | target topic | short description

'relationship' MUST be one of: extends, example_of, contrasts_with, supports, prerequisite, related_to.
Use the topic names exactly as given. Only output relationships you are confident about.

Topics:
{topics}

Relationships:`

// MindmapHandler builds a per-topic mind map from word-marked sentences,
// plus a flat node list, importance/type histograms, and inter-topic
// relationship edges.
type MindmapHandler struct {
	env Env
}

func NewMindmapHandler(env Env) *MindmapHandler {
	return &MindmapHandler{env: env}
}

func (h *MindmapHandler) Name() string { return TaskMindmap }

func (h *MindmapHandler) Run(ctx context.Context, sub *store.Submission) error {
	texts := sentenceTexts(sub)
	topics := sub.Results.Topics

	if len(texts) == 0 || len(topics) == 0 {
		return fmt.Errorf("split/topic generation must be completed first")
	}

	topicMindmaps := map[string]*store.MindmapTree{}
	var topicNames []string

	for _, topic := range topics {
		name := topicName(topic)
		if name == "" || name == noTopicName {
			continue
		}
		topicTexts, _ := sentencesByIndices(topicSentenceIndices(topic), texts)
		if len(topicTexts) == 0 {
			continue
		}
		tree, err := h.generateForTopic(ctx, name, topicTexts)
		if err != nil {
			return err
		}
		topicMindmaps[name] = tree
		topicNames = append(topicNames, name)
	}

	nodes := flattenMindmaps(topicMindmaps)
	stats := mindmapHistograms(nodes)

	relationships := []store.TopicRelationship{}
	if len(topicNames) >= 2 {
		var err error
		relationships, err = h.generateRelationships(ctx, topicNames)
		if err != nil {
			return err
		}
	}

	err := h.env.Submissions.UpdateResults(ctx, sub.ID, store.ResultsPatch{
		TopicMindmaps:      &topicMindmaps,
		MindmapNodes:       &nodes,
		MindmapStats:       &stats,
		TopicRelationships: &relationships,
	})
	if err != nil {
		return err
	}

	h.env.logger().Info("mindmap generation completed",
		"submission_id", sub.ID,
		"topic_mindmaps", len(topicMindmaps),
		"nodes", len(nodes),
		"relationships", len(relationships))
	return nil
}

// markWords appends a 0-based |#i#| marker after every word.
func markWords(text string) (string, []string) {
	words := strings.Fields(text)
	parts := make([]string, 0, len(words)*2)
	for i, word := range words {
		parts = append(parts, word, fmt.Sprintf("|#%d#|", i))
	}
	return strings.Join(parts, " "), words
}

func (h *MindmapHandler) generateForTopic(ctx context.Context, name string, texts []string) (*store.MindmapTree, error) {
	markedText, words := markWords(strings.Join(texts, " "))

	prompt := strings.Replace(mindmapPromptTemplate, "{marked_text}", markedText, 1)
	response, err := h.env.LLM.Call(ctx, prompt, splitTemperature)
	if err != nil {
		return nil, fmt.Errorf("mindmap for %q: %w", name, err)
	}

	root := &store.MindmapTree{
		Name:     name,
		Type:     "concept",
		Children: map[string]*store.MindmapTree{},
	}
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		hierarchy, importance, nodeType, ok := parseMindmapLine(line, words, name)
		if !ok {
			continue
		}
		insertHierarchy(root, hierarchy, importance, nodeType)
	}
	return root, nil
}

// parseMindmapLine parses "a-b, c-d | importance | type" against the
// word list. Lines with any out-of-bounds or malformed range are rejected
// whole; segments repeating the parent label are dropped.
func parseMindmapLine(line string, words []string, parentName string) ([]string, int, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, 0, "", false
	}

	fields := strings.Split(line, "|")
	rangesPart := strings.TrimSpace(fields[0])

	importance := 3
	if len(fields) > 1 {
		if n, err := strconv.Atoi(strings.TrimSpace(fields[1])); err == nil {
			importance = clampImportance(n)
		}
	}
	nodeType := "concept"
	if len(fields) > 2 {
		if t := strings.ToLower(strings.TrimSpace(fields[2])); mindmapNodeTypes[t] {
			nodeType = t
		}
	}

	hierarchy := []string{parentName}
	for _, part := range strings.Split(rangesPart, ",") {
		start, end, ok := parseWordRange(part)
		if !ok || start > end || end >= len(words) {
			return nil, 0, "", false
		}
		text := strings.Join(words[start:end+1], " ")
		if strings.EqualFold(text, hierarchy[len(hierarchy)-1]) {
			continue
		}
		hierarchy = append(hierarchy, text)
	}
	if len(hierarchy) < 2 {
		return nil, 0, "", false
	}
	return hierarchy, importance, nodeType, true
}

// parseWordRange reads "start-end", tolerating stray non-digit characters
// around the numbers.
func parseWordRange(part string) (int, int, bool) {
	var clean strings.Builder
	for _, r := range part {
		if (r >= '0' && r <= '9') || r == '-' {
			clean.WriteRune(r)
		}
	}
	a, b, ok := strings.Cut(clean.String(), "-")
	if !ok || a == "" || b == "" {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(a)
	end, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || start < 0 {
		return 0, 0, false
	}
	return start, end, true
}

func clampImportance(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// insertHierarchy threads one branch into the tree, creating missing
// nodes. The line's importance and type stick to nodes it creates;
// existing nodes keep theirs.
func insertHierarchy(root *store.MindmapTree, hierarchy []string, importance int, nodeType string) {
	node := root
	for _, name := range hierarchy[1:] {
		if node.Children == nil {
			node.Children = map[string]*store.MindmapTree{}
		}
		child, ok := node.Children[name]
		if !ok {
			child = &store.MindmapTree{
				Name:       name,
				Importance: importance,
				Type:       nodeType,
				Children:   map[string]*store.MindmapTree{},
			}
			node.Children[name] = child
		}
		node = child
	}
}

// flattenMindmaps projects every tree node (topic roots excluded) into a
// flat list sorted by topic then path.
func flattenMindmaps(mindmaps map[string]*store.MindmapTree) []store.MindmapNode {
	nodes := []store.MindmapNode{}
	topicNames := make([]string, 0, len(mindmaps))
	for name := range mindmaps {
		topicNames = append(topicNames, name)
	}
	sort.Strings(topicNames)

	var walk func(topic, path string, node *store.MindmapTree)
	walk = func(topic, path string, node *store.MindmapTree) {
		childNames := make([]string, 0, len(node.Children))
		for name := range node.Children {
			childNames = append(childNames, name)
		}
		sort.Strings(childNames)
		for _, name := range childNames {
			child := node.Children[name]
			childPath := path + " > " + name
			nodes = append(nodes, store.MindmapNode{
				Name:        name,
				Path:        childPath,
				Importance:  child.Importance,
				Type:        child.Type,
				Topic:       topic,
				HasChildren: len(child.Children) > 0,
			})
			walk(topic, childPath, child)
		}
	}
	for _, topic := range topicNames {
		walk(topic, topic, mindmaps[topic])
	}
	return nodes
}

func mindmapHistograms(nodes []store.MindmapNode) *store.MindmapStats {
	stats := &store.MindmapStats{
		ImportanceHistogram: map[string]int{},
		TypeHistogram:       map[string]int{},
	}
	for _, node := range nodes {
		stats.ImportanceHistogram[strconv.Itoa(node.Importance)]++
		stats.TypeHistogram[node.Type]++
	}
	return stats
}

func (h *MindmapHandler) generateRelationships(ctx context.Context, topicNames []string) ([]store.TopicRelationship, error) {
	prompt := strings.Replace(relationshipsPromptTemplate, "{topics}", strings.Join(topicNames, "\n"), 1)
	response, err := h.env.LLM.Call(ctx, prompt, splitTemperature)
	if err != nil {
		return nil, fmt.Errorf("topic relationships: %w", err)
	}

	known := make(map[string]bool, len(topicNames))
	for _, name := range topicNames {
		known[name] = true
	}

	relationships := []store.TopicRelationship{}
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		fields := strings.Split(line, "|")
		if len(fields) < 3 {
			continue
		}
		source := strings.TrimSpace(fields[0])
		relType := strings.ToLower(strings.TrimSpace(fields[1]))
		target := strings.TrimSpace(fields[2])
		description := ""
		if len(fields) > 3 {
			description = strings.TrimSpace(fields[3])
		}
		if !known[source] || !known[target] || source == target || !topicRelationshipTypes[relType] {
			continue
		}
		relationships = append(relationships, store.TopicRelationship{
			Source:       source,
			Relationship: relType,
			Target:       target,
			Description:  description,
		})
	}
	return relationships, nil
}
