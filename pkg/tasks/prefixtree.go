package tasks

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/peruse-ai/peruse/pkg/store"
)

var wordTokenRe = regexp.MustCompile(`[a-zA-Z']+`)

// PrefixTreeHandler builds a compressed character trie of the document's
// vocabulary with per-word counts and 1-based sentence membership. No LLM
// involved.
type PrefixTreeHandler struct {
	env Env
}

func NewPrefixTreeHandler(env Env) *PrefixTreeHandler {
	return &PrefixTreeHandler{env: env}
}

func (h *PrefixTreeHandler) Name() string { return TaskPrefixTree }

func (h *PrefixTreeHandler) Run(ctx context.Context, sub *store.Submission) error {
	tree := BuildCompressedTrie(sentenceTexts(sub))

	err := h.env.Submissions.UpdateResults(ctx, sub.ID, store.ResultsPatch{PrefixTree: &tree})
	if err != nil {
		return err
	}

	h.env.logger().Info("prefix tree completed",
		"submission_id", sub.ID,
		"roots", len(tree.Children))
	return nil
}

type wordStats struct {
	count     int
	sentences map[int]bool
}

// BuildCompressedTrie tokenizes the sentences into lowercased alphabetic
// words (apostrophes stripped), builds a character trie, and compresses
// chains of single-child non-terminal nodes into one edge.
func BuildCompressedTrie(sentences []string) *store.PrefixTreeNode {
	stats := make(map[string]*wordStats)
	for i, sentence := range sentences {
		for _, token := range wordTokenRe.FindAllString(strings.ToLower(sentence), -1) {
			word := strings.Trim(token, "'")
			if word == "" {
				continue
			}
			s, ok := stats[word]
			if !ok {
				s = &wordStats{sentences: make(map[int]bool)}
				stats[word] = s
			}
			s.count++
			s.sentences[i+1] = true
		}
	}

	root := &store.PrefixTreeNode{Children: map[string]*store.PrefixTreeNode{}}
	for word, s := range stats {
		node := root
		for _, ch := range word {
			key := string(ch)
			child, ok := node.Children[key]
			if !ok {
				child = &store.PrefixTreeNode{Children: map[string]*store.PrefixTreeNode{}}
				node.Children[key] = child
			}
			node = child
		}
		node.Count = s.count
		node.Sentences = sortedKeys(s.sentences)
	}

	compressNode(root)
	return root
}

// compressNode merges each child chain of single-child non-terminal nodes
// by concatenating the edge labels, bottom-up.
func compressNode(node *store.PrefixTreeNode) {
	for _, child := range node.Children {
		compressNode(child)
	}
	merged := make(map[string]*store.PrefixTreeNode, len(node.Children))
	for label, child := range node.Children {
		for len(child.Children) == 1 && child.Count == 0 {
			for childLabel, grandchild := range child.Children {
				label += childLabel
				child = grandchild
			}
		}
		merged[label] = child
	}
	node.Children = merged
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
