package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vyuha/orbit/internal/graph"
)

// DefaultChunkSize is the largest chunk sent to the model in one call.
const DefaultChunkSize = 10000

// Hierarchy is a three-layer topic outline. The layers are flat lists; an
// item carries no pointer to its parent in the layer above.
type Hierarchy struct {
	Layer1 []string `json:"layer1"`
	Layer2 []string `json:"layer2"`
	Layer3 []string `json:"layer3"`
}

// EmptyHierarchy returns a hierarchy whose layers encode as [] rather than null.
func EmptyHierarchy() Hierarchy {
	return Hierarchy{Layer1: []string{}, Layer2: []string{}, Layer3: []string{}}
}

// Len reports the total number of items across layers.
func (h Hierarchy) Len() int {
	return len(h.Layer1) + len(h.Layer2) + len(h.Layer3)
}

// ---------------------------------------------------------------------------
// Text helpers
// ---------------------------------------------------------------------------

var lineBreak = regexp.MustCompile(`\r?\n`)

// ChunkText splits text into pieces of at most maxChars bytes, breaking on
// line boundaries. A single line longer than maxChars becomes its own chunk.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	t := strings.TrimSpace(text)
	if len(t) <= maxChars {
		return []string{t}
	}

	var (
		out []string
		cur strings.Builder
	)
	for _, line := range lineBreak.Split(t, -1) {
		withNL := line + "\n"
		if cur.Len()+len(withNL) > maxChars && cur.Len() > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(withNL)
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

// Uniq trims items and removes case-insensitive duplicates. Each surviving
// item sits where its first occurrence was and is spelled like its last.
// Blank items are dropped.
func Uniq(items []string) []string {
	index := make(map[string]int, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := strings.TrimSpace(item)
		key := strings.ToLower(v)
		if i, ok := index[key]; ok {
			out[i] = v
			continue
		}
		index[key] = len(out)
		out = append(out, v)
	}

	kept := out[:0]
	for _, v := range out {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return kept
}

// ParseHierarchy decodes a model response. Missing or non-array layers
// become empty; scalar items are stringified.
func ParseHierarchy(text string) (Hierarchy, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Hierarchy{}, fmt.Errorf("ai: non-JSON response: %s...", head(text, 400))
	}
	return Hierarchy{
		Layer1: Uniq(stringItems(raw["layer1"])),
		Layer2: Uniq(stringItems(raw["layer2"])),
		Layer3: Uniq(stringItems(raw["layer3"])),
	}, nil
}

func stringItems(raw json.RawMessage) []string {
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ---------------------------------------------------------------------------
// Analyzer
// ---------------------------------------------------------------------------

// Analyzer turns free text into a Hierarchy with one model call per chunk
// and, when there is more than one chunk, a final merge call.
type Analyzer struct {
	provider  Provider
	chunkSize int
	opts      GenerateOptions
}

// NewAnalyzer creates an Analyzer backed by provider.
func NewAnalyzer(provider Provider) *Analyzer {
	opts := DefaultGenerateOptions()
	opts.MaxTokens = 2000
	opts.Temperature = 0.2
	opts.JSON = true
	return &Analyzer{
		provider:  provider,
		chunkSize: DefaultChunkSize,
		opts:      opts,
	}
}

// maxRetryTokens caps the budget of the single retry after a truncated reply.
const maxRetryTokens = 8000

// Build returns the hierarchy for text. Empty text yields an empty
// hierarchy without calling the model.
func (a *Analyzer) Build(ctx context.Context, text string) (Hierarchy, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return EmptyHierarchy(), nil
	}

	chunks := ChunkText(text, a.chunkSize)
	partials := make([]Hierarchy, 0, len(chunks))
	for i, chunk := range chunks {
		h, err := a.call(ctx, ChunkPrompt(chunk))
		if err != nil {
			return Hierarchy{}, fmt.Errorf("ai: chunk %d/%d: %w", i+1, len(chunks), err)
		}
		partials = append(partials, h)
	}
	if len(partials) == 1 {
		return partials[0], nil
	}

	slog.Debug("merging partial hierarchies", "partials", len(partials))
	h, err := a.call(ctx, MergePrompt(partials))
	if err != nil {
		return Hierarchy{}, fmt.Errorf("ai: merge partials: %w", err)
	}
	return h, nil
}

// call asks for one hierarchy. A reply cut off by the token limit is
// usually unparseable JSON, so it is retried once with twice the budget.
func (a *Analyzer) call(ctx context.Context, msgs []Message) (Hierarchy, error) {
	msg, err := a.provider.Generate(ctx, msgs, a.opts)
	if err != nil {
		return Hierarchy{}, err
	}
	h, err := ParseHierarchy(msg.Content)
	if err == nil || msg.StopReason != StopLength {
		return h, err
	}

	retry := a.opts
	retry.MaxTokens = min(2*a.opts.MaxTokens, maxRetryTokens)
	slog.Warn("hierarchy reply truncated, retrying", "max_tokens", retry.MaxTokens)
	msg, err = a.provider.Generate(ctx, msgs, retry)
	if err != nil {
		return Hierarchy{}, err
	}
	return ParseHierarchy(msg.Content)
}

// ---------------------------------------------------------------------------
// Graph projection
// ---------------------------------------------------------------------------

// HierarchyGraph projects h into a graph rooted at a node titled title.
// Every item links straight to the root since layers carry no parent
// pointers; the link label and node level record the layer.
func HierarchyGraph(title string, h Hierarchy) graph.Graph {
	root := graph.NewNode("", title)
	root.Color = graph.DistinctColor(0)
	g := graph.Graph{Nodes: []graph.Node{root}}

	layers := []struct {
		items []string
		label string
	}{
		{h.Layer1, graph.LabelTopic},
		{h.Layer2, graph.LabelSubtopic},
		{h.Layer3, graph.LabelDetail},
	}
	for depth, layer := range layers {
		for _, item := range layer.items {
			n := graph.NewNode("", item)
			n.Level = depth + 1
			n.Color = graph.DistinctColor(len(g.Nodes))
			g.Nodes = append(g.Nodes, n)
			g.Links = append(g.Links, graph.NewLink(root.ID, n.ID, layer.label))
		}
	}
	return graph.Normalize(g)
}
