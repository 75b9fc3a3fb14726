package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/orbit/internal/graph"
)

// scriptedProvider replays canned replies and records every prompt.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]Message
	opts    []GenerateOptions
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) Generate(ctx context.Context, msgs []Message, opts GenerateOptions) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, msgs)
	p.opts = append(p.opts, opts)
	if p.err != nil {
		return nil, p.err
	}
	reply := `{"layer1":[],"layer2":[],"layer3":[]}`
	if len(p.replies) > 0 {
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	return &Message{Role: RoleAssistant, Content: reply}, nil
}

// truncatingProvider cuts its first reply short, then answers in full.
type truncatingProvider struct {
	budgets []int
}

func (p *truncatingProvider) Name() string { return "truncating" }
func (p *truncatingProvider) Close() error { return nil }

func (p *truncatingProvider) Generate(ctx context.Context, msgs []Message, opts GenerateOptions) (*Message, error) {
	p.budgets = append(p.budgets, opts.MaxTokens)
	if len(p.budgets) == 1 {
		return &Message{Role: RoleAssistant, Content: `{"layer1":["To`, StopReason: StopLength}, nil
	}
	return &Message{Role: RoleAssistant, Content: `{"layer1":["Topic"],"layer2":[],"layer3":[]}`}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestChunkText(t *testing.T) {
	t.Run("short text is one trimmed chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, ChunkText("  hello \n", 100))
	})

	t.Run("splits on line boundaries", func(t *testing.T) {
		text := "aaaa\nbbbb\r\ncccc\ndddd"

		chunks := ChunkText(text, 10)

		assert.Equal(t, []string{"aaaa\nbbbb", "cccc\ndddd"}, chunks)
	})

	t.Run("oversized line stands alone", func(t *testing.T) {
		long := strings.Repeat("x", 30)

		chunks := ChunkText("ab\n"+long+"\ncd", 10)

		assert.Equal(t, []string{"ab", long, "cd"}, chunks)
	})

	t.Run("no chunk exceeds the limit when lines fit", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 500; i++ {
			b.WriteString("line of moderate length\n")
		}

		for _, c := range ChunkText(b.String(), 1000) {
			assert.LessOrEqual(t, len(c), 1000)
		}
	})
}

func TestUniq(t *testing.T) {
	got := Uniq([]string{" Go ", "Rust", "", "go", "  ", "RUST", "Zig"})

	assert.Equal(t, []string{"go", "RUST", "Zig"}, got)
}

func TestParseHierarchy(t *testing.T) {
	t.Run("coerces layers", func(t *testing.T) {
		h, err := ParseHierarchy(`{"layer1":["A","a",3],"layer2":"oops","layer3":[null,"x"]}`)

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "3"}, h.Layer1)
		assert.Empty(t, h.Layer2)
		assert.NotNil(t, h.Layer2)
		assert.Equal(t, []string{"x"}, h.Layer3)
	})

	t.Run("non-json quotes the reply", func(t *testing.T) {
		_, err := ParseHierarchy("Sure! Here is " + strings.Repeat("z", 500))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-JSON response: Sure! Here is")
		assert.Less(t, len(err.Error()), 450)
	})
}

func TestAnalyzerBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text skips the model", func(t *testing.T) {
		p := &scriptedProvider{}

		h, err := NewAnalyzer(p).Build(ctx, "  \n ")

		require.NoError(t, err)
		assert.Equal(t, EmptyHierarchy(), h)
		assert.Zero(t, p.callCount())
	})

	t.Run("single chunk uses one call", func(t *testing.T) {
		p := &scriptedProvider{replies: []string{`{"layer1":["Topic"],"layer2":["Sub"],"layer3":[]}`}}

		h, err := NewAnalyzer(p).Build(ctx, "some notes")

		require.NoError(t, err)
		assert.Equal(t, []string{"Topic"}, h.Layer1)
		require.Equal(t, 1, p.callCount())
		assert.Equal(t, RoleSystem, p.calls[0][0].Role)
		assert.Contains(t, p.calls[0][1].Content, "some notes")
		assert.Equal(t, 0.2, p.opts[0].Temperature)
		assert.Equal(t, 2000, p.opts[0].MaxTokens)
		assert.True(t, p.opts[0].JSON)
	})

	t.Run("multiple chunks are merged", func(t *testing.T) {
		p := &scriptedProvider{replies: []string{
			`{"layer1":["A"],"layer2":[],"layer3":[]}`,
			`{"layer1":["B"],"layer2":[],"layer3":[]}`,
			`{"layer1":["A","B"],"layer2":["merged"],"layer3":[]}`,
		}}
		a := NewAnalyzer(p)
		a.chunkSize = 8

		h, err := a.Build(ctx, "first\nsecond")

		require.NoError(t, err)
		assert.Equal(t, []string{"merged"}, h.Layer2)
		require.Equal(t, 3, p.callCount())
		merge := p.calls[2][1].Content
		assert.Contains(t, merge, `{"layer1":["A"],"layer2":[],"layer3":[]}`+"\n"+`{"layer1":["B"],"layer2":[],"layer3":[]}`)
	})

	t.Run("truncated reply is retried with a larger budget", func(t *testing.T) {
		p := &truncatingProvider{}

		h, err := NewAnalyzer(p).Build(ctx, "long notes")

		require.NoError(t, err)
		assert.Equal(t, []string{"Topic"}, h.Layer1)
		assert.Equal(t, []int{2000, 4000}, p.budgets)
	})

	t.Run("unparseable reply without truncation is not retried", func(t *testing.T) {
		p := &scriptedProvider{replies: []string{"sorry, no"}}

		_, err := NewAnalyzer(p).Build(ctx, "notes")

		assert.ErrorContains(t, err, "non-JSON")
		assert.Equal(t, 1, p.callCount())
	})

	t.Run("provider errors propagate", func(t *testing.T) {
		p := &scriptedProvider{err: errors.New("throttled")}

		_, err := NewAnalyzer(p).Build(ctx, "text")

		assert.ErrorContains(t, err, "throttled")
	})
}

func TestHierarchyGraph(t *testing.T) {
	h := Hierarchy{
		Layer1: []string{"A", "B"},
		Layer2: []string{"a1"},
		Layer3: []string{"x"},
	}

	g := HierarchyGraph("notes.md", h)

	require.Len(t, g.Nodes, 5)
	root := g.Nodes[0]
	assert.Equal(t, "notes.md", root.Label)
	assert.Equal(t, 4, root.Degree)
	assert.Equal(t, 1, g.Nodes[1].Level)
	assert.Equal(t, 2, g.Nodes[3].Level)
	assert.Equal(t, 3, g.Nodes[4].Level)

	labels := map[string]int{}
	for _, l := range g.Links {
		assert.Equal(t, root.ID, l.Source)
		labels[l.Label]++
	}
	assert.Equal(t, map[string]int{graph.LabelTopic: 2, graph.LabelSubtopic: 1, graph.LabelDetail: 1}, labels)
}
