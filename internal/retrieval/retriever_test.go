package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"codeloom/internal/codeblock"
	"codeloom/internal/conversation"
	"codeloom/internal/memory"
	"codeloom/internal/prompt"
	"codeloom/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	graph  *conversation.Graph
	blocks *codeblock.Store
	mem    *memory.RAMStore
	turns  []*conversation.Turn
}

// newFixture builds three turns: html+css, then javascript, then a
// targeted css update.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{blocks: codeblock.NewStore(nil), mem: memory.NewRAMStore(nil)}
	f.graph = conversation.NewGraph(f.blocks)

	inputs := []conversation.TurnInput{
		{Prompt: "build a login card", Response: "```html\n<div class=\"card\"></div>\n```\n```css\n.card { color: red; }\n```"},
		{Prompt: "add a submit handler", Response: "```js\nfunction submit() {}\n```"},
		{Prompt: "make the card blue", EditAction: "style", EditTarget: "css", Response: "```css\n.card { color: blue; }\n```"},
	}
	for _, in := range inputs {
		turn, err := f.graph.AddTurn(context.Background(), in)
		require.NoError(t, err)
		f.turns = append(f.turns, turn)
	}
	return f
}

func (f *fixture) retriever() *Retriever {
	return NewRetriever(f.graph, f.blocks, f.mem)
}

func TestRetrieve_DefaultsToActiveTip(t *testing.T) {
	f := newFixture(t)
	b, err := f.retriever().Retrieve(context.Background(), DefaultOptions(), "")
	require.NoError(t, err)

	require.Len(t, b.Turns, 3)
	assert.Equal(t, f.turns[2].ID, b.Turns[0].ID, "most recent first")
	assert.Equal(t, f.turns[0].ID, b.Turns[2].ID)
	assert.False(t, b.Degraded)
}

func TestRetrieve_TurnLimit(t *testing.T) {
	f := newFixture(t)
	opts := DefaultOptions()
	opts.TurnLimit = 2

	b, err := f.retriever().Retrieve(context.Background(), opts, f.turns[2].ID)
	require.NoError(t, err)
	require.Len(t, b.Turns, 2)
	assert.Equal(t, f.turns[2].ID, b.Turns[0].ID)
	assert.Equal(t, f.turns[1].ID, b.Turns[1].ID)
}

func TestRetrieve_CodeBlocksCurrentAndCapped(t *testing.T) {
	f := newFixture(t)

	b, err := f.retriever().Retrieve(context.Background(), DefaultOptions(), "")
	require.NoError(t, err)
	require.Len(t, b.CodeBlocks, 3)
	assert.Equal(t, []string{"css", "html", "javascript"}, []string{
		b.CodeBlocks[0].Language, b.CodeBlocks[1].Language, b.CodeBlocks[2].Language,
	})
	assert.Equal(t, ".card { color: blue; }", b.CodeBlocks[0].Content)

	opts := DefaultOptions()
	opts.CodeBlockLimit = 1
	b, err = f.retriever().Retrieve(context.Background(), opts, "")
	require.NoError(t, err)
	require.Len(t, b.CodeBlocks, 1)
	assert.Equal(t, "css", b.CodeBlocks[0].Language)
}

func TestRetrieve_OlderAnchorSeesCurrentVersion(t *testing.T) {
	f := newFixture(t)

	b, err := f.retriever().Retrieve(context.Background(), DefaultOptions(), f.turns[0].ID)
	require.NoError(t, err)
	require.Len(t, b.Turns, 1)
	require.Len(t, b.CodeBlocks, 2)
	assert.Equal(t, "css", b.CodeBlocks[0].Language)
	assert.Equal(t, ".card { color: blue; }", b.CodeBlocks[0].Content)
	assert.NotEqual(t, f.turns[0].CodeBlocks[0].VersionID, b.CodeBlocks[0].VersionID)
}

func TestRetrieve_ExcludeCode(t *testing.T) {
	f := newFixture(t)
	opts := DefaultOptions()
	opts.IncludeCodeBlocks = false

	b, err := f.retriever().Retrieve(context.Background(), opts, "")
	require.NoError(t, err)
	assert.Empty(t, b.CodeBlocks)
	assert.NotContains(t, b.Context, "## Code")
}

func TestRetrieve_Memories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mem.Add(ctx, memory.CollectionConversation, "the card should match the brand palette", memory.Metadata{Type: "preference"})
	require.NoError(t, err)
	_, err = f.mem.Add(ctx, memory.CollectionConversation, "unrelated deployment note", memory.Metadata{Type: "fact"})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.SemanticQuery = "card palette"
	opts.SimilarityThreshold = 0.5

	b, err := f.retriever().Retrieve(ctx, opts, "")
	require.NoError(t, err)
	require.Len(t, b.Memories, 1)
	assert.Contains(t, b.Memories[0].Content, "palette")

	want := prompt.EstimateTokens(b.Context) + prompt.EstimateTokens(b.Memories[0].Content)
	assert.Equal(t, want, b.TokenCount)
}

type brokenMemory struct{ calls int }

func (m *brokenMemory) Search(context.Context, string, memory.Query) (memory.Result, error) {
	m.calls++
	return memory.Result{}, types.External("memory search", fmt.Errorf("connection refused"))
}

func (m *brokenMemory) Add(context.Context, string, string, memory.Metadata) (memory.Entry, error) {
	return memory.Entry{}, errors.New("unused")
}

func TestRetrieve_MemoryFailureDegrades(t *testing.T) {
	f := newFixture(t)
	mem := &brokenMemory{}
	r := NewRetriever(f.graph, f.blocks, mem)

	b, err := r.Retrieve(context.Background(), DefaultOptions(), "")
	require.NoError(t, err)
	assert.True(t, b.Degraded)
	assert.Empty(t, b.Memories)
	assert.Len(t, b.Turns, 3)
	assert.NotEmpty(t, b.CodeBlocks)
	assert.Equal(t, 1, mem.calls, "one memory call per retrieval")
}

func TestRetrieve_CancelledContextDegrades(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := f.retriever().Retrieve(ctx, DefaultOptions(), "")
	require.NoError(t, err)
	assert.True(t, b.Degraded)
	assert.Len(t, b.Turns, 3)
}

func TestRetrieve_UnknownTurn(t *testing.T) {
	f := newFixture(t)
	_, err := f.retriever().Retrieve(context.Background(), DefaultOptions(), "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestRetrieve_EmptyGraph(t *testing.T) {
	g := conversation.NewGraph(nil)
	b, err := NewRetriever(g, nil, nil).Retrieve(context.Background(), Options{}, "")
	require.NoError(t, err)
	assert.Empty(t, b.Turns)
	assert.Empty(t, b.Context)
	assert.Zero(t, b.TokenCount)
}

func TestRender(t *testing.T) {
	f := newFixture(t)
	b, err := f.retriever().Retrieve(context.Background(), DefaultOptions(), "")
	require.NoError(t, err)

	ctxText := b.Context
	first := strings.Index(ctxText, "User: build a login card")
	last := strings.Index(ctxText, "User: make the card blue")
	require.True(t, first >= 0 && last >= 0)
	assert.Less(t, first, last, "turns render chronologically")
	assert.Contains(t, ctxText, "Assistant: [html code]\n[css code]")
	assert.Contains(t, ctxText, "```css\n.card { color: blue; }\n```")
	assert.NotContains(t, ctxText, "color: red")
}
