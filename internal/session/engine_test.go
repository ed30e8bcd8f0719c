package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"codeloom/internal/config"
	"codeloom/internal/memory"
	"codeloom/internal/provider"
	"codeloom/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardReply = "Here is the card:\n```html\n<div class=\"card\"></div>\n```\n```css\n.card { color: red; }\n```"

func newEngine(t *testing.T, mem memory.Store, p provider.Provider) *Engine {
	t.Helper()
	e, err := New(config.DefaultConfig(), Deps{Provider: p, Memory: mem, SessionName: "test"})
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	return e
}

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }

func (failingProvider) Generate(context.Context, provider.Request) (provider.Response, error) {
	return provider.Response{}, errors.New("503 service unavailable")
}

func TestExchange_RecordsTurnAndCode(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewRAMStore(nil)
	echo := provider.NewEcho(cardReply)
	e := newEngine(t, mem, echo)

	res, err := e.Exchange(ctx, ExchangeRequest{Prompt: "build a login card"})
	require.NoError(t, err)

	turn := res.Turn
	assert.Equal(t, "echo", turn.Provider)
	assert.Equal(t, "gemini-2.5-flash", turn.Model)
	require.Len(t, turn.CodeBlocks, 2)
	assert.Equal(t, "css", turn.CodeBlocks[0].Language)
	assert.Equal(t, "html", turn.CodeBlocks[1].Language)
	assert.Positive(t, turn.Usage.InputTokens)

	require.NotEmpty(t, res.MemoryID)
	stored, err := e.Graph().Turn(turn.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{res.MemoryID}, stored.MemoryIDs)

	blocks, err := mem.Search(ctx, memory.CollectionCodeBlocks, memory.Query{})
	require.NoError(t, err)
	assert.Len(t, blocks.Entries, 2, "touched blocks are persisted")

	calls := echo.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "build a login card")
	assert.Equal(t, res.Prompt.Text, calls[0].Prompt)
}

func TestExchange_TargetedFollowUp(t *testing.T) {
	ctx := context.Background()
	echo := provider.NewEcho(cardReply, "```css\n.card { color: blue; }\n```")
	e := newEngine(t, memory.NewRAMStore(nil), echo)

	first, err := e.Exchange(ctx, ExchangeRequest{Prompt: "build a login card"})
	require.NoError(t, err)
	second, err := e.Exchange(ctx, ExchangeRequest{Prompt: "only change the CSS colors"})
	require.NoError(t, err)

	assert.Equal(t, "style", second.Turn.EditAction)
	assert.Equal(t, "css", second.Turn.EditTarget)
	assert.Equal(t, first.Turn.ID, second.Turn.ParentID)
	require.Len(t, second.Turn.CodeBlocks, 2)
	assert.Equal(t, first.Turn.CodeBlocks[1], second.Turn.CodeBlocks[1], "html untouched")
	assert.NotEqual(t, first.Turn.CodeBlocks[0].VersionID, second.Turn.CodeBlocks[0].VersionID)

	sent := echo.Calls()[1].Prompt
	assert.Contains(t, sent, "User: build a login card")
	assert.Contains(t, sent, ".card { color: red; }")
	assert.Contains(t, sent, "Return only the updated css code.")
}

func TestExchange_CreationPromptNamingLanguagesKeepsAllCode(t *testing.T) {
	ctx := context.Background()
	echo := provider.NewEcho(cardReply)
	e := newEngine(t, memory.NewRAMStore(nil), echo)

	res, err := e.Exchange(ctx, ExchangeRequest{Prompt: "Build a login card in HTML with some CSS"})
	require.NoError(t, err)

	assert.Equal(t, "html", res.Intent.Target)
	require.Len(t, res.Turn.CodeBlocks, 2)
	assert.Equal(t, "css", res.Turn.CodeBlocks[0].Language)
	assert.Equal(t, "html", res.Turn.CodeBlocks[1].Language)
	assert.Len(t, e.Blocks().Blocks(), 2)
	assert.NotContains(t, echo.Calls()[0].Prompt, "Return only the updated")
}

type countingEmbedder struct {
	texts []string
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.texts = append(c.texts, text)
	return []float32{1, 0}, nil
}

func (c *countingEmbedder) Name() string { return "counting" }

func TestExchange_SnapshotsAreNotEmbedded(t *testing.T) {
	emb := &countingEmbedder{}
	e := newEngine(t, memory.NewRAMStore(emb), provider.NewEcho(cardReply))

	_, err := e.Exchange(context.Background(), ExchangeRequest{Prompt: "build a login card"})
	require.NoError(t, err)

	require.Len(t, emb.texts, 1, "only the exchange memory is embedded")
	assert.True(t, strings.HasPrefix(emb.texts[0], "User: build a login card"))
}

func TestExchange_ProviderFailure(t *testing.T) {
	e := newEngine(t, memory.NewRAMStore(nil), failingProvider{})

	_, err := e.Exchange(context.Background(), ExchangeRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExternalService))
	assert.Empty(t, e.Graph().Turns())
}

func TestExchange_Validation(t *testing.T) {
	e, err := New(nil, Deps{Provider: provider.NewEcho()})
	require.NoError(t, err)

	_, err = e.Exchange(context.Background(), ExchangeRequest{Prompt: "hi"})
	assert.Error(t, err, "not initialized")

	require.NoError(t, e.Initialize(context.Background()))
	_, err = e.Exchange(context.Background(), ExchangeRequest{Prompt: "  "})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = e.Exchange(context.Background(), ExchangeRequest{Prompt: "hi", ParentID: "missing"})
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = New(nil, Deps{})
	assert.Error(t, err)
}

func TestExchange_RootSkipsContext(t *testing.T) {
	ctx := context.Background()
	echo := provider.NewEcho(cardReply, "ok")
	e := newEngine(t, memory.NewRAMStore(nil), echo)

	_, err := e.Exchange(ctx, ExchangeRequest{Prompt: "build a login card"})
	require.NoError(t, err)
	res, err := e.Exchange(ctx, ExchangeRequest{Prompt: "new topic", Root: true})
	require.NoError(t, err)

	assert.True(t, res.Turn.IsRoot())
	assert.NotContains(t, echo.Calls()[1].Prompt, "build a login card")
	assert.Len(t, e.Graph().Branches(), 2)
}

func TestPreview_RecordsNothing(t *testing.T) {
	echo := provider.NewEcho()
	e := newEngine(t, nil, echo)

	bundle, composed, err := e.Preview(context.Background(), ExchangeRequest{Prompt: "explain the layout"})
	require.NoError(t, err)
	assert.Empty(t, bundle.Turns)
	assert.Contains(t, composed.Text, "explain the layout")
	assert.Empty(t, echo.Calls())
	assert.Empty(t, e.Graph().Turns())
}

func TestSession_ResumesFromMemory(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewRAMStore(nil)

	first := newEngine(t, mem, provider.NewEcho(cardReply))
	res, err := first.Exchange(ctx, ExchangeRequest{Prompt: "build a login card"})
	require.NoError(t, err)
	branchID, err := first.CreateBranch(ctx, res.Turn.ID, "experiment", "")
	require.NoError(t, err)

	second := newEngine(t, mem, provider.NewEcho("```css\n.card { color: green; }\n```"))
	require.Len(t, second.Graph().Turns(), 1)
	assert.Len(t, second.Blocks().Blocks(), 2)
	assert.Equal(t, branchID, second.Graph().ActiveBranch().ID)

	next, err := second.Exchange(ctx, ExchangeRequest{Prompt: "make the css green"})
	require.NoError(t, err)
	assert.Equal(t, res.Turn.ID, next.Turn.ParentID)

	cur, err := second.Blocks().CurrentVersion(next.Turn.CodeBlocks[0].BlockID)
	require.NoError(t, err)
	assert.Equal(t, ".card { color: green; }", cur.Content)
}

func TestSession_BranchOperations(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, memory.NewRAMStore(nil), provider.NewEcho())

	res, err := e.Exchange(ctx, ExchangeRequest{Prompt: "start"})
	require.NoError(t, err)
	main := e.Graph().ActiveBranch().ID

	alt, err := e.CreateBranch(ctx, res.Turn.ID, "", "")
	require.NoError(t, err)
	require.NoError(t, e.SetActiveBranch(ctx, main))
	assert.True(t, errors.Is(e.SetActiveBranch(ctx, "missing"), types.ErrNotFound))
	require.NoError(t, e.DeleteBranch(ctx, main))
	assert.Equal(t, alt, e.Graph().ActiveBranch().ID)
}

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := OpenMemory(ctx, config.MemoryConfig{Backend: "ram"}, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &memory.RAMStore{}, store)
	assert.NoError(t, closeFn())

	dir := t.TempDir()
	store, closeFn, err = OpenMemory(ctx, config.MemoryConfig{Backend: "sqlite", DatabasePath: "mem.db"}, dir)
	require.NoError(t, err)
	assert.IsType(t, &memory.SQLiteStore{}, store)
	assert.FileExists(t, filepath.Join(dir, "mem.db"))
	assert.NoError(t, closeFn())

	_, _, err = OpenMemory(ctx, config.MemoryConfig{Backend: "redis"}, dir)
	assert.Error(t, err)
	_, _, err = OpenMemory(ctx, config.MemoryConfig{Backend: "ram", Embedding: config.EmbeddingConfig{Provider: "genai"}}, dir)
	assert.Error(t, err, "genai embeddings need an API key")
}
