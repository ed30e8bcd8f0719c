package memory

import (
	"context"
	"errors"
	"testing"

	"codeloom/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAMStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewRAMStore(nil)

	_, err := s.Add(ctx, CollectionConversation, "Built the login form in HTML", Metadata{Type: "exchange"})
	require.NoError(t, err)
	_, err = s.Add(ctx, CollectionConversation, "User prefers tabs over spaces", Metadata{Type: "preference"})
	require.NoError(t, err)

	t.Run("scored search", func(t *testing.T) {
		res, err := s.Search(ctx, CollectionConversation, Query{Text: "login form", Threshold: 0.5})
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Contains(t, res.Entries[0].Content, "login form")
		require.NotNil(t, res.Entries[0].Relevance)
		assert.Equal(t, 1.0, *res.Entries[0].Relevance)
	})

	t.Run("type filter", func(t *testing.T) {
		res, err := s.Search(ctx, CollectionConversation, Query{Types: []string{"preference"}})
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Nil(t, res.Entries[0].Relevance, "empty query text is unscored")
	})

	t.Run("unknown collection is empty", func(t *testing.T) {
		res, err := s.Search(ctx, "nope", Query{})
		require.NoError(t, err)
		assert.Empty(t, res.Entries)
	})
}

func TestRAMStore_UpsertByKey(t *testing.T) {
	ctx := context.Background()
	s := NewRAMStore(nil)

	_, err := s.Add(ctx, CollectionCodeBlocks, "v1", Metadata{Type: "code_block", Key: "block-1"})
	require.NoError(t, err)
	second, err := s.Add(ctx, CollectionCodeBlocks, "v2", Metadata{Type: "code_block", Key: "block-1"})
	require.NoError(t, err)

	res, err := s.Search(ctx, CollectionCodeBlocks, Query{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, second.ID, res.Entries[0].ID)
	assert.Equal(t, "v2", res.Entries[0].Content)
}

func TestRAMStore_Validation(t *testing.T) {
	s := NewRAMStore(nil)
	_, err := s.Add(context.Background(), "", "x", Metadata{})
	assert.True(t, errors.Is(err, types.ErrValidation))
	_, err = s.Add(context.Background(), CollectionConversation, "", Metadata{})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestRAMStore_Get(t *testing.T) {
	ctx := context.Background()
	s := NewRAMStore(nil)
	e, err := s.Add(ctx, CollectionConversation, "hello", Metadata{})
	require.NoError(t, err)

	got, err := s.Get(ctx, CollectionConversation, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	_, err = s.Get(ctx, CollectionConversation, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRAMStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRAMStore(nil).Search(ctx, CollectionConversation, Query{Text: "x"})
	assert.ErrorIs(t, err, types.ErrExternalService)
}

func TestRAMStore_EmbedderScoring(t *testing.T) {
	ctx := context.Background()
	s := NewRAMStore(&fakeEmbedder{})

	_, err := s.Add(ctx, CollectionConversation, "css css styles", Metadata{})
	require.NoError(t, err)
	_, err = s.Add(ctx, CollectionConversation, "html markup", Metadata{})
	require.NoError(t, err)

	res, err := s.Search(ctx, CollectionConversation, Query{Text: "css", Threshold: 0.9})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "css css styles", res.Entries[0].Content)
}

func TestRAMStore_EmbedderFailureFallsBackToKeywords(t *testing.T) {
	ctx := context.Background()
	s := NewRAMStore(&fakeEmbedder{fail: true})

	_, err := s.Add(ctx, CollectionConversation, "login form markup", Metadata{})
	require.NoError(t, err)

	res, err := s.Search(ctx, CollectionConversation, Query{Text: "login"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, 1.0, *res.Entries[0].Relevance)
}

func TestRAMStore_NoEmbedSkipsEmbedder(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{}
	s := NewRAMStore(emb)

	_, err := s.Add(ctx, CollectionSessions, `{"turns":[]}`, Metadata{Type: "session_graph", Key: "main", NoEmbed: true})
	require.NoError(t, err)
	assert.Zero(t, emb.calls)

	_, err = s.Add(ctx, CollectionConversation, "css tweaks", Metadata{Type: "exchange"})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)

	res, err := s.Search(ctx, CollectionSessions, Query{Types: []string{"session_graph"}})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.True(t, res.Entries[0].Metadata.NoEmbed)
}
