package codeblock

import (
	"errors"
	"strings"
	"testing"
	"time"

	"codeloom/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateBlock(t *testing.T) {
	s := NewStore(nil)

	b, err := s.CreateBlock("JS", "const x = 1", "t1", Meta{Filename: "x.js"})
	require.NoError(t, err)
	assert.Equal(t, "javascript", b.Language)
	require.Len(t, b.Versions, 1)
	assert.Empty(t, b.Versions[0].ParentVersionID)
	assert.Equal(t, b.Versions[0].ID, b.CurrentVersionID)
	assert.Equal(t, []string{"t1"}, b.TurnIDs)
	assert.Equal(t, "x.js", b.Label())

	t.Run("empty content", func(t *testing.T) {
		_, err := s.CreateBlock("go", "", "t1", Meta{})
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("empty language", func(t *testing.T) {
		_, err := s.CreateBlock(" ", "x", "t1", Meta{})
		assert.True(t, errors.Is(err, types.ErrValidation))
	})
}

func TestStore_VersionRoundTrip(t *testing.T) {
	s := NewStore(nil)
	b, err := s.CreateBlock("python", "print(1)", "t1", Meta{})
	require.NoError(t, err)

	_, err = s.AddVersion(b.ID, "print(2)", "t2", "")
	require.NoError(t, err)

	history, err := s.History(b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "print(1)", history[0].Content)
	assert.Equal(t, "print(2)", history[1].Content)
	assert.Equal(t, history[0].ID, history[1].ParentVersionID)
}

func TestStore_HTMLScenario(t *testing.T) {
	s := NewStore(nil)
	b, err := s.CreateBlock("html", "<div/>", "t1", Meta{})
	require.NoError(t, err)

	_, err = s.AddVersion(b.ID, "<div>hi</div>", "t2", "added text")
	require.NoError(t, err)

	cur, err := s.CurrentVersion(b.ID)
	require.NoError(t, err)
	v := s.Version(b.ID, cur.ID)
	require.NotNil(t, v)
	assert.Equal(t, "<div>hi</div>", v.Content)
	assert.Equal(t, "added text", v.ChangeSummary)
	assert.Contains(t, v.Diff, "+<div>hi</div>")

	got, err := s.Block(b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, got.TurnIDs)
}

func TestStore_VersionOrderingAndLineage(t *testing.T) {
	s := NewStore(nil)
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	b, err := s.CreateBlock("go", "package a", "t0", Meta{})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := s.AddVersion(b.ID, "package a\n"+strings.Repeat("// x\n", i), "t", "")
		require.NoError(t, err)
	}

	got, err := s.Block(b.ID)
	require.NoError(t, err)
	require.Len(t, got.Versions, 6)
	for i := 1; i < len(got.Versions); i++ {
		assert.True(t, got.Versions[i].CreatedAt.After(got.Versions[i-1].CreatedAt),
			"version %d must be created after version %d", i, i-1)
	}

	lineage, err := s.Lineage(b.ID, got.CurrentVersionID)
	require.NoError(t, err)
	require.Len(t, lineage, 6)
	assert.Equal(t, got.Versions[0].ID, lineage[len(lineage)-1].ID)
	assert.Empty(t, lineage[len(lineage)-1].ParentVersionID)
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore(nil)

	_, err := s.AddVersion("missing", "x", "t1", "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = s.Block("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = s.History("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Nil(t, s.Version("missing", "v"))

	b, err := s.CreateBlock("css", "a{}", "t1", Meta{})
	require.NoError(t, err)
	assert.Nil(t, s.Version(b.ID, "missing"))
	_, err = s.AddVersion(b.ID, "", "t2", "")
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestStore_Relate(t *testing.T) {
	s := NewStore(nil)
	a, err := s.CreateBlock("html", "<p/>", "t1", Meta{})
	require.NoError(t, err)
	c, err := s.CreateBlock("css", "p{}", "t1", Meta{})
	require.NoError(t, err)

	assert.True(t, s.Relate(a.ID, c.ID))
	assert.True(t, s.Relate(c.ID, a.ID))
	assert.False(t, s.Relate(a.ID, a.ID))
	assert.False(t, s.Relate(a.ID, "missing"))

	ga, _ := s.Block(a.ID)
	gc, _ := s.Block(c.ID)
	assert.Equal(t, []string{c.ID}, ga.RelatedIDs)
	assert.Equal(t, []string{a.ID}, gc.RelatedIDs)
}

func TestStore_BlocksAndByLanguage(t *testing.T) {
	s := NewStore(nil)
	first, _ := s.CreateBlock("css", "a{}", "t1", Meta{})
	second, _ := s.CreateBlock("html", "<p/>", "t1", Meta{})
	third, _ := s.CreateBlock("scss", "b{}", "t2", Meta{})

	all := s.Blocks()
	require.Len(t, all, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	css := s.ByLanguage("css")
	require.Len(t, css, 2)
	assert.Equal(t, first.ID, css[0].ID)
	assert.Equal(t, third.ID, css[1].ID)
}

func TestStore_BlockIsACopy(t *testing.T) {
	s := NewStore(nil)
	b, _ := s.CreateBlock("go", "package a", "t1", Meta{})
	b.Versions[0].Content = "mutated"

	cur, err := s.CurrentVersion(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "package a", cur.Content)
}
