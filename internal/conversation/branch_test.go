package conversation

import (
	"errors"
	"testing"

	"codeloom/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeCount(g *Graph) int {
	n := 0
	for _, b := range g.Branches() {
		if b.Active {
			n++
		}
	}
	return n
}

func TestCreateBranch(t *testing.T) {
	g := NewGraph(nil)
	t1 := addTurn(t, g, TurnInput{Prompt: "1"})
	t2 := addTurn(t, g, TurnInput{Prompt: "2"})
	addTurn(t, g, TurnInput{Prompt: "3"})

	id, err := g.CreateBranch(t2.ID, "", "try another layout")
	require.NoError(t, err)

	b, err := g.Branch(id)
	require.NoError(t, err)
	assert.Equal(t, "branch-2", b.Name)
	assert.Equal(t, "try another layout", b.Description)
	assert.Equal(t, t1.ID, b.RootTurnID)
	assert.Equal(t, []string{t1.ID, t2.ID}, b.Turns)
	assert.True(t, b.Active)
	assert.Equal(t, 1, activeCount(g))

	t4 := addTurn(t, g, TurnInput{Prompt: "4"})
	assert.Equal(t, t2.ID, t4.ParentID)
	assert.Equal(t, []string{t1.ID, t2.ID, t4.ID}, g.ActiveBranch().Turns)
	rels := g.Relations(t4.ID)
	require.Len(t, rels, 1)
	assert.Equal(t, RelationBranch, rels[0].Kind)

	_, err = g.CreateBranch("missing", "x", "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestExactlyOneActiveBranch(t *testing.T) {
	g := NewGraph(nil)
	assert.Nil(t, g.ActiveBranch())

	t1 := addTurn(t, g, TurnInput{Prompt: "1"})
	main := g.ActiveBranch().ID
	a, err := g.CreateBranch(t1.ID, "a", "")
	require.NoError(t, err)
	b, err := g.CreateBranch(t1.ID, "b", "")
	require.NoError(t, err)

	for _, id := range []string{main, a, b, a, a, main} {
		assert.True(t, g.SetActiveBranch(id))
		assert.Equal(t, 1, activeCount(g))
		assert.Equal(t, id, g.ActiveBranch().ID)
	}
	assert.False(t, g.SetActiveBranch("missing"))
	assert.Equal(t, 1, activeCount(g))
	assert.Equal(t, main, g.ActiveBranch().ID)
}

func TestDeleteBranch(t *testing.T) {
	g := NewGraph(nil)
	t1 := addTurn(t, g, TurnInput{Prompt: "1"})
	main := g.ActiveBranch().ID
	a, _ := g.CreateBranch(t1.ID, "a", "")
	b, _ := g.CreateBranch(t1.ID, "b", "")

	t.Run("inactive branch", func(t *testing.T) {
		require.NoError(t, g.DeleteBranch(a))
		assert.Equal(t, b, g.ActiveBranch().ID)
	})

	t.Run("active branch picks most recent remaining", func(t *testing.T) {
		c, _ := g.CreateBranch(t1.ID, "c", "")
		require.True(t, g.SetActiveBranch(main))
		require.NoError(t, g.DeleteBranch(main))
		assert.Equal(t, c, g.ActiveBranch().ID)
		assert.Equal(t, 1, activeCount(g))
	})

	t.Run("unknown branch", func(t *testing.T) {
		assert.True(t, errors.Is(g.DeleteBranch("missing"), types.ErrNotFound))
	})

	t.Run("last branch", func(t *testing.T) {
		for _, br := range g.Branches() {
			require.NoError(t, g.DeleteBranch(br.ID))
		}
		assert.Nil(t, g.ActiveBranch())
		_, err := g.Turn(t1.ID)
		assert.NoError(t, err, "turns survive branch deletion")
	})
}

func TestBranchByName(t *testing.T) {
	g := NewGraph(nil)
	addTurn(t, g, TurnInput{Prompt: "1"})
	assert.NotNil(t, g.BranchByName("main"))
	assert.Nil(t, g.BranchByName("nope"))
}
