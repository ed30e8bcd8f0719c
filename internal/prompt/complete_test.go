package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCompletePrompt(t *testing.T) {
	c := NewComposer(0)
	got, err := c.CreateCompletePrompt(CompleteOptions{
		System:       "You are a coding assistant.",
		Task:         "Make the button blue.",
		Preferences:  "Prefer tabs.",
		MemoryHeader: "Context:",
		Memories:     []MemoryEntry{{Type: "context", Source: "retrieval", Content: "User: hi"}},
	})
	require.NoError(t, err)

	want := "You are a coding assistant.\n\n" +
		"Make the button blue.\n\n" +
		"Prefer tabs.\n\n" +
		"Context:\n\n[CONTEXT] (retrieval): User: hi"
	assert.Equal(t, want, got.Text)
	require.Len(t, got.Used, 4)

	layers := c.Layers()
	require.Len(t, layers, 4)
	assert.Equal(t, []int{1000, 800, 600, 400}, []int{
		layers[0].Priority(), layers[1].Priority(), layers[2].Priority(), layers[3].Priority(),
	})
	assert.Equal(t, KindMemory, layers[3].Kind())
}

func TestCreateCompletePrompt_SkipsEmptyAndBudgets(t *testing.T) {
	c := NewComposer(10)
	got, err := c.CreateCompletePrompt(CompleteOptions{
		System:     "sys",
		Task:       "a task that is far too long to fit alongside the system layer",
		Priorities: Priorities{Task: Priority(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, "sys", got.Text)
	assert.Len(t, got.Excluded, 1)
	assert.Len(t, c.Layers(), 2)
}

func TestCreateCompletePrompt_ZeroPriorityIsKept(t *testing.T) {
	c := NewComposer(0)
	_, err := c.CreateCompletePrompt(CompleteOptions{
		System:     "sys",
		Task:       "task",
		Priorities: Priorities{Task: Priority(0), Memory: Priority(MinPriority)},
	})
	require.NoError(t, err)

	layers := c.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, 1000, layers[0].Priority())
	assert.Equal(t, 0, layers[1].Priority())
}
