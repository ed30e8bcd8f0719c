// Package conversation owns the branching turn graph: turns, the branches
// that name paths through them, and the typed relations annotating parent
// pointers. Code artifacts are referenced through codeblock.Ref only.
package conversation

import (
	"time"

	"codeloom/internal/codeblock"
)

// RelationKind annotates the meaning of an edge between two turns.
type RelationKind string

const (
	RelationSequential RelationKind = "sequential"
	RelationBranch     RelationKind = "branch"
	RelationRevision   RelationKind = "revision"
	RelationReference  RelationKind = "reference"
	RelationMerge      RelationKind = "merge"
)

// Valid reports whether k is one of the known kinds.
func (k RelationKind) Valid() bool {
	switch k {
	case RelationSequential, RelationBranch, RelationRevision, RelationReference, RelationMerge:
		return true
	}
	return false
}

// Usage is the token and cost accounting reported for a turn's model call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Turn is one prompt/response exchange. Immutable once created except for
// MemoryIDs.
type Turn struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Prompt     string          `json:"prompt"`
	Response   string          `json:"response"`
	CodeBlocks []codeblock.Ref `json:"code_blocks,omitempty"`
	EditAction string          `json:"edit_action,omitempty"`
	EditTarget string          `json:"edit_target,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	ParentID   string          `json:"parent_id,omitempty"`
	MemoryIDs  []string        `json:"memory_ids,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Importance float64         `json:"importance,omitempty"`
	Usage      Usage           `json:"usage"`
}

// IsRoot reports whether the turn starts a path through the graph.
func (t *Turn) IsRoot() bool { return t.ParentID == "" }

func (t *Turn) clone() *Turn {
	c := *t
	c.CodeBlocks = append([]codeblock.Ref(nil), t.CodeBlocks...)
	c.MemoryIDs = append([]string(nil), t.MemoryIDs...)
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}

// TurnInput is the payload for AddTurn.
type TurnInput struct {
	Prompt     string
	Response   string
	Provider   string
	Model      string
	EditAction string
	EditTarget string

	// ParentID, when set, must name an existing turn. When empty the turn
	// follows the active branch tip unless Root is set.
	ParentID string
	Root     bool

	Tags       []string
	Importance float64
	Usage      Usage
}

// Branch is a named path through the graph.
type Branch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RootTurnID  string    `json:"root_turn_id"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`

	// Turns is the materialized path, root first.
	Turns []string `json:"turns"`
}

// Tip returns the last turn on the branch's path.
func (b *Branch) Tip() string {
	if len(b.Turns) == 0 {
		return ""
	}
	return b.Turns[len(b.Turns)-1]
}

func (b *Branch) clone() *Branch {
	c := *b
	c.Turns = append([]string(nil), b.Turns...)
	return &c
}

// Relation is a typed edge between two turns.
type Relation struct {
	From string       `json:"from"`
	To   string       `json:"to"`
	Kind RelationKind `json:"kind"`
}
