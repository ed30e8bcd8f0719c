// Package retrieval assembles the bounded context bundle fed into prompt
// composition: recent turns, the code blocks they reference and matching
// external memories. It owns no state; every bundle is recomputed.
package retrieval

import (
	"context"
	"strings"

	"codeloom/internal/codeblock"
	"codeloom/internal/conversation"
	"codeloom/internal/logging"
	"codeloom/internal/memory"
	"codeloom/internal/prompt"
	"codeloom/internal/types"
)

// Options bounds a retrieval.
type Options struct {
	TurnLimit int

	IncludeCodeBlocks bool
	CodeBlockLimit    int

	IncludeMemories bool
	MemoryTypes     []string

	// SemanticQuery and SimilarityThreshold pass through to memory search
	// unchanged. An empty query is synthesized from the selected prompts.
	SemanticQuery       string
	SimilarityThreshold float64
	MaxMemories         int
	Collection          string
}

// DefaultOptions returns the stock retrieval bounds.
func DefaultOptions() Options {
	return Options{
		TurnLimit:         10,
		IncludeCodeBlocks: true,
		CodeBlockLimit:    5,
		IncludeMemories:   true,
		MaxMemories:       5,
		Collection:        memory.CollectionConversation,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TurnLimit <= 0 {
		o.TurnLimit = d.TurnLimit
	}
	if o.CodeBlockLimit <= 0 {
		o.CodeBlockLimit = d.CodeBlockLimit
	}
	if o.MaxMemories <= 0 {
		o.MaxMemories = d.MaxMemories
	}
	if o.Collection == "" {
		o.Collection = d.Collection
	}
	return o
}

// CodeContext is one block resolved to its current version.
type CodeContext struct {
	BlockID   string
	VersionID string
	Language  string
	Label     string
	Content   string
}

// Bundle is the request-scoped retrieval result.
type Bundle struct {
	// Context is the rendered turns and code.
	Context string

	// Turns are most recent first.
	Turns      []*conversation.Turn
	CodeBlocks []CodeContext
	Memories   []memory.Entry
	TokenCount int

	// Degraded is set when the memory search failed and Memories is empty
	// for that reason rather than for lack of matches.
	Degraded bool
}

// Retriever reads from the graph, block store and memory interface.
type Retriever struct {
	graph  *conversation.Graph
	blocks *codeblock.Store
	mem    memory.Store
}

// NewRetriever wires a retriever. blocks and mem may be nil.
func NewRetriever(graph *conversation.Graph, blocks *codeblock.Store, mem memory.Store) *Retriever {
	return &Retriever{graph: graph, blocks: blocks, mem: mem}
}

// Retrieve builds a bundle anchored at refTurnID, or at the active branch
// tip when refTurnID is empty. Only an unknown refTurnID is an error; a
// failing memory search degrades the bundle instead.
func (r *Retriever) Retrieve(ctx context.Context, opts Options, refTurnID string) (*Bundle, error) {
	opts = opts.withDefaults()
	timer := logging.StartTimer(logging.CategoryContext, "Retrieve")
	defer timer.Stop()

	turns, err := r.selectTurns(refTurnID, opts.TurnLimit)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Turns: turns}

	if opts.IncludeCodeBlocks && r.blocks != nil {
		b.CodeBlocks = r.selectCode(turns, opts.CodeBlockLimit)
	}
	if opts.IncludeMemories && r.mem != nil {
		b.Memories, b.Degraded = r.searchMemories(ctx, opts, turns)
	}

	b.Context = render(turns, b.CodeBlocks)
	b.TokenCount = prompt.EstimateTokens(b.Context)
	for _, m := range b.Memories {
		b.TokenCount += prompt.EstimateTokens(m.Content)
	}

	logging.Context("bundle: %d turns, %d blocks, %d memories, ~%d tokens (degraded=%v)",
		len(b.Turns), len(b.CodeBlocks), len(b.Memories), b.TokenCount, b.Degraded)
	return b, nil
}

// selectTurns walks parent pointers back from the anchor, most recent first.
func (r *Retriever) selectTurns(refTurnID string, limit int) ([]*conversation.Turn, error) {
	if refTurnID == "" {
		active := r.graph.ActiveBranch()
		if active == nil || active.Tip() == "" {
			return nil, nil
		}
		refTurnID = active.Tip()
	}

	t, err := r.graph.Turn(refTurnID)
	if err != nil {
		return nil, err
	}
	out := []*conversation.Turn{t}
	for len(out) < limit && t.ParentID != "" {
		if t, err = r.graph.Turn(t.ParentID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// selectCode resolves distinct referenced blocks to their current version,
// most recently referenced first.
func (r *Retriever) selectCode(turns []*conversation.Turn, limit int) []CodeContext {
	seen := make(map[string]bool)
	var out []CodeContext
	for _, t := range turns {
		for _, ref := range t.CodeBlocks {
			if len(out) >= limit {
				return out
			}
			if seen[ref.BlockID] {
				continue
			}
			seen[ref.BlockID] = true

			b, err := r.blocks.Block(ref.BlockID)
			if err != nil {
				logging.ContextWarn("turn %s cites %v", t.ID, err)
				continue
			}
			cur := b.Current()
			out = append(out, CodeContext{
				BlockID:   b.ID,
				VersionID: cur.ID,
				Language:  b.Language,
				Label:     b.Label(),
				Content:   cur.Content,
			})
		}
	}
	return out
}

const maxSynthesizedQuery = 512

func (r *Retriever) searchMemories(ctx context.Context, opts Options, turns []*conversation.Turn) ([]memory.Entry, bool) {
	query := opts.SemanticQuery
	if query == "" {
		query = synthesizeQuery(turns)
	}
	if query == "" {
		return nil, false
	}

	res, err := r.mem.Search(ctx, opts.Collection, memory.Query{
		Text:       query,
		Types:      opts.MemoryTypes,
		MaxResults: opts.MaxMemories,
		Threshold:  opts.SimilarityThreshold,
	})
	if err != nil {
		if ctx.Err() != nil {
			err = types.External("memory search", ctx.Err())
		}
		logging.ContextWarn("memory search degraded: %v", err)
		return nil, true
	}
	return res.Entries, false
}

// synthesizeQuery joins the selected prompts, newest first, capped in length.
func synthesizeQuery(turns []*conversation.Turn) string {
	var parts []string
	size := 0
	for _, t := range turns {
		if size+len(t.Prompt) > maxSynthesizedQuery && len(parts) > 0 {
			break
		}
		parts = append(parts, t.Prompt)
		size += len(t.Prompt) + 1
	}
	q := strings.Join(parts, " ")
	if len(q) > maxSynthesizedQuery {
		q = q[:maxSynthesizedQuery]
	}
	return q
}
