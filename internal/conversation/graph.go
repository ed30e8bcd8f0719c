package conversation

import (
	"context"
	"time"

	"codeloom/internal/codeblock"
	"codeloom/internal/logging"
	"codeloom/internal/types"

	"github.com/google/uuid"
)

// Graph owns turns, branches and relations for one session. Like the code
// block store it assumes a single writer.
type Graph struct {
	turns    map[string]*Turn
	order    []string
	children map[string][]string
	rels     []Relation

	branches    map[string]*Branch
	branchOrder []string
	active      string

	blocks *codeblock.Store
	now    func() time.Time
}

// NewGraph returns an empty graph. blocks may be nil, in which case turns
// carry no code references.
func NewGraph(blocks *codeblock.Store) *Graph {
	return &Graph{
		turns:    make(map[string]*Turn),
		children: make(map[string][]string),
		branches: make(map[string]*Branch),
		blocks:   blocks,
		now:      time.Now,
	}
}

// AddTurn records an exchange. An explicit ParentID must exist. Without one
// the turn follows the active branch tip, or starts a new root (and a new
// active branch) when Root is set or no branch exists yet.
func (g *Graph) AddTurn(ctx context.Context, in TurnInput) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Prompt == "" {
		return nil, types.Invalid("turn prompt required")
	}

	parentID, err := g.resolveParent(in)
	if err != nil {
		return nil, err
	}

	t := &Turn{
		ID:         uuid.NewString(),
		CreatedAt:  g.now(),
		Prompt:     in.Prompt,
		Response:   in.Response,
		EditAction: in.EditAction,
		EditTarget: in.EditTarget,
		Provider:   in.Provider,
		Model:      in.Model,
		ParentID:   parentID,
		Tags:       append([]string(nil), in.Tags...),
		Importance: in.Importance,
		Usage:      in.Usage,
	}

	if g.blocks != nil {
		inherited := g.inheritedRefs(parentID)
		target := editLanguage(in.Prompt, in.EditAction, in.EditTarget, inherited)
		refs, err := g.blocks.ExtractFromResponse(codeblock.ExtractCodeSections(in.Response), t.ID, inherited, target)
		if err != nil {
			return nil, err
		}
		t.CodeBlocks = refs
	}

	g.turns[t.ID] = t
	g.order = append(g.order, t.ID)

	if parentID == "" {
		g.startBranch(t)
	} else {
		kind := RelationSequential
		switch {
		case in.EditAction != "":
			kind = RelationRevision
		case len(g.children[parentID]) > 0:
			kind = RelationBranch
		}
		g.children[parentID] = append(g.children[parentID], t.ID)
		g.rels = append(g.rels, Relation{From: parentID, To: t.ID, Kind: kind})

		if b := g.activeBranch(); b != nil && b.Tip() == parentID {
			b.Turns = append(b.Turns, t.ID)
		}
	}

	logging.Graph("added turn %s (parent=%q, %d code refs)", t.ID, parentID, len(t.CodeBlocks))
	return t.clone(), nil
}

// startBranch opens an active branch rooted at a new root turn.
func (g *Graph) startBranch(root *Turn) {
	name := "main"
	if len(g.branches) > 0 {
		name = g.defaultBranchName()
	}
	b := &Branch{
		ID:         uuid.NewString(),
		Name:       name,
		RootTurnID: root.ID,
		CreatedAt:  root.CreatedAt,
		Turns:      []string{root.ID},
	}
	g.addBranch(b)
}

// inheritedRefs returns the code refs of the nearest turn at or above id
// that carries any.
func (g *Graph) inheritedRefs(id string) []codeblock.Ref {
	for id != "" {
		t := g.turns[id]
		if len(t.CodeBlocks) > 0 {
			return append([]codeblock.Ref(nil), t.CodeBlocks...)
		}
		id = t.ParentID
	}
	return nil
}

// resolveParent returns the parent AddTurn attaches to: the explicit
// ParentID, else the active branch tip unless Root is set.
func (g *Graph) resolveParent(in TurnInput) (string, error) {
	if in.ParentID != "" {
		if _, ok := g.turns[in.ParentID]; !ok {
			return "", types.NotFound("turn", in.ParentID)
		}
		return in.ParentID, nil
	}
	if in.Root {
		return "", nil
	}
	if b := g.activeBranch(); b != nil {
		return b.Tip(), nil
	}
	return "", nil
}

// EditLanguage reports the language AddTurn would restrict extraction to
// for in, or "" when every language in the response is versioned.
func (g *Graph) EditLanguage(in TurnInput) (string, error) {
	parentID, err := g.resolveParent(in)
	if err != nil {
		return "", err
	}
	return editLanguage(in.Prompt, in.EditAction, in.EditTarget, g.inheritedRefs(parentID)), nil
}

// editLanguage restricts extraction only for a real single-language edit:
// the target names a language, the prompt names no other language, and the
// request either carries an edit action or follows up on an existing block
// of that language. Creation prompts that mention languages are never
// restricted.
func editLanguage(prompt, editAction, editTarget string, refs []codeblock.Ref) string {
	if editTarget == "" {
		return ""
	}
	lang := codeblock.NormalizeLanguage(editTarget)

	inherited := false
	for _, r := range refs {
		if r.Language == lang {
			inherited = true
			break
		}
	}
	if _, known := knownLanguages[lang]; !known && !inherited {
		return ""
	}

	mentioned := mentionedLanguages(prompt)
	if len(mentioned) > 1 {
		return ""
	}
	if len(mentioned) == 1 && !mentioned[lang] {
		return ""
	}
	if (editAction == "" || editAction == ActionModify) && !inherited {
		return ""
	}
	return lang
}

// Turn returns a copy of one turn.
func (g *Graph) Turn(id string) (*Turn, error) {
	t, ok := g.turns[id]
	if !ok {
		return nil, types.NotFound("turn", id)
	}
	return t.clone(), nil
}

// Turns returns every turn in creation order.
func (g *Graph) Turns() []*Turn {
	out := make([]*Turn, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.turns[id].clone())
	}
	return out
}

// Children returns the direct follow-ons of a turn in creation order.
func (g *Graph) Children(id string) ([]*Turn, error) {
	if _, ok := g.turns[id]; !ok {
		return nil, types.NotFound("turn", id)
	}
	out := make([]*Turn, 0, len(g.children[id]))
	for _, c := range g.children[id] {
		out = append(out, g.turns[c].clone())
	}
	return out, nil
}

// Descendants returns every turn whose parent chain passes through id, in
// creation order. id itself is excluded.
func (g *Graph) Descendants(id string) ([]*Turn, error) {
	if _, ok := g.turns[id]; !ok {
		return nil, types.NotFound("turn", id)
	}
	under := make(map[string]bool)
	queue := append([]string(nil), g.children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		under[next] = true
		queue = append(queue, g.children[next]...)
	}

	var out []*Turn
	for _, tid := range g.order {
		if under[tid] {
			out = append(out, g.turns[tid].clone())
		}
	}
	return out, nil
}

// Ancestors returns the turns above id, root first. id itself is excluded.
func (g *Graph) Ancestors(id string) ([]*Turn, error) {
	path, err := g.path(id)
	if err != nil {
		return nil, err
	}
	out := make([]*Turn, 0, len(path)-1)
	for _, tid := range path[:len(path)-1] {
		out = append(out, g.turns[tid].clone())
	}
	return out, nil
}

// path returns the ids from the root down to id inclusive.
func (g *Graph) path(id string) ([]string, error) {
	t, ok := g.turns[id]
	if !ok {
		return nil, types.NotFound("turn", id)
	}
	var rev []string
	for ; t != nil; t = g.turns[t.ParentID] {
		rev = append(rev, t.ID)
		if t.ParentID == "" {
			break
		}
	}
	out := make([]string, len(rev))
	for i, tid := range rev {
		out[len(rev)-1-i] = tid
	}
	return out, nil
}

// Relations returns every relation touching id, in recording order.
func (g *Graph) Relations(id string) []Relation {
	var out []Relation
	for _, r := range g.rels {
		if r.From == id || r.To == id {
			out = append(out, r)
		}
	}
	return out
}

// AddRelation records an extra annotation such as a reference or merge.
func (g *Graph) AddRelation(from, to string, kind RelationKind) error {
	if !kind.Valid() {
		return types.Invalid("unknown relation kind %q", kind)
	}
	if _, ok := g.turns[from]; !ok {
		return types.NotFound("turn", from)
	}
	if _, ok := g.turns[to]; !ok {
		return types.NotFound("turn", to)
	}
	if from == to {
		return types.Invalid("turn %s cannot relate to itself", from)
	}
	for _, r := range g.rels {
		if r == (Relation{From: from, To: to, Kind: kind}) {
			return nil
		}
	}
	g.rels = append(g.rels, Relation{From: from, To: to, Kind: kind})
	logging.GraphDebug("relation %s -[%s]-> %s", from, kind, to)
	return nil
}

// AttachMemory associates an external memory entry with a turn.
func (g *Graph) AttachMemory(turnID, memoryID string) error {
	t, ok := g.turns[turnID]
	if !ok {
		return types.NotFound("turn", turnID)
	}
	if memoryID == "" {
		return types.Invalid("memory id required")
	}
	for _, m := range t.MemoryIDs {
		if m == memoryID {
			return nil
		}
	}
	t.MemoryIDs = append(t.MemoryIDs, memoryID)
	return nil
}
