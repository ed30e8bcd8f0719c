package conversation

import (
	"fmt"
)

// Snapshot is the serializable state of a graph.
type Snapshot struct {
	Turns     []*Turn    `json:"turns"`
	Relations []Relation `json:"relations"`
	Branches  []*Branch  `json:"branches"`
	Active    string     `json:"active"`
}

// Snapshot copies the graph state. Turns and branches are in creation order.
func (g *Graph) Snapshot() *Snapshot {
	return &Snapshot{
		Turns:     g.Turns(),
		Relations: append([]Relation(nil), g.rels...),
		Branches:  g.Branches(),
		Active:    g.active,
	}
}

// Restore replaces the graph state with s after checking that every parent,
// branch path and relation endpoint resolves and that the active flag
// matches. On error the graph is left unchanged.
func (g *Graph) Restore(s *Snapshot) error {
	turns := make(map[string]*Turn, len(s.Turns))
	children := make(map[string][]string)
	order := make([]string, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.ID == "" {
			return fmt.Errorf("snapshot turn without id")
		}
		if t.ParentID != "" {
			if _, ok := turns[t.ParentID]; !ok {
				return fmt.Errorf("snapshot turn %s: parent %s missing or out of order", t.ID, t.ParentID)
			}
			children[t.ParentID] = append(children[t.ParentID], t.ID)
		}
		turns[t.ID] = t.clone()
		order = append(order, t.ID)
	}

	for _, r := range s.Relations {
		if turns[r.From] == nil || turns[r.To] == nil || !r.Kind.Valid() {
			return fmt.Errorf("snapshot relation %s -[%s]-> %s is invalid", r.From, r.Kind, r.To)
		}
	}

	branches := make(map[string]*Branch, len(s.Branches))
	branchOrder := make([]string, 0, len(s.Branches))
	for _, b := range s.Branches {
		for _, tid := range b.Turns {
			if turns[tid] == nil {
				return fmt.Errorf("snapshot branch %s: turn %s missing", b.ID, tid)
			}
		}
		c := b.clone()
		c.Active = b.ID == s.Active
		branches[b.ID] = c
		branchOrder = append(branchOrder, b.ID)
	}
	if len(branches) > 0 && branches[s.Active] == nil {
		return fmt.Errorf("snapshot active branch %q missing", s.Active)
	}

	g.turns = turns
	g.order = order
	g.children = children
	g.rels = append([]Relation(nil), s.Relations...)
	g.branches = branches
	g.branchOrder = branchOrder
	g.active = ""
	if len(branches) > 0 {
		g.active = s.Active
	}
	return nil
}
