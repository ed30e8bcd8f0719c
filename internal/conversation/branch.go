package conversation

import (
	"fmt"

	"codeloom/internal/logging"
	"codeloom/internal/types"

	"github.com/google/uuid"
)

// CreateBranch forks at turnID. The branch's path is root..turnID and it
// becomes the active branch. An empty name defaults to branch-N.
func (g *Graph) CreateBranch(turnID, name, description string) (string, error) {
	path, err := g.path(turnID)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = g.defaultBranchName()
	}
	b := &Branch{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		RootTurnID:  path[0],
		CreatedAt:   g.now(),
		Turns:       path,
	}
	g.addBranch(b)
	return b.ID, nil
}

func (g *Graph) addBranch(b *Branch) {
	g.branches[b.ID] = b
	g.branchOrder = append(g.branchOrder, b.ID)
	g.activate(b.ID)
	logging.Graph("branch %s (%s) created at %s", b.ID, b.Name, b.Tip())
}

func (g *Graph) defaultBranchName() string {
	n := len(g.branchOrder) + 1
	for {
		name := fmt.Sprintf("branch-%d", n)
		if g.BranchByName(name) == nil {
			return name
		}
		n++
	}
}

func (g *Graph) activate(id string) {
	if prev, ok := g.branches[g.active]; ok {
		prev.Active = false
	}
	g.branches[id].Active = true
	g.active = id
}

func (g *Graph) activeBranch() *Branch {
	return g.branches[g.active]
}

// SetActiveBranch switches the active branch. False if id is unknown.
func (g *Graph) SetActiveBranch(id string) bool {
	if _, ok := g.branches[id]; !ok {
		return false
	}
	if g.active != id {
		g.activate(id)
		logging.Graph("active branch is now %s", id)
	}
	return true
}

// ActiveBranch returns a copy of the active branch, or nil before any
// branch exists.
func (g *Graph) ActiveBranch() *Branch {
	if b := g.activeBranch(); b != nil {
		return b.clone()
	}
	return nil
}

// Branch returns a copy of one branch.
func (g *Graph) Branch(id string) (*Branch, error) {
	b, ok := g.branches[id]
	if !ok {
		return nil, types.NotFound("branch", id)
	}
	return b.clone(), nil
}

// BranchByName returns the first branch with the given name, or nil.
func (g *Graph) BranchByName(name string) *Branch {
	for _, id := range g.branchOrder {
		if b := g.branches[id]; b.Name == name {
			return b.clone()
		}
	}
	return nil
}

// Branches returns copies of all branches in creation order.
func (g *Graph) Branches() []*Branch {
	out := make([]*Branch, 0, len(g.branchOrder))
	for _, id := range g.branchOrder {
		out = append(out, g.branches[id].clone())
	}
	return out
}

// DeleteBranch removes a branch. Turns are kept. When the active branch is
// removed the most recently created remaining branch becomes active.
func (g *Graph) DeleteBranch(id string) error {
	if _, ok := g.branches[id]; !ok {
		return types.NotFound("branch", id)
	}
	delete(g.branches, id)
	for i, bid := range g.branchOrder {
		if bid == id {
			g.branchOrder = append(g.branchOrder[:i], g.branchOrder[i+1:]...)
			break
		}
	}

	if g.active == id {
		g.active = ""
		if n := len(g.branchOrder); n > 0 {
			g.activate(g.branchOrder[n-1])
		}
	}
	logging.Graph("branch %s deleted, active=%q", id, g.active)
	return nil
}
