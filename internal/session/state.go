package session

import (
	"context"
	"encoding/json"

	"codeloom/internal/conversation"
	"codeloom/internal/logging"
	"codeloom/internal/memory"
	"codeloom/internal/types"
)

const graphType = "session_graph"

// loadGraph restores the newest persisted graph for this session name.
func (e *Engine) loadGraph(ctx context.Context) error {
	if e.mem == nil {
		return nil
	}
	res, err := e.mem.Search(ctx, memory.CollectionSessions, memory.Query{Types: []string{graphType}})
	if err != nil {
		return types.External("load session graph", err)
	}

	for i := len(res.Entries) - 1; i >= 0; i-- {
		entry := res.Entries[i]
		if entry.Metadata.Key != e.name {
			continue
		}
		var snap conversation.Snapshot
		if err := json.Unmarshal([]byte(entry.Content), &snap); err != nil {
			logging.SessionWarn("session %s graph unreadable, starting fresh: %v", e.name, err)
			return nil
		}
		if err := e.graph.Restore(&snap); err != nil {
			logging.SessionWarn("session %s graph invalid, starting fresh: %v", e.name, err)
			return nil
		}
		logging.Session("restored session %s: %d turns, %d branches", e.name, len(snap.Turns), len(snap.Branches))
		return nil
	}
	return nil
}

// saveGraph writes the graph snapshot. Failures are logged only.
func (e *Engine) saveGraph(ctx context.Context) {
	if e.mem == nil {
		return
	}
	data, err := json.Marshal(e.graph.Snapshot())
	if err != nil {
		logging.SessionWarn("encoding session graph: %v", err)
		return
	}
	if _, err := e.mem.Add(ctx, memory.CollectionSessions, string(data), memory.Metadata{
		Type:    graphType,
		Key:     e.name,
		NoEmbed: true,
	}); err != nil {
		logging.SessionWarn("saving session graph: %v", err)
		e.audit.Degraded("graph_save", err)
	}
}

// SetActiveBranch switches branches and persists the change.
func (e *Engine) SetActiveBranch(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.SetActiveBranch(id) {
		return types.NotFound("branch", id)
	}
	e.audit.Log(logging.AuditEvent{EventType: logging.AuditBranchSwitch, Target: id, Success: true})
	e.saveGraph(ctx)
	return nil
}

// CreateBranch forks at turnID, activates the branch and persists it.
func (e *Engine) CreateBranch(ctx context.Context, turnID, name, description string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := e.graph.CreateBranch(turnID, name, description)
	if err != nil {
		return "", err
	}
	e.audit.Log(logging.AuditEvent{EventType: logging.AuditBranchSwitch, Target: id, Success: true})
	e.saveGraph(ctx)
	return id, nil
}

// DeleteBranch removes a branch and persists the change.
func (e *Engine) DeleteBranch(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.graph.DeleteBranch(id); err != nil {
		return err
	}
	e.saveGraph(ctx)
	return nil
}
