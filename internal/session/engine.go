// Package session implements the exchange loop that closes the circle
// between the stores, retrieval, prompt composition and a provider.
//
//	Prompt → Intent → Retrieve → Compose → Provider → AddTurn → Persist
//
// An Engine owns one graph and one block store. Everything is constructed
// explicitly in New and loaded explicitly in Initialize.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeloom/internal/codeblock"
	"codeloom/internal/config"
	"codeloom/internal/conversation"
	"codeloom/internal/logging"
	"codeloom/internal/memory"
	"codeloom/internal/prompt"
	"codeloom/internal/provider"
	"codeloom/internal/retrieval"
	"codeloom/internal/types"

	"github.com/google/uuid"
)

// Deps are the external collaborators of an engine.
type Deps struct {
	Provider provider.Provider

	// Memory may be nil, which disables persistence and memory recall.
	Memory memory.Store

	// SessionName keys the persisted graph. Defaults to "default".
	SessionName string
}

// Engine serializes exchanges for one session.
type Engine struct {
	mu sync.Mutex

	id   string
	name string
	cfg  *config.Config

	blocks    *codeblock.Store
	graph     *conversation.Graph
	retriever *retrieval.Retriever
	provider  provider.Provider
	mem       memory.Store
	audit     *logging.AuditLogger

	initialized bool
}

// New wires an engine. Call Initialize before the first Exchange.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("session requires a provider")
	}
	name := deps.SessionName
	if name == "" {
		name = "default"
	}

	blocks := codeblock.NewStore(deps.Memory)
	graph := conversation.NewGraph(blocks)
	id := uuid.NewString()

	logging.Session("creating session %s (%s) with provider %s", name, id, deps.Provider.Name())
	return &Engine{
		id:        id,
		name:      name,
		cfg:       cfg,
		blocks:    blocks,
		graph:     graph,
		retriever: retrieval.NewRetriever(graph, blocks, deps.Memory),
		provider:  deps.Provider,
		mem:       deps.Memory,
		audit:     logging.Audit(id),
	}, nil
}

// Initialize loads persisted code blocks and the session graph. A failing
// memory backend is an error; an absent or unreadable graph starts fresh.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}

	if err := e.blocks.Initialize(ctx); err != nil {
		return err
	}
	if err := e.loadGraph(ctx); err != nil {
		return err
	}

	e.initialized = true
	e.audit.Log(logging.AuditEvent{EventType: logging.AuditSessionStart, Target: e.name, Success: true})
	logging.Session("session %s initialized: %d turns, %d blocks", e.name, len(e.graph.Turns()), len(e.blocks.Blocks()))
	return nil
}

// ID returns the per-process session id used in audit records.
func (e *Engine) ID() string { return e.id }

// Name returns the persisted session name.
func (e *Engine) Name() string { return e.name }

// Graph exposes the conversation graph. Callers must not mutate it while an
// Exchange is running.
func (e *Engine) Graph() *conversation.Graph { return e.graph }

// Blocks exposes the code block store under the same rule as Graph.
func (e *Engine) Blocks() *codeblock.Store { return e.blocks }

// ExchangeRequest is one user prompt.
type ExchangeRequest struct {
	Prompt string

	// ParentID continues from a specific turn instead of the active tip.
	ParentID string

	// Root starts a new conversation thread with no retrieved turns.
	Root bool

	// Model overrides the configured model.
	Model string

	// Preferences are appended to the configured preferences layer.
	Preferences string

	// Retrieval overrides the configured retrieval options.
	Retrieval *retrieval.Options
}

// ExchangeResult is everything an exchange produced.
type ExchangeResult struct {
	Turn     *conversation.Turn
	Intent   conversation.Intent
	Bundle   *retrieval.Bundle
	Prompt   *prompt.ComposedPrompt
	MemoryID string
	Duration time.Duration
}

// Exchange runs the loop:
//  1. Analyze the prompt's intent
//  2. Retrieve context anchored at the parent (or active tip)
//  3. Compose the complete prompt with the bundle as the memory layer
//  4. Generate with the provider
//  5. Record the turn, extracting and versioning code
//  6. Persist touched blocks, the exchange memory and the graph
//
// A provider failure returns ErrExternalService and records nothing.
func (e *Engine) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res, err := e.exchange(ctx, req)
	turnID := ""
	if res != nil {
		res.Duration = time.Since(start)
		turnID = res.Turn.ID
	}
	e.audit.ExchangeEnd(turnID, time.Since(start), err)
	return res, err
}

func (e *Engine) exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if !e.initialized {
		return nil, fmt.Errorf("session %s not initialized", e.name)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.Invalid("prompt required")
	}
	e.audit.Log(logging.AuditEvent{EventType: logging.AuditExchangeStart, Target: req.ParentID, Success: true})

	// 1. Intent
	intent := conversation.AnalyzeIntent(req.Prompt)
	logging.SessionDebug("intent: %s -> %s", intent.Action, intent.Target)

	// 2-3. Context and prompt
	bundle, composed, err := e.buildPrompt(ctx, req, intent)
	if err != nil {
		return nil, err
	}

	// 4. Provider
	model := req.Model
	if model == "" {
		model = e.cfg.Provider.Model
	}
	callStart := time.Now()
	resp, err := e.provider.Generate(ctx, provider.Request{
		Prompt:    composed.Text,
		Model:     model,
		MaxTokens: e.cfg.Provider.MaxTokens,
	})
	e.audit.LLMCall(model, resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(callStart), err)
	if err != nil {
		return nil, types.External(e.provider.Name(), err)
	}

	// 5. Turn
	in := turnInput(req, intent)
	in.Response = resp.Text
	in.Provider = e.provider.Name()
	in.Model = resp.Model
	in.Usage = conversation.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      resp.Usage.CostUSD,
	}
	turn, err := e.graph.AddTurn(ctx, in)
	if err != nil {
		return nil, err
	}

	// 6. Persistence, all best effort
	e.persistBlocks(ctx, turn)
	memoryID := e.rememberExchange(ctx, turn)
	if memoryID != "" {
		if err := e.graph.AttachMemory(turn.ID, memoryID); err != nil {
			return nil, err
		}
		turn.MemoryIDs = append(turn.MemoryIDs, memoryID)
	}
	e.saveGraph(ctx)

	logging.Session("turn %s recorded: %d code refs, %d+%d tokens",
		turn.ID, len(turn.CodeBlocks), turn.Usage.InputTokens, turn.Usage.OutputTokens)
	return &ExchangeResult{
		Turn:     turn,
		Intent:   intent,
		Bundle:   bundle,
		Prompt:   composed,
		MemoryID: memoryID,
	}, nil
}

// Preview composes the prompt an Exchange would send without calling the
// provider or recording anything.
func (e *Engine) Preview(ctx context.Context, req ExchangeRequest) (*retrieval.Bundle, *prompt.ComposedPrompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, nil, fmt.Errorf("session %s not initialized", e.name)
	}
	return e.buildPrompt(ctx, req, conversation.AnalyzeIntent(req.Prompt))
}

func (e *Engine) buildPrompt(ctx context.Context, req ExchangeRequest, intent conversation.Intent) (*retrieval.Bundle, *prompt.ComposedPrompt, error) {
	bundle := &retrieval.Bundle{}
	if !req.Root {
		opts := e.retrievalOptions(req.Retrieval)
		b, err := e.retriever.Retrieve(ctx, opts, req.ParentID)
		if err != nil {
			return nil, nil, err
		}
		bundle = b
		if bundle.Degraded {
			e.audit.Degraded("memory_search", nil)
		} else if len(bundle.Memories) > 0 {
			e.audit.Log(logging.AuditEvent{
				EventType: logging.AuditMemoryRecall,
				Success:   true,
				Fields:    map[string]interface{}{"count": len(bundle.Memories)},
			})
		}
	}

	editLang, err := e.graph.EditLanguage(turnInput(req, intent))
	if err != nil {
		return nil, nil, err
	}

	pc := e.cfg.Prompt
	composer := prompt.NewComposer(pc.MaxTokens)
	composed, err := composer.CreateCompletePrompt(prompt.CompleteOptions{
		System:       pc.SystemPrompt,
		Task:         taskText(req.Prompt, editLang),
		Preferences:  joinNonEmpty(pc.Preferences, req.Preferences),
		MemoryHeader: memoryHeader(bundle),
		Memories:     bundleEntries(bundle),
		Priorities: prompt.Priorities{
			System:      prompt.Priority(pc.SystemPriority),
			Task:        prompt.Priority(pc.TaskPriority),
			Preferences: prompt.Priority(pc.PreferencesPriority),
			Memory:      prompt.Priority(pc.MemoryPriority),
		},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(composed.Excluded) > 0 {
		logging.SessionWarn("prompt over budget: %d layers excluded", len(composed.Excluded))
	}
	return bundle, composed, nil
}

// turnInput carries the request and its intent into a TurnInput. The
// default action and target are left empty.
func turnInput(req ExchangeRequest, intent conversation.Intent) conversation.TurnInput {
	in := conversation.TurnInput{
		Prompt:   req.Prompt,
		ParentID: req.ParentID,
		Root:     req.Root,
	}
	if intent.Action != conversation.ActionModify {
		in.EditAction = intent.Action
	}
	if intent.Target != conversation.DefaultTarget {
		in.EditTarget = intent.Target
	}
	return in
}

func (e *Engine) retrievalOptions(override *retrieval.Options) retrieval.Options {
	if override != nil {
		return *override
	}
	rc := e.cfg.Retrieval
	return retrieval.Options{
		TurnLimit:           rc.TurnLimit,
		IncludeCodeBlocks:   rc.IncludeCodeBlocks,
		CodeBlockLimit:      rc.CodeBlockLimit,
		IncludeMemories:     rc.IncludeMemories,
		MemoryTypes:         rc.MemoryTypes,
		MaxMemories:         rc.MaxMemories,
		SimilarityThreshold: rc.SimilarityThreshold,
	}
}

func (e *Engine) persistBlocks(ctx context.Context, turn *conversation.Turn) {
	for _, ref := range turn.CodeBlocks {
		v := e.blocks.Version(ref.BlockID, ref.VersionID)
		if v == nil || v.TurnID != turn.ID {
			continue
		}
		if err := e.blocks.Persist(ctx, ref.BlockID); err != nil {
			e.audit.Degraded("block_persist", err)
			continue
		}
		e.audit.Log(logging.AuditEvent{EventType: logging.AuditBlockVersion, Target: ref.BlockID, Success: true,
			Fields: map[string]interface{}{"version": ref.VersionID, "language": ref.Language}})
	}
}

func (e *Engine) rememberExchange(ctx context.Context, turn *conversation.Turn) string {
	if e.mem == nil {
		return ""
	}
	content := fmt.Sprintf("User: %s\nAssistant: %s", turn.Prompt, codeblock.StripCodeSections(turn.Response))
	entry, err := e.mem.Add(ctx, memory.CollectionConversation, content, memory.Metadata{
		Type:   "exchange",
		Source: e.name,
		TurnID: turn.ID,
		Tags:   turn.Tags,
	})
	if err != nil {
		logging.SessionWarn("storing exchange memory failed: %v", err)
		e.audit.Degraded("memory_add", err)
		return ""
	}
	return entry.ID
}
