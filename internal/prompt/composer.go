package prompt

import (
	"sort"
	"strings"

	"codeloom/internal/logging"
	"codeloom/internal/types"

	"github.com/google/uuid"
)

// Priority bounds accepted by CreateLayer and SetPriority.
const (
	MinPriority = 0
	MaxPriority = 1000
)

// LayerFilter narrows Compose to a subset of the enabled layers. The zero
// value matches every layer.
type LayerFilter struct {
	Kinds       []LayerKind
	MinPriority int
}

func (f *LayerFilter) validate() error {
	if f == nil {
		return nil
	}
	for _, k := range f.Kinds {
		if !k.Valid() {
			return types.Invalid("filter: unknown layer kind %q", k)
		}
	}
	if f.MinPriority < MinPriority || f.MinPriority > MaxPriority {
		return types.Invalid("filter: min priority %d outside %d..%d", f.MinPriority, MinPriority, MaxPriority)
	}
	return nil
}

func (f *LayerFilter) match(l *Layer) bool {
	if f == nil {
		return true
	}
	if l.priority < f.MinPriority {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == l.kind {
			return true
		}
	}
	return false
}

// ComposedPrompt is the result of one Compose call.
type ComposedPrompt struct {
	Text string

	// Used lists the ids of layers in Text, in composition order.
	Used []string

	// Excluded lists the ids of layers dropped for the budget, lowest
	// priority first.
	Excluded []string

	TokenCount int
}

// Composer is a registry of layers plus a token ceiling. It assumes a
// single writer.
type Composer struct {
	layers    map[string]*Layer
	seq       uint64
	maxTokens int
}

// NewComposer returns an empty registry. maxTokens <= 0 means unbounded.
func NewComposer(maxTokens int) *Composer {
	return &Composer{layers: make(map[string]*Layer), maxTokens: maxTokens}
}

// CreateLayer registers an enabled layer and returns its id.
func (c *Composer) CreateLayer(kind LayerKind, content string, priority int) (string, error) {
	if !kind.Valid() {
		return "", types.Invalid("unknown layer kind %q", kind)
	}
	if err := checkPriority(priority); err != nil {
		return "", err
	}
	c.seq++
	l := &Layer{
		id:       uuid.NewString(),
		kind:     kind,
		priority: priority,
		enabled:  true,
		content:  content,
		seq:      c.seq,
	}
	if kind == KindMemory {
		l.memory = &MemorySection{}
	}
	c.layers[l.id] = l
	logging.PromptDebug("layer %s (%s, p=%d, %d bytes) created", l.id, kind, priority, len(content))
	return l.id, nil
}

func checkPriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return types.Invalid("priority %d outside %d..%d", p, MinPriority, MaxPriority)
	}
	return nil
}

// Layer returns the live layer so kind-specific operations such as
// Memory().Add can be applied.
func (c *Composer) Layer(id string) (*Layer, error) {
	l, ok := c.layers[id]
	if !ok {
		return nil, types.NotFound("layer", id)
	}
	return l, nil
}

// SetContent replaces a layer's content.
func (c *Composer) SetContent(id, content string) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	l.content = content
	return nil
}

// SetPriority changes a layer's priority. Creation order still breaks ties.
func (c *Composer) SetPriority(id string, priority int) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	if err := checkPriority(priority); err != nil {
		return err
	}
	l.priority = priority
	return nil
}

// SetEnabled toggles whether a layer takes part in composition.
func (c *Composer) SetEnabled(id string, enabled bool) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	l.enabled = enabled
	return nil
}

// RemoveLayer unregisters a layer.
func (c *Composer) RemoveLayer(id string) error {
	if _, ok := c.layers[id]; !ok {
		return types.NotFound("layer", id)
	}
	delete(c.layers, id)
	return nil
}

// ClearLayers unregisters every layer.
func (c *Composer) ClearLayers() {
	c.layers = make(map[string]*Layer)
}

// Layers returns every layer in composition order.
func (c *Composer) Layers() []*Layer {
	out := make([]*Layer, 0, len(c.layers))
	for _, l := range c.layers {
		out = append(out, l)
	}
	sortLayers(out)
	return out
}

// SetMaxTokens changes the budget. n <= 0 removes it.
func (c *Composer) SetMaxTokens(n int) { c.maxTokens = n }

// MaxTokens returns the current budget, 0 when unbounded.
func (c *Composer) MaxTokens() int {
	if c.maxTokens < 0 {
		return 0
	}
	return c.maxTokens
}

// sortLayers orders by priority descending, then creation order.
func sortLayers(ls []*Layer) {
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].priority != ls[j].priority {
			return ls[i].priority > ls[j].priority
		}
		return ls[i].seq < ls[j].seq
	})
}

const layerSeparator = "\n\n"

// Compose merges the enabled layers matching filter. Layers are dropped
// whole, lowest priority and then latest created first, until the text fits
// the budget. The output depends only on the layer set and the budget.
// The only error is a malformed filter.
func (c *Composer) Compose(filter *LayerFilter) (*ComposedPrompt, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	var candidates []*Layer
	rendered := make(map[string]string)
	for _, l := range c.layers {
		if !l.enabled || !filter.match(l) {
			continue
		}
		text := l.Render()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rendered[l.id] = text
		candidates = append(candidates, l)
	}
	sortLayers(candidates)

	join := func(ls []*Layer) string {
		parts := make([]string, len(ls))
		for i, l := range ls {
			parts[i] = rendered[l.id]
		}
		return strings.Join(parts, layerSeparator)
	}

	kept := candidates
	text := join(kept)
	var excluded []string
	for budget := c.MaxTokens(); budget > 0 && len(kept) > 0 && EstimateTokens(text) > budget; {
		last := kept[len(kept)-1]
		excluded = append(excluded, last.id)
		kept = kept[:len(kept)-1]
		text = join(kept)
	}

	out := &ComposedPrompt{
		Text:       text,
		Used:       make([]string, len(kept)),
		Excluded:   excluded,
		TokenCount: EstimateTokens(text),
	}
	for i, l := range kept {
		out.Used[i] = l.id
	}
	if len(excluded) > 0 {
		logging.Prompt("composed %d layers (~%d tokens), excluded %d over budget %d",
			len(kept), out.TokenCount, len(excluded), c.maxTokens)
	} else {
		logging.PromptDebug("composed %d layers (~%d tokens)", len(kept), out.TokenCount)
	}
	return out, nil
}
