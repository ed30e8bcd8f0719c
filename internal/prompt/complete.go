package prompt

// Priorities are the layer priorities used by CreateCompletePrompt. A nil
// field takes its default; any set value, including 0, is used as given.
type Priorities struct {
	System      *int
	Task        *int
	Preferences *int
	Memory      *int
}

// Priority returns a pointer to p for use in Priorities.
func Priority(p int) *int { return &p }

// DefaultPriorities returns system 1000, task 800, preferences 600,
// memory 400.
func DefaultPriorities() Priorities {
	return Priorities{System: Priority(1000), Task: Priority(800), Preferences: Priority(600), Memory: Priority(400)}
}

type resolvedPriorities struct {
	system, task, preferences, memory int
}

func (p Priorities) resolve() resolvedPriorities {
	d := DefaultPriorities()
	pick := func(v, def *int) int {
		if v != nil {
			return *v
		}
		return *def
	}
	return resolvedPriorities{
		system:      pick(p.System, d.System),
		task:        pick(p.Task, d.Task),
		preferences: pick(p.Preferences, d.Preferences),
		memory:      pick(p.Memory, d.Memory),
	}
}

// CompleteOptions feeds CreateCompletePrompt. Empty fields create no layer.
type CompleteOptions struct {
	System      string
	Task        string
	Preferences string

	// MemoryHeader heads the memory layer; Memories are its entries.
	MemoryHeader string
	Memories     []MemoryEntry

	Priorities Priorities
}

// CreateCompletePrompt creates the standard layers from opts and composes
// the whole registry.
func (c *Composer) CreateCompletePrompt(opts CompleteOptions) (*ComposedPrompt, error) {
	p := opts.Priorities.resolve()

	for _, l := range []struct {
		kind     LayerKind
		content  string
		priority int
	}{
		{KindSystem, opts.System, p.system},
		{KindTask, opts.Task, p.task},
		{KindPreferences, opts.Preferences, p.preferences},
	} {
		if l.content == "" {
			continue
		}
		if _, err := c.CreateLayer(l.kind, l.content, l.priority); err != nil {
			return nil, err
		}
	}

	if opts.MemoryHeader != "" || len(opts.Memories) > 0 {
		id, err := c.CreateLayer(KindMemory, opts.MemoryHeader, p.memory)
		if err != nil {
			return nil, err
		}
		mem := c.layers[id].Memory()
		for _, e := range opts.Memories {
			mem.Add(e)
		}
	}

	return c.Compose(nil)
}
