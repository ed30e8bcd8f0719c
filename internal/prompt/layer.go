// Package prompt composes prioritized content layers into one prompt text
// under a token ceiling.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LayerKind tags a layer. The set is closed.
type LayerKind string

const (
	KindSystem      LayerKind = "system"
	KindTask        LayerKind = "task"
	KindMemory      LayerKind = "memory"
	KindPreferences LayerKind = "preferences"
	KindAdhoc       LayerKind = "adhoc"
)

// Valid reports whether k is a known kind.
func (k LayerKind) Valid() bool {
	switch k {
	case KindSystem, KindTask, KindMemory, KindPreferences, KindAdhoc:
		return true
	}
	return false
}

// MemoryEntry is one structured item in a memory layer.
type MemoryEntry struct {
	Type      string
	Source    string
	Timestamp time.Time
	Content   string

	// Relevance is nil when the entry was not scored.
	Relevance *float64
}

// MemorySection holds the entries of a memory layer.
type MemorySection struct {
	entries []MemoryEntry
}

// Add appends an entry.
func (m *MemorySection) Add(e MemoryEntry) {
	m.entries = append(m.entries, e)
}

// Entries returns the entries in insertion order.
func (m *MemorySection) Entries() []MemoryEntry {
	return append([]MemoryEntry(nil), m.entries...)
}

// Len returns the number of entries.
func (m *MemorySection) Len() int { return len(m.entries) }

// Clear drops every entry.
func (m *MemorySection) Clear() { m.entries = nil }

// render orders scored entries by descending relevance ahead of unscored
// ones, which keep insertion order.
func (m *MemorySection) render() string {
	if len(m.entries) == 0 {
		return ""
	}
	sorted := m.Entries()
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Relevance, sorted[j].Relevance
		switch {
		case ri != nil && rj != nil:
			return *ri > *rj
		case ri != nil:
			return true
		default:
			return false
		}
	})

	blocks := make([]string, 0, len(sorted))
	for _, e := range sorted {
		blocks = append(blocks, formatEntry(e))
	}
	return strings.Join(blocks, "\n\n")
}

func formatEntry(e MemoryEntry) string {
	typ := strings.ToUpper(e.Type)
	if typ == "" {
		typ = "NOTE"
	}
	source := e.Source
	if source == "" {
		source = "unknown"
	}
	if e.Timestamp.IsZero() {
		return fmt.Sprintf("[%s] (%s): %s", typ, source, e.Content)
	}
	return fmt.Sprintf("[%s] (%s, %s): %s", typ, source, e.Timestamp.UTC().Format(time.RFC3339), e.Content)
}

// Layer is one prioritized slice of prompt content. Layers are created and
// mutated through a Composer.
type Layer struct {
	id       string
	kind     LayerKind
	priority int
	enabled  bool
	content  string
	seq      uint64

	// memory is non-nil only for KindMemory.
	memory *MemorySection
}

func (l *Layer) ID() string { return l.id }
func (l *Layer) Kind() LayerKind { return l.kind }
func (l *Layer) Priority() int { return l.priority }
func (l *Layer) Enabled() bool { return l.enabled }
func (l *Layer) Content() string { return l.content }

// Memory returns the entry section of a memory layer, or nil for any other
// kind.
func (l *Layer) Memory() *MemorySection {
	return l.memory
}

// Render returns the text this layer contributes. A memory layer renders
// its content as a header followed by its entries.
func (l *Layer) Render() string {
	if l.memory == nil {
		return l.content
	}
	entries := l.memory.render()
	switch {
	case entries == "":
		return l.content
	case l.content == "":
		return entries
	default:
		return l.content + "\n\n" + entries
	}
}
