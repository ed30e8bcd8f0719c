package session

import (
	"fmt"
	"strings"

	"codeloom/internal/prompt"
	"codeloom/internal/retrieval"
)

// taskText asks for a single artifact only when the exchange will version
// just that language.
func taskText(userPrompt, editLang string) string {
	if editLang == "" {
		return userPrompt
	}
	return fmt.Sprintf("%s\n\nReturn only the updated %s code.", userPrompt, editLang)
}

func memoryHeader(b *retrieval.Bundle) string {
	if b.Context == "" && len(b.Memories) == 0 {
		return ""
	}
	return "Context from this session:"
}

// bundleEntries turns the bundle into memory layer entries. Recalled
// memories carry a relevance and so render ahead of the session context.
func bundleEntries(b *retrieval.Bundle) []prompt.MemoryEntry {
	var out []prompt.MemoryEntry
	if b.Context != "" {
		out = append(out, prompt.MemoryEntry{Type: "context", Source: "conversation", Content: b.Context})
	}
	for _, m := range b.Memories {
		source := m.Metadata.Source
		if source == "" {
			source = m.Collection
		}
		out = append(out, prompt.MemoryEntry{
			Type:      m.Metadata.Type,
			Source:    source,
			Timestamp: m.CreatedAt,
			Content:   m.Content,
			Relevance: m.Relevance,
		})
	}
	return out
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
