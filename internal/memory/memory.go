// Package memory defines the external memory interface the engine consumes
// and two adapters for it: an in-process RAM store and a SQLite store.
//
// The engine treats memory as an opaque key/value+search service. Similarity
// scoring and thresholding happen here, never in the engine.
package memory

import (
	"context"
	"time"
)

// Well-known collections.
const (
	CollectionConversation = "conversation"
	CollectionCodeBlocks   = "code_blocks"
	CollectionPreferences  = "preferences"
	CollectionSessions     = "sessions"
)

// Metadata describes a stored entry.
type Metadata struct {
	// Type classifies the entry: exchange, code_block, preference, fact, ...
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
	TurnID string `json:"turn_id,omitempty"`

	// Key makes Add an upsert: an existing entry with the same key in the
	// collection is replaced.
	Key string `json:"key,omitempty"`

	// NoEmbed stores the entry without a vector. Used for snapshots that
	// are only ever looked up by type and key.
	NoEmbed bool `json:"no_embed,omitempty"`

	Tags       []string          `json:"tags,omitempty"`
	Importance float64           `json:"importance,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Entry is one stored memory.
type Entry struct {
	ID         string
	Collection string
	Content    string
	Metadata   Metadata
	CreatedAt  time.Time

	// Relevance is set by Search when the query carried text.
	Relevance *float64
}

// Query selects entries from a collection.
type Query struct {
	// Text is scored against entry content. Empty text matches everything
	// unscored, in insertion order.
	Text string

	// Types restricts results to the listed metadata types.
	Types []string

	// MaxResults caps the returned entries; 0 means no cap.
	MaxResults int

	// Threshold drops scored entries with relevance below it.
	Threshold float64
}

// Result is a search outcome. TotalCount counts matches before MaxResults.
type Result struct {
	Entries    []Entry
	TotalCount int
}

// Store is the memory interface consumed by the engine.
type Store interface {
	Search(ctx context.Context, collection string, q Query) (Result, error)
	Add(ctx context.Context, collection, content string, meta Metadata) (Entry, error)
}

// Embedder produces vector embeddings for semantic scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

func typeAllowed(types []string, t string) bool {
	if len(types) == 0 {
		return true
	}
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
