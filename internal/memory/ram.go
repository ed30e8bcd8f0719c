package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codeloom/internal/logging"
	"codeloom/internal/types"

	"github.com/google/uuid"
)

// RAMStore keeps entries in process memory. Safe for concurrent use.
type RAMStore struct {
	mu       sync.RWMutex
	entries  map[string][]Entry
	vectors  map[string][]float32
	embedder Embedder
	now      func() time.Time
}

// NewRAMStore returns an empty store. embedder may be nil.
func NewRAMStore(embedder Embedder) *RAMStore {
	return &RAMStore{
		entries:  make(map[string][]Entry),
		vectors:  make(map[string][]float32),
		embedder: embedder,
		now:      time.Now,
	}
}

// Add stores content, replacing an entry with the same metadata key.
func (s *RAMStore) Add(ctx context.Context, collection, content string, meta Metadata) (Entry, error) {
	if collection == "" {
		return Entry{}, types.Invalid("memory collection required")
	}
	if content == "" {
		return Entry{}, types.Invalid("memory content required")
	}

	var vec []float32
	if s.embedder != nil && !meta.NoEmbed {
		v, err := s.embedder.Embed(ctx, content)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("embedding failed, storing without vector: %v", err)
		} else {
			vec = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		ID:         uuid.NewString(),
		Collection: collection,
		Content:    content,
		Metadata:   meta,
		CreatedAt:  s.now(),
	}
	list := s.entries[collection]
	if meta.Key != "" {
		for i := range list {
			if list[i].Metadata.Key == meta.Key {
				delete(s.vectors, list[i].ID)
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	s.entries[collection] = append(list, e)
	if vec != nil {
		s.vectors[e.ID] = vec
	}
	logging.MemoryDebug("ram add %s/%s (%d bytes)", collection, e.ID, len(content))
	return e, nil
}

// Search scores entries in the collection against the query.
func (s *RAMStore) Search(ctx context.Context, collection string, q Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, types.External("memory search", err)
	}

	var qvec []float32
	if q.Text != "" && s.embedder != nil {
		v, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("query embedding failed, using keyword scoring: %v", err)
		} else {
			qvec = v
		}
	}

	s.mu.RLock()
	var matched []Entry
	for _, e := range s.entries[collection] {
		if !typeAllowed(q.Types, e.Metadata.Type) {
			continue
		}
		if q.Text != "" {
			if vec, ok := s.vectors[e.ID]; ok && qvec != nil {
				e.Relevance = score(cosine(qvec, vec))
			} else {
				e.Relevance = score(keywordScore(q.Text, e.Content))
			}
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return rank(matched, q), nil
}

// Get returns one entry by id.
func (s *RAMStore) Get(_ context.Context, collection, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries[collection] {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, types.NotFound(fmt.Sprintf("memory entry in %s", collection), id)
}
