package codeblock

import (
	"context"
	"encoding/json"
	"fmt"

	"codeloom/internal/logging"
	"codeloom/internal/memory"
	"codeloom/internal/types"
)

const snapshotType = "code_block"

// Initialize loads persisted block snapshots from the memory collection.
// Snapshots that fail to decode or violate version lineage are skipped and
// logged. A failing backing store is returned as ErrExternalService.
func (s *Store) Initialize(ctx context.Context) error {
	if s.mem == nil {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryCodeBlock, "Initialize")
	defer timer.Stop()

	res, err := s.mem.Search(ctx, memory.CollectionCodeBlocks, memory.Query{
		Types: []string{snapshotType},
	})
	if err != nil {
		return types.External("load code blocks", err)
	}

	loaded := 0
	for _, e := range res.Entries {
		var b Block
		if err := json.Unmarshal([]byte(e.Content), &b); err != nil {
			logging.CodeBlockWarn("skipping undecodable snapshot %s: %v", e.ID, err)
			continue
		}
		if err := validateLineage(&b); err != nil {
			logging.CodeBlockWarn("skipping snapshot %s: %v", e.ID, err)
			continue
		}
		if _, exists := s.blocks[b.ID]; !exists {
			s.order = append(s.order, b.ID)
		}
		s.blocks[b.ID] = &b
		loaded++
	}

	logging.CodeBlock("loaded %d of %d persisted blocks", loaded, len(res.Entries))
	return nil
}

// Persist writes a snapshot of one block to memory, replacing any earlier
// snapshot of the same block.
func (s *Store) Persist(ctx context.Context, blockID string) error {
	b, ok := s.blocks[blockID]
	if !ok {
		return types.NotFound("code block", blockID)
	}
	if s.mem == nil {
		return nil
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode block %s: %w", blockID, err)
	}
	_, err = s.mem.Add(ctx, memory.CollectionCodeBlocks, string(data), memory.Metadata{
		Type:    snapshotType,
		Source:  b.Language,
		Key:     b.ID,
		Tags:    b.Tags,
		NoEmbed: true,
	})
	if err != nil {
		logging.CodeBlockWarn("persist block %s failed: %v", blockID, err)
		return types.External("persist code block", err)
	}
	logging.CodeBlockDebug("persisted block %s (%d versions)", blockID, len(b.Versions))
	return nil
}

// validateLineage checks that the current pointer resolves and every parent
// chain ends at a parentless version without revisiting a version.
func validateLineage(b *Block) error {
	if b.ID == "" || len(b.Versions) == 0 {
		return fmt.Errorf("block %q has no versions", b.ID)
	}
	if b.Current() == nil {
		return fmt.Errorf("block %s: current version %s missing", b.ID, b.CurrentVersionID)
	}
	for i := range b.Versions {
		seen := make(map[string]bool)
		for v := &b.Versions[i]; v.ParentVersionID != ""; {
			if seen[v.ID] {
				return fmt.Errorf("block %s: version cycle at %s", b.ID, v.ID)
			}
			seen[v.ID] = true
			if v = b.version(v.ParentVersionID); v == nil {
				return fmt.Errorf("block %s: dangling parent version", b.ID)
			}
		}
	}
	return nil
}
