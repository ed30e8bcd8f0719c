package codeblock

import (
	"fmt"
	"sort"
	"time"

	"codeloom/internal/diff"
	"codeloom/internal/logging"
	"codeloom/internal/memory"
	"codeloom/internal/types"

	"github.com/google/uuid"
)

// Store owns blocks and versions. It assumes a single writer per session;
// callers sharing one Store across goroutines must serialize access.
type Store struct {
	blocks map[string]*Block
	order  []string
	diffs  *diff.Engine
	mem    memory.Store
	now    func() time.Time
}

// NewStore returns an empty store. mem may be nil, which disables Persist
// and Initialize.
func NewStore(mem memory.Store) *Store {
	return &Store{
		blocks: make(map[string]*Block),
		diffs:  diff.NewEngine(3),
		mem:    mem,
		now:    time.Now,
	}
}

// CreateBlock allocates a block with one parentless version.
func (s *Store) CreateBlock(language, content, turnID string, meta Meta) (*Block, error) {
	language = NormalizeLanguage(language)
	if language == "" {
		return nil, types.Invalid("code block language required")
	}
	if content == "" {
		return nil, types.Invalid("code block content required")
	}

	created := s.now()
	b := &Block{
		ID:        uuid.NewString(),
		Language:  language,
		Filename:  meta.Filename,
		Purpose:   meta.Purpose,
		CreatedAt: created,
		Tags:      append([]string(nil), meta.Tags...),
	}
	v := Version{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: created,
		TurnID:    turnID,
	}
	b.Versions = []Version{v}
	b.CurrentVersionID = v.ID
	if turnID != "" {
		b.TurnIDs = []string{turnID}
	}

	s.blocks[b.ID] = b
	s.order = append(s.order, b.ID)
	logging.CodeBlock("created block %s (%s, %d bytes) from turn %s", b.ID, language, len(content), turnID)
	return b.clone(), nil
}

// AddVersion appends a version parented on the block's current version and
// advances the current pointer to it.
func (s *Store) AddVersion(blockID, content, turnID, summary string) (*Version, error) {
	b, ok := s.blocks[blockID]
	if !ok {
		return nil, types.NotFound("code block", blockID)
	}
	if content == "" {
		return nil, types.Invalid("code block content required")
	}

	parent := b.Current()
	created := s.now()
	// Versions stay strictly ordered even if the clock stalls or steps back.
	if last := b.Versions[len(b.Versions)-1].CreatedAt; !created.After(last) {
		created = last.Add(time.Nanosecond)
	}

	v := Version{
		ID:              uuid.NewString(),
		Content:         content,
		CreatedAt:       created,
		TurnID:          turnID,
		ParentVersionID: parent.ID,
		ChangeSummary:   summary,
	}
	v.Diff = s.computeDiff(b, parent, &v)

	b.Versions = append(b.Versions, v)
	b.CurrentVersionID = v.ID
	s.addTurnRef(b, turnID)

	logging.CodeBlock("block %s advanced to version %s (%d versions)", b.ID, v.ID, len(b.Versions))
	return &v, nil
}

// computeDiff never fails the caller: the diff is advisory.
func (s *Store) computeDiff(b *Block, parent, v *Version) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logging.CodeBlockWarn("diff for block %s version %s failed: %v", b.ID, v.ID, r)
			out = ""
		}
	}()
	label := b.Filename
	if label == "" {
		label = b.ID
	}
	res := s.diffs.Compute(
		fmt.Sprintf("%s@%s", label, shortID(parent.ID)),
		fmt.Sprintf("%s@%s", label, shortID(v.ID)),
		parent.Content, v.Content,
	)
	return res.Unified()
}

func (s *Store) addTurnRef(b *Block, turnID string) {
	if turnID == "" {
		return
	}
	for _, t := range b.TurnIDs {
		if t == turnID {
			return
		}
	}
	b.TurnIDs = append(b.TurnIDs, turnID)
}

// Block returns a copy of the block.
func (s *Store) Block(id string) (*Block, error) {
	b, ok := s.blocks[id]
	if !ok {
		return nil, types.NotFound("code block", id)
	}
	return b.clone(), nil
}

// Version returns one version of a block, or nil when either id is unknown.
func (s *Store) Version(blockID, versionID string) *Version {
	b, ok := s.blocks[blockID]
	if !ok {
		return nil
	}
	v := b.version(versionID)
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// CurrentVersion returns the block's current version.
func (s *Store) CurrentVersion(blockID string) (*Version, error) {
	b, ok := s.blocks[blockID]
	if !ok {
		return nil, types.NotFound("code block", blockID)
	}
	out := *b.Current()
	return &out, nil
}

// History returns the block's versions ordered by creation time ascending.
func (s *Store) History(blockID string) ([]Version, error) {
	b, ok := s.blocks[blockID]
	if !ok {
		return nil, types.NotFound("code block", blockID)
	}
	out := append([]Version(nil), b.Versions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Lineage walks parent pointers from versionID back to the first version.
// The result starts at versionID.
func (s *Store) Lineage(blockID, versionID string) ([]Version, error) {
	b, ok := s.blocks[blockID]
	if !ok {
		return nil, types.NotFound("code block", blockID)
	}
	var out []Version
	seen := make(map[string]bool)
	for id := versionID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("version cycle at %s in block %s", id, blockID)
		}
		seen[id] = true
		v := b.version(id)
		if v == nil {
			return nil, types.NotFound("code block version", id)
		}
		out = append(out, *v)
		id = v.ParentVersionID
	}
	return out, nil
}

// Relate links two blocks symmetrically. Idempotent; false if either id is
// unknown or both ids are the same.
func (s *Store) Relate(a, b string) bool {
	if a == b {
		return false
	}
	ba, okA := s.blocks[a]
	bb, okB := s.blocks[b]
	if !okA || !okB {
		return false
	}
	ba.RelatedIDs = appendUnique(ba.RelatedIDs, b)
	bb.RelatedIDs = appendUnique(bb.RelatedIDs, a)
	return true
}

// Blocks returns copies of all blocks in creation order.
func (s *Store) Blocks() []*Block {
	out := make([]*Block, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.blocks[id].clone())
	}
	return out
}

// ByLanguage returns blocks of one language in creation order.
func (s *Store) ByLanguage(language string) []*Block {
	language = NormalizeLanguage(language)
	var out []*Block
	for _, id := range s.order {
		if b := s.blocks[id]; b.Language == language {
			out = append(out, b.clone())
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
