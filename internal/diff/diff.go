// Package diff computes line-level diffs between code block versions using
// sergi/go-diff. Diffs are advisory annotations on a version, never used for
// reconstruction.
package diff

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

func (t LineType) prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a hunk.
type Line struct {
	Type    LineType
	Content string
}

// Hunk groups nearby changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Result is the diff between two versions of one artifact.
type Result struct {
	From    string
	To      string
	Hunks   []Hunk
	Added   int
	Removed int
}

// Empty reports whether the two inputs were identical.
func (r *Result) Empty() bool {
	return r == nil || len(r.Hunks) == 0
}

// Unified renders the result in unified diff format.
func (r *Result) Unified() string {
	if r.Empty() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", r.From, r.To)
	for _, h := range r.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Type.prefix())
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// DefaultCacheSize bounds the number of cached input pairs per engine.
const DefaultCacheSize = 256

// Engine computes diffs and caches results for repeated input pairs. The
// cache holds at most cacheSize pairs and evicts the oldest first.
type Engine struct {
	dmp          *diffmatchpatch.DiffMatchPatch
	contextLines int

	mu        sync.Mutex
	cacheSize int
	cache     map[cacheKey]*Result
	fifo      []cacheKey
}

// cacheKey holds the full inputs so distinct pairs never share an entry.
type cacheKey struct {
	old, new string
}

// NewEngine returns an engine emitting contextLines lines around each change.
func NewEngine(contextLines int) *Engine {
	return NewEngineWithCache(contextLines, DefaultCacheSize)
}

// NewEngineWithCache is NewEngine with an explicit cache bound; 0 disables
// caching.
func NewEngineWithCache(contextLines, cacheSize int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	if cacheSize < 0 {
		cacheSize = 0
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{
		dmp:          dmp,
		contextLines: contextLines,
		cacheSize:    cacheSize,
		cache:        make(map[cacheKey]*Result),
	}
}

// Compute diffs oldContent against newContent. from/to label the sides.
func (e *Engine) Compute(from, to, oldContent, newContent string) *Result {
	key := cacheKey{oldContent, newContent}
	if cached := e.lookup(key); cached != nil {
		res := *cached
		res.From, res.To = from, to
		return &res
	}

	a, b, lines := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lines)

	ops := toOps(diffs)
	res := &Result{From: from, To: to, Hunks: group(ops, e.contextLines)}
	for _, op := range ops {
		switch op.typ {
		case LineAdded:
			res.Added++
		case LineRemoved:
			res.Removed++
		}
	}

	e.store(key, res)
	out := *res
	return &out
}

func (e *Engine) lookup(key cacheKey) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache[key]
}

func (e *Engine) store(key cacheKey, res *Result) {
	if e.cacheSize == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cache[key]; ok {
		return
	}
	for len(e.fifo) >= e.cacheSize {
		delete(e.cache, e.fifo[0])
		e.fifo = e.fifo[1:]
	}
	e.cache[key] = res
	e.fifo = append(e.fifo, key)
}

// cached reports the number of cached pairs.
func (e *Engine) cached() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

type op struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

// toOps flattens line-mode diffs into one op per line.
func toOps(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" && d.Text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, op{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, op{LineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, op{LineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// group splits ops into hunks, merging changes separated by at most
// 2*context unchanged lines.
func group(ops []op, context int) []Hunk {
	var changes []int
	for i, o := range ops {
		if o.typ != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	start := max(changes[0]-context, 0)
	end := min(changes[0]+context, len(ops)-1)
	for _, idx := range changes[1:] {
		if idx-context <= end+1 {
			end = min(idx+context, len(ops)-1)
			continue
		}
		hunks = append(hunks, makeHunk(ops, start, end))
		start = max(idx-context, 0)
		end = min(idx+context, len(ops)-1)
	}
	return append(hunks, makeHunk(ops, start, end))
}

func makeHunk(ops []op, start, end int) Hunk {
	h := Hunk{}
	oldStart, newStart := -1, -1
	oldBase, newBase := 0, 0
	for i := 0; i < start; i++ {
		if ops[i].typ != LineAdded {
			oldBase++
		}
		if ops[i].typ != LineRemoved {
			newBase++
		}
	}
	for i := start; i <= end; i++ {
		o := ops[i]
		h.Lines = append(h.Lines, Line{Type: o.typ, Content: o.content})
		if o.typ != LineAdded {
			if oldStart < 0 {
				oldStart = o.oldLine
			}
			h.OldCount++
		}
		if o.typ != LineRemoved {
			if newStart < 0 {
				newStart = o.newLine
			}
			h.NewCount++
		}
	}
	// Unified diff convention: a side with no lines reports the line before it.
	if oldStart < 0 {
		h.OldStart = oldBase
	} else {
		h.OldStart = oldStart + 1
	}
	if newStart < 0 {
		h.NewStart = newBase
	} else {
		h.NewStart = newStart + 1
	}
	return h
}
