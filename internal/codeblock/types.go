// Package codeblock owns the version lineage of every code artifact produced
// in a conversation. Turns reference blocks by (block id, version id); the
// store is the only place block content lives.
package codeblock

import "time"

// Version is one immutable snapshot of a block's content.
type Version struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	TurnID          string    `json:"turn_id"`
	ParentVersionID string    `json:"parent_version_id,omitempty"`
	ChangeSummary   string    `json:"change_summary,omitempty"`

	// Diff is an advisory unified diff against the parent version.
	Diff string `json:"diff,omitempty"`
}

// Block is a logical, language-tagged artifact with its own version lineage.
type Block struct {
	ID               string    `json:"id"`
	Language         string    `json:"language"`
	Filename         string    `json:"filename,omitempty"`
	Purpose          string    `json:"purpose,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Versions         []Version `json:"versions"`
	CurrentVersionID string    `json:"current_version_id"`
	TurnIDs          []string  `json:"turn_ids"`
	RelatedIDs       []string  `json:"related_ids,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
}

// Current returns the block's current version.
func (b *Block) Current() *Version {
	return b.version(b.CurrentVersionID)
}

func (b *Block) version(id string) *Version {
	for i := range b.Versions {
		if b.Versions[i].ID == id {
			return &b.Versions[i]
		}
	}
	return nil
}

// Label returns the filename, or a heuristic name when none was given.
func (b *Block) Label() string {
	if b.Filename != "" {
		return b.Filename
	}
	if cur := b.Current(); cur != nil {
		if name := InferName(b.Language, cur.Content); name != "" {
			return name
		}
	}
	return b.Language + " snippet"
}

func (b *Block) clone() *Block {
	c := *b
	c.Versions = append([]Version(nil), b.Versions...)
	c.TurnIDs = append([]string(nil), b.TurnIDs...)
	c.RelatedIDs = append([]string(nil), b.RelatedIDs...)
	c.Tags = append([]string(nil), b.Tags...)
	return &c
}

// Meta carries optional descriptive fields for CreateBlock.
type Meta struct {
	Filename string
	Purpose  string
	Tags     []string
}

// Ref is how a turn cites a block version.
type Ref struct {
	BlockID   string `json:"block_id"`
	VersionID string `json:"version_id"`
	Language  string `json:"language"`
	Label     string `json:"label,omitempty"`
}
