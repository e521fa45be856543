// Package metadata enforces the canonical note header: a ----delimited
// block holding id, created, updated, and tags, with unrecognized keys
// carried through untouched.
package metadata

import (
	"strings"
	"time"

	"github.com/aldmark/skald/internal/outline"
)

// Canonical header field names, in render order.
const (
	FieldID      = "id"
	FieldCreated = "created"
	FieldUpdated = "updated"
	FieldTags    = "tags"
)

// TimeLayout is the normalized on-disk timestamp form (UTC, second
// precision). Millisecond-precision values are accepted when reading.
const (
	TimeLayout   = "2006-01-02T15:04:05Z"
	timeLayoutMS = "2006-01-02T15:04:05.000Z"
)

// ParseTime accepts both normalized and millisecond-precision UTC stamps.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range []string{TimeLayout, timeLayoutMS, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t in the normalized form.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// Block is the typed view of a note's metadata header. Extra holds
// unrecognized fields in source order so a rewrite round-trips them.
type Block struct {
	ID      string
	Created string
	Updated string
	Tags    string
	Extra   []outline.Field
}

// FromOutline splits an outline's fields into the typed block.
func FromOutline(o *outline.Outline) Block {
	var b Block
	for _, f := range o.Fields {
		switch f.Key {
		case FieldID:
			if b.ID == "" {
				b.ID = f.Value
			}
		case FieldCreated:
			if b.Created == "" {
				b.Created = f.Value
			}
		case FieldUpdated:
			if b.Updated == "" {
				b.Updated = f.Value
			}
		case FieldTags:
			if b.Tags == "" {
				b.Tags = f.Value
			}
		default:
			b.Extra = append(b.Extra, f)
		}
	}
	return b
}

// Stored carries the mirror's persisted timestamps for the consistency
// check in Normalize. Nil Stored means no prior record exists.
type Stored struct {
	Created time.Time
	Updated time.Time
}

// Normalizer rewrites note headers into canonical shape. Now and NewID are
// injected so normalization is deterministic under test.
type Normalizer struct {
	Now   func() time.Time
	NewID func() string
}

// Normalize returns the canonical form of content. changed is false when
// the header is already canonical enough to leave alone; this no-op path
// is what keeps the save pipeline from looping, so it must hold for any
// output Normalize itself produced.
//
// A special note's header omits id and tags.
func (n *Normalizer) Normalize(content string, o *outline.Outline, stored *Stored, special, force bool) (string, Block, bool) {
	blk := FromOutline(o)

	if !force && n.headerOK(&blk, o, stored, special) {
		return content, blk, false
	}

	now := n.Now().UTC()

	// Never overwrite an existing id.
	if !special && blk.ID == "" {
		blk.ID = n.NewID()
	}
	if t, ok := ParseTime(blk.Created); ok {
		blk.Created = FormatTime(t)
	} else {
		blk.Created = FormatTime(now)
	}
	if force {
		blk.Updated = FormatTime(now)
	} else if t, ok := ParseTime(blk.Updated); ok {
		blk.Updated = FormatTime(t)
	} else {
		blk.Updated = FormatTime(now)
	}
	if !special && blk.Tags == "" {
		blk.Tags = "[]"
	}

	out := render(&blk, body(content, o), special)
	return out, blk, out != content
}

// headerOK reports whether the existing header has all required fields
// and agrees with the mirror's stored timestamps. A special note's header
// must carry no id or tags at all, so their presence forces a rewrite
// that strips them.
func (n *Normalizer) headerOK(blk *Block, o *outline.Outline, stored *Stored, special bool) bool {
	created, ok := ParseTime(blk.Created)
	if !ok {
		return false
	}
	updated, ok := ParseTime(blk.Updated)
	if !ok {
		return false
	}
	if special {
		// Key presence alone forces the rewrite: even an empty id: line
		// must be stripped.
		if _, has := o.Get(FieldID); has {
			return false
		}
		if _, has := o.Get(FieldTags); has {
			return false
		}
	} else if blk.ID == "" || blk.Tags == "" {
		return false
	}
	if stored == nil {
		return true
	}
	return created.Truncate(time.Second).Equal(stored.Created.UTC().Truncate(time.Second)) &&
		updated.Truncate(time.Second).Equal(stored.Updated.UTC().Truncate(time.Second))
}

// body returns the content lines below the metadata block.
func body(content string, o *outline.Outline) []string {
	lines := strings.Split(content, "\n")
	if o.BodyStart <= 1 {
		return lines
	}
	if o.BodyStart-1 >= len(lines) {
		return nil
	}
	return lines[o.BodyStart-1:]
}

// render produces the canonical file text: the block in field order
// id, created, updated, tags, extras verbatim, then a blank line and the
// body. The output is byte-stable: rendering it again yields itself.
func render(blk *Block, bodyLines []string, special bool) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	if !special {
		sb.WriteString(FieldID + ": " + blk.ID + "\n")
	}
	sb.WriteString(FieldCreated + ": " + blk.Created + "\n")
	sb.WriteString(FieldUpdated + ": " + blk.Updated + "\n")
	if !special {
		sb.WriteString(FieldTags + ": " + blk.Tags + "\n")
	}
	for _, f := range blk.Extra {
		sb.WriteString(f.Key + ": " + f.Value + "\n")
	}
	sb.WriteString("---\n")
	sb.WriteString("\n")
	sb.WriteString(strings.Join(bodyLines, "\n"))
	return sb.String()
}
