// Package outline parses a note buffer into its metadata block and
// ATX heading list.
package outline

import (
	"strings"

	"github.com/aldmark/skald/internal/models"
)

// Field is one key/value line of the metadata block. Values are kept as
// their literal textual form; list-looking values like "[a, b]" are not
// deep-parsed.
type Field struct {
	Key   string
	Value string
}

// Outline is the transient parse result of one file: metadata fields in
// source order plus the ordered heading list. It is produced fresh on
// demand and never cached across edits.
type Outline struct {
	Fields   []Field
	Headings []models.Heading

	// BodyStart is the 1-based line where the body begins (the line after
	// the closing metadata delimiter and its trailing blank line, or 1
	// when there is no metadata block).
	BodyStart int
}

// Get returns the value of the first field with the given key.
func (o *Outline) Get(key string) (string, bool) {
	for _, f := range o.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Title returns the text of the first level-1 heading, or "".
func (o *Outline) Title() string {
	for _, h := range o.Headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}

const delim = "---"

// Extract parses content into an Outline. It is a pure function: a
// missing or malformed metadata block yields no fields, and a file
// without headings yields an empty heading list.
func Extract(content string) Outline {
	lines := strings.Split(content, "\n")

	o := Outline{BodyStart: 1}

	fields, end := scanMetadata(lines)
	if end > 0 {
		o.Fields = fields
		o.BodyStart = end + 1
		// A single blank line after the block belongs to the header.
		if end < len(lines) && strings.TrimSpace(lines[end]) == "" {
			o.BodyStart = end + 2
		}
	}

	for i, line := range lines {
		if i+1 < o.BodyStart {
			continue
		}
		if h, ok := parseHeading(line, i+1); ok {
			o.Headings = append(o.Headings, h)
		}
	}
	return o
}

// scanMetadata looks for a ----delimited block at the top of the file and
// returns its fields plus the 1-based line of the closing delimiter.
// Returns end = 0 when no well-formed block exists.
func scanMetadata(lines []string) ([]Field, int) {
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == delim {
			start = i
		}
		break
	}
	if start < 0 {
		return nil, 0
	}

	var fields []Field
	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == delim {
			return fields, i + 1
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			// Not a key/value line; the block is malformed.
			return nil, 0
		}
		fields = append(fields, Field{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	// No closing delimiter.
	return nil, 0
}

// parseHeading recognises ATX headings: 1-6 leading '#' followed by a space.
func parseHeading(line string, lineNo int) (models.Heading, bool) {
	if !strings.HasPrefix(line, "#") {
		return models.Heading{}, false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 || level == len(line) || line[level] != ' ' {
		return models.Heading{}, false
	}
	text := strings.TrimSpace(line[level:])
	if text == "" {
		return models.Heading{}, false
	}
	return models.Heading{Text: text, Level: level, Line: lineNo}, true
}

// Extractor is the structural-parser dependency of the engine. Consumers
// depend on this type so a missing parser is a detectable configuration
// error rather than silent empty output.
type Extractor func(content string) Outline
