// Package slug derives canonical note filenames from titles.
package slug

import (
	"path"
	"strings"
	"unicode"
)

// FallbackSlug is used when a title sanitizes to nothing (empty or pure
// punctuation), so the canonical filename stays well-formed.
const FallbackSlug = "untitled"

// Ext is the note file extension.
const Ext = ".md"

// Make sanitizes title into a slug: punctuation stripped, whitespace runs
// collapsed to single hyphens, lower-cased.
func Make(title string) string {
	var sb strings.Builder
	pendingHyphen := false
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingHyphen = false
			sb.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingHyphen = true
		default:
			// Punctuation is dropped entirely.
		}
	}
	s := sb.String()
	if s == "" {
		return FallbackSlug
	}
	return s
}

// Filename returns the canonical basename for a note: id + "-" + slug + ext.
func Filename(id, title string) string {
	return id + "-" + Make(title) + Ext
}

// PlanRename compares a note's current filename against the canonical one
// derived from (id, title). It returns the new filename (same directory,
// canonical basename) and whether a rename is due. Notes without an id
// never rename.
func PlanRename(currentFilename, id, title string) (string, bool) {
	if id == "" {
		return "", false
	}
	dir := path.Dir(currentFilename)
	canonical := Filename(id, title)
	if dir != "." {
		canonical = path.Join(dir, canonical)
	}
	if canonical == currentFilename {
		return "", false
	}
	return canonical, true
}
