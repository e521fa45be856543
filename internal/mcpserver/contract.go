package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or editing notes.
const NoteFormatContract = `# Skald Note Format Contract

Every Markdown note stored in Skald MUST follow this structure.

## Structure

` + "```" + `markdown
---
id: 20250115093000                      # assigned by Skald, never invent or change it
created: 2025-01-15T09:30:00Z           # assigned by Skald on first sync
updated: 2025-01-15T09:30:00Z           # stamped by Skald on every content change
tags: [project-x, meeting-notes]        # OPTIONAL, bracketed list kept verbatim
---

# Human-readable title

Body text in standard Markdown. The first H1 is the note's title and
drives the canonical filename.

## Section headings

ATX headings (# through ######) form the note's outline. Bookmarks pin
to positions in this outline.
` + "```" + `

## Rules

1. **The metadata block is maintained by Skald.** When creating a note you
   may omit it entirely; the next sync adds it. Never fabricate an ` + "`" + `id` + "`" + `.
2. **Timestamps** use the layout ` + "`" + `2006-01-02T15:04:05Z` + "`" + ` (UTC, second
   precision). Skald rewrites anything else.
3. **The first H1 is the title.** Keep exactly one H1 near the top.
4. **Filenames are canonical:** ` + "`" + `<id>-<slug>.md` + "`" + `, where the slug is the
   lowercased title with punctuation dropped. Skald renames files that
   drift from this form; do not fight the rename.
5. **Unknown metadata keys are preserved** in their original order. You may
   add your own keys below the canonical four.
6. **Headings** use ATX form with a space after the hashes. Setext
   underline headings are not part of the outline.
7. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
8. **Encoding** is UTF-8 with LF line endings and a trailing newline.

## Example

` + "```" + `markdown
---
id: 20250120081500
created: 2025-01-20T08:15:00Z
updated: 2025-01-20T08:15:00Z
tags: [meeting-notes]
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

## Action items

- Alice to review the design doc
- Bob to update the roadmap
` + "```" + `

Canonical filename for this note: ` + "`" + `20250120081500-weekly-standup-2025-01-20.md` + "`" + `
`
