// Package models defines the domain types for Skald.
package models

import "time"

// Note represents an indexed note file in the vault.
type Note struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Title    string    `json:"title,omitempty"`
	Hash     string    `json:"hash"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// Heading is one ATX heading of a note, in document order.
type Heading struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
	Line  int    `json:"line"` // 1-based source line
}

// Bookmark pins a user-chosen number to a heading position in a note.
// HeadingText is denormalized so the position can be re-resolved after
// edits shift the heading list.
type Bookmark struct {
	Number       int    `json:"number"`
	NoteID       string `json:"note_id"`
	HeadingIndex int    `json:"heading_index"` // 1-based into the note's heading list
	HeadingText  string `json:"heading_text"`
}

// NoteFile is on-disk metadata returned by storage listings.
type NoteFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
