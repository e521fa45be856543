// Package storage defines the vault file-system abstraction.
package storage

import (
	"time"

	"github.com/aldmark/skald/internal/models"
)

// FileInfo is the subset of stat data the sync engine needs.
type FileInfo struct {
	ModTime time.Time
	Size    int64
}

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns file metadata without reading content.
	Stat(path string) (FileInfo, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
