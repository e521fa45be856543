// Package checksum implements content-hash change detection. The digest
// covers the full raw file bytes, so any single-byte edit is visible.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Changed reports whether data differs from the stored digest. An empty
// stored digest (no prior record) always counts as changed.
func Changed(data []byte, stored string) bool {
	return stored == "" || Sum(data) != stored
}

// DiskNewer is the focus/open fast path: it reports whether the on-disk
// modification time strictly exceeds the mirror's stored updated stamp,
// i.e. whether hashing the file is worth the read at all.
func DiskNewer(modTime, storedUpdated time.Time) bool {
	return modTime.After(storedUpdated)
}
