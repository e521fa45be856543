package engine

import "sync"

// pipeline states for a single save/open event. They exist only while an
// event is in flight and are never persisted.
type state int

const (
	stateIdle state = iota
	stateFormatting
	stateTitleEnsuring
	stateMetadataNormalizing
	stateMirrorSyncing
	stateRenameChecking
)

func (s state) String() string {
	switch s {
	case stateFormatting:
		return "formatting"
	case stateTitleEnsuring:
		return "title-ensuring"
	case stateMetadataNormalizing:
		return "metadata-normalizing"
	case stateMirrorSyncing:
		return "mirror-syncing"
	case stateRenameChecking:
		return "rename-checking"
	default:
		return "idle"
	}
}

// fileGuard is the per-file pipeline context. The flags mirror the
// pipeline's write surfaces: both are raised before any state that writes
// the file, and cleared only when the pipeline returns to idle.
type fileGuard struct {
	state               state
	updatingFrontmatter bool
	updatingDB          bool
}

// guardSet serializes pipelines per file path. A second trigger for a
// path already in flight is dropped, not queued; pipelines for different
// paths may run concurrently.
type guardSet struct {
	mu    sync.Mutex
	files map[string]*fileGuard
}

func newGuardSet() *guardSet {
	return &guardSet{files: make(map[string]*fileGuard)}
}

// acquire starts a pipeline for path. It returns false when one is
// already in flight, which callers must treat as an immediate no-op.
func (g *guardSet) acquire(path string) (*fileGuard, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.files[path]; busy {
		return nil, false
	}
	fg := &fileGuard{}
	g.files[path] = fg
	return fg, true
}

// release returns the file to idle and clears its guards.
func (g *guardSet) release(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.files, path)
}

// inFlight reports whether a pipeline currently owns path.
func (g *guardSet) inFlight(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.files[path]
	return busy
}
