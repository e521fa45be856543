package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aldmark/skald/internal/apperr"
	"github.com/aldmark/skald/internal/outline"
	"github.com/aldmark/skald/internal/storage"
	"github.com/aldmark/skald/internal/testutil"
)

var engineNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func testEngine(t *testing.T, opts ...Option) (*Engine, *storage.FS, *recorder) {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestMirror(t)
	rec := &recorder{}

	opts = append([]Option{
		WithClock(func() time.Time { return engineNow }),
		WithEvents(rec.record),
	}, opts...)

	e, err := New(store, db, outline.Extract, testLogger(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, store, rec
}

func TestNew_NilExtractorRefusesToStart(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestMirror(t)
	if _, err := New(store, db, nil, testLogger()); !errors.Is(err, apperr.ErrParserUnavailable) {
		t.Fatalf("expected ErrParserUnavailable, got %v", err)
	}
}

// The §8 scenario: a bare file gains a header, a mirror row, and a
// heading row, then renames to its canonical filename.
func TestSyncNote_FreshFile(t *testing.T) {
	e, store, rec := testEngine(t)
	ctx := context.Background()

	if err := store.Write("scratch.md", []byte("# Hello\nWorld")); err != nil {
		t.Fatal(err)
	}

	note, err := e.SyncNote(ctx, "scratch.md")
	if err != nil {
		t.Fatalf("SyncNote: %v", err)
	}
	if note == nil {
		t.Fatal("expected a note")
	}
	if note.ID != "20240101000000" {
		t.Errorf("id = %q", note.ID)
	}
	if note.Title != "Hello" {
		t.Errorf("title = %q", note.Title)
	}
	if note.Filename != "20240101000000-hello.md" {
		t.Errorf("filename = %q (rename not executed)", note.Filename)
	}

	// The file moved and starts with a synthesized header.
	data, err := store.Read("20240101000000-hello.md")
	if err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\nid: 20240101000000\n") {
		t.Errorf("header not synthesized:\n%s", text)
	}
	if !strings.HasSuffix(text, "\n\n# Hello\nWorld") {
		t.Errorf("body altered:\n%s", text)
	}
	if _, err := store.Read("scratch.md"); err == nil {
		t.Error("old path still exists after rename")
	}

	// Mirror: one note row, one heading row at the first body line.
	got, headings, err := e.GetNote(ctx, "20240101000000-hello.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Title != "Hello" {
		t.Errorf("mirror title = %q", got.Title)
	}
	if len(headings) != 1 || headings[0].Text != "Hello" || headings[0].Level != 1 || headings[0].Line != 8 {
		t.Errorf("headings = %+v", headings)
	}

	if !rec.has("renamed:20240101000000-hello.md") {
		t.Errorf("no rename event; events = %v", rec.events)
	}
	if !rec.has("synced:20240101000000-hello.md") {
		t.Errorf("no synced event; events = %v", rec.events)
	}
}

func TestSyncNote_SecondPassIsNoop(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("note.md", []byte("# Stable Note\nbody"))
	first, err := e.SyncNote(ctx, "note.md")
	if err != nil {
		t.Fatal(err)
	}

	before, _ := store.Read(first.Filename)
	second, err := e.SyncNote(ctx, first.Filename)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	after, _ := store.Read(first.Filename)

	if string(before) != string(after) {
		t.Error("second sync rewrote a canonical file")
	}
	if second.Hash != first.Hash || second.ID != first.ID {
		t.Errorf("second sync changed note: %+v vs %+v", second, first)
	}
}

func TestSyncNote_ExistingIDPreserved(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	content := "---\nid: 19990909090909\ncreated: 2020-01-01T00:00:00Z\nupdated: 2020-01-01T00:00:00Z\ntags: []\n---\n\n# Old Note\n"
	_ = store.Write("old.md", []byte(content))

	note, err := e.SyncNote(ctx, "old.md")
	if err != nil {
		t.Fatal(err)
	}
	if note.ID != "19990909090909" {
		t.Errorf("id = %q, existing id must never change", note.ID)
	}
	if note.Filename != "19990909090909-old-note.md" {
		t.Errorf("filename = %q", note.Filename)
	}
}

func TestSyncNote_ReentrantTriggerDropped(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()
	_ = store.Write("busy.md", []byte("# Busy\n"))

	// Simulate a pipeline in flight.
	fg, ok := e.guards.acquire("busy.md")
	if !ok {
		t.Fatal("acquire failed")
	}
	fg.updatingFrontmatter = true

	note, err := e.SyncNote(ctx, "busy.md")
	if err != nil || note != nil {
		t.Errorf("re-entrant trigger should no-op, got note=%v err=%v", note, err)
	}
	if !e.InFlight("busy.md") {
		t.Error("guard lost after dropped trigger")
	}

	e.guards.release("busy.md")
	if _, err := e.SyncNote(ctx, "busy.md"); err != nil {
		t.Errorf("sync after release: %v", err)
	}
}

func TestSyncNote_ReadFailureLeavesMirrorUntouched(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()

	if _, err := e.SyncNote(ctx, "missing.md"); err == nil {
		t.Fatal("expected read error")
	}
	notes, total, err := e.ListNotes(ctx, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(notes) != 0 {
		t.Errorf("mirror mutated after read failure: %v", notes)
	}
}

func TestSyncNote_SpecialNoteNormalizedNotMirrored(t *testing.T) {
	e, store, _ := testEngine(t, WithSpecialNotes([]string{"inbox.md"}))
	ctx := context.Background()

	_ = store.Write("inbox.md", []byte("# Inbox\n- item\n"))
	note, err := e.SyncNote(ctx, "inbox.md")
	if err != nil {
		t.Fatalf("SyncNote: %v", err)
	}
	if note != nil {
		t.Errorf("special note returned mirror row: %+v", note)
	}

	data, _ := store.Read("inbox.md")
	text := string(data)
	if !strings.HasPrefix(text, "---\ncreated: ") {
		t.Errorf("special header not normalized:\n%s", text)
	}
	if strings.Contains(text, "id:") || strings.Contains(text, "tags:") {
		t.Errorf("special header must omit id/tags:\n%s", text)
	}

	_, total, _ := e.ListNotes(ctx, 10, 0, "")
	if total != 0 {
		t.Error("special note leaked into the mirror")
	}
}

func TestSyncNote_EmptySlugFallsBack(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("punct.md", []byte("# ?!?\nbody"))
	note, err := e.SyncNote(ctx, "punct.md")
	if err != nil {
		t.Fatal(err)
	}
	if note.Filename != "20240101000000-untitled.md" {
		t.Errorf("filename = %q", note.Filename)
	}
}

func TestSyncNote_CRLFNormalized(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("crlf.md", []byte("# Windows\r\nline\r\n"))
	note, err := e.SyncNote(ctx, "crlf.md")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := store.Read(note.Filename)
	if strings.Contains(string(data), "\r") {
		t.Error("CRLF survived formatting")
	}
}

// A rename that failed on an earlier pass leaves a non-canonical
// filename behind with content fully up to date. The next sync must
// retry the rename instead of short-circuiting on the unchanged hash.
func TestSyncNote_UnchangedContentStillRenames(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestMirror(t)
	rec := &recorder{}
	e, err := New(store, db, outline.Extract, testLogger(),
		WithClock(func() time.Time { return engineNow }),
		WithEvents(rec.record))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = store.Write("note.md", []byte("# Hello\nWorld"))
	if _, err := e.SyncNote(ctx, "note.md"); err != nil {
		t.Fatal(err)
	}

	// Reconstruct the post-failure state: file back under a stale name,
	// mirror rolled back to match.
	if err := store.Move("20240101000000-hello.md", "stale.md"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateFilename("20240101000000", "stale.md"); err != nil {
		t.Fatal(err)
	}
	before, _ := store.Read("stale.md")

	note, err := e.SyncNote(ctx, "stale.md")
	if err != nil {
		t.Fatalf("SyncNote: %v", err)
	}
	if note.Filename != "20240101000000-hello.md" {
		t.Errorf("filename = %q (rename not retried)", note.Filename)
	}
	after, err := store.Read("20240101000000-hello.md")
	if err != nil {
		t.Fatalf("canonical file missing: %v", err)
	}
	if string(after) != string(before) {
		t.Error("content rewritten on an unchanged note")
	}
	if _, err := store.Read("stale.md"); err == nil {
		t.Error("stale path still exists after rename")
	}
	row, err := db.GetByFilename("20240101000000-hello.md")
	if err != nil {
		t.Fatalf("mirror row not renamed: %v", err)
	}
	if row.ID != "20240101000000" {
		t.Errorf("row id = %q", row.ID)
	}
}

func TestOpenNote_MtimeFastPath(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("open.md", []byte("# Open Me\n"))
	note, err := e.SyncNote(ctx, "open.md")
	if err != nil {
		t.Fatal(err)
	}

	// Disk mtime is current wall-clock time; the stored updated stamp is
	// the fixed test clock in 2024, so the disk copy looks newer and the
	// hash path runs, but content is unchanged, so nothing mutates.
	got, err := e.OpenNote(ctx, note.Filename)
	if err != nil {
		t.Fatalf("OpenNote: %v", err)
	}
	if got.Hash != note.Hash {
		t.Errorf("open changed hash: %q vs %q", got.Hash, note.Hash)
	}

	// An out-of-band edit (no header rewrite) is picked up.
	data, _ := store.Read(note.Filename)
	edited := strings.Replace(string(data), "# Open Me", "# Open Me\n## Added", 1)
	_ = store.Write(note.Filename, []byte(edited))

	got, err = e.OpenNote(ctx, note.Filename)
	if err != nil {
		t.Fatalf("OpenNote after edit: %v", err)
	}
	if got.Hash == note.Hash {
		t.Error("edit not detected")
	}
	_, headings, _ := e.GetNote(ctx, got.Filename)
	if len(headings) != 2 {
		t.Errorf("headings = %+v", headings)
	}
}

func TestOpenNote_UnknownFileRunsFullSync(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("new.md", []byte("# Brand New\n"))
	note, err := e.OpenNote(ctx, "new.md")
	if err != nil {
		t.Fatal(err)
	}
	if note == nil || note.ID == "" {
		t.Fatalf("open of unknown file should index it, got %+v", note)
	}
}

func TestDeleteNote_Cascades(t *testing.T) {
	e, store, rec := testEngine(t)
	ctx := context.Background()

	_ = store.Write("gone.md", []byte("# Gone\n## Sub\n"))
	note, err := e.SyncNote(ctx, "gone.md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.SetBookmark(ctx, 1, note.Filename, 2); err != nil {
		t.Fatal(err)
	}

	if err := e.DeleteNote(ctx, note.Filename); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := store.Read(note.Filename); err == nil {
		t.Error("file still on disk")
	}
	if _, _, err := e.GetNote(ctx, note.Filename); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("mirror row survived: %v", err)
	}
	if _, err := e.ResolveBookmark(ctx, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("bookmark survived cascade: %v", err)
	}
	if !rec.has("deleted:" + note.Filename) {
		t.Errorf("no deleted event; events = %v", rec.events)
	}
}

func TestResolveBookmark_OrphanEmitsEvent(t *testing.T) {
	e, store, rec := testEngine(t)
	ctx := context.Background()

	_ = store.Write("b.md", []byte("# Keep\n## Doomed\n"))
	note, _ := e.SyncNote(ctx, "b.md")
	if _, err := e.SetBookmark(ctx, 5, note.Filename, 2); err != nil {
		t.Fatal(err)
	}

	// Remove the bookmarked heading and re-sync.
	_ = store.Write(note.Filename, []byte(rewriteBody(t, store, note.Filename, "# Keep\n")))
	if _, err := e.SyncNote(ctx, note.Filename); err != nil {
		t.Fatal(err)
	}

	if _, err := e.ResolveBookmark(ctx, 5); !errors.Is(err, apperr.ErrOrphaned) {
		t.Fatalf("expected ErrOrphaned, got %v", err)
	}
	if !rec.has("bookmark-orphaned:5") {
		t.Errorf("no orphan event; events = %v", rec.events)
	}
}

// rewriteBody replaces the body of an already-normalized note while
// keeping its header intact.
func rewriteBody(t *testing.T, store *storage.FS, path, body string) string {
	t.Helper()
	data, err := store.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	idx := strings.Index(text, "\n\n")
	if idx < 0 {
		t.Fatalf("no header/body split in %q", text)
	}
	return text[:idx+2] + body
}

func TestBulkIndex(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("one.md", []byte("# One\n"))
	_ = store.Write("sub/two.md", []byte("# Two\n"))
	_ = store.Write("skip.txt", []byte("not a note"))

	if err := e.BulkIndex(ctx); err != nil {
		t.Fatalf("BulkIndex: %v", err)
	}
	_, total, err := e.ListNotes(ctx, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}

	// A row whose file disappeared is removed on the next pass.
	notes, _, _ := e.ListNotes(ctx, 10, 0, "filename")
	if err := os.Remove(storePath(t, store, notes[0].Filename)); err != nil {
		t.Fatal(err)
	}
	if err := e.BulkIndex(ctx); err != nil {
		t.Fatal(err)
	}
	_, total, _ = e.ListNotes(ctx, 10, 0, "")
	if total != 1 {
		t.Errorf("stale row not removed, total = %d", total)
	}
}

func storePath(t *testing.T, store *storage.FS, rel string) string {
	t.Helper()
	return store.Root() + string(os.PathSeparator) + rel
}

func TestBulkIndex_SmallBatches(t *testing.T) {
	e, store, _ := testEngine(t, WithBatchSize(1))
	ctx := context.Background()

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		_ = store.Write(name, []byte("# "+name+"\n"))
	}
	if err := e.BulkIndex(ctx); err != nil {
		t.Fatal(err)
	}
	_, total, _ := e.ListNotes(ctx, 10, 0, "")
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

// A reconciliation pass must not let the checksum skip hide a file
// stuck under a non-canonical name.
func TestBulkIndex_RetriesPendingRename(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestMirror(t)
	e, err := New(store, db, outline.Extract, testLogger(),
		WithClock(func() time.Time { return engineNow }))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = store.Write("note.md", []byte("# Hello\nWorld"))
	if _, err := e.SyncNote(ctx, "note.md"); err != nil {
		t.Fatal(err)
	}
	if err := store.Move("20240101000000-hello.md", "stale.md"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateFilename("20240101000000", "stale.md"); err != nil {
		t.Fatal(err)
	}

	if err := e.BulkIndex(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Read("20240101000000-hello.md"); err != nil {
		t.Fatalf("canonical file missing after reindex: %v", err)
	}
	if _, err := store.Read("stale.md"); err == nil {
		t.Error("stale path survived reindex")
	}
	if _, err := db.GetByFilename("20240101000000-hello.md"); err != nil {
		t.Errorf("mirror row not renamed: %v", err)
	}
	_, total, _ := e.ListNotes(ctx, 10, 0, "")
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestSearch_ThroughEngine(t *testing.T) {
	e, store, _ := testEngine(t)
	ctx := context.Background()

	_ = store.Write("s.md", []byte("# Unique Topic\n## Subsection here\n"))
	if _, err := e.SyncNote(ctx, "s.md"); err != nil {
		t.Fatal(err)
	}
	results, err := e.Search(ctx, "Subsection", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
}
