package mirror

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aldmark/skald/internal/apperr"
	"github.com/aldmark/skald/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "skald-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testNote(id, filename, title string) models.Note {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.Note{
		ID:       id,
		Filename: filename,
		Title:    title,
		Hash:     "hash-" + id,
		Created:  now,
		Updated:  now,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "headings", "bookmarks"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	n := testNote("20240101000000", "20240101000000-hello.md", "Hello")
	headings := []models.Heading{
		{Text: "Hello", Level: 1, Line: 7},
		{Text: "Tasks", Level: 2, Line: 9},
	}
	if err := db.UpsertNote(n, headings); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	got, err := db.GetNote(n.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Filename != n.Filename || got.Title != "Hello" || got.Hash != n.Hash {
		t.Errorf("note = %+v", got)
	}

	byName, err := db.GetByFilename(n.Filename)
	if err != nil || byName.ID != n.ID {
		t.Errorf("GetByFilename: %v, %+v", err, byName)
	}

	hs, err := db.Headings(n.ID)
	if err != nil {
		t.Fatalf("Headings: %v", err)
	}
	if len(hs) != 2 || hs[0].Text != "Hello" || hs[1].Line != 9 {
		t.Errorf("headings = %+v", hs)
	}
}

func TestUpsertReplacesHeadings(t *testing.T) {
	db := testDB(t)
	n := testNote("1", "1-a.md", "A")
	_ = db.UpsertNote(n, []models.Heading{{Text: "Old", Level: 1, Line: 1}})
	_ = db.UpsertNote(n, []models.Heading{
		{Text: "New", Level: 1, Line: 1},
		{Text: "Second", Level: 2, Line: 3},
	})

	hs, _ := db.Headings("1")
	if len(hs) != 2 || hs[0].Text != "New" {
		t.Errorf("headings not fully replaced: %+v", hs)
	}
}

func TestCascadeDelete(t *testing.T) {
	db := testDB(t)
	n := testNote("1", "1-a.md", "A")
	_ = db.UpsertNote(n, []models.Heading{{Text: "H", Level: 1, Line: 1}})
	if _, err := db.SetBookmark(3, "1", 1); err != nil {
		t.Fatalf("SetBookmark: %v", err)
	}

	if err := db.DeleteNote("1"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	var count int
	_ = db.conn.QueryRow(`SELECT count(*) FROM headings WHERE note_id = '1'`).Scan(&count)
	if count != 0 {
		t.Errorf("%d orphan heading rows remain", count)
	}
	_ = db.conn.QueryRow(`SELECT count(*) FROM bookmarks WHERE note_id = '1'`).Scan(&count)
	if count != 0 {
		t.Errorf("%d orphan bookmark rows remain", count)
	}
}

func TestDeleteByFilename(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("1", "1-a.md", "A"), nil)

	id, err := db.DeleteByFilename("1-a.md")
	if err != nil || id != "1" {
		t.Fatalf("DeleteByFilename = %q, %v", id, err)
	}
	if _, err := db.GetNote("1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	id, err = db.DeleteByFilename("missing.md")
	if err != nil || id != "" {
		t.Errorf("missing filename: id=%q err=%v", id, err)
	}
}

func TestUpdateFilename(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("1", "1-old.md", "Old"), nil)
	if err := db.UpdateFilename("1", "1-new.md"); err != nil {
		t.Fatalf("UpdateFilename: %v", err)
	}
	n, _ := db.GetNote("1")
	if n.Filename != "1-new.md" {
		t.Errorf("filename = %q", n.Filename)
	}
	if err := db.UpdateFilename("nope", "x.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetBookmark_Bounds(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("1", "1-a.md", "A"), []models.Heading{{Text: "Only", Level: 1, Line: 1}})

	if _, err := db.SetBookmark(1, "1", 2); !errors.Is(err, apperr.ErrBounds) {
		t.Errorf("index beyond count: got %v", err)
	}
	if _, err := db.SetBookmark(1, "1", 0); !errors.Is(err, apperr.ErrBounds) {
		t.Errorf("zero index: got %v", err)
	}
	b, err := db.SetBookmark(1, "1", 1)
	if err != nil {
		t.Fatalf("SetBookmark: %v", err)
	}
	if b.HeadingText != "Only" {
		t.Errorf("denormalized text = %q", b.HeadingText)
	}
}

func TestFindBookmark_DriftResolution(t *testing.T) {
	db := testDB(t)
	n := testNote("1", "1-a.md", "A")
	_ = db.UpsertNote(n, []models.Heading{
		{Text: "Intro", Level: 1, Line: 1},
		{Text: "Tasks", Level: 2, Line: 5},
	})
	if _, err := db.SetBookmark(7, "1", 2); err != nil {
		t.Fatal(err)
	}

	// A new heading lands above "Tasks", shifting it from index 2 to 3.
	_ = db.UpsertNote(n, []models.Heading{
		{Text: "Intro", Level: 1, Line: 1},
		{Text: "Inserted", Level: 2, Line: 3},
		{Text: "Tasks", Level: 2, Line: 7},
	})

	res, err := db.FindBookmark(7)
	if err != nil {
		t.Fatalf("FindBookmark: %v", err)
	}
	if res.Bookmark.HeadingIndex != 3 || res.Heading.Text != "Tasks" {
		t.Errorf("resolved = %+v", res)
	}

	// The repaired index is persisted.
	var idx int
	_ = db.conn.QueryRow(`SELECT heading_index FROM bookmarks WHERE number = 7`).Scan(&idx)
	if idx != 3 {
		t.Errorf("stored index = %d, want 3", idx)
	}
}

func TestFindBookmark_LooseMatchUpdatesText(t *testing.T) {
	db := testDB(t)
	n := testNote("1", "1-a.md", "A")
	_ = db.UpsertNote(n, []models.Heading{{Text: "Tasks", Level: 1, Line: 1}})
	_, _ = db.SetBookmark(1, "1", 1)

	// Heading re-cased; only a loose match remains.
	_ = db.UpsertNote(n, []models.Heading{{Text: "TASKS", Level: 1, Line: 1}})

	res, err := db.FindBookmark(1)
	if err != nil {
		t.Fatalf("FindBookmark: %v", err)
	}
	if res.Bookmark.HeadingText != "TASKS" {
		t.Errorf("stored text not updated: %+v", res.Bookmark)
	}
}

func TestFindBookmark_OrphanRemoved(t *testing.T) {
	db := testDB(t)
	n := testNote("1", "1-a.md", "A")
	_ = db.UpsertNote(n, []models.Heading{{Text: "Gone Soon", Level: 1, Line: 1}})
	_, _ = db.SetBookmark(2, "1", 1)

	// The heading disappears entirely.
	_ = db.UpsertNote(n, []models.Heading{{Text: "Unrelated", Level: 1, Line: 1}})

	if _, err := db.FindBookmark(2); !errors.Is(err, apperr.ErrOrphaned) {
		t.Fatalf("expected ErrOrphaned, got %v", err)
	}
	// Self-healed: the row is gone.
	if _, err := db.FindBookmark(2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestListNotes(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("1", "1-a.md", "Alpha"), nil)
	_ = db.UpsertNote(testNote("2", "2-b.md", "Beta"), nil)
	_ = db.UpsertNote(testNote("3", "3-c.md", "Gamma"), nil)

	notes, total, err := db.ListNotes(2, 0, "title")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if total != 3 || len(notes) != 2 {
		t.Errorf("total=%d len=%d", total, len(notes))
	}
	if notes[0].Title != "Alpha" {
		t.Errorf("sort by title: first = %q", notes[0].Title)
	}
}

func TestSearch_TitleAndHeading(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("1", "1-a.md", "Grocery List"), []models.Heading{
		{Text: "Grocery List", Level: 1, Line: 1},
	})
	_ = db.UpsertNote(testNote("2", "2-b.md", "Journal"), []models.Heading{
		{Text: "Journal", Level: 1, Line: 1},
		{Text: "Groceries budget", Level: 2, Line: 3},
	})

	results, err := db.Search("grocer", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want both notes", results)
	}
}

func TestAllHashes(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(testNote("1", "1-a.md", "A"), nil)
	_ = db.UpsertNote(testNote("2", "2-b.md", "B"), nil)

	hashes, err := db.AllHashes()
	if err != nil {
		t.Fatalf("AllHashes: %v", err)
	}
	if len(hashes) != 2 || hashes["1-a.md"] != "hash-1" {
		t.Errorf("hashes = %v", hashes)
	}
}
