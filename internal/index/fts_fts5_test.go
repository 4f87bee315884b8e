//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/starford/contextpad/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM links_fts`).Scan(&count); err != nil {
		t.Fatalf("links_fts table missing: %v", err)
	}
}

func TestFTS5_SearchAnyTerm(t *testing.T) {
	db := testDB(t)
	_ = db.CreateDocument(doc("d1", "", "x", 1,
		models.LinkResult{URL: "https://a.example", Title: "Powerful search", Description: "full text"},
		models.LinkResult{URL: "https://b.example", Title: "Gardening", Description: "tomatoes"},
	))

	results, err := db.SearchLinks([]string{"tomatoes", "powerful"}, 10)
	if err != nil {
		t.Fatalf("SearchLinks: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestFTS5_QuotedTerms(t *testing.T) {
	db := testDB(t)
	if _, err := db.SearchLinks([]string{`say "hi"`, "OR"}, 10); err != nil {
		t.Fatalf("SearchLinks with quotes: %v", err)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.CreateDocument(doc("d1", "", "x", 1, models.LinkResult{URL: "https://e.example", Title: "original"}))
	_ = db.SaveDocument(doc("d1", "", "x", 2, models.LinkResult{URL: "https://e.example", Title: "replacement"}))

	results, _ := db.SearchLinks([]string{"original"}, 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.SearchLinks([]string{"replacement"}, 10)
	if len(results) != 1 || results[0].Title != "replacement" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
