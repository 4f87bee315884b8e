//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/contextpad/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; link search uses LIKE fallback on the links table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ string) error {
	// Links are already stored in the links table; nothing extra to do.
	return nil
}

// SearchLinks performs a LIKE-based search (fallback when FTS5 is not
// compiled in). A link matches when any term appears in its url, title or
// description; links carried by more documents rank first.
func (db *DB) SearchLinks(terms []string, limit int) ([]models.LinkResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var where []string
	var args []any
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		like := "%" + t + "%"
		where = append(where, `(l.url LIKE ? OR l.title LIKE ? OR l.description LIKE ?)`)
		args = append(args, like, like, like)
	}
	if len(where) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT l.url, l.title, l.description
		FROM links l
		WHERE `+strings.Join(where, " OR ")+`
		ORDER BY (SELECT count(*) FROM doc_links d WHERE d.url = l.url) DESC,
		         l.updated_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search links: %w", err)
	}
	return scanLinks(rows)
}
