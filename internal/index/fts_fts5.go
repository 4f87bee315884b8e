//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/contextpad/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS links_fts USING fts5(
			url UNINDEXED,
			title,
			description,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsUpsert copies the current row of the links table into the FTS index.
func ftsUpsert(tx *sql.Tx, url string) error {
	_, _ = tx.Exec(`DELETE FROM links_fts WHERE url = ?`, url)
	_, err := tx.Exec(`
		INSERT INTO links_fts (url, title, description)
		SELECT url, title, description FROM links WHERE url = ?
	`, url)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

// matchQuery ORs the terms as quoted FTS5 strings.
func matchQuery(terms []string) string {
	var parts []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}

// SearchLinks performs an FTS5 full-text search over the known links.
func (db *DB) SearchLinks(terms []string, limit int) ([]models.LinkResult, error) {
	if limit <= 0 {
		limit = 20
	}
	q := matchQuery(terms)
	if q == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT url, title, description
		FROM links_fts
		WHERE links_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search links: %w", err)
	}
	return scanLinks(rows)
}
