package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/checksum"
	"github.com/starford/contextpad/internal/models"
)

// DocumentRow represents a row in the documents table without its body.
type DocumentRow struct {
	ID          string
	Title       string
	Created     int64
	LastUpdated int64
	Role        string
	Status      string
}

// Summary returns the folio entry for the row.
func (r DocumentRow) Summary() models.DocumentSummary {
	return models.DocumentSummary{
		ID:          r.ID,
		Title:       r.Title,
		Created:     r.Created,
		LastUpdated: r.LastUpdated,
		Role:        r.Role,
		Status:      r.Status,
	}
}

// CreateDocument inserts a new document. An existing id wraps
// apperr.ErrAlreadyExists.
func (db *DB) CreateDocument(doc models.Document) error {
	return db.writeDocument(doc, true)
}

// SaveDocument replaces an existing document. An unknown id wraps
// apperr.ErrNotFound.
func (db *DB) SaveDocument(doc models.Document) error {
	return db.writeDocument(doc, false)
}

// writeDocument stores the document row, its link edges and the known links
// within a transaction. Link edges are only rewritten when the link set
// differs from the stored one.
func (db *DB) writeDocument(doc models.Document, create bool) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index: encode document: %w", err)
	}
	linksSum, err := checksum.JSON(doc.Links)
	if err != nil {
		return fmt.Errorf("index: fingerprint links: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if create {
		_, err = tx.Exec(`
			INSERT INTO documents (id, title, body, doc, links_sum, created, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, doc.ID, doc.Title, doc.Text, string(body), linksSum, doc.Created, doc.LastUpdated)
		if isConstraint(err) {
			return fmt.Errorf("index: create document %s: %w", doc.ID, apperr.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("index: create document: %w", err)
		}
	} else {
		var prevSum string
		err := tx.QueryRow(`SELECT links_sum FROM documents WHERE id = ?`, doc.ID).Scan(&prevSum)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("index: save document %s: %w", doc.ID, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("index: save document: %w", err)
		}
		if _, err := tx.Exec(`
			UPDATE documents SET
				title        = ?,
				body         = ?,
				doc          = ?,
				links_sum    = ?,
				last_updated = ?
			WHERE id = ?
		`, doc.Title, doc.Text, string(body), linksSum, doc.LastUpdated, doc.ID); err != nil {
			return fmt.Errorf("index: save document: %w", err)
		}
		if prevSum == linksSum {
			return tx.Commit()
		}
	}

	if err := replaceLinks(tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceLinks rewrites the document's link edges and upserts every pinned
// and discovered link into the known links.
func replaceLinks(tx *sql.Tx, doc models.Document) error {
	if _, err := tx.Exec(`DELETE FROM doc_links WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("index: clear doc links: %w", err)
	}
	if len(doc.Links.Pinned)+len(doc.Links.Discovered) == 0 {
		return nil
	}

	edge, err := tx.Prepare(`INSERT OR IGNORE INTO doc_links (doc_id, url, kind) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare link insert: %w", err)
	}
	defer edge.Close()
	known, err := tx.Prepare(`
		INSERT INTO links (url, title, description, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title       = CASE WHEN excluded.title != '' THEN excluded.title ELSE links.title END,
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE links.description END,
			updated_at  = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("index: prepare known link upsert: %w", err)
	}
	defer known.Close()

	now := time.Now().UTC()
	add := func(kind string, links []models.LinkResult) error {
		for _, l := range links {
			if l.URL == "" {
				continue
			}
			if _, err := edge.Exec(doc.ID, l.URL, kind); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
			if _, err := known.Exec(l.URL, l.Title, l.Description, now); err != nil {
				return fmt.Errorf("index: upsert known link: %w", err)
			}
			if err := ftsUpsert(tx, l.URL); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add("pinned", doc.Links.Pinned); err != nil {
		return err
	}
	return add("discovered", doc.Links.Discovered)
}

// LinksChecksum returns the fingerprint of the document's stored link set.
func (db *DB) LinksChecksum(id string) (string, error) {
	var sum string
	err := db.conn.QueryRow(`SELECT links_sum FROM documents WHERE id = ?`, id).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: links checksum %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("index: links checksum: %w", err)
	}
	return sum, nil
}

// GetDocument returns the stored document. An unknown id wraps
// apperr.ErrNotFound.
func (db *DB) GetDocument(id string) (*models.Document, error) {
	var body string
	err := db.conn.QueryRow(`SELECT doc FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("index: decode document %s: %w", id, err)
	}
	return &doc, nil
}

// ListDocuments returns every document, most recently updated first.
func (db *DB) ListDocuments() ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, created, last_updated, role, status
		FROM documents
		ORDER BY last_updated DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var r DocumentRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Created, &r.LastUpdated, &r.Role, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetStatus archives or restores a document.
func (db *DB) SetStatus(id, status string) error {
	res, err := db.conn.Exec(`UPDATE documents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("index: set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: set status %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// DocumentsLinking returns the ids of documents that carry url.
func (db *DB) DocumentsLinking(url string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT doc_id FROM doc_links WHERE url = ? ORDER BY doc_id`, url)
	if err != nil {
		return nil, fmt.Errorf("index: documents linking: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanLinks(rows *sql.Rows) ([]models.LinkResult, error) {
	defer rows.Close()
	var out []models.LinkResult
	for rows.Next() {
		var l models.LinkResult
		if err := rows.Scan(&l.URL, &l.Title, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
