package index

import "github.com/starford/contextpad/internal/models"

// DocumentIndex defines the document and link index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DocumentIndex interface {
	CreateDocument(doc models.Document) error
	SaveDocument(doc models.Document) error
	GetDocument(id string) (*models.Document, error)
	ListDocuments() ([]DocumentRow, error)
	SetStatus(id, status string) error
	SearchLinks(terms []string, limit int) ([]models.LinkResult, error)
	DocumentsLinking(url string) ([]string, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
