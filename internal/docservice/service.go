// Package docservice implements the document backend: folio listing,
// document storage, archiving and the reference analysis endpoints.
package docservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/index"
	"github.com/starford/contextpad/internal/linkmeta"
	"github.com/starford/contextpad/internal/metrics"
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/parser"
)

const (
	relevantLimit  = 10
	shortenedRunes = 140
)

// Verifier fetches link metadata.
type Verifier interface {
	Verify(ctx context.Context, urls []string) []linkmeta.Link
}

// Service coordinates the document index and link verification.
type Service struct {
	db       index.DocumentIndex
	verifier Verifier
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	quota int // 0 means unlimited
	used  int
}

// Option configures a Service.
type Option func(*Service)

// WithVerifier sets the link verifier used by Verify.
func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithRelevantQuota caps the number of Relevant calls. Calls past the cap
// fail with apperr.ErrQuotaExceeded.
func WithRelevantQuota(n int) Option {
	return func(s *Service) { s.quota = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new document service.
func NewService(db index.DocumentIndex, opts ...Option) *Service {
	s := &Service{db: db, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns the folio split into active and archived documents.
func (s *Service) List(_ context.Context) (models.DocumentList, error) {
	rows, err := s.db.ListDocuments()
	if err != nil {
		return models.DocumentList{}, err
	}
	out := models.DocumentList{Active: []models.DocumentSummary{}, Archived: []models.DocumentSummary{}}
	for _, r := range rows {
		if r.Status == models.StatusArchived {
			out.Archived = append(out.Archived, r.Summary())
		} else {
			out.Active = append(out.Active, r.Summary())
		}
	}
	return out, nil
}

// Create stores doc under a new id and returns the id.
func (s *Service) Create(_ context.Context, doc models.Document) (string, error) {
	doc.ID = uuid.NewString()
	now := s.now().UTC().Unix()
	if doc.Created == 0 {
		doc.Created = now
	}
	if doc.LastUpdated == 0 {
		doc.LastUpdated = now
	}
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("docservice: create: %w: %v", apperr.ErrInvalidDocument, err)
	}
	if err := s.db.CreateDocument(doc); err != nil {
		return "", err
	}
	metrics.BackendDocuments.WithLabelValues("create").Inc()
	s.logger.Info("document created", slog.String("id", doc.ID))
	return doc.ID, nil
}

// Get returns the document with id.
func (s *Service) Get(_ context.Context, id string) (*models.Document, error) {
	return s.db.GetDocument(id)
}

// Update replaces the document with id. The creation time of the stored
// document is kept when doc carries none.
func (s *Service) Update(_ context.Context, id string, doc models.Document) error {
	existing, err := s.db.GetDocument(id)
	if err != nil {
		return err
	}
	doc.ID = id
	if doc.Created == 0 {
		doc.Created = existing.Created
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("docservice: update %s: %w: %v", id, apperr.ErrInvalidDocument, err)
	}
	if err := s.db.SaveDocument(doc); err != nil {
		return err
	}
	metrics.BackendDocuments.WithLabelValues("update").Inc()
	return nil
}

// SetStatus archives or restores a document.
func (s *Service) SetStatus(_ context.Context, id, status string) error {
	err := validation.Validate(status, validation.Required, validation.In(models.StatusActive, models.StatusArchived))
	if err != nil {
		return fmt.Errorf("docservice: status %q: %w: %v", status, apperr.ErrInvalidDocument, err)
	}
	if err := s.db.SetStatus(id, status); err != nil {
		return err
	}
	metrics.BackendDocuments.WithLabelValues(status).Inc()
	return nil
}

// Analyze extracts search terms from content.
func (s *Service) Analyze(_ context.Context, content string) []string {
	terms := parser.Terms(content, parser.DefaultTerms)
	if terms == nil {
		return []string{}
	}
	return terms
}

// Relevant searches the link index for terms. When shorten is set long
// descriptions are cut down.
func (s *Service) Relevant(_ context.Context, terms []string, shorten bool) ([]models.LinkResult, error) {
	if err := s.consumeQuota(); err != nil {
		return nil, err
	}
	results, err := s.db.SearchLinks(terms, relevantLimit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.LinkResult{}
	}
	if shorten {
		for i := range results {
			results[i].Description = shortenText(results[i].Description, shortenedRunes)
		}
	}
	return results, nil
}

func (s *Service) consumeQuota() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quota <= 0 {
		return nil
	}
	s.used++
	if s.used > s.quota {
		return fmt.Errorf("docservice: %d searches used: %w", s.quota, apperr.ErrQuotaExceeded)
	}
	return nil
}

// Verify fetches metadata for urls.
func (s *Service) Verify(ctx context.Context, urls []string) ([]linkmeta.Link, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("docservice: verify: no verifier configured: %w", apperr.ErrNetwork)
	}
	var clean []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}
	links := s.verifier.Verify(ctx, clean)
	if links == nil {
		links = []linkmeta.Link{}
	}
	return links, nil
}

// Ready reports whether the index is reachable.
func (s *Service) Ready() error {
	if p, ok := s.db.(interface{ Ping() error }); ok {
		return p.Ping()
	}
	return nil
}

func shortenText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := strings.TrimRightFunc(string(r[:n-3]), func(c rune) bool { return c == ' ' || c == ',' || c == '.' })
	return cut + "..."
}
