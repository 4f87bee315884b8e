// Package models defines the domain types for contextpad.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/contextpad/internal/apperr"
)

// LocalDraftID is the id of the document held in the local draft slot.
const LocalDraftID = "localdoc"

// PlaceholderPrefix marks ids handed out while remote allocation is pending.
const PlaceholderPrefix = "pending-"

// AccessLevel gates remote persistence and document caps.
type AccessLevel int

// Access levels as reported by the user-level gate.
const (
	LevelAnonymous AccessLevel = 0
	LevelFree      AccessLevel = 1
	LevelPaid      AccessLevel = 2
)

func (l AccessLevel) String() string {
	switch l {
	case LevelAnonymous:
		return "anonymous"
	case LevelFree:
		return "free"
	case LevelPaid:
		return "paid"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Registered reports whether documents of this level live on the backend.
func (l AccessLevel) Registered() bool {
	return l > LevelAnonymous
}

// LinkResult is a single context link. URL is the key within a document.
type LinkResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Validate validates the link.
func (l LinkResult) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.URL, validation.Required),
	)
}

// Links holds the three link collections of a document.
type Links struct {
	Pinned     []LinkResult `json:"sticky"`
	Discovered []LinkResult `json:"normal"`
	Rejected   []string     `json:"blacklist"`
}

// Validate validates every link in every collection.
func (l Links) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Pinned),
		validation.Field(&l.Discovered),
		validation.Field(&l.Rejected, validation.Each(validation.Required)),
	)
}

// Clone returns a deep copy with non-nil slices.
func (l Links) Clone() Links {
	out := Links{
		Pinned:     make([]LinkResult, len(l.Pinned)),
		Discovered: make([]LinkResult, len(l.Discovered)),
		Rejected:   make([]string, len(l.Rejected)),
	}
	copy(out.Pinned, l.Pinned)
	copy(out.Discovered, l.Discovered)
	copy(out.Rejected, l.Rejected)
	return out
}

// Document is a single writing document.
type Document struct {
	ID             string
	Title          string
	Text           string
	Created        int64
	LastUpdated    int64
	Cursor         int
	ContextVisible bool
	Links          Links
}

// documentJSON is the wire shape shared by the backend and the draft slot.
type documentJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Created     int64  `json:"created"`
	LastUpdated int64  `json:"last_updated"`
	Cursor      int    `json:"cursor"`
	HideContext bool   `json:"hidecontext"`
	Links       *Links `json:"links,omitempty"`
}

// NewBlank returns an empty document created at now.
func NewBlank(id string, now time.Time) Document {
	ts := now.UTC().Unix()
	return Document{
		ID:             id,
		Created:        ts,
		LastUpdated:    ts,
		ContextVisible: true,
		Links:          Links{}.Clone(),
	}
}

// NewPlaceholderID returns a fresh placeholder id.
func NewPlaceholderID() string {
	return PlaceholderPrefix + uuid.NewString()
}

// IsPlaceholder reports whether id is a pending-allocation placeholder.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Trivial reports whether the document has no content worth flushing.
func (d Document) Trivial() bool {
	return strings.TrimSpace(d.Title) == "" && strings.TrimSpace(d.Text) == ""
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	d.Links = d.Links.Clone()
	return d
}

// Summary returns the folio entry for the document.
func (d Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:          d.ID,
		Title:       d.Title,
		Created:     d.Created,
		LastUpdated: d.LastUpdated,
		Role:        RoleOwner,
		Status:      StatusActive,
	}
}

// Validate checks the invariants every persisted document must satisfy.
func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Created, validation.Min(int64(0))),
		validation.Field(&d.LastUpdated, validation.Min(int64(0))),
		validation.Field(&d.Cursor, validation.Min(0), validation.Max(utf8.RuneCountInString(d.Text))),
		validation.Field(&d.Links),
	)
}

// ValidateStored is Validate plus a required id.
func (d Document) ValidateStored() error {
	if err := validation.Validate(d.ID, validation.Required); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	return d.Validate()
}

// MarshalJSON encodes the document in its wire shape.
func (d Document) MarshalJSON() ([]byte, error) {
	links := d.Links.Clone()
	return json.Marshal(documentJSON{
		ID:          d.ID,
		Title:       d.Title,
		Text:        d.Text,
		Created:     d.Created,
		LastUpdated: d.LastUpdated,
		Cursor:      d.Cursor,
		HideContext: !d.ContextVisible,
		Links:       &links,
	})
}

// UnmarshalJSON decodes the wire shape strictly; see DecodeDocument.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := DecodeDocument(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// DecodeDocument decodes and validates one document. Unknown fields are
// rejected; missing link collections decode as empty.
func DecodeDocument(r io.Reader) (*Document, error) {
	var w documentJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidDocument, err)
	}
	var links Links
	if w.Links != nil {
		links = *w.Links
	}
	doc := &Document{
		ID:             w.ID,
		Title:          w.Title,
		Text:           w.Text,
		Created:        w.Created,
		LastUpdated:    w.LastUpdated,
		Cursor:         w.Cursor,
		ContextVisible: !w.HideContext,
		Links:          links.Clone(),
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidDocument, err)
	}
	return doc, nil
}

// Folio roles and statuses.
const (
	RoleOwner      = "owner"
	RoleCollab     = "collaborator"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// DocumentSummary is a lightweight folio entry.
type DocumentSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Created     int64  `json:"created"`
	LastUpdated int64  `json:"last_updated"`
	Role        string `json:"role,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Owned reports whether the current user owns the document. Entries
// without a role are treated as owned.
func (s DocumentSummary) Owned() bool {
	return s.Role == "" || s.Role == RoleOwner
}

// DocumentList is the response of GET /docs/.
type DocumentList struct {
	Active   []DocumentSummary `json:"active"`
	Archived []DocumentSummary `json:"archived"`
}
