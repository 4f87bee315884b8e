// Package testutil provides shared test helpers for draft stores, databases
// and an in-memory document backend.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/draft"
	"github.com/starford/contextpad/internal/index"
	"github.com/starford/contextpad/internal/models"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "contextpad-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDraft creates a file draft store in a temporary directory.
func TestDraft(t *testing.T) *draft.FS {
	t.Helper()
	store, err := draft.NewFS(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// FakeRemote is an in-memory backend document API. Fail makes every call
// return apperr.ErrNetwork. A non-nil CreateGate blocks Create until it is
// closed.
type FakeRemote struct {
	mu         sync.Mutex
	docs       map[string]models.Document
	order      []string
	next       int
	creates    int
	updates    int
	fail       bool
	CreateGate chan struct{}
	createSeen chan struct{}
}

// NewFakeRemote returns an empty fake backend.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		docs:       make(map[string]models.Document),
		createSeen: make(chan struct{}, 16),
	}
}

// SetFail toggles failure mode.
func (f *FakeRemote) SetFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// Put stores doc directly.
func (f *FakeRemote) Put(doc models.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		f.order = append(f.order, doc.ID)
	}
	f.docs[doc.ID] = doc.Clone()
}

// Doc returns the stored document with id.
func (f *FakeRemote) Doc(id string) (models.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d.Clone(), ok
}

// Counts returns the number of Create and Update calls that reached the store.
func (f *FakeRemote) Counts() (creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates
}

// CreateStarted returns a channel that receives once per Create call.
func (f *FakeRemote) CreateStarted() <-chan struct{} {
	return f.createSeen
}

func (f *FakeRemote) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *FakeRemote) List(_ context.Context) (models.DocumentList, error) {
	if f.failing() {
		return models.DocumentList{}, apperr.ErrNetwork
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := models.DocumentList{Active: []models.DocumentSummary{}, Archived: []models.DocumentSummary{}}
	for _, id := range f.order {
		out.Active = append(out.Active, f.docs[id].Summary())
	}
	return out, nil
}

func (f *FakeRemote) Create(ctx context.Context, doc models.Document) (string, error) {
	select {
	case f.createSeen <- struct{}{}:
	default:
	}
	if f.CreateGate != nil {
		select {
		case <-f.CreateGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failing() {
		return "", apperr.ErrNetwork
	}
	f.mu.Lock()
	f.next++
	f.creates++
	doc.ID = fmt.Sprintf("doc-%d", f.next)
	f.mu.Unlock()
	f.Put(doc)
	return doc.ID, nil
}

func (f *FakeRemote) Get(_ context.Context, id string) (*models.Document, error) {
	if f.failing() {
		return nil, apperr.ErrNetwork
	}
	d, ok := f.Doc(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &d, nil
}

func (f *FakeRemote) Update(_ context.Context, doc models.Document) error {
	if f.failing() {
		return apperr.ErrNetwork
	}
	f.mu.Lock()
	_, ok := f.docs[doc.ID]
	if ok {
		f.updates++
	}
	f.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	f.Put(doc)
	return nil
}
