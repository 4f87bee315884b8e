// Package persistence routes document saves and loads between the local
// draft slot and the backend document API.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/draft"
	"github.com/starford/contextpad/internal/metrics"
	"github.com/starford/contextpad/internal/models"
)

// Remote is the backend document API as seen by the gateway.
type Remote interface {
	List(ctx context.Context) (models.DocumentList, error)
	Create(ctx context.Context, doc models.Document) (string, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	Update(ctx context.Context, doc models.Document) error
}

// Result describes where a save went.
type Result struct {
	Target string // metrics.TargetLocal or metrics.TargetRemote
	ID     string // canonical id after the save
}

// Gateway performs local and remote persistence.
type Gateway struct {
	local  draft.Store
	remote Remote
	logger *slog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	resolved map[string]string // placeholder id -> allocated id
}

// New creates a gateway. remote may be nil when no backend is configured;
// remote operations then fail with apperr.ErrNetwork.
func New(local draft.Store, remote Remote, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		local:    local,
		remote:   remote,
		logger:   logger,
		resolved: make(map[string]string),
	}
}

// Route returns the save target for doc at the given access level: the
// draft slot when the document is the local draft or the user is
// anonymous, the backend otherwise.
func Route(doc models.Document, level models.AccessLevel) string {
	if doc.ID == models.LocalDraftID || !level.Registered() {
		return metrics.TargetLocal
	}
	return metrics.TargetRemote
}

// Save persists doc according to Route.
func (g *Gateway) Save(ctx context.Context, doc models.Document, level models.AccessLevel) (Result, error) {
	target := Route(doc, level)
	var err error
	res := Result{Target: target, ID: doc.ID}
	if target == metrics.TargetLocal {
		err = g.SaveLocal(ctx, doc)
	} else {
		res.ID, err = g.SaveRemote(ctx, doc)
	}
	metrics.RecordSave(target, err)
	if err != nil {
		return Result{Target: target, ID: doc.ID}, err
	}
	return res, nil
}

// SaveLocal overwrites the draft slot with doc.
func (g *Gateway) SaveLocal(ctx context.Context, doc models.Document) error {
	if err := g.local.Save(ctx, doc); err != nil {
		return fmt.Errorf("persistence: save local: %w", err)
	}
	return nil
}

// SaveRemote persists doc on the backend and returns its canonical id.
// A placeholder id is first resolved through a single allocation shared by
// every concurrent caller; a caller whose content was not part of that
// allocation then updates the allocated document.
func (g *Gateway) SaveRemote(ctx context.Context, doc models.Document) (string, error) {
	if g.remote == nil {
		return "", fmt.Errorf("persistence: no backend configured: %w", apperr.ErrNetwork)
	}
	if !models.IsPlaceholder(doc.ID) {
		if err := g.remote.Update(ctx, doc); err != nil {
			return "", fmt.Errorf("persistence: save remote: %w", err)
		}
		return doc.ID, nil
	}

	id, created, err := g.allocate(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("persistence: allocate %s: %w", doc.ID, err)
	}
	if created {
		return id, nil
	}
	doc.ID = id
	if err := g.remote.Update(ctx, doc); err != nil {
		return "", fmt.Errorf("persistence: save remote: %w", err)
	}
	return id, nil
}

// Resolved returns the allocated id for a placeholder, if known.
func (g *Gateway) Resolved(placeholder string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.resolved[placeholder]
	return id, ok
}

// allocate creates the backend document for a placeholder once. created
// reports whether this caller's doc was the body of the create request.
func (g *Gateway) allocate(ctx context.Context, doc models.Document) (string, bool, error) {
	if id, ok := g.Resolved(doc.ID); ok {
		return id, false, nil
	}
	placeholder := doc.ID
	created := false
	v, err, _ := g.group.Do(placeholder, func() (any, error) {
		if id, ok := g.Resolved(placeholder); ok {
			return id, nil
		}
		created = true
		id, err := g.remote.Create(context.WithoutCancel(ctx), doc)
		metrics.RecordAllocation(err)
		if err != nil {
			return "", err
		}
		g.mu.Lock()
		g.resolved[placeholder] = id
		g.mu.Unlock()
		g.logger.Info("persistence: id allocated",
			slog.String("placeholder", placeholder),
			slog.String("id", id))
		return id, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), created, nil
}

// Load fetches a document. LocalDraftID reads the draft slot; a resolved
// placeholder reads its allocated document.
func (g *Gateway) Load(ctx context.Context, id string) (*models.Document, error) {
	if id == models.LocalDraftID {
		return g.LoadDraft(ctx)
	}
	if models.IsPlaceholder(id) {
		resolved, ok := g.Resolved(id)
		if !ok {
			return nil, fmt.Errorf("persistence: load %s: %w", id, apperr.ErrNotFound)
		}
		id = resolved
	}
	if g.remote == nil {
		return nil, fmt.Errorf("persistence: no backend configured: %w", apperr.ErrNetwork)
	}
	doc, err := g.remote.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("persistence: load %s: %w", id, err)
	}
	return doc, nil
}

// LoadDraft reads the draft slot. The returned document always carries
// LocalDraftID.
func (g *Gateway) LoadDraft(ctx context.Context) (*models.Document, error) {
	doc, err := g.local.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistence: load draft: %w", err)
	}
	doc.ID = models.LocalDraftID
	return doc, nil
}

// List returns the backend folio.
func (g *Gateway) List(ctx context.Context) (models.DocumentList, error) {
	if g.remote == nil {
		return models.DocumentList{}, fmt.Errorf("persistence: no backend configured: %w", apperr.ErrNetwork)
	}
	list, err := g.remote.List(ctx)
	if err != nil {
		return list, fmt.Errorf("persistence: list: %w", err)
	}
	return list, nil
}

// MoveToRemote creates doc on the backend and empties the draft slot. A
// failure to clear the slot is logged; the document already lives remotely.
func (g *Gateway) MoveToRemote(ctx context.Context, doc models.Document) (string, error) {
	if g.remote == nil {
		return "", fmt.Errorf("persistence: no backend configured: %w", apperr.ErrNetwork)
	}
	id, err := g.remote.Create(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("persistence: move to remote: %w", err)
	}
	if err := g.local.Clear(ctx); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		g.logger.Warn("persistence: clear draft after move failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
	}
	return id, nil
}
