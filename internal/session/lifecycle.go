package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/metrics"
	"github.com/starford/contextpad/internal/models"
)

// maxFlushAttempts bounds how often Load and CreateNew re-flush when edits
// keep arriving while they wait.
const maxFlushAttempts = 3

// flushThen flushes the outgoing document, then runs apply on the loop.
// apply is retried after another flush if the document was edited while
// the previous flush was in flight.
func (s *Session) flushThen(ctx context.Context, apply func()) error {
	for attempt := 0; attempt < maxFlushAttempts; attempt++ {
		var ch <-chan error
		if err := s.do(ctx, func() {
			ch = s.flushIfNeeded()
			if ch == nil {
				apply()
			}
		}); err != nil {
			return err
		}
		if ch == nil {
			return nil
		}
		if err := s.wait(ctx, ch); err != nil {
			return fmt.Errorf("session: flush outgoing document: %w", err)
		}
	}
	return fmt.Errorf("session: document kept changing during flush: %w", apperr.ErrConflict)
}

// Load replaces the current document with the one stored under id. The
// outgoing document is saved first; if that fails the load is aborted and
// the current document stays. An unknown id wraps apperr.ErrNotFound.
func (s *Session) Load(ctx context.Context, id string) error {
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("session: load %s: %w", id, err)
	}
	doc, err := s.gw.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", id, err)
	}
	return s.flushThen(ctx, func() {
		s.replace(*doc)
		s.emit(EventLoaded, s.doc.ID, "")
		if len(doc.Links.Discovered) == 0 {
			s.startAnalysis(s.current())
		}
	})
}

// CreateNew starts a new document. Anonymous users hold one local draft
// and free users a limited number of owned active documents; past either
// cap CreateNew emits upgrade_required and creates nothing. A call made
// while another creation is in progress is ignored.
//
// Registered users get a placeholder id at once; the backend id replaces it
// when allocation completes.
func (s *Session) CreateNew(ctx context.Context) (Creation, error) {
	if err := s.ensureFolio(ctx); err != nil {
		return Creation{}, err
	}

	var out Creation
	err := s.do(ctx, func() {
		if s.creatingDoc {
			out = Creation{Status: Suppressed}
			return
		}
		if lvl, ok := s.capacityExceeded(); ok {
			metrics.UpgradeSignals.WithLabelValues(strconv.Itoa(int(lvl))).Inc()
			s.emit(EventUpgradeRequired, s.doc.ID, strconv.Itoa(int(lvl)))
			out = Creation{Status: UpgradeRequired, RequiredLevel: lvl}
			return
		}
		s.creatingDoc = true
	})
	if err != nil || out.Status != "" {
		return out, err
	}

	err = s.flushThen(ctx, func() {
		if !s.level.Registered() {
			s.replace(models.NewBlank(models.LocalDraftID, s.clock.Now()))
			s.creatingDoc = false
			s.emit(EventCreated, s.doc.ID, "")
			out = Creation{Status: Created, ID: s.doc.ID}
			return
		}
		doc := models.NewBlank(models.NewPlaceholderID(), s.clock.Now())
		s.replace(doc)
		s.upsertFolio(doc.Summary(), doc.ID)
		s.emit(EventCreated, doc.ID, "")
		s.startAllocation(doc)
		out = Creation{Status: Created, ID: doc.ID}
	})
	if err != nil {
		_ = s.do(context.WithoutCancel(ctx), func() { s.creatingDoc = false })
		return Creation{}, fmt.Errorf("session: create: %w", err)
	}
	return out, nil
}

// capacityExceeded reports whether creating a document would pass the cap
// of the current level and which level lifts it.
func (s *Session) capacityExceeded() (models.AccessLevel, bool) {
	switch s.level {
	case models.LevelAnonymous:
		if s.doc.ID == models.LocalDraftID && !s.doc.Trivial() {
			return models.LevelFree, true
		}
	case models.LevelFree:
		owned := 0
		for _, d := range s.folio.Active {
			if d.Owned() {
				owned++
			}
		}
		if owned >= s.cfg.FreeDocLimit {
			return models.LevelPaid, true
		}
	}
	return 0, false
}

// startAllocation creates the backend document for a placeholder.
// creatingDoc stays set until the allocation settles.
func (s *Session) startAllocation(doc models.Document) {
	placeholder := doc.ID
	s.spawn(func(ctx context.Context) func() {
		id, err := s.gw.SaveRemote(ctx, doc)
		return func() {
			s.creatingDoc = false
			if err != nil {
				s.logger.Warn("session: id allocation failed",
					slog.String("placeholder", placeholder), errAttr(err))
				if s.doc.ID == placeholder {
					s.emit(EventSaveFailed, placeholder, err.Error())
					s.dirty = true
					s.scheduleRetry()
				}
				return
			}
			if s.doc.ID == placeholder {
				s.assignID(placeholder, id)
			}
		}
	})
}

// Open loads the initial document. Anonymous users get the local draft or
// a blank local document. Registered users get a pending local draft
// migrated first, then their most recently updated active document, or a
// new one when the folio is empty.
func (s *Session) Open(ctx context.Context) error {
	level, err := s.Level(ctx)
	if err != nil {
		return err
	}
	if !level.Registered() {
		return s.openDraft(ctx)
	}

	if err := s.migrateDraft(ctx); err != nil {
		s.logger.Warn("session: draft migration failed", errAttr(err))
	}
	list, err := s.RefreshFolio(ctx)
	if err != nil {
		return fmt.Errorf("session: open: %w", err)
	}
	var latest *models.DocumentSummary
	for i := range list.Active {
		if latest == nil || list.Active[i].LastUpdated > latest.LastUpdated {
			latest = &list.Active[i]
		}
	}
	if latest == nil {
		_, err := s.CreateNew(ctx)
		return err
	}
	return s.Load(ctx, latest.ID)
}

func (s *Session) openDraft(ctx context.Context) error {
	doc, err := s.gw.LoadDraft(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		blank := models.NewBlank(models.LocalDraftID, s.clock.Now())
		doc = &blank
	case err != nil:
		s.logger.Warn("session: unreadable draft replaced", errAttr(err))
		blank := models.NewBlank(models.LocalDraftID, s.clock.Now())
		doc = &blank
	}
	return s.do(ctx, func() {
		s.replace(*doc)
		s.emit(EventLoaded, s.doc.ID, "")
	})
}

// migrateDraft moves a non-trivial local draft to the backend. When the
// draft is the current document its id is swapped.
func (s *Session) migrateDraft(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	var snap models.Document
	var tag saveTag
	var current bool
	if err := s.do(ctx, func() {
		current = s.doc.ID == models.LocalDraftID
		snap = s.current()
		tag = saveTag{epoch: s.epoch, revision: s.revision}
	}); err != nil {
		return err
	}
	// A blank in-memory draft may still have a stored one behind it.
	fromSlot := !current || snap.Trivial()
	if fromSlot {
		doc, err := s.gw.LoadDraft(ctx)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		snap = *doc
	}
	if snap.Trivial() {
		return nil
	}

	id, err := s.gw.MoveToRemote(ctx, snap)
	if err != nil {
		return err
	}
	return s.do(ctx, func() {
		if fromSlot {
			s.upsertFolio(snap.Summary(), id)
			return
		}
		if tag.epoch != s.epoch || s.doc.ID != models.LocalDraftID {
			return
		}
		s.assignID(models.LocalDraftID, id)
		s.upsertFolio(snap.Summary(), id)
		if tag.revision == s.revision {
			s.dirty = false
		}
	})
}

// Level returns the current access level.
func (s *Session) Level(ctx context.Context) (models.AccessLevel, error) {
	var l models.AccessLevel
	err := s.do(ctx, func() { l = s.level })
	return l, err
}

// SetLevel changes the access level. Becoming registered while holding the
// local draft moves the draft to the backend; a blank draft is replaced by
// a new backend document instead.
func (s *Session) SetLevel(ctx context.Context, level models.AccessLevel) error {
	var wasRegistered, onDraft, trivial bool
	if err := s.do(ctx, func() {
		wasRegistered = s.level.Registered()
		s.level = level
		if level > models.LevelAnonymous {
			s.quotaReached = false
		}
		onDraft = s.doc.ID == models.LocalDraftID
		trivial = s.doc.Trivial()
	}); err != nil {
		return err
	}
	if wasRegistered || !level.Registered() || !onDraft {
		return nil
	}
	if !trivial {
		if err := s.migrateDraft(ctx); err != nil {
			return fmt.Errorf("session: set level: %w", err)
		}
		_, err := s.RefreshFolio(ctx)
		return err
	}
	return s.do(ctx, func() {
		if s.doc.ID != models.LocalDraftID || !s.doc.Trivial() {
			return
		}
		doc := models.NewBlank(models.NewPlaceholderID(), s.clock.Now())
		s.replace(doc)
		s.creatingDoc = true
		s.upsertFolio(doc.Summary(), doc.ID)
		s.emit(EventCreated, doc.ID, "")
		s.startAllocation(doc)
	})
}

// ReloadDraft reloads the local draft after another process changed it.
// It does nothing unless the current document is the local draft and has
// no unsaved edits. It reports whether the document was replaced.
func (s *Session) ReloadDraft(ctx context.Context) (bool, error) {
	var epoch uint64
	var eligible bool
	if err := s.do(ctx, func() {
		eligible = s.doc.ID == models.LocalDraftID && !s.dirty && s.saving == 0
		epoch = s.epoch
	}); err != nil {
		return false, err
	}
	if !eligible {
		return false, nil
	}
	doc, err := s.gw.LoadDraft(ctx)
	if err != nil {
		return false, fmt.Errorf("session: reload draft: %w", err)
	}
	var replaced bool
	err = s.do(ctx, func() {
		if epoch != s.epoch || s.dirty || s.doc.ID != models.LocalDraftID {
			return
		}
		s.replace(*doc)
		s.emit(EventLoaded, s.doc.ID, "reload")
		replaced = true
	})
	return replaced, err
}

// Documents returns the cached folio.
func (s *Session) Documents(ctx context.Context) (models.DocumentList, error) {
	var out models.DocumentList
	err := s.do(ctx, func() {
		out = models.DocumentList{
			Active:   append([]models.DocumentSummary{}, s.folio.Active...),
			Archived: append([]models.DocumentSummary{}, s.folio.Archived...),
		}
	})
	return out, err
}

// RefreshFolio fetches the folio from the backend. Documents still waiting
// for an id stay listed.
func (s *Session) RefreshFolio(ctx context.Context) (models.DocumentList, error) {
	list, err := s.gw.List(ctx)
	if err != nil {
		return models.DocumentList{}, fmt.Errorf("session: refresh folio: %w", err)
	}
	if list.Active == nil {
		list.Active = []models.DocumentSummary{}
	}
	if list.Archived == nil {
		list.Archived = []models.DocumentSummary{}
	}
	err = s.do(ctx, func() {
		if models.IsPlaceholder(s.doc.ID) {
			list.Active = append([]models.DocumentSummary{s.doc.Summary()}, list.Active...)
		}
		s.folio = list
		s.folioLoaded = true
	})
	if err != nil {
		return models.DocumentList{}, err
	}
	return s.Documents(ctx)
}

// ensureFolio loads the folio once for registered users so capacity
// checks see it.
func (s *Session) ensureFolio(ctx context.Context) error {
	var need bool
	if err := s.do(ctx, func() { need = s.level.Registered() && !s.folioLoaded }); err != nil {
		return err
	}
	if !need {
		return nil
	}
	if _, err := s.RefreshFolio(ctx); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}
