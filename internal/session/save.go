package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/metrics"
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/persistence"
)

func errAttr(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// saveTag identifies the document state a save was taken from.
type saveTag struct {
	epoch    uint64
	revision uint64
}

// rearm cancels the pending debounce timer and schedules a new one in one
// loop step. A callback of a superseded timer sees a stale generation.
func (s *Session) rearm(d time.Duration) {
	s.cancelTimer()
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(d, func() {
		s.post(func() { s.onTimer(gen) })
	})
}

func (s *Session) cancelTimer() {
	s.timer.Stop()
	s.timer = nil
	s.timerGen++
}

func (s *Session) onTimer(gen uint64) {
	if gen != s.timerGen {
		return
	}
	s.timer = nil
	s.timerGen++
	if s.dirty {
		s.startSave()
	}
}

// Save persists the current document now. Local failures wrap
// apperr.ErrStorage; remote failures wrap apperr.ErrNetwork, keep the
// document dirty and schedule a retry.
func (s *Session) Save(ctx context.Context) error {
	var ch <-chan error
	if err := s.do(ctx, func() { ch = s.startSave() }); err != nil {
		return err
	}
	return s.wait(ctx, ch)
}

// Flush saves the current document if it has unsaved, non-trivial edits.
func (s *Session) Flush(ctx context.Context) error {
	var ch <-chan error
	if err := s.do(ctx, func() { ch = s.flushIfNeeded() }); err != nil {
		return err
	}
	if ch == nil {
		return nil
	}
	return s.wait(ctx, ch)
}

// flushIfNeeded starts a save when the outgoing document must not be lost.
// It returns nil when nothing needs saving.
func (s *Session) flushIfNeeded() <-chan error {
	if !s.dirty || s.doc.Trivial() {
		return nil
	}
	return s.startSave()
}

// startSave snapshots the document and saves it off the loop. The returned
// channel receives the outcome after it has been applied.
func (s *Session) startSave() <-chan error {
	s.cancelTimer()
	now := s.clock.Now().UTC().Unix()
	s.doc.LastUpdated = now
	snap := s.current()
	tag := saveTag{epoch: s.epoch, revision: s.revision}
	level := s.level
	s.saving++

	ch := make(chan error, 1)
	s.spawn(func(ctx context.Context) func() {
		res, err := s.gw.Save(ctx, snap, level)
		return func() {
			ch <- s.finishSave(tag, snap, res, err)
		}
	})
	return ch
}

func (s *Session) finishSave(tag saveTag, snap models.Document, res persistence.Result, err error) error {
	s.saving--
	if err != nil {
		s.logger.Warn("session: save failed",
			slog.String("id", snap.ID),
			slog.String("target", res.Target),
			errAttr(err))
		if tag.epoch == s.epoch {
			s.emit(EventSaveFailed, s.doc.ID, err.Error())
			if res.Target == metrics.TargetRemote {
				s.scheduleRetry()
			}
		}
		return fmt.Errorf("session: save: %w", err)
	}

	if tag.epoch != s.epoch {
		s.logger.Debug("session: save finished for replaced document", slog.String("id", res.ID))
		return nil
	}
	if res.ID != snap.ID && s.doc.ID == snap.ID {
		s.assignID(snap.ID, res.ID)
	}
	if tag.revision == s.revision {
		s.dirty = false
		s.retry.Reset()
	}
	if res.Target == metrics.TargetRemote {
		s.upsertFolio(snap.Summary(), res.ID)
	}
	s.emit(EventSaved, s.doc.ID, res.Target)
	s.startAnalysis(snap)
	return nil
}

// assignID swaps a placeholder or draft id for the canonical id.
func (s *Session) assignID(oldID, newID string) {
	s.doc.ID = newID
	for i := range s.folio.Active {
		if s.folio.Active[i].ID == oldID {
			s.folio.Active[i].ID = newID
		}
	}
	s.logger.Info("session: id assigned", slog.String("from", oldID), slog.String("to", newID))
	s.emit(EventIDAssigned, newID, oldID)
}

// scheduleRetry re-arms the timer with the next backoff delay unless an
// edit already armed it.
func (s *Session) scheduleRetry() {
	if s.timer != nil || !s.dirty {
		return
	}
	d := s.retry.NextBackOff()
	s.logger.Info("session: save retry scheduled", slog.Duration("delay", d))
	s.rearm(d)
}

// startAnalysis analyzes snap and searches links unless the same content
// was already analyzed or the search quota is used up. Only the most
// recently issued analysis is applied.
func (s *Session) startAnalysis(snap models.Document) {
	if s.analyzer == nil || s.quotaReached {
		return
	}
	content := strings.TrimSpace(snap.Title + " " + snap.Text)
	if content == "" || content == s.lastAnalyzed {
		return
	}
	s.lastAnalyzed = content
	s.analysisSeq++
	seq, epoch := s.analysisSeq, s.epoch

	s.spawn(func(ctx context.Context) func() {
		terms, err := s.analyzer.Analyze(ctx, content)
		var results []models.LinkResult
		if err == nil && len(terms) > 0 {
			results, err = s.analyzer.Search(ctx, terms)
		}
		return func() {
			s.finishAnalysis(epoch, seq, terms, results, err)
		}
	})
}

func (s *Session) finishAnalysis(epoch, seq uint64, terms []string, results []models.LinkResult, err error) {
	if epoch != s.epoch || seq != s.analysisSeq {
		metrics.Analyses.WithLabelValues(metrics.AnalysisStale).Inc()
		return
	}
	switch {
	case errors.Is(err, apperr.ErrQuotaExceeded):
		metrics.Analyses.WithLabelValues(metrics.AnalysisQuota).Inc()
		s.quotaReached = true
		s.links.StoreResults(nil)
		s.emit(EventQuotaReached, s.doc.ID, strconv.Itoa(int(s.level)))
		s.emit(EventLinksUpdated, s.doc.ID, "quota")
		return
	case err != nil:
		metrics.Analyses.WithLabelValues(metrics.AnalysisFailed).Inc()
		s.logger.Warn("session: analysis failed", errAttr(err))
		s.lastAnalyzed = ""
		s.emit(EventAnalysisFailed, s.doc.ID, err.Error())
		return
	case len(terms) == 0:
		return
	}
	metrics.Analyses.WithLabelValues(metrics.AnalysisApplied).Inc()
	s.links.StoreResults(results)
	s.emit(EventLinksUpdated, s.doc.ID, "discovered")
}

// upsertFolio records a remote document in the cached folio.
func (s *Session) upsertFolio(sum models.DocumentSummary, id string) {
	sum.ID = id
	for i := range s.folio.Active {
		if s.folio.Active[i].ID == id {
			sum.Created = s.folio.Active[i].Created
			sum.Role = s.folio.Active[i].Role
			s.folio.Active[i] = sum
			return
		}
	}
	s.folio.Active = append([]models.DocumentSummary{sum}, s.folio.Active...)
}
