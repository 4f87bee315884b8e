package session

import (
	"context"
	"unicode/utf8"

	"github.com/starford/contextpad/internal/metrics"
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/parser"
)

// mutate records an edit: new revision, dirty, debounce rearmed.
func (s *Session) mutate() {
	s.revision++
	s.dirty = true
	s.retry.Reset()
	s.rearm(s.cfg.Debounce)
}

// Edit replaces the text and caret position. The cursor is clamped to the
// text. A cursor move without a text change does not dirty the document.
func (s *Session) Edit(ctx context.Context, text string, cursor int) error {
	cursor = max(0, min(cursor, utf8.RuneCountInString(text)))
	return s.do(ctx, func() {
		changed := text != s.doc.Text
		s.doc.Text = text
		s.doc.Cursor = cursor
		if changed {
			s.mutate()
		}
	})
}

// SetTitle replaces the document title.
func (s *Session) SetTitle(ctx context.Context, title string) error {
	return s.do(ctx, func() {
		if title == s.doc.Title {
			return
		}
		s.doc.Title = title
		s.mutate()
	})
}

// SetContextVisible shows or hides the link panel.
func (s *Session) SetContextVisible(ctx context.Context, visible bool) error {
	return s.do(ctx, func() {
		if visible == s.doc.ContextVisible {
			return
		}
		s.doc.ContextVisible = visible
		s.mutate()
	})
}

// Pin moves a discovered link to pinned. It reports whether the link set
// changed; an unknown url is a no-op.
func (s *Session) Pin(ctx context.Context, url string) (bool, error) {
	return s.linkOp(ctx, "pin", func() bool { return s.links.Pin(url) })
}

// Unpin moves a pinned link back to the front of discovered.
func (s *Session) Unpin(ctx context.Context, url string) (bool, error) {
	return s.linkOp(ctx, "unpin", func() bool { return s.links.Unpin(url) })
}

// Reject dismisses url for the rest of the document's life.
func (s *Session) Reject(ctx context.Context, url string) (bool, error) {
	return s.linkOp(ctx, "reject", func() bool { return s.links.Reject(url) })
}

func (s *Session) linkOp(ctx context.Context, op string, fn func() bool) (bool, error) {
	var changed bool
	err := s.do(ctx, func() {
		changed = fn()
		if !changed {
			return
		}
		metrics.LinkOps.WithLabelValues(op).Inc()
		s.mutate()
		s.emit(EventLinksUpdated, s.doc.ID, op)
	})
	return changed, err
}

// AttachLinks pins the URLs found in text as pending links and verifies
// them in the background. Rejected and already pinned URLs are skipped.
// It returns the URLs that were added.
func (s *Session) AttachLinks(ctx context.Context, text string) ([]string, error) {
	urls := parser.URLs(text)
	var added []string
	err := s.do(ctx, func() {
		added = s.links.AddPending(urls)
		if len(added) == 0 {
			return
		}
		metrics.LinkOps.WithLabelValues("attach").Add(float64(len(added)))
		s.emit(EventLinksUpdated, s.doc.ID, "attach")
		if s.analyzer == nil {
			s.resolveUnverified(added)
			return
		}
		s.startVerify(added)
	})
	return added, err
}

// resolveUnverified settles pending links with the URL as title when no
// verification service is configured.
func (s *Session) resolveUnverified(urls []string) {
	results := make([]models.LinkResult, len(urls))
	for i, u := range urls {
		results[i] = models.LinkResult{URL: u, Title: u}
	}
	s.links.ResolvePending(urls, results)
	s.mutate()
}

func (s *Session) startVerify(urls []string) {
	epoch := s.epoch
	s.spawn(func(ctx context.Context) func() {
		results, err := s.analyzer.Verify(ctx, urls)
		return func() {
			if epoch != s.epoch {
				return
			}
			if err != nil {
				s.logger.Warn("session: verify links failed", errAttr(err))
				s.links.DropPending(urls)
				s.emit(EventLinksUpdated, s.doc.ID, "verify_failed")
				s.emit(EventAnalysisFailed, s.doc.ID, err.Error())
				return
			}
			s.links.ResolvePending(urls, results)
			s.mutate()
			s.emit(EventLinksUpdated, s.doc.ID, "verified")
		}
	})
}

// Snapshot returns a copy of the current document.
func (s *Session) Snapshot(ctx context.Context) (models.Document, error) {
	var doc models.Document
	err := s.do(ctx, func() { doc = s.current() })
	return doc, err
}

// Links returns a copy of the current link set.
func (s *Session) Links(ctx context.Context) (models.Links, error) {
	var l models.Links
	err := s.do(ctx, func() { l = s.links.Links() })
	return l, err
}

// State returns the session status.
func (s *Session) State(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() {
		st = Status{
			State:        s.state(),
			DocID:        s.doc.ID,
			Dirty:        s.dirty,
			Typing:       s.timer != nil,
			CreatingDoc:  s.creatingDoc,
			Revision:     s.revision,
			Level:        s.level,
			QuotaReached: s.quotaReached,
			PendingLinks: s.links.PendingCount(),
		}
	})
	return st, err
}
