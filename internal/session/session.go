// Package session implements the document session: the dirty/typing/saving
// state machine, the debounced save-and-analyze cycle and the link set of
// the one active document.
//
// All session state is owned by a single loop goroutine. Public methods
// submit closures to the loop and wait for them; timer and network
// callbacks post closures without waiting. Network calls never run on the
// loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/clock"
	"github.com/starford/contextpad/internal/linkset"
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/persistence"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultDebounce     = time.Second
	DefaultFreeDocLimit = 10
	DefaultRetryInitial = 2 * time.Second
	DefaultRetryMax     = time.Minute
)

// Gateway persists documents. *persistence.Gateway implements it.
type Gateway interface {
	Save(ctx context.Context, doc models.Document, level models.AccessLevel) (persistence.Result, error)
	SaveRemote(ctx context.Context, doc models.Document) (string, error)
	Load(ctx context.Context, id string) (*models.Document, error)
	LoadDraft(ctx context.Context) (*models.Document, error)
	List(ctx context.Context) (models.DocumentList, error)
	MoveToRemote(ctx context.Context, doc models.Document) (string, error)
}

// Analyzer extracts terms, searches links and verifies pasted links.
// *analysis.Client implements it.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]string, error)
	Search(ctx context.Context, terms []string) ([]models.LinkResult, error)
	Verify(ctx context.Context, urls []string) ([]models.LinkResult, error)
}

// Config holds session tuning.
type Config struct {
	Level        models.AccessLevel
	Debounce     time.Duration
	FreeDocLimit int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for debouncing.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithAnalyzer enables link discovery and verification.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Session) { s.analyzer = a }
}

// WithNotifier registers fn for session events. fn runs on the session
// loop and must not call back into the session.
func WithNotifier(fn func(Event)) Option {
	return func(s *Session) { s.notify = fn }
}

// Session is one editor's document session.
type Session struct {
	cfg      Config
	gw       Gateway
	analyzer Analyzer
	clock    clock.Clock
	logger   *slog.Logger
	notify   func(Event)

	ctx     context.Context // cancelled by Close; parent of background work
	cancel  context.CancelFunc
	ops     chan func()
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Loop-owned state below.
	level        models.AccessLevel
	doc          models.Document
	links        *linkset.Manager
	dirty        bool
	creatingDoc  bool
	revision     uint64
	epoch        uint64
	timer        *clock.Timer
	timerGen     uint64
	saving       int
	retry        *backoff.ExponentialBackOff
	analysisSeq  uint64
	lastAnalyzed string
	quotaReached bool
	folio        models.DocumentList
	folioLoaded  bool
	background   int
	idleWaiters  []chan struct{}
}

// New creates a session holding a blank local document and starts its
// loop. Call Open to load the initial document and Close when done.
func New(cfg Config, gw Gateway, opts ...Option) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.FreeDocLimit <= 0 {
		cfg.FreeDocLimit = DefaultFreeDocLimit
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = DefaultRetryInitial
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = max(DefaultRetryMax, cfg.RetryInitial)
	}

	s := &Session{
		cfg:     cfg,
		gw:      gw,
		clock:   clock.Real(),
		logger:  slog.Default(),
		notify:  func(Event) {},
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		level:   cfg.Level,
		links:   linkset.New(),
		folio:   emptyFolio(),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.retry = newRetry(cfg.RetryInitial, cfg.RetryMax)
	s.doc = models.NewBlank(models.LocalDraftID, s.clock.Now())
	go s.loop()
	return s
}

func newRetry(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func emptyFolio() models.DocumentList {
	return models.DocumentList{Active: []models.DocumentSummary{}, Archived: []models.DocumentSummary{}}
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			s.timer.Stop()
			s.timer = nil
			for _, w := range s.idleWaiters {
				close(w)
			}
			s.idleWaiters = nil
			return
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-s.quit:
		return fmt.Errorf("session: %w", apperr.ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// post queues fn on the loop without waiting. It is dropped after Close.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.quit:
	}
}

// spawn runs work off the loop and applies its result on the loop. The
// background counter covers the whole span.
func (s *Session) spawn(work func(ctx context.Context) func()) {
	s.background++
	go func() {
		apply := work(s.ctx)
		s.post(func() {
			apply()
			s.backgroundDone()
		})
	}()
}

func (s *Session) backgroundDone() {
	s.background--
	if s.background > 0 {
		return
	}
	for _, w := range s.idleWaiters {
		close(w)
	}
	s.idleWaiters = nil
}

// wait blocks on ch, honouring ctx and Close.
func (s *Session) wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return fmt.Errorf("session: %w", apperr.ErrClosed)
	}
}

// Settle waits until no background save, allocation, analysis or
// verification is outstanding. A pending debounce timer is not waited for.
func (s *Session) Settle(ctx context.Context) error {
	var ch chan struct{}
	if err := s.do(ctx, func() {
		ch = make(chan struct{})
		if s.background == 0 {
			close(ch)
			return
		}
		s.idleWaiters = append(s.idleWaiters, ch)
	}); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop and the debounce timer and cancels background work.
// Unsaved edits are not flushed; call Flush first.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		close(s.quit)
		<-s.stopped
	})
}

func (s *Session) emit(kind, docID, detail string) {
	s.notify(Event{Kind: kind, DocID: docID, Detail: detail})
}

// current returns a deep copy of the document with the live link set.
func (s *Session) current() models.Document {
	doc := s.doc.Clone()
	doc.Links = s.links.Links()
	return doc
}

// replace installs doc as the current document. Everything tagged with the
// previous epoch becomes stale.
func (s *Session) replace(doc models.Document) {
	s.epoch++
	s.revision++
	s.cancelTimer()
	s.doc = doc.Clone()
	s.links.Replace(doc.Links)
	s.dirty = false
	s.lastAnalyzed = ""
	s.retry.Reset()
}
