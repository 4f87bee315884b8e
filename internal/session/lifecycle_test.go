package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/draft"
	"github.com/starford/contextpad/internal/models"
)

func TestPlaceholderSwap(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.CreateGate = make(chan struct{})

	c, err := h.s.CreateNew(ctx)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	if c.Status != Created || !models.IsPlaceholder(c.ID) {
		t.Fatalf("creation = %+v, want created with placeholder id", c)
	}
	<-h.remote.CreateStarted()

	h.edit(t, "typed while allocating")
	errc := make(chan error, 1)
	go func() { errc <- h.s.Save(ctx) }()
	time.Sleep(50 * time.Millisecond)
	close(h.remote.CreateGate)

	if err := <-errc; err != nil {
		t.Fatalf("Save: %v", err)
	}
	h.settle(t)

	doc := h.snapshot(t)
	if doc.ID != "doc-1" {
		t.Fatalf("id = %q, want doc-1", doc.ID)
	}
	stored, ok := h.remote.Doc("doc-1")
	if !ok || stored.Text != "typed while allocating" {
		t.Errorf("remote doc = %+v, %v", stored, ok)
	}
	if creates, _ := h.remote.Counts(); creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
	if !h.events.has(EventIDAssigned) {
		t.Errorf("events = %v, want %q", h.events.kinds(), EventIDAssigned)
	}
	list, _ := h.s.Documents(ctx)
	if len(list.Active) != 1 || list.Active[0].ID != "doc-1" {
		t.Errorf("folio = %+v, want only doc-1", list.Active)
	}
}

func TestLoadFlushesOutgoingDocument(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.Put(models.Document{ID: "a", Text: "alpha"})
	h.remote.Put(models.Document{ID: "b", Text: "beta"})

	if err := h.s.Load(ctx, "a"); err != nil {
		t.Fatalf("Load(a): %v", err)
	}
	h.edit(t, "alpha edited")
	if err := h.s.Load(ctx, "b"); err != nil {
		t.Fatalf("Load(b): %v", err)
	}
	h.settle(t)

	stored, _ := h.remote.Doc("a")
	if stored.Text != "alpha edited" {
		t.Errorf("outgoing text = %q, want %q", stored.Text, "alpha edited")
	}
	doc := h.snapshot(t)
	if doc.ID != "b" || doc.Text != "beta" {
		t.Errorf("current = %s %q, want b %q", doc.ID, doc.Text, "beta")
	}
	if st := h.status(t); st.Dirty {
		t.Errorf("status = %+v, want clean", st)
	}
}

func TestLoadAbortsWhenFlushFails(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.Put(models.Document{ID: "a", Text: "alpha"})
	h.remote.Put(models.Document{ID: "b", Text: "beta"})
	if err := h.s.Load(ctx, "a"); err != nil {
		t.Fatalf("Load(a): %v", err)
	}
	h.edit(t, "unsaved")
	h.remote.SetFail(true)

	err := h.s.Load(ctx, "b")
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	doc := h.snapshot(t)
	if doc.ID != "a" || doc.Text != "unsaved" {
		t.Errorf("current = %s %q, want a %q", doc.ID, doc.Text, "unsaved")
	}
	if st := h.status(t); !st.Dirty {
		t.Errorf("status = %+v, want dirty", st)
	}
}

func TestLoadNotFound(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.edit(t, "keep me")

	err := h.s.Load(ctx, "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if doc := h.snapshot(t); doc.Text != "keep me" {
		t.Errorf("text = %q, want the document kept", doc.Text)
	}
}

func TestCreateNewFlushesOutgoingDocument(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.Put(models.Document{ID: "d1", Text: "old"})
	if err := h.s.Load(ctx, "d1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.edit(t, "unsaved")

	c, err := h.s.CreateNew(ctx)
	if err != nil || c.Status != Created {
		t.Fatalf("CreateNew = %+v, %v", c, err)
	}
	h.settle(t)

	if stored, _ := h.remote.Doc("d1"); stored.Text != "unsaved" {
		t.Errorf("outgoing text = %q, want %q", stored.Text, "unsaved")
	}
	if doc := h.snapshot(t); doc.ID == "d1" || doc.Text != "" {
		t.Errorf("current = %s %q, want a blank new document", doc.ID, doc.Text)
	}
}

func TestCreateNewAbortsWhenFlushFails(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.Put(models.Document{ID: "d1", Text: "old"})
	if err := h.s.Load(ctx, "d1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := h.s.RefreshFolio(ctx); err != nil {
		t.Fatalf("RefreshFolio: %v", err)
	}
	h.edit(t, "unsaved")
	h.remote.SetFail(true)

	if _, err := h.s.CreateNew(ctx); !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	doc := h.snapshot(t)
	if doc.ID != "d1" || doc.Text != "unsaved" {
		t.Errorf("current = %s %q, want d1 %q", doc.ID, doc.Text, "unsaved")
	}
	if st := h.status(t); !st.Dirty {
		t.Errorf("status = %+v, want dirty", st)
	}

	h.remote.SetFail(false)
	c, err := h.s.CreateNew(ctx)
	if err != nil || c.Status != Created {
		t.Fatalf("CreateNew after recovery = %+v, %v", c, err)
	}
	h.settle(t)
	if stored, _ := h.remote.Doc("d1"); stored.Text != "unsaved" {
		t.Errorf("outgoing text = %q, want %q", stored.Text, "unsaved")
	}
}

func TestCreateNewSavesEditsMadeDuringFlush(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.Put(models.Document{ID: "d1", Text: "old"})
	if err := h.s.Load(ctx, "d1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.edit(t, "first")
	h.gw.release = make(chan struct{})

	type result struct {
		c   Creation
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := h.s.CreateNew(ctx)
		done <- result{c, err}
	}()
	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		return h.gw.count() == 1
	}, "outgoing flush never started")

	h.edit(t, "second")
	close(h.gw.release)

	res := <-done
	if res.err != nil || res.c.Status != Created {
		t.Fatalf("CreateNew = %+v, %v", res.c, res.err)
	}
	h.settle(t)

	if stored, _ := h.remote.Doc("d1"); stored.Text != "second" {
		t.Errorf("outgoing text = %q, want %q", stored.Text, "second")
	}
	if n := h.gw.count(); n != 2 {
		t.Errorf("saves = %d, want 2", n)
	}
	if doc := h.snapshot(t); doc.ID == "d1" {
		t.Errorf("current id = %s, want the new document", doc.ID)
	}
}

func TestCreateNewAnonymous(t *testing.T) {
	h := newHarness(t, models.LevelAnonymous)
	ctx := context.Background()
	if err := h.s.Open(ctx); err != nil {
		t.Fatal(err)
	}

	c, err := h.s.CreateNew(ctx)
	if err != nil || c.Status != Created || c.ID != models.LocalDraftID {
		t.Fatalf("blank draft: CreateNew = %+v, %v", c, err)
	}

	h.edit(t, "something")
	c, err = h.s.CreateNew(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != UpgradeRequired || c.RequiredLevel != models.LevelFree {
		t.Fatalf("creation = %+v, want upgrade to level 1", c)
	}
	if !h.events.has(EventUpgradeRequired) {
		t.Errorf("events = %v, want %q", h.events.kinds(), EventUpgradeRequired)
	}
	if doc := h.snapshot(t); doc.Text != "something" {
		t.Errorf("text = %q, want the draft kept", doc.Text)
	}
}

func TestCreateNewCapacity(t *testing.T) {
	tests := []struct {
		name  string
		level models.AccessLevel
		want  CreateStatus
	}{
		{"free at limit", models.LevelFree, UpgradeRequired},
		{"paid", models.LevelPaid, Created},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.level)
			for i := range DefaultFreeDocLimit {
				h.remote.Put(models.Document{ID: fmt.Sprintf("d%d", i), Text: "x"})
			}
			c, err := h.s.CreateNew(context.Background())
			if err != nil {
				t.Fatalf("CreateNew: %v", err)
			}
			if c.Status != tt.want {
				t.Fatalf("status = %q, want %q", c.Status, tt.want)
			}
			if c.Status == UpgradeRequired && c.RequiredLevel != models.LevelPaid {
				t.Errorf("required level = %d, want %d", c.RequiredLevel, models.LevelPaid)
			}
			h.settle(t)
			if tt.want == Created {
				if doc := h.snapshot(t); doc.ID != "doc-1" {
					t.Errorf("id = %q, want doc-1", doc.ID)
				}
			}
		})
	}
}

func TestConcurrentCreateSuppressed(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	h.remote.CreateGate = make(chan struct{})

	first, err := h.s.CreateNew(ctx)
	if err != nil || first.Status != Created {
		t.Fatalf("first = %+v, %v", first, err)
	}
	<-h.remote.CreateStarted()

	second, err := h.s.CreateNew(ctx)
	if err != nil || second.Status != Suppressed {
		t.Fatalf("second = %+v, %v; want suppressed", second, err)
	}
	if st := h.status(t); !st.CreatingDoc {
		t.Fatalf("status = %+v, want creating", st)
	}

	close(h.remote.CreateGate)
	h.settle(t)
	if st := h.status(t); st.CreatingDoc || st.DocID != "doc-1" {
		t.Fatalf("status = %+v, want doc-1 and not creating", st)
	}
	third, err := h.s.CreateNew(ctx)
	if err != nil || third.Status != Created {
		t.Fatalf("third = %+v, %v", third, err)
	}
	h.settle(t)
	if creates, _ := h.remote.Counts(); creates != 2 {
		t.Errorf("creates = %d, want 2", creates)
	}
}

func TestAllocationFailureRetries(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	if _, err := h.s.RefreshFolio(ctx); err != nil {
		t.Fatal(err)
	}
	h.remote.SetFail(true)
	c, err := h.s.CreateNew(ctx)
	if err != nil || c.Status != Created {
		t.Fatalf("CreateNew = %+v, %v", c, err)
	}
	h.settle(t)
	if st := h.status(t); !st.Dirty || st.CreatingDoc || st.State != StateTyping {
		t.Fatalf("status = %+v, want dirty with retry armed", st)
	}
	if !h.events.has(EventSaveFailed) {
		t.Errorf("events = %v, want %q", h.events.kinds(), EventSaveFailed)
	}

	h.remote.SetFail(false)
	h.clk.Advance(2 * time.Second)
	h.settle(t)
	doc := h.snapshot(t)
	if doc.ID != "doc-1" {
		t.Fatalf("id = %q, want doc-1", doc.ID)
	}
	if st := h.status(t); st.Dirty {
		t.Errorf("status = %+v, want clean", st)
	}
}

func TestOpenRegistered(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	h.remote.Put(models.Document{ID: "old", Text: "old", LastUpdated: 100})
	h.remote.Put(models.Document{ID: "new", Text: "new", LastUpdated: 200})

	if err := h.s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc := h.snapshot(t); doc.ID != "new" {
		t.Errorf("id = %q, want the latest document", doc.ID)
	}
}

func TestOpenRegisteredMigratesStoredDraft(t *testing.T) {
	h := newHarness(t, models.LevelFree)
	ctx := context.Background()
	stored := models.NewBlank(models.LocalDraftID, time.Unix(1800000000, 0))
	stored.Text = "written offline"
	if err := h.draft.Save(ctx, stored); err != nil {
		t.Fatal(err)
	}

	if err := h.s.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	doc := h.snapshot(t)
	if doc.ID != "doc-1" || doc.Text != "written offline" {
		t.Errorf("current = %s %q, want the migrated draft", doc.ID, doc.Text)
	}
	if _, err := h.draft.Load(ctx); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("draft slot err = %v, want ErrNotFound", err)
	}
}

func TestSetLevelMigratesDraft(t *testing.T) {
	h := newHarness(t, models.LevelAnonymous)
	ctx := context.Background()
	if err := h.s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	h.edit(t, "draft text")
	h.clk.Advance(debounce)
	h.settle(t)

	if err := h.s.SetLevel(ctx, models.LevelFree); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	doc := h.snapshot(t)
	if doc.ID != "doc-1" {
		t.Fatalf("id = %q, want doc-1", doc.ID)
	}
	stored, _ := h.remote.Doc("doc-1")
	if stored.Text != "draft text" {
		t.Errorf("remote text = %q", stored.Text)
	}
	if _, err := h.draft.Load(ctx); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("draft slot err = %v, want ErrNotFound", err)
	}

	h.edit(t, "draft text, now remote")
	h.clk.Advance(debounce)
	h.settle(t)
	stored, _ = h.remote.Doc("doc-1")
	if stored.Text != "draft text, now remote" {
		t.Errorf("remote text after edit = %q", stored.Text)
	}
}

func TestSetLevelBlankDraftGetsBackendDocument(t *testing.T) {
	h := newHarness(t, models.LevelAnonymous)
	ctx := context.Background()
	if err := h.s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.s.SetLevel(ctx, models.LevelPaid); err != nil {
		t.Fatal(err)
	}
	h.settle(t)
	if doc := h.snapshot(t); doc.ID != "doc-1" {
		t.Errorf("id = %q, want doc-1", doc.ID)
	}
}

func TestReloadDraft(t *testing.T) {
	h := newHarness(t, models.LevelAnonymous)
	ctx := context.Background()
	if err := h.s.Open(ctx); err != nil {
		t.Fatal(err)
	}

	other, err := draft.NewFS(filepath.Dir(h.draft.Path()), 0)
	if err != nil {
		t.Fatal(err)
	}
	doc := models.NewBlank(models.LocalDraftID, time.Now())
	doc.Text = "from another window"
	if err := other.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}

	replaced, err := h.s.ReloadDraft(ctx)
	if err != nil || !replaced {
		t.Fatalf("ReloadDraft = %v, %v", replaced, err)
	}
	if got := h.snapshot(t); got.Text != "from another window" {
		t.Errorf("text = %q", got.Text)
	}

	h.edit(t, "local edit")
	replaced, err = h.s.ReloadDraft(ctx)
	if err != nil || replaced {
		t.Errorf("ReloadDraft with unsaved edits = %v, %v; want false", replaced, err)
	}
}
