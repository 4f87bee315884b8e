package docservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/linkmeta"
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/testutil"
)

type stubVerifier struct{ got []string }

func (v *stubVerifier) Verify(_ context.Context, urls []string) []linkmeta.Link {
	v.got = urls
	out := make([]linkmeta.Link, len(urls))
	for i, u := range urls {
		out[i] = linkmeta.Link{URL: u, Title: "t"}
	}
	return out
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	s := NewService(testutil.TestDB(t), opts...)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, models.Document{ID: "client-chosen", Title: "Notes", Text: "hello"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" || id == "client-chosen" {
		t.Fatalf("id = %q, want a server-assigned id", id)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Created != 1700000000 || got.LastUpdated != 1700000000 {
		t.Errorf("timestamps = %d/%d", got.Created, got.LastUpdated)
	}
}

func TestCreateRejectsInvalidDocument(t *testing.T) {
	s := newService(t)
	_, err := s.Create(context.Background(), models.Document{Text: "ab", Cursor: 5})
	if !errors.Is(err, apperr.ErrInvalidDocument) {
		t.Fatalf("err = %v, want ErrInvalidDocument", err)
	}
}

func TestUpdateKeepsCreated(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	id, err := s.Create(ctx, models.Document{Text: "v1", Created: 42})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Update(ctx, id, models.Document{Text: "v2", LastUpdated: 99}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get(ctx, id)
	if got.Text != "v2" || got.Created != 42 {
		t.Errorf("got text=%q created=%d", got.Text, got.Created)
	}

	if err := s.Update(ctx, "missing", models.Document{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestListSplitsArchived(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	keep, _ := s.Create(ctx, models.Document{Title: "keep"})
	old, _ := s.Create(ctx, models.Document{Title: "old"})

	if err := s.SetStatus(ctx, old, models.StatusArchived); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.SetStatus(ctx, old, "deleted"); !errors.Is(err, apperr.ErrInvalidDocument) {
		t.Errorf("bad status: err = %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Active) != 1 || list.Active[0].ID != keep {
		t.Errorf("active = %+v", list.Active)
	}
	if len(list.Archived) != 1 || list.Archived[0].ID != old {
		t.Errorf("archived = %+v", list.Archived)
	}
}

func TestRelevantQuota(t *testing.T) {
	s := newService(t, WithRelevantQuota(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Relevant(ctx, []string{"bees"}, false); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := s.Relevant(ctx, []string{"bees"}, false); !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestRelevantShortensDescriptions(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	long := strings.Repeat("honeybees ", 40)
	_, err := s.Create(ctx, models.Document{Links: models.Links{
		Pinned: []models.LinkResult{{URL: "https://example.com/bees", Title: "Bees", Description: long}},
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	full, err := s.Relevant(ctx, []string{"honeybees"}, false)
	if err != nil || len(full) != 1 {
		t.Fatalf("Relevant = %+v, %v", full, err)
	}
	if full[0].Description != long {
		t.Errorf("unshortened description changed")
	}

	short, _ := s.Relevant(ctx, []string{"honeybees"}, true)
	d := short[0].Description
	if !strings.HasSuffix(d, "...") || utf8.RuneCountInString(d) > shortenedRunes {
		t.Errorf("shortened = %q (%d runes)", d, utf8.RuneCountInString(d))
	}
}

func TestShortenText(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"one two, three four", 12, "one two..."},
		{"ééééééééééé", 8, "ééééé..."},
	}
	for _, tt := range tests {
		if got := shortenText(tt.in, tt.n); got != tt.want {
			t.Errorf("shortenText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestVerify(t *testing.T) {
	s := newService(t)
	if _, err := s.Verify(context.Background(), []string{"https://a.example"}); !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("no verifier: err = %v, want ErrNetwork", err)
	}

	v := &stubVerifier{}
	s = newService(t, WithVerifier(v))
	links, err := s.Verify(context.Background(), []string{" https://a.example ", "", "https://b.example"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(v.got) != 2 || v.got[0] != "https://a.example" {
		t.Errorf("verifier got %q", v.got)
	}
	if len(links) != 2 {
		t.Errorf("links = %+v", links)
	}
}

func TestAnalyzeNeverNil(t *testing.T) {
	s := newService(t)
	if terms := s.Analyze(context.Background(), ""); terms == nil {
		t.Error("Analyze returned nil")
	}
}
