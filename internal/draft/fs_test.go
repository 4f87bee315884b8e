package draft

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/models"
)

func tempStore(t *testing.T, maxBytes int64) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func sampleDoc(text string) models.Document {
	doc := models.NewBlank(models.LocalDraftID, time.Unix(1700000000, 0))
	doc.Text = text
	doc.Cursor = len(text)
	doc.Links.Rejected = []string{"https://spam.example"}
	return doc
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestFSSaveAndLoad(t *testing.T) {
	s := tempStore(t, 0)
	ctx := context.Background()
	if err := s.Save(ctx, sampleDoc("hello world")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Text != "hello world" {
		t.Errorf("text = %q, want %q", got.Text, "hello world")
	}
	if got.ID != models.LocalDraftID {
		t.Errorf("id = %q, want %q", got.ID, models.LocalDraftID)
	}
	if len(got.Links.Rejected) != 1 {
		t.Errorf("rejected = %v, want one entry", got.Links.Rejected)
	}
}

func TestFSSaveOverwrites(t *testing.T) {
	s := tempStore(t, 0)
	ctx := context.Background()
	_ = s.Save(ctx, sampleDoc("first"))
	_ = s.Save(ctx, sampleDoc("second"))
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Text != "second" {
		t.Errorf("text = %q, want %q", got.Text, "second")
	}
	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	if len(entries) != 1 {
		t.Errorf("draft dir holds %d entries, want 1", len(entries))
	}
}

func TestFSLoadEmpty(t *testing.T) {
	s := tempStore(t, 0)
	_, err := s.Load(context.Background())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFSQuota(t *testing.T) {
	s := tempStore(t, 256)
	ctx := context.Background()
	if err := s.Save(ctx, sampleDoc("small")); err != nil {
		t.Fatalf("Save small: %v", err)
	}
	err := s.Save(ctx, sampleDoc(strings.Repeat("x", 1024)))
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Text != "small" {
		t.Errorf("text = %q, want previous draft kept", got.Text)
	}
}

func TestFSLoadRejectsUnknownFields(t *testing.T) {
	s := tempStore(t, 0)
	if err := os.WriteFile(s.Path(), []byte(`{"id":"localdoc","text":"x","bogus":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load(context.Background())
	if !errors.Is(err, apperr.ErrInvalidDocument) {
		t.Fatalf("err = %v, want ErrInvalidDocument", err)
	}
}

func TestFSClear(t *testing.T) {
	s := tempStore(t, 0)
	ctx := context.Background()
	_ = s.Save(ctx, sampleDoc("bye"))
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFSFailedRenameKeepsChecksum(t *testing.T) {
	s := tempStore(t, 0)
	// A non-empty directory at the draft path makes the rename fail.
	if err := os.MkdirAll(filepath.Join(s.Path(), "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	err := s.Save(context.Background(), sampleDoc("never written"))
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if s.changedExternally() {
		t.Error("failed save was recorded as this process's content")
	}
	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".contextpad-tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestWatchReportsExternalWrites(t *testing.T) {
	s := tempStore(t, 0)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go s.Watch(ctx, logger, 50*time.Millisecond, func() { calls.Add(1) })
	time.Sleep(100 * time.Millisecond)

	if err := s.Save(ctx, sampleDoc("own write")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("own write reported %d times, want 0", n)
	}

	other, err := NewFS(filepath.Dir(s.Path()), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Save(ctx, sampleDoc("other window")); err != nil {
		t.Fatalf("other Save: %v", err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return calls.Load() == 1
	}, "external write not reported")
}
