package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Endpoints{
		Analyze:  srv.URL + "/analyze",
		Relevant: srv.URL + "/relevant",
		Verify:   srv.URL + "/relevant/verify",
	}, WithHTTPClient(srv.Client()), WithRate(0, 0))
}

func TestAnalyze(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Content != "go concurrency patterns" {
			t.Errorf("content = %q", req.Content)
		}
		_, _ = io.WriteString(w, `{"textrank_chunks":["concurrency"," ","patterns"]}`)
	}))
	terms, err := c.Analyze(context.Background(), "go concurrency patterns")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff([]string{"concurrency", "patterns"}, terms); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.UseShortening || len(req.SearchTerms) != 1 {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"results":[{"url":"https://a","title":"A","description":"a"},{"url":""}]}`)
	}))
	got, err := c.Search(context.Background(), []string{"go"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []models.LinkResult{{URL: "https://a", Title: "A", Description: "a"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchQuota(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	_, err := c.Search(context.Background(), []string{"go"})
	if !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestServerErrorIsNetwork(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.Analyze(context.Background(), "x")
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestVerifyFallbacks(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"links":[
			{"url":"https://ok.example/x","title":"OK","description":"fine"},
			{"url":"https://gone.example/blog/why-GO-rocks","statuscode":404},
			{"url":"https://down.example/","statuscode":500}
		]}`)
	}))
	got, err := c.Verify(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := []models.LinkResult{
		{URL: "https://ok.example/x", Title: "OK", Description: "fine"},
		{URL: "https://gone.example/blog/why-GO-rocks", Title: "Why Go Rocks", Description: NotFoundDescription},
		{URL: "https://down.example/", Title: "Untitled"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("verified mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingEndpoint(t *testing.T) {
	c := New(Endpoints{})
	_, err := c.Analyze(context.Background(), "x")
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}
