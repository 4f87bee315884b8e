// Package linkmeta fetches pages and extracts a title and description for
// link verification.
package linkmeta

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4
	maxBodyBytes       = 1 << 20
	maxDescription     = 300
	userAgent          = "Mozilla/5.0 (compatible; contextpad-verifier/1.0)"
)

// Link is one verification result. StatusCode is non-zero when the page
// could not be fetched: the HTTP status, or 502 for transport errors.
type Link struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StatusCode  int    `json:"statuscode,omitempty"`
}

// Verifier fetches link metadata.
type Verifier struct {
	client      *http.Client
	logger      *slog.Logger
	concurrency int
}

// New creates a verifier. A nil client gets a 10 s timeout.
func New(client *http.Client, logger *slog.Logger) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{client: client, logger: logger, concurrency: defaultConcurrency}
}

// Verify fetches every url concurrently and returns results in input order.
func (v *Verifier) Verify(ctx context.Context, urls []string) []Link {
	out := make([]Link, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			out[i] = v.fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (v *Verifier) fetch(ctx context.Context, raw string) Link {
	link := Link{URL: raw}
	target := raw
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		link.StatusCode = http.StatusBadRequest
		return link
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("linkmeta: fetch failed", slog.String("url", raw), slog.String("error", err.Error()))
		link.StatusCode = http.StatusBadGateway
		return link
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		link.StatusCode = resp.StatusCode
		return link
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		link.StatusCode = http.StatusUnprocessableEntity
		return link
	}
	link.Title, link.Description = Extract(doc)
	if link.Title == "" {
		link.Title = resp.Request.URL.Host
	}
	return link
}

// Extract returns the page title and description, preferring OpenGraph tags.
func Extract(doc *goquery.Document) (title, description string) {
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		title = strings.TrimSpace(og)
	} else {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if og, ok := doc.Find("meta[property='og:description']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		description = og
	} else if d, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		description = d
	}
	description = strings.Join(strings.Fields(description), " ")
	if r := []rune(description); len(r) > maxDescription {
		description = string(r[:maxDescription-3]) + "..."
	}
	return title, description
}
