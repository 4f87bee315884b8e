// Package analysis is the client for the text analysis and link search
// service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/models"
)

// NotFoundDescription replaces the description of a link whose page is gone.
const NotFoundDescription = "No description available (page not found)."

// Endpoints are the absolute URLs of the three service calls.
type Endpoints struct {
	Analyze  string
	Relevant string
	Verify   string
}

// Client calls the analysis service. Every request waits on a shared rate
// limiter first.
type Client struct {
	ep            Endpoints
	token         string
	useShortening bool
	http          *http.Client
	limiter       *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRate throttles requests to rps with the given burst. rps <= 0
// disables throttling.
func WithRate(rps float64, burst int) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithShortening sets the use_shortening flag sent with searches.
func WithShortening(on bool) Option {
	return func(cl *Client) { cl.useShortening = on }
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// New creates a client. Defaults: 10 s timeout, 2 requests per second with
// a burst of 4, shortening on.
func New(ep Endpoints, opts ...Option) *Client {
	c := &Client{
		ep:            ep,
		useShortening: true,
		http:          &http.Client{Timeout: 10 * time.Second},
		limiter:       rate.NewLimiter(2, 4),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type analyzeRequest struct {
	Content string `json:"content"`
}

type analyzeResponse struct {
	TextrankChunks []string `json:"textrank_chunks"`
}

type searchRequest struct {
	SearchTerms   []string `json:"search_terms"`
	UseShortening bool     `json:"use_shortening"`
}

type searchResponse struct {
	Results []models.LinkResult `json:"results"`
}

type verifyRequest struct {
	Links []string `json:"links"`
}

// VerifiedLink is one entry of the verify response. StatusCode is set when
// the page could not be fetched.
type VerifiedLink struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StatusCode  int    `json:"statuscode,omitempty"`
}

type verifyResponse struct {
	Links []VerifiedLink `json:"links"`
}

// Analyze returns candidate search terms for text.
func (c *Client) Analyze(ctx context.Context, text string) ([]string, error) {
	var resp analyzeResponse
	if err := c.post(ctx, c.ep.Analyze, analyzeRequest{Content: text}, &resp); err != nil {
		return nil, fmt.Errorf("analysis: analyze: %w", err)
	}
	terms := make([]string, 0, len(resp.TextrankChunks))
	for _, t := range resp.TextrankChunks {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms, nil
}

// Search returns ranked link candidates for terms. HTTP 402 means the
// search quota is used up and maps to apperr.ErrQuotaExceeded.
func (c *Client) Search(ctx context.Context, terms []string) ([]models.LinkResult, error) {
	var resp searchResponse
	req := searchRequest{SearchTerms: terms, UseShortening: c.useShortening}
	if err := c.post(ctx, c.ep.Relevant, req, &resp); err != nil {
		return nil, fmt.Errorf("analysis: search: %w", err)
	}
	out := make([]models.LinkResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// Verify fetches metadata for urls. Links the service could not fetch get
// a title derived from the URL path.
func (c *Client) Verify(ctx context.Context, urls []string) ([]models.LinkResult, error) {
	var resp verifyResponse
	if err := c.post(ctx, c.ep.Verify, verifyRequest{Links: urls}, &resp); err != nil {
		return nil, fmt.Errorf("analysis: verify: %w", err)
	}
	out := make([]models.LinkResult, 0, len(resp.Links))
	for _, l := range resp.Links {
		out = append(out, l.Result())
	}
	return out, nil
}

// Result converts the entry into a LinkResult, applying the fallback title
// for unfetched pages.
func (v VerifiedLink) Result() models.LinkResult {
	if v.StatusCode == 0 {
		return models.LinkResult{URL: v.URL, Title: v.Title, Description: v.Description}
	}
	r := models.LinkResult{URL: v.URL, Title: TitleFromURL(v.URL)}
	if v.StatusCode == http.StatusNotFound {
		r.Description = NotFoundDescription
	}
	return r
}

// TitleFromURL turns the last path segment into a title:
// "https://x.org/a/go-is-fun" becomes "Go Is Fun".
func TitleFromURL(u string) string {
	parts := strings.Split(u, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "Untitled"
	}
	words := strings.Fields(strings.ReplaceAll(last, "-", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint not configured: %w", apperr.ErrNetwork)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w: %v", apperr.ErrNetwork, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w: %v", apperr.ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return apperr.ErrQuotaExceeded
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d", apperr.ErrNetwork, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w: %v", apperr.ErrNetwork, err)
	}
	return nil
}
