// Package docapi is the HTTP client for the backend document API.
//
// Every failure is reported as apperr.ErrNotFound (HTTP 404) or
// apperr.ErrNetwork (transport errors and any other non-2xx status), so
// callers never see raw transport errors.
package docapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/models"
)

// DefaultTimeout bounds one backend round trip when no client is supplied.
const DefaultTimeout = 15 * time.Second

// Client talks to GET/POST /docs/ and /docs/{id}.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a client for the backend at baseURL. A nil httpClient gets a
// client with DefaultTimeout. An empty token sends no Authorization header.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  httpClient,
	}
}

type createResponse struct {
	DocID string `json:"doc_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// List returns the caller's folio.
func (c *Client) List(ctx context.Context) (models.DocumentList, error) {
	var out models.DocumentList
	body, err := c.do(ctx, http.MethodGet, "/docs/", nil)
	if err != nil {
		return out, fmt.Errorf("docapi: list: %w", err)
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return out, fmt.Errorf("docapi: decode list: %w: %v", apperr.ErrNetwork, err)
	}
	if out.Active == nil {
		out.Active = []models.DocumentSummary{}
	}
	if out.Archived == nil {
		out.Archived = []models.DocumentSummary{}
	}
	return out, nil
}

// Create stores doc as a new document and returns the allocated id.
func (c *Client) Create(ctx context.Context, doc models.Document) (string, error) {
	doc.ID = ""
	body, err := c.do(ctx, http.MethodPost, "/docs/", doc)
	if err != nil {
		return "", fmt.Errorf("docapi: create: %w", err)
	}
	defer body.Close()
	var resp createResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("docapi: decode create: %w: %v", apperr.ErrNetwork, err)
	}
	if resp.DocID == "" {
		return "", fmt.Errorf("docapi: create: empty doc_id: %w", apperr.ErrNetwork)
	}
	return resp.DocID, nil
}

// Get fetches one document. The body is decoded strictly.
func (c *Client) Get(ctx context.Context, id string) (*models.Document, error) {
	body, err := c.do(ctx, http.MethodGet, docPath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("docapi: get %s: %w", id, err)
	}
	defer body.Close()
	doc, err := models.DecodeDocument(body)
	if err != nil {
		return nil, fmt.Errorf("docapi: get %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}

// Update persists doc under doc.ID.
func (c *Client) Update(ctx context.Context, doc models.Document) error {
	body, err := c.do(ctx, http.MethodPost, docPath(doc.ID), doc)
	if err != nil {
		return fmt.Errorf("docapi: update %s: %w", doc.ID, err)
	}
	body.Close()
	return nil
}

// SetStatus moves a document between the active and archived lists.
func (c *Client) SetStatus(ctx context.Context, id, status string) error {
	body, err := c.do(ctx, http.MethodPost, docPath(id)+"/status", statusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("docapi: set status %s: %w", id, err)
	}
	body.Close()
	return nil
}

func docPath(id string) string {
	return "/docs/" + url.PathEscape(id)
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, payload any) (io.ReadCloser, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode: %w: %v", apperr.ErrNetwork, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w: %v", apperr.ErrNetwork, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.ErrNotFound
	}
	return nil, fmt.Errorf("%w: status %d", apperr.ErrNetwork, resp.StatusCode)
}
