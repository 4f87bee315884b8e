package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/contextpad/internal/clock"
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/persistence"
	"github.com/starford/contextpad/internal/session"
	"github.com/starford/contextpad/internal/testutil"
)

func testServer(t *testing.T, level models.AccessLevel) (*Server, *testutil.FakeRemote) {
	t.Helper()
	remote := testutil.NewFakeRemote()
	gw := persistence.New(testutil.TestDraft(t), remote, testutil.Logger())
	s := session.New(session.Config{Level: level}, gw,
		session.WithClock(clock.Fake(time.Unix(1700000000, 0))),
		session.WithLogger(testutil.Logger()),
	)
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	return New(s, "test"), remote
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_document":
		result, err = srv.getDocument(ctx, req)
	case "edit_document":
		result, err = srv.editDocument(ctx, req)
	case "save_document":
		result, err = srv.saveDocument(ctx, req)
	case "new_document":
		result, err = srv.newDocument(ctx, req)
	case "load_document":
		result, err = srv.loadDocument(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "list_links":
		result, err = srv.listLinks(ctx, req)
	case "pin_link", "unpin_link", "reject_link":
		result, err = srv.linkOp(name)(ctx, req)
	case "attach_links":
		result, err = srv.attachLinks(ctx, req)
	case "get_document_format":
		result, err = srv.getDocumentFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestEditAndSaveDocument(t *testing.T) {
	srv, remote := testServer(t, models.LevelFree)

	r := callTool(t, srv, "edit_document", map[string]any{
		"text":  "Hello",
		"title": "Greeting",
	})
	if r.IsError {
		t.Fatalf("edit: %s", resultText(r))
	}

	r = callTool(t, srv, "save_document", nil)
	if text := resultText(r); text != "saved: doc-1" {
		t.Errorf("save result = %q", text)
	}
	doc, ok := remote.Doc("doc-1")
	if !ok || doc.Text != "Hello" || doc.Title != "Greeting" {
		t.Errorf("remote doc = %+v, %v", doc, ok)
	}
	if doc.Cursor != 5 {
		t.Errorf("cursor = %d, want end of text", doc.Cursor)
	}

	r = callTool(t, srv, "get_document", nil)
	var got struct {
		Status   session.Status  `json:"status"`
		Document models.Document `json:"document"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Document.ID != "doc-1" || got.Status.Dirty {
		t.Errorf("get_document = %+v", got)
	}
}

func TestEditMissingText(t *testing.T) {
	srv, _ := testServer(t, models.LevelAnonymous)
	r := callTool(t, srv, "edit_document", map[string]any{"title": "x"})
	if !r.IsError {
		t.Error("expected error without text")
	}
}

func TestLoadDocumentMissing(t *testing.T) {
	srv, _ := testServer(t, models.LevelFree)
	r := callTool(t, srv, "load_document", map[string]any{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestLoadAndListDocuments(t *testing.T) {
	srv, remote := testServer(t, models.LevelFree)
	remote.Put(models.Document{ID: "doc-7", Title: "Seven", Text: "body", Created: 1, LastUpdated: 1})

	r := callTool(t, srv, "load_document", map[string]any{"id": "doc-7"})
	if text := resultText(r); text != "loaded: doc-7" {
		t.Fatalf("load result = %q", text)
	}
	r = callTool(t, srv, "list_documents", nil)
	if !strings.Contains(resultText(r), `"doc-7"`) {
		t.Errorf("list = %s", resultText(r))
	}
}

func TestNewDocumentUpgradeRequired(t *testing.T) {
	srv, _ := testServer(t, models.LevelAnonymous)
	callTool(t, srv, "edit_document", map[string]any{"text": "draft"})

	r := callTool(t, srv, "new_document", nil)
	if !r.IsError || !strings.Contains(resultText(r), "upgrade required: level free") {
		t.Errorf("new_document = %q (error %v)", resultText(r), r.IsError)
	}
}

func TestLinkTools(t *testing.T) {
	srv, _ := testServer(t, models.LevelAnonymous)

	r := callTool(t, srv, "attach_links", map[string]any{"text": "read https://go.dev/doc"})
	var added []string
	if err := json.Unmarshal([]byte(resultText(r)), &added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(added) != 1 || added[0] != "https://go.dev/doc" {
		t.Fatalf("added = %v", added)
	}

	r = callTool(t, srv, "unpin_link", map[string]any{"url": "https://go.dev/doc"})
	if text := resultText(r); text != "ok: https://go.dev/doc" {
		t.Errorf("unpin = %q", text)
	}
	r = callTool(t, srv, "reject_link", map[string]any{"url": "https://go.dev/doc"})
	if text := resultText(r); text != "ok: https://go.dev/doc" {
		t.Errorf("reject = %q", text)
	}
	r = callTool(t, srv, "pin_link", map[string]any{"url": "https://go.dev/doc"})
	if text := resultText(r); text != "unchanged: https://go.dev/doc" {
		t.Errorf("pin rejected = %q", text)
	}

	r = callTool(t, srv, "list_links", nil)
	var links models.Links
	if err := json.Unmarshal([]byte(resultText(r)), &links); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(links.Rejected) != 1 || len(links.Discovered) != 0 || len(links.Pinned) != 0 {
		t.Errorf("links = %+v", links)
	}
}

func TestDocumentFormat(t *testing.T) {
	srv, _ := testServer(t, models.LevelAnonymous)
	r := callTool(t, srv, "get_document_format", nil)
	if resultText(r) != DocumentFormat {
		t.Error("format tool does not return the format")
	}
	res, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
	if tc, ok := res[0].(mcp.TextResourceContents); !ok || tc.URI != formatURI {
		t.Errorf("resource = %+v", res[0])
	}
}
