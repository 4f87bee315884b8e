// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the editor session to LLMs via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/contextpad/internal/session"
)

const formatURI = "contextpad://document-format"

// Server wraps the MCP server with document tools.
type Server struct {
	mcp *server.MCPServer
	s   *session.Session
}

// New creates a new MCP server with all document tools registered.
func New(s *session.Session, version string) *Server {
	srv := &Server{s: s}

	srv.mcp = server.NewMCPServer(
		"Contextpad",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	srv.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Return the open document and the session state."),
	), srv.getDocument)

	srv.mcp.AddTool(mcp.NewTool("edit_document",
		mcp.WithDescription("Replace the text and optionally the title of the open document. "+
			"The document is saved automatically; read the format first via "+
			"get_document_format or the "+formatURI+" resource."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Full new text of the document")),
		mcp.WithNumber("cursor", mcp.Description("Caret offset in characters (defaults to the end)")),
		mcp.WithString("title", mcp.Description("New title; omitted keeps the current one")),
	), srv.editDocument)

	srv.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save the open document now."),
	), srv.saveDocument)

	srv.mcp.AddTool(mcp.NewTool("new_document",
		mcp.WithDescription("Save the open document and start a blank one."),
	), srv.newDocument)

	srv.mcp.AddTool(mcp.NewTool("load_document",
		mcp.WithDescription("Save the open document and switch to another one."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id from list_documents")),
	), srv.loadDocument)

	srv.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the user's documents, active and archived."),
	), srv.listDocuments)

	srv.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List the sticky, discovered and rejected links of the open document."),
	), srv.listLinks)

	for _, op := range []struct{ name, desc string }{
		{"pin_link", "Move a discovered link to sticky."},
		{"unpin_link", "Move a sticky link back to discovered."},
		{"reject_link", "Dismiss a discovered link for good."},
	} {
		srv.mcp.AddTool(mcp.NewTool(op.name,
			mcp.WithDescription(op.desc),
			mcp.WithString("url", mcp.Required(), mcp.Description("Link URL")),
		), srv.linkOp(op.name))
	}

	srv.mcp.AddTool(mcp.NewTool("attach_links",
		mcp.WithDescription("Pin every URL found in text as a sticky link."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text containing URLs")),
	), srv.attachLinks)

	srv.mcp.AddTool(mcp.NewTool("get_document_format",
		mcp.WithDescription("Returns the document format and link curation rules."),
	), srv.getDocumentFormat)

	srv.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format",
			mcp.WithResourceDescription("Document model and link curation rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		srv.readFormatResource,
	)

	return srv
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDocument(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.s.State(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.s.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"status": st, "document": doc})
}

func (s *Server) editDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cursor := req.GetInt("cursor", len([]rune(text)))
	if err := s.s.Edit(ctx, text, cursor); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if title := req.GetString("title", ""); title != "" {
		if err := s.s.SetTitle(ctx, title); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return mcp.NewToolResultText("edited"), nil
}

func (s *Server) saveDocument(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.s.Save(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.s.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", doc.ID)), nil
}

func (s *Server) newDocument(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.s.CreateNew(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch out.Status {
	case session.UpgradeRequired:
		return mcp.NewToolResultError(fmt.Sprintf("upgrade required: level %s", out.RequiredLevel)), nil
	case session.Suppressed:
		return mcp.NewToolResultError("a document is already being created"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", out.ID)), nil
}

func (s *Server) loadDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.s.Load(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("loaded: %s", id)), nil
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.s.RefreshFolio(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list)
}

func (s *Server) listLinks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	links, err := s.s.Links(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(links)
}

func (s *Server) linkOp(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		op := s.s.Pin
		switch name {
		case "unpin_link":
			op = s.s.Unpin
		case "reject_link":
			op = s.s.Reject
		}
		changed, err := op(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !changed {
			return mcp.NewToolResultText(fmt.Sprintf("unchanged: %s", url)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("ok: %s", url)), nil
	}
}

func (s *Server) attachLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	added, err := s.s.AttachLinks(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if added == nil {
		added = []string{}
	}
	return jsonResult(added)
}

func (s *Server) getDocumentFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormat), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
