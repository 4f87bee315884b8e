package editorapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/session"
)

// Handler holds session route handlers.
type Handler struct {
	s *session.Session
}

// NewHandler creates a new Handler.
func NewHandler(s *session.Session) *Handler {
	return &Handler{s: s}
}

// GetSession handles GET /session.
//
//	@Summary		Current document and session state
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Router			/session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.s.State(r.Context())
	if err != nil {
		writeError(w, "session state", err)
		return
	}
	doc, err := h.s.Snapshot(r.Context())
	if err != nil {
		writeError(w, "session snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Status: st, Document: doc})
}

// PutText handles PUT /session/text.
//
//	@Summary		Replace the document text
//	@Tags			session
//	@Accept			json
//	@Param			body	body	TextRequest	true	"Text and caret"
//	@Success		204		"Edit recorded"
//	@Router			/session/text [put]
func (h *Handler) PutText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.s.Edit(r.Context(), req.Text, req.Cursor); err != nil {
		writeError(w, "edit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutTitle handles PUT /session/title.
func (h *Handler) PutTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.s.SetTitle(r.Context(), req.Title); err != nil {
		writeError(w, "set title", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutContext handles PUT /session/context.
func (h *Handler) PutContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.s.SetContextVisible(r.Context(), req.Visible); err != nil {
		writeError(w, "set context", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutLevel handles PUT /session/level.
//
//	@Summary		Change the access level
//	@Tags			session
//	@Accept			json
//	@Param			body	body	LevelRequest	true	"0 anonymous, 1 free, 2 paid"
//	@Success		204		"Level changed"
//	@Failure		400		{object}	errResponse
//	@Router			/session/level [put]
func (h *Handler) PutLevel(w http.ResponseWriter, r *http.Request) {
	var req LevelRequest
	if !decode(w, r, &req) {
		return
	}
	lvl := int(req.Level)
	if err := validation.Validate(lvl, validation.Min(int(models.LevelAnonymous)), validation.Max(int(models.LevelPaid))); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("level: "+err.Error()))
		return
	}
	if err := h.s.SetLevel(r.Context(), req.Level); err != nil {
		writeError(w, "set level", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Save handles POST /session/save.
//
//	@Summary		Save the document now
//	@Tags			session
//	@Success		204	"Saved"
//	@Failure		502	{object}	errResponse
//	@Failure		507	{object}	errResponse
//	@Router			/session/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.s.Save(r.Context()); err != nil {
		writeError(w, "save", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNew handles POST /session/new. An upgrade_required outcome is
// reported with 200; the caller inspects the status field.
//
//	@Summary		Start a new document
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	session.Creation
//	@Router			/session/new [post]
func (h *Handler) CreateNew(w http.ResponseWriter, r *http.Request) {
	out, err := h.s.CreateNew(r.Context())
	if err != nil {
		writeError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Load handles POST /session/load/{id}.
//
//	@Summary		Switch to another document
//	@Tags			session
//	@Param			id	path	string	true	"Document id"
//	@Success		204	"Loaded"
//	@Failure		404	{object}	errResponse
//	@Router			/session/load/{id} [post]
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	if err := h.s.Load(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "load", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Documents handles GET /session/documents. ?refresh=1 re-fetches the
// folio from the backend.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	var (
		list models.DocumentList
		err  error
	)
	if r.URL.Query().Get("refresh") != "" {
		list, err = h.s.RefreshFolio(r.Context())
	} else {
		list, err = h.s.Documents(r.Context())
	}
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Links handles GET /session/links.
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	links, err := h.s.Links(r.Context())
	if err != nil {
		writeError(w, "links", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// LinkOp handles POST /session/links/{op} for pin, unpin and reject.
//
//	@Summary		Curate a link
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			op		path		string		true	"pin, unpin or reject"
//	@Param			body	body		LinkRequest	true	"Link url"
//	@Success		200		{object}	LinkOpResponse
//	@Failure		404		{object}	errResponse
//	@Router			/session/links/{op} [post]
func (h *Handler) LinkOp(w http.ResponseWriter, r *http.Request) {
	var op func(context.Context, string) (bool, error)
	switch chi.URLParam(r, "op") {
	case "pin":
		op = h.s.Pin
	case "unpin":
		op = h.s.Unpin
	case "reject":
		op = h.s.Reject
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown link operation"))
		return
	}
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	changed, err := op(r.Context(), req.URL)
	if err != nil {
		writeError(w, "link op", err)
		return
	}
	writeJSON(w, http.StatusOK, LinkOpResponse{Changed: changed})
}

// AttachLinks handles POST /session/links/attach.
func (h *Handler) AttachLinks(w http.ResponseWriter, r *http.Request) {
	var req AttachRequest
	if !decode(w, r, &req) {
		return
	}
	added, err := h.s.AttachLinks(r.Context(), req.Text)
	if err != nil {
		writeError(w, "attach links", err)
		return
	}
	if added == nil {
		added = []string{}
	}
	writeJSON(w, http.StatusOK, AttachResponse{Added: added})
}
