package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/contextpad/internal/docservice"
	"github.com/starford/contextpad/internal/models"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListDocuments handles GET /docs/.
//
//	@Summary		List the folio
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	models.DocumentList
//	@Security		BearerAuth
//	@Router			/docs/ [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateDocument handles POST /docs/.
//
//	@Summary		Create a document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Document	true	"Document to create; id is ignored"
//	@Success		201		{object}	CreateDocumentResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/ [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	doc, err := models.DecodeDocument(r.Body)
	if err != nil {
		writeError(w, "create document", err)
		return
	}
	id, err := h.svc.Create(r.Context(), *doc)
	if err != nil {
		writeError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateDocumentResponse{DocID: id})
}

// GetDocument handles GET /docs/{id}.
//
//	@Summary		Get a document
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	models.Document
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// UpdateDocument handles POST /docs/{id}.
//
//	@Summary		Replace a document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Document id"
//	@Param			body	body		models.Document	true	"Full document"
//	@Success		200		{object}	models.Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/{id} [post]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := chi.URLParam(r, "id")
	doc, err := models.DecodeDocument(r.Body)
	if err != nil {
		writeError(w, "update document", err)
		return
	}
	if err := h.svc.Update(r.Context(), id, *doc); err != nil {
		writeError(w, "update document", err)
		return
	}
	doc.ID = id
	writeJSON(w, http.StatusOK, doc)
}

// SetStatus handles POST /docs/{id}/status.
//
//	@Summary		Archive or restore a document
//	@Tags			documents
//	@Accept			json
//	@Param			id		path	string			true	"Document id"
//	@Param			body	body	StatusRequest	true	"active or archived"
//	@Success		204		"Status changed"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/{id}/status [post]
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		writeError(w, "set status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analyze handles POST /analyze.
//
//	@Summary		Extract search terms from text
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeRequest	true	"Text to analyze"
//	@Success		200		{object}	AnalyzeResponse
//	@Security		BearerAuth
//	@Router			/analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{TextrankChunks: h.svc.Analyze(r.Context(), req.Content)})
}

// Relevant handles POST /relevant.
//
//	@Summary		Search known links for terms
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RelevantRequest	true	"Search terms"
//	@Success		200		{object}	RelevantResponse
//	@Failure		402		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relevant [post]
func (h *Handler) Relevant(w http.ResponseWriter, r *http.Request) {
	var req RelevantRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	results, err := h.svc.Relevant(r.Context(), req.SearchTerms, req.UseShortening)
	if err != nil {
		writeError(w, "relevant", err)
		return
	}
	writeJSON(w, http.StatusOK, RelevantResponse{Results: results})
}

// Verify handles POST /relevant/verify.
//
//	@Summary		Fetch titles and descriptions for links
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VerifyRequest	true	"Links to verify"
//	@Success		200		{object}	VerifyResponse
//	@Security		BearerAuth
//	@Router			/relevant/verify [post]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	links, err := h.svc.Verify(r.Context(), req.Links)
	if err != nil {
		writeError(w, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Links: links})
}
