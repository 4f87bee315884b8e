package api

import (
	"github.com/starford/contextpad/internal/linkmeta"
	"github.com/starford/contextpad/internal/models"
)

// CreateDocumentResponse is returned after a document is created.
type CreateDocumentResponse struct {
	DocID string `json:"doc_id" example:"3f1c2a9e-..." validate:"required"`
}

// StatusRequest is the request body for archiving or restoring a document.
type StatusRequest struct {
	Status string `json:"status" example:"archived" validate:"required"`
}

// AnalyzeRequest is the request body for term extraction.
type AnalyzeRequest struct {
	Content string `json:"content" example:"Bees pollinate most crops" validate:"required"`
}

// AnalyzeResponse carries the extracted terms.
type AnalyzeResponse struct {
	TextrankChunks []string `json:"textrank_chunks" validate:"required"`
}

// RelevantRequest is the request body for link search.
type RelevantRequest struct {
	SearchTerms   []string `json:"search_terms" validate:"required"`
	UseShortening bool     `json:"use_shortening"`
}

// RelevantResponse wraps ranked link candidates.
type RelevantResponse struct {
	Results []models.LinkResult `json:"results" validate:"required"`
}

// VerifyRequest is the request body for link verification.
type VerifyRequest struct {
	Links []string `json:"links" validate:"required"`
}

// VerifyResponse carries one entry per requested link, in request order.
type VerifyResponse struct {
	Links []linkmeta.Link `json:"links" validate:"required"`
}
