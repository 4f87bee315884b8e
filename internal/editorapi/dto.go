package editorapi

import (
	"github.com/starford/contextpad/internal/models"
	"github.com/starford/contextpad/internal/session"
)

// SessionResponse is the body of GET /session.
type SessionResponse struct {
	Status   session.Status  `json:"status"`
	Document models.Document `json:"document"`
}

// TextRequest replaces the document text.
type TextRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

// TitleRequest replaces the document title.
type TitleRequest struct {
	Title string `json:"title"`
}

// ContextRequest shows or hides the link panel.
type ContextRequest struct {
	Visible bool `json:"visible"`
}

// LevelRequest changes the access level of the user.
type LevelRequest struct {
	Level models.AccessLevel `json:"level"`
}

// LinkRequest names one link.
type LinkRequest struct {
	URL string `json:"url"`
}

// LinkOpResponse reports whether a link operation changed the link set.
type LinkOpResponse struct {
	Changed bool `json:"changed"`
}

// AttachRequest carries pasted text to scan for URLs.
type AttachRequest struct {
	Text string `json:"text"`
}

// AttachResponse lists the URLs that were added as pending links.
type AttachResponse struct {
	Added []string `json:"added"`
}
