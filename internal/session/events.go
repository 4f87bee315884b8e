package session

import "github.com/starford/contextpad/internal/models"

// Event kinds.
const (
	EventSaved           = "saved"
	EventSaveFailed      = "save_failed"
	EventLoaded          = "loaded"
	EventCreated         = "created"
	EventIDAssigned      = "id_assigned"
	EventLinksUpdated    = "links_updated"
	EventUpgradeRequired = "upgrade_required"
	EventQuotaReached    = "quota_reached"
	EventAnalysisFailed  = "analysis_failed"
)

// Event is a notification from the session. Detail depends on Kind: the
// save target for saved, the error for failures, the previous id for
// id_assigned and the required level for upgrade_required.
type Event struct {
	Kind   string `json:"kind"`
	DocID  string `json:"doc_id"`
	Detail string `json:"detail,omitempty"`
}

// State is the derived state of the session state machine.
type State string

// States.
const (
	StateIdle    State = "idle"
	StateEditing State = "editing"
	StateTyping  State = "typing"
	StateSaving  State = "saving"
)

// Status is a read model of the session.
type Status struct {
	State        State              `json:"state"`
	DocID        string             `json:"doc_id"`
	Dirty        bool               `json:"dirty"`
	Typing       bool               `json:"typing"`
	CreatingDoc  bool               `json:"creating_doc"`
	Revision     uint64             `json:"revision"`
	Level        models.AccessLevel `json:"level"`
	QuotaReached bool               `json:"quota_reached"`
	PendingLinks int                `json:"pending_links"`
}

// CreateStatus is the outcome of CreateNew.
type CreateStatus string

// Creation outcomes.
const (
	Created         CreateStatus = "created"
	UpgradeRequired CreateStatus = "upgrade_required"
	Suppressed      CreateStatus = "suppressed"
)

// Creation reports what CreateNew did. RequiredLevel is set for
// UpgradeRequired.
type Creation struct {
	Status        CreateStatus       `json:"status"`
	ID            string             `json:"id,omitempty"`
	RequiredLevel models.AccessLevel `json:"required_level,omitempty"`
}

func (s *Session) state() State {
	switch {
	case s.timer != nil:
		return StateTyping
	case s.saving > 0:
		return StateSaving
	case s.dirty:
		return StateEditing
	}
	return StateIdle
}
