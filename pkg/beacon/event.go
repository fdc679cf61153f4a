package beacon

import (
	"time"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/pipeline"
)

// Event is an occurrence submitted for ingestion.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Event struct {
	ID             string         `json:"id,omitempty"`
	OrganizationID string         `json:"organization_id"`
	ProjectID      string         `json:"project_id"`
	Type           string         `json:"type,omitempty"` // error, log, session, heartbeat, session-end
	Date           time.Time      `json:"date,omitempty"`
	Message        string         `json:"message,omitempty"`
	Source         string         `json:"source,omitempty"`
	ReferenceID    string         `json:"reference_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	UserIdentity   string         `json:"user_identity,omitempty"`
	Version        string         `json:"version,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Error          *ErrorDetails  `json:"error,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// ErrorDetails carries the structured error attached to an error event.
type ErrorDetails struct {
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	Location string `json:"location,omitempty"`
}

// Outcome is one event's processing verdict.
type Outcome struct {
	EventID      string `json:"event_id"`
	StackID      string `json:"stack_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Status       string `json:"status"` // processed, cancelled, failed
	IsNew        bool   `json:"is_new,omitempty"`
	IsRegression bool   `json:"is_regression,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (e Event) toModel() *model.Event {
	ev := &model.Event{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		ProjectID:      e.ProjectID,
		Type:           model.EventType(e.Type),
		Date:           e.Date,
		Message:        e.Message,
		Source:         e.Source,
		ReferenceID:    e.ReferenceID,
		UserIdentity:   e.UserIdentity,
		Version:        e.Version,
		Tags:           model.TagSet(e.Tags).Clone(),
		Data:           e.Data,
	}
	if e.SessionID != "" {
		ev.SetSessionID(e.SessionID)
	}
	if e.Error != nil {
		ev.Error = &model.ErrorDetails{
			Kind:     e.Error.Kind,
			Message:  e.Error.Message,
			Location: e.Error.Location,
		}
	}
	return ev
}

func outcomeFromContext(c *pipeline.Context) Outcome {
	o := Outcome{
		EventID:      c.Event.ID,
		StackID:      c.Event.StackID,
		SessionID:    c.Event.SessionID,
		IsNew:        c.IsNew,
		IsRegression: c.IsRegression,
	}
	switch {
	case c.HasError():
		o.Status = StatusFailed
		o.Error = c.Err.Error()
	case c.IsCancelled:
		o.Status = StatusCancelled
	default:
		o.Status = StatusProcessed
	}
	return o
}
