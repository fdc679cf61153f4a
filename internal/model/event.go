package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of occurrence kinds Beacon knows how to
// process. Unknown wire strings parse to TypeOther so forward-compatible
// clients never fail ingestion.
type EventType string

const (
	TypeError            EventType = "error"
	TypeLog              EventType = "log"
	TypeSession          EventType = "session" // session start
	TypeSessionHeartbeat EventType = "heartbeat"
	TypeSessionEnd       EventType = "session-end"
	TypeOther            EventType = "other"
)

// ParseEventType maps a wire string to an EventType. An empty string is
// treated as a log entry; anything unrecognized becomes TypeOther.
func ParseEventType(s string) EventType {
	switch EventType(s) {
	case TypeError, TypeLog, TypeSession, TypeSessionHeartbeat, TypeSessionEnd:
		return EventType(s)
	case "":
		return TypeLog
	default:
		return TypeOther
	}
}

// Data keys with the reference prefix are projected into the secondary index
// with the raw/reference suffix; DataKeySessionID carries the session id.
const (
	RefKeyPrefix     = "@ref:"
	DataKeySessionID = "@ref:session"
)

// ErrorDetails is the structured error payload attached by the upstream
// parser. Location is the primary stack frame when one could be determined.
type ErrorDetails struct {
	Kind     string `json:"kind"`
	Message  string `json:"message,omitempty"`
	Location string `json:"location,omitempty"`
}

// Event is a single reported occurrence: an error, a log entry, or a session
// lifecycle marker. Events are owned by the batch that produced them until
// persisted; after that only the flag and index fields set by the pipeline
// change.
type Event struct {
	ID              string    `json:"id"`
	OrganizationID  string    `json:"organization_id"`
	ProjectID       string    `json:"project_id"`
	Type            EventType `json:"type"`
	Date            time.Time `json:"date"`
	Message         string    `json:"message,omitempty"`
	Source          string    `json:"source,omitempty"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	StackID         string    `json:"stack_id,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	UserIdentity    string    `json:"user_identity,omitempty"`
	Version         string    `json:"version,omitempty"`
	Hidden          bool      `json:"hidden,omitempty"`
	Fixed           bool      `json:"fixed,omitempty"`
	FirstOccurrence bool      `json:"is_first_occurrence,omitempty"`
	HasSessionEnd   bool      `json:"has_session_end,omitempty"`

	// Value is a free numeric slot; on session-start records it carries the
	// session duration in seconds.
	Value float64 `json:"value,omitempty"`

	Tags  TagSet         `json:"tags,omitempty"`
	Error *ErrorDetails  `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Idx   map[string]any `json:"idx,omitempty"`
}

func (e *Event) IsSessionStart() bool     { return e.Type == TypeSession }
func (e *Event) IsSessionHeartbeat() bool { return e.Type == TypeSessionHeartbeat }
func (e *Event) IsSessionEnd() bool       { return e.Type == TypeSessionEnd }

// SetSessionID stamps the session id on the event and mirrors it into the
// custom data map under the reference key, so the data indexer emits the
// stable idx.session-r field external queries rely on.
func (e *Event) SetSessionID(id string) {
	e.SessionID = id
	if e.Data == nil {
		e.Data = make(map[string]any, 1)
	}
	e.Data[DataKeySessionID] = id
}

// SessionKey returns the key the session stitcher tracks this event under:
// the explicit session id for manual sessions, otherwise the user identity.
// Empty when the event participates in no session.
func (e *Event) SessionKey() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.UserIdentity
}

// IsManualSession reports whether the event belongs to a client-managed
// session (explicit session id) rather than an identity-derived one.
func (e *Event) IsManualSession() bool { return e.SessionID != "" }

// ToSessionStart derives the synthetic session-start record that opens a
// session for this event: same ownership and identity, type session, zero
// duration, dated at the first activity.
func (e *Event) ToSessionStart() *Event {
	start := &Event{
		ID:             uuid.NewString(),
		OrganizationID: e.OrganizationID,
		ProjectID:      e.ProjectID,
		Type:           TypeSession,
		Date:           e.Date,
		Source:         e.Source,
		UserIdentity:   e.UserIdentity,
	}
	if e.SessionID != "" {
		start.SetSessionID(e.SessionID)
	}
	return start
}

// Clone returns a deep copy. Storage adapters hand out clones so callers can
// never mutate persisted state in place.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Tags = e.Tags.Clone()
	if e.Error != nil {
		errCopy := *e.Error
		cp.Error = &errCopy
	}
	cp.Data = cloneMap(e.Data)
	cp.Idx = cloneMap(e.Idx)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
