package model

import "time"

// Stack is the persistent deduplication bucket for structurally similar
// events. Created once per (project, fingerprint); mutated when member
// events join (tag union, occurrence bookkeeping, regression transitions)
// or on explicit user action (mark-fixed).
type Stack struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ProjectID      string    `json:"project_id"`
	Fingerprint    string    `json:"fingerprint"`
	Type           EventType `json:"type"`
	Title          string    `json:"title,omitempty"`
	Hidden         bool      `json:"hidden,omitempty"`
	Fixed          bool      `json:"fixed,omitempty"`

	// FixedInVersion is the semantic version the stack was fixed as of.
	// Empty while Fixed means fixed unconditionally for all future versions.
	FixedInVersion string    `json:"fixed_in_version,omitempty"`
	FixedAt        time.Time `json:"fixed_at,omitempty"`

	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	TotalOccurrences int       `json:"total_occurrences"`
	Tags             TagSet    `json:"tags,omitempty"`
}

// MarkFixed marks the stack fixed as of the given semantic version, or
// unconditionally when version is empty.
func (s *Stack) MarkFixed(version string, at time.Time) {
	s.Fixed = true
	s.FixedInVersion = version
	s.FixedAt = at
}

// MarkNotFixed reverts the stack to active, clearing the fix marker.
// This is the regression transition.
func (s *Stack) MarkNotFixed() {
	s.Fixed = false
	s.FixedInVersion = ""
	s.FixedAt = time.Time{}
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Tags = s.Tags.Clone()
	return &cp
}
