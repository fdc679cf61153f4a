package model

import "strings"

// TagSet is an ordered set of tags with case-insensitive membership.
// The first-seen casing of a tag is the one kept.
type TagSet []string

// Contains reports case-insensitive membership.
func (s TagSet) Contains(tag string) bool {
	for _, t := range s {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Add appends tag unless an equivalent tag (ignoring case) is already
// present. Returns true when the set changed.
func (s *TagSet) Add(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || s.Contains(tag) {
		return false
	}
	*s = append(*s, tag)
	return true
}

// Merge adds every tag from other, keeping first-seen casing.
// Returns true when any tag was added.
func (s *TagSet) Merge(other TagSet) bool {
	changed := false
	for _, t := range other {
		if s.Add(t) {
			changed = true
		}
	}
	return changed
}

// Clone returns an independent copy.
func (s TagSet) Clone() TagSet {
	if s == nil {
		return nil
	}
	cp := make(TagSet, len(s))
	copy(cp, s)
	return cp
}
