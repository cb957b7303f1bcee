package domain

import "time"

// Calendar is a predicate over instants; a trigger bound to a calendar
// skips any fire instant the calendar excludes (spec.md §4.2).
//
// Calendar evaluation itself — sourcing holiday data, daily business-hour
// windows, and so on — is an external collaborator per spec.md §1; this
// interface is the only contract the trigger/store packages depend on.
type Calendar interface {
	// IsTimeIncluded reports whether t is NOT excluded by this calendar.
	IsTimeIncluded(t time.Time) bool
}
