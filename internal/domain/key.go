// Package domain holds the plain data types shared by every scheduler
// package: job and trigger identity, attributes, and the sentinel errors
// raised when the store can't satisfy a request.
package domain

import "fmt"

// DefaultGroup is the group name assumed when a caller leaves Group empty.
const DefaultGroup = "DEFAULT"

// Key identifies a Job or Trigger by (group, name). Two keys are equal iff
// both fields match; Group defaults to DefaultGroup when constructed via
// NewKey with an empty group.
type Key struct {
	Group string
	Name  string
}

// NewKey builds a Key, defaulting an empty group to DefaultGroup.
func NewKey(group, name string) Key {
	if group == "" {
		group = DefaultGroup
	}
	return Key{Group: group, Name: name}
}

func (k Key) String() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

// Less orders keys with DefaultGroup first, then lexicographic group, then
// name — the ordering spec.md's data model requires for sorting.
func (k Key) Less(other Key) bool {
	if k.Group != other.Group {
		if k.Group == DefaultGroup {
			return true
		}
		if other.Group == DefaultGroup {
			return false
		}
		return k.Group < other.Group
	}
	return k.Name < other.Name
}
