// Package viewmodel reconciles cache, fetch and navigation state into
// the read-only snapshot the renderer consumes.
package viewmodel

import (
	"harbormast/internal/nav"
	"harbormast/internal/registry"
)

// LoadState is the loading status of the current location.
type LoadState int

const (
	StateLoading LoadState = iota
	StateLoaded
	StateError
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ViewModel is the projection handed to the renderer. It is rebuilt on
// every relevant change and never patched in place; Items must be
// treated as read-only.
type ViewModel struct {
	Location   registry.Key
	Breadcrumb []nav.Node
	Items      []registry.Item
	State      LoadState
	// Stale marks Items as an expired payload shown optimistically
	// while a refresh is in flight.
	Stale bool
	// Exhausted reports that no further pages exist for this location.
	Exhausted bool
	// Err is set when State is StateError. A stale payload, if any,
	// stays in Items so the renderer can keep it visible under a
	// non-blocking error banner.
	Err *registry.Error
}
