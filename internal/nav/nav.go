// Package nav tracks the current location in the registry hierarchy
// and the back/forward history, browser style.
package nav

import (
	"harbormast/internal/log"
	"harbormast/internal/registry"
)

// Node is one history entry: a location plus the cursor state to
// restore when the user comes back to it.
type Node struct {
	Key       registry.Key
	Selection int
	Scroll    int
}

// Stack is the navigation history. The current location is the top of
// the back-stack; forward holds locations popped by Back, discarded as
// soon as navigation diverges.
type Stack struct {
	nodes   []Node
	forward []Node
}

// New creates a history rooted at root with depth 1.
func New(root registry.Key) *Stack {
	return &Stack{nodes: []Node{{Key: root}}}
}

// Current returns the current location.
func (s *Stack) Current() Node {
	return s.nodes[len(s.nodes)-1]
}

// Depth returns the size of the back-stack.
func (s *Stack) Depth() int { return len(s.nodes) }

// CanForward reports whether Forward would move.
func (s *Stack) CanForward() bool { return len(s.forward) > 0 }

// NavigateTo moves to key and reports whether the location changed.
// Drilling one level down pushes onto the stack; any other jump (for
// example a search-result selection) resets the history to just [key],
// so the breadcrumb can never show an inconsistent ancestry. Forward
// history is discarded either way.
func (s *Stack) NavigateTo(key registry.Key) bool {
	current := s.Current()
	if key == current.Key {
		return false
	}

	s.forward = nil
	if key.ImmediateChildOf(current.Key) {
		s.nodes = append(s.nodes, Node{Key: key})
		log.Debug(log.CatNav, "drill down", "key", key, "depth", len(s.nodes))
		return true
	}

	s.nodes = []Node{{Key: key}}
	log.Debug(log.CatNav, "history reset", "key", key)
	return true
}

// Back pops the current location and reports whether it moved. At the
// root it is a reported no-op, never an error.
func (s *Stack) Back() bool {
	if len(s.nodes) <= 1 {
		log.Debug(log.CatNav, "back at root ignored")
		return false
	}
	top := s.nodes[len(s.nodes)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	s.forward = append(s.forward, top)
	log.Debug(log.CatNav, "back", "key", s.Current().Key, "depth", len(s.nodes))
	return true
}

// Forward re-enters the most recently popped location, valid only
// while no NavigateTo has intervened.
func (s *Stack) Forward() bool {
	if len(s.forward) == 0 {
		log.Debug(log.CatNav, "forward with no history ignored")
		return false
	}
	node := s.forward[len(s.forward)-1]
	s.forward = s.forward[:len(s.forward)-1]
	s.nodes = append(s.nodes, node)
	log.Debug(log.CatNav, "forward", "key", node.Key, "depth", len(s.nodes))
	return true
}

// JumpToDepth pops history until the stack has depth d, the breadcrumb
// jump. Equivalent to repeated Back, so Forward can replay the path.
func (s *Stack) JumpToDepth(d int) bool {
	if d < 1 || d >= len(s.nodes) {
		return false
	}
	for len(s.nodes) > d {
		s.Back()
	}
	return true
}

// Breadcrumb returns the ancestry from root to current.
func (s *Stack) Breadcrumb() []Node {
	return append([]Node(nil), s.nodes...)
}

// SetCursor records selection state on the current node so it can be
// restored after back/forward.
func (s *Stack) SetCursor(selection, scroll int) {
	s.nodes[len(s.nodes)-1].Selection = selection
	s.nodes[len(s.nodes)-1].Scroll = scroll
}
