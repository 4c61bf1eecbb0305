package registry

import "strings"

// Key addresses one logical collection in the registry: all items of
// Kind under Parent. It is immutable once constructed and is used as
// the cache and in-flight dedup key.
//
// Parent is the slash-separated path of the enclosing resource:
//
//	""                          projects at the registry root
//	"library"                   repositories of project library
//	"library/nginx"             artifacts of repository library/nginx
//	"library/nginx@sha256:..."  tags or vulnerabilities of an artifact
type Key struct {
	Kind   Kind
	Parent string
	Query  string
}

// RootKey is the location of the registry root: the project listing.
func RootKey() Key {
	return Key{Kind: KindProject}
}

// String returns the canonical form used for map keys and log lines.
func (k Key) String() string {
	s := string(k.Kind) + ":" + k.Parent
	if k.Query != "" {
		s += "?" + k.Query
	}
	return s
}

// IsZero reports whether k is the zero key (no kind).
func (k Key) IsZero() bool { return k.Kind == "" }

// Path returns the parent path extended with this collection's own
// segment, used when checking descendant relationships.
func (k Key) Path() string { return k.Parent }

// DescendantOf reports whether this key's parent path lies at or below
// prefix. Both "/" (project/repository) and "@" (repository/artifact)
// act as path separators.
func (k Key) DescendantOf(prefix string) bool {
	if prefix == "" {
		return true
	}
	if k.Parent == prefix {
		return true
	}
	return strings.HasPrefix(k.Parent, prefix+"/") || strings.HasPrefix(k.Parent, prefix+"@")
}

// ImmediateChildOf reports whether k is one drill-down step below
// parent: parent's items are of the kind that contains k's collection,
// and k's parent path extends parent's location.
func (k Key) ImmediateChildOf(parent Key) bool {
	pk, ok := k.Kind.ParentKind()
	if !ok || pk != parent.Kind {
		return false
	}
	if parent.Parent == "" {
		return k.Parent != ""
	}
	return strings.HasPrefix(k.Parent, parent.Parent+"/") || strings.HasPrefix(k.Parent, parent.Parent+"@")
}
