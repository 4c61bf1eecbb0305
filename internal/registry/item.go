package registry

import "time"

// Item is one domain record in a fetched collection. Kind selects which
// of the payload fields is populated; the data layer only relies on ID
// and parent linkage, kind-specific fields are for the renderer.
type Item struct {
	Kind   Kind
	ID     string
	Name   string
	Parent string

	Project       *Project
	Repository    *Repository
	Artifact      *Artifact
	Tag           *Tag
	Vulnerability *Vulnerability
}

// Project is a registry project (namespace).
type Project struct {
	ProjectID    int64
	Name         string
	Public       bool
	RepoCount    int64
	CreationTime time.Time
}

// Repository is an image repository within a project.
type Repository struct {
	Name          string
	ArtifactCount int64
	PullCount     int64
	UpdateTime    time.Time
}

// Artifact is a pushed image (or index) identified by digest.
type Artifact struct {
	Digest     string
	MediaType  string
	Size       int64
	PushTime   time.Time
	Tags       []string
	ScanStatus string
}

// Tag is a named pointer at an artifact.
type Tag struct {
	Name      string
	PushTime  time.Time
	Immutable bool
}

// Severity ranks a vulnerability finding.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityUnknown  Severity = "Unknown"
)

// Rank orders severities with Critical highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Vulnerability is one finding from an artifact's scan report.
type Vulnerability struct {
	CVEID       string
	Package     string
	Version     string
	FixVersion  string
	Severity    Severity
	Description string
}

// ChildKey returns the collection reached by drilling into this item,
// or false when the item is a leaf (tags, vulnerabilities).
func (i Item) ChildKey() (Key, bool) {
	ck, ok := i.Kind.ChildKind()
	if !ok {
		return Key{}, false
	}
	return Key{Kind: ck, Parent: i.childPath()}, true
}

// TagsKey returns the tag listing for an artifact item.
func (i Item) TagsKey() (Key, bool) {
	if i.Kind != KindArtifact {
		return Key{}, false
	}
	return Key{Kind: KindTag, Parent: i.childPath()}, true
}

func (i Item) childPath() string {
	switch i.Kind {
	case KindProject:
		return i.Name
	case KindRepository:
		return i.Name
	case KindArtifact:
		return i.Parent + "@" + i.ID
	default:
		return i.Parent
	}
}
