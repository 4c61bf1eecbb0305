// Package registry defines the resource model for a container-image
// registry and the client interface used to fetch it.
package registry

// Kind identifies one level of the registry resource hierarchy.
type Kind string

const (
	KindProject       Kind = "project"
	KindRepository    Kind = "repository"
	KindArtifact      Kind = "artifact"
	KindTag           Kind = "tag"
	KindVulnerability Kind = "vulnerability"
)

// ParentKind returns the kind whose items contain collections of k.
// Projects sit at the root and have no parent kind.
func (k Kind) ParentKind() (Kind, bool) {
	switch k {
	case KindRepository:
		return KindProject, true
	case KindArtifact:
		return KindRepository, true
	case KindTag, KindVulnerability:
		return KindArtifact, true
	default:
		return "", false
	}
}

// ChildKind returns the kind reached by drilling into an item of kind k.
// Artifacts drill into their vulnerability report; tags are reached
// through an explicit jump, not the primary drill path.
func (k Kind) ChildKind() (Kind, bool) {
	switch k {
	case KindProject:
		return KindRepository, true
	case KindRepository:
		return KindArtifact, true
	case KindArtifact:
		return KindVulnerability, true
	default:
		return "", false
	}
}

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindProject, KindRepository, KindArtifact, KindTag, KindVulnerability:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Title returns a human-readable plural label for list headers.
func (k Kind) Title() string {
	switch k {
	case KindProject:
		return "Projects"
	case KindRepository:
		return "Repositories"
	case KindArtifact:
		return "Artifacts"
	case KindTag:
		return "Tags"
	case KindVulnerability:
		return "Vulnerabilities"
	default:
		return string(k)
	}
}
