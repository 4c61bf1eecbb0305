package testutil

import (
	"fmt"
	"time"

	"harbormast/internal/registry"
)

// Paginate splits items into pages of pageSize with numeric cursors,
// the shape a well-behaved registry serves.
func Paginate(items []registry.Item, pageSize int) []registry.Page {
	if pageSize <= 0 || len(items) == 0 {
		return []registry.Page{{Items: items}}
	}
	var pages []registry.Page
	for start := 0; start < len(items); start += pageSize {
		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}
		page := registry.Page{Items: items[start:end]}
		if end < len(items) {
			page.NextCursor = fmt.Sprintf("%d", len(pages)+2)
		}
		pages = append(pages, page)
	}
	return pages
}

// ProjectItem builds a project fixture.
func ProjectItem(name string) registry.Item {
	return registry.Item{
		Kind: registry.KindProject,
		ID:   name,
		Name: name,
		Project: &registry.Project{
			Name:         name,
			Public:       true,
			CreationTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// RepositoryItem builds a repository fixture under project.
func RepositoryItem(project, name string) registry.Item {
	full := project + "/" + name
	return registry.Item{
		Kind:   registry.KindRepository,
		ID:     full,
		Name:   full,
		Parent: project,
		Repository: &registry.Repository{
			Name:          full,
			ArtifactCount: 1,
		},
	}
}

// ArtifactItem builds an artifact fixture in repo ("project/name").
func ArtifactItem(repo, digest string, tags ...string) registry.Item {
	return registry.Item{
		Kind:   registry.KindArtifact,
		ID:     digest,
		Name:   digest,
		Parent: repo,
		Artifact: &registry.Artifact{
			Digest: digest,
			Tags:   tags,
		},
	}
}

// VulnerabilityItem builds a scan finding for an artifact path
// ("project/name@digest").
func VulnerabilityItem(artifactPath, cve string, severity registry.Severity) registry.Item {
	return registry.Item{
		Kind:   registry.KindVulnerability,
		ID:     cve,
		Name:   cve,
		Parent: artifactPath,
		Vulnerability: &registry.Vulnerability{
			CVEID:    cve,
			Severity: severity,
		},
	}
}

// RegistryBuilder accumulates fixtures and produces a FakeClient
// serving them paginated.
type RegistryBuilder struct {
	collections map[string][]registry.Item
	order       []string
	pageSize    int
}

// NewRegistryBuilder creates a builder with no pagination (one page per
// collection) until WithPageSize is set.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{collections: make(map[string][]registry.Item)}
}

// WithPageSize splits collections into pages of n items.
func (b *RegistryBuilder) WithPageSize(n int) *RegistryBuilder {
	b.pageSize = n
	return b
}

// WithProject adds a project at the root.
func (b *RegistryBuilder) WithProject(name string) *RegistryBuilder {
	return b.add(registry.KindProject, "", ProjectItem(name))
}

// WithRepository adds a repository under project.
func (b *RegistryBuilder) WithRepository(project, name string) *RegistryBuilder {
	return b.add(registry.KindRepository, project, RepositoryItem(project, name))
}

// WithArtifact adds an artifact in repo ("project/name").
func (b *RegistryBuilder) WithArtifact(repo, digest string, tags ...string) *RegistryBuilder {
	return b.add(registry.KindArtifact, repo, ArtifactItem(repo, digest, tags...))
}

// WithVulnerability adds a finding for an artifact path.
func (b *RegistryBuilder) WithVulnerability(artifactPath, cve string, severity registry.Severity) *RegistryBuilder {
	return b.add(registry.KindVulnerability, artifactPath, VulnerabilityItem(artifactPath, cve, severity))
}

func (b *RegistryBuilder) add(kind registry.Kind, parent string, item registry.Item) *RegistryBuilder {
	key := collectionKey(kind, parent)
	if _, ok := b.collections[key]; !ok {
		b.order = append(b.order, key)
	}
	b.collections[key] = append(b.collections[key], item)
	return b
}

// BuildClient produces a FakeClient serving all accumulated fixtures.
func (b *RegistryBuilder) BuildClient() *FakeClient {
	client := NewFakeClient()
	for _, key := range b.order {
		items := b.collections[key]
		kind := items[0].Kind
		parent := items[0].Parent
		client.SetPages(kind, parent, Paginate(items, b.pageSize))
		for _, item := range items {
			client.SetDetail(item)
		}
	}
	return client
}
