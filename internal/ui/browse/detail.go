package browse

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"harbormast/internal/cachemanager"
	"harbormast/internal/registry"
	"harbormast/internal/ui/styles"
)

// DetailMsg carries a resolved single-item lookup.
type DetailMsg struct {
	Item registry.Item
}

// DetailFailedMsg reports a failed single-item lookup.
type DetailFailedMsg struct {
	Err error
}

type detailRequest struct {
	kind registry.Kind
	id   string
}

type detailLoader = cachemanager.ReadThrough[string, registry.Item, detailRequest]

func newDetailLoader(client registry.Client) *detailLoader {
	cache := cachemanager.NewInMemoryDetailCache[string, registry.Item](
		"detail", cachemanager.DefaultDetailExpiration, cachemanager.DefaultCleanupInterval)
	return cachemanager.NewReadThrough(cache,
		func(ctx context.Context, req detailRequest) (registry.Item, error) {
			return client.Get(ctx, req.kind, req.id)
		}, false)
}

// detailID is the identifier Get expects for an item.
func detailID(item registry.Item) string {
	if item.Kind == registry.KindArtifact {
		return item.Parent + "@" + item.ID
	}
	return item.ID
}

func (m Model) loadDetail(item registry.Item) tea.Cmd {
	loader, ttl := m.details, m.detailTTL
	req := detailRequest{kind: item.Kind, id: detailID(item)}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		resolved, err := loader.Get(ctx, string(req.kind)+":"+req.id, req, ttl)
		if err != nil {
			return DetailFailedMsg{Err: err}
		}
		return DetailMsg{Item: resolved}
	}
}

func (m Model) detailView() string {
	item := *m.detail
	rows := []string{styles.Title.Render(item.Name), ""}
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, styles.ItemDesc.Render(label)+"  "+value)
		}
	}
	stamp := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	}

	switch item.Kind {
	case registry.KindProject:
		if p := item.Project; p != nil {
			visibility := "private"
			if p.Public {
				visibility = "public"
			}
			add("visibility", visibility)
			add("repositories", fmt.Sprintf("%d", p.RepoCount))
			add("created", stamp(p.CreationTime))
		}
	case registry.KindRepository:
		if r := item.Repository; r != nil {
			add("artifacts", fmt.Sprintf("%d", r.ArtifactCount))
			add("pulls", fmt.Sprintf("%d", r.PullCount))
			add("updated", stamp(r.UpdateTime))
		}
	case registry.KindArtifact:
		if a := item.Artifact; a != nil {
			add("digest", a.Digest)
			add("media type", a.MediaType)
			add("size", formatSize(a.Size))
			add("pushed", stamp(a.PushTime))
			add("tags", strings.Join(a.Tags, ", "))
			add("scan", strings.ToLower(a.ScanStatus))
		}
	case registry.KindTag:
		if t := item.Tag; t != nil {
			add("pushed", stamp(t.PushTime))
			if t.Immutable {
				add("immutable", "yes")
			}
		}
	case registry.KindVulnerability:
		if v := item.Vulnerability; v != nil {
			add("severity", styles.SeverityStyle(v.Severity).Render(string(v.Severity)))
			add("package", v.Package+" "+v.Version)
			add("fixed in", v.FixVersion)
			if v.Description != "" {
				rows = append(rows, "", wordwrap.String(v.Description, max(m.width-8, 20)))
			}
		}
	}

	rows = append(rows, "", styles.ItemDesc.Render("press any key to close"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.MutedColor).
		Padding(0, 1).
		Width(max(m.width-4, 20)).
		Render(strings.Join(rows, "\n"))
}
