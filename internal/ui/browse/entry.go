package browse

import (
	"fmt"
	"strings"
	"time"

	"harbormast/internal/registry"
	"harbormast/internal/ui/styles"
)

// listEntry adapts a registry item to the bubbles list.
type listEntry struct {
	item registry.Item
}

func (e listEntry) Title() string {
	if e.item.Kind == registry.KindVulnerability && e.item.Vulnerability != nil {
		sev := e.item.Vulnerability.Severity
		return styles.SeverityStyle(sev).Render(string(sev)) + " " + e.item.Name
	}
	return e.item.Name
}

func (e listEntry) Description() string {
	switch e.item.Kind {
	case registry.KindProject:
		p := e.item.Project
		if p == nil {
			return ""
		}
		visibility := "private"
		if p.Public {
			visibility = "public"
		}
		return fmt.Sprintf("%s · %d repositories", visibility, p.RepoCount)

	case registry.KindRepository:
		r := e.item.Repository
		if r == nil {
			return ""
		}
		return fmt.Sprintf("%d artifacts · %d pulls · updated %s",
			r.ArtifactCount, r.PullCount, relativeTime(r.UpdateTime))

	case registry.KindArtifact:
		a := e.item.Artifact
		if a == nil {
			return ""
		}
		parts := []string{formatSize(a.Size)}
		if len(a.Tags) > 0 {
			parts = append(parts, strings.Join(a.Tags, ", "))
		}
		if a.ScanStatus != "" {
			parts = append(parts, "scan: "+strings.ToLower(a.ScanStatus))
		}
		return strings.Join(parts, " · ")

	case registry.KindTag:
		t := e.item.Tag
		if t == nil {
			return ""
		}
		desc := "pushed " + relativeTime(t.PushTime)
		if t.Immutable {
			desc += " · immutable"
		}
		return desc

	case registry.KindVulnerability:
		v := e.item.Vulnerability
		if v == nil {
			return ""
		}
		desc := v.Package + " " + v.Version
		if v.FixVersion != "" {
			desc += " · fixed in " + v.FixVersion
		}
		return desc
	}
	return ""
}

func (e listEntry) FilterValue() string {
	if v := e.item.Vulnerability; v != nil {
		return e.item.Name + " " + v.Package
	}
	return e.item.Name
}

// itemPath is the hierarchical path the item occupies, used for cache
// invalidation and as the delete identifier.
func itemPath(item registry.Item) string {
	switch item.Kind {
	case registry.KindProject, registry.KindRepository:
		return item.Name
	case registry.KindArtifact:
		return item.Parent + "@" + item.ID
	default:
		return item.Parent
	}
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
