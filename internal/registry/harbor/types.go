package harbor

import (
	"time"

	"harbormast/internal/registry"
)

// Wire shapes of the Harbor v2.0 API, narrowed to the fields the
// browser renders.

type projectDTO struct {
	ProjectID    int64     `json:"project_id"`
	Name         string    `json:"name"`
	RepoCount    int64     `json:"repo_count"`
	CreationTime time.Time `json:"creation_time"`
	Metadata     struct {
		// Harbor serializes booleans in metadata as strings.
		Public string `json:"public"`
	} `json:"metadata"`
}

type repositoryDTO struct {
	// Name includes the project prefix, e.g. "library/nginx".
	Name          string    `json:"name"`
	ArtifactCount int64     `json:"artifact_count"`
	PullCount     int64     `json:"pull_count"`
	UpdateTime    time.Time `json:"update_time"`
}

type tagDTO struct {
	Name      string    `json:"name"`
	PushTime  time.Time `json:"push_time"`
	Immutable bool      `json:"immutable"`
}

type artifactDTO struct {
	Digest       string    `json:"digest"`
	MediaType    string    `json:"media_type"`
	Size         int64     `json:"size"`
	PushTime     time.Time `json:"push_time"`
	Tags         []tagDTO  `json:"tags"`
	ScanOverview map[string]struct {
		ScanStatus string `json:"scan_status"`
	} `json:"scan_overview"`
}

type vulnDTO struct {
	ID          string `json:"id"`
	Package     string `json:"package"`
	Version     string `json:"version"`
	FixVersion  string `json:"fix_version"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type vulnReportDTO struct {
	Vulnerabilities []vulnDTO `json:"vulnerabilities"`
}

func projectItem(dto projectDTO) registry.Item {
	return registry.Item{
		Kind: registry.KindProject,
		ID:   dto.Name,
		Name: dto.Name,
		Project: &registry.Project{
			ProjectID:    dto.ProjectID,
			Name:         dto.Name,
			Public:       dto.Metadata.Public == "true",
			RepoCount:    dto.RepoCount,
			CreationTime: dto.CreationTime,
		},
	}
}

func repositoryItem(project string, dto repositoryDTO) registry.Item {
	return registry.Item{
		Kind:   registry.KindRepository,
		ID:     dto.Name,
		Name:   dto.Name,
		Parent: project,
		Repository: &registry.Repository{
			Name:          dto.Name,
			ArtifactCount: dto.ArtifactCount,
			PullCount:     dto.PullCount,
			UpdateTime:    dto.UpdateTime,
		},
	}
}

func artifactItem(repo string, dto artifactDTO) registry.Item {
	tags := make([]string, 0, len(dto.Tags))
	for _, t := range dto.Tags {
		tags = append(tags, t.Name)
	}

	scanStatus := ""
	for _, overview := range dto.ScanOverview {
		scanStatus = overview.ScanStatus
		break
	}

	return registry.Item{
		Kind:   registry.KindArtifact,
		ID:     dto.Digest,
		Name:   dto.Digest,
		Parent: repo,
		Artifact: &registry.Artifact{
			Digest:     dto.Digest,
			MediaType:  dto.MediaType,
			Size:       dto.Size,
			PushTime:   dto.PushTime,
			Tags:       tags,
			ScanStatus: scanStatus,
		},
	}
}

func tagItem(artifactPath string, dto tagDTO) registry.Item {
	return registry.Item{
		Kind:   registry.KindTag,
		ID:     dto.Name,
		Name:   dto.Name,
		Parent: artifactPath,
		Tag: &registry.Tag{
			Name:      dto.Name,
			PushTime:  dto.PushTime,
			Immutable: dto.Immutable,
		},
	}
}

func vulnerabilityItem(artifactPath string, dto vulnDTO) registry.Item {
	return registry.Item{
		Kind: registry.KindVulnerability,
		// The same CVE can hit several packages in one image, so the
		// package is folded into the identifier to keep it unique.
		ID:     dto.ID + "@" + dto.Package,
		Name:   dto.ID,
		Parent: artifactPath,
		Vulnerability: &registry.Vulnerability{
			CVEID:       dto.ID,
			Package:     dto.Package,
			Version:     dto.Version,
			FixVersion:  dto.FixVersion,
			Severity:    registry.Severity(dto.Severity),
			Description: dto.Description,
		},
	}
}
