// Package harbor implements the registry client against the Harbor
// v2.0 REST API.
package harbor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"harbormast/internal/log"
	"harbormast/internal/registry"
)

const apiPrefix = "/api/v2.0"

// Options configures the Harbor connection.
type Options struct {
	// URL is the base URL of the Harbor instance.
	URL      string
	Username string
	Password string
	// Insecure skips TLS certificate verification.
	Insecure bool
	// Timeout bounds each request. Default 15s.
	Timeout time.Duration
}

// Client talks to one Harbor instance. It implements registry.Client
// and registry.Deleter.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
}

var _ registry.Client = (*Client)(nil)
var _ registry.Deleter = (*Client)(nil)

// New creates a client for the Harbor instance at opts.URL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing registry url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("registry url must use http or https, got %q", base.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if opts.Insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- explicit user opt-in
		}
	}

	return &Client{
		base:     base,
		username: opts.Username,
		password: opts.Password,
		http:     httpClient,
	}, nil
}

// List implements registry.Client. Cursors are Harbor page numbers.
func (c *Client) List(ctx context.Context, kind registry.Kind, parent, cursor string, pageSize int) (registry.Page, error) {
	op := "list " + string(kind)

	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return registry.Page{}, registry.NewError(registry.ErrorProtocol, op, "malformed cursor "+cursor)
		}
		page = n
	}

	switch kind {
	case registry.KindProject:
		return list(ctx, c, op, "/projects", page, pageSize, projectItem)
	case registry.KindRepository:
		path := "/projects/" + url.PathEscape(parent) + "/repositories"
		return list(ctx, c, op, path, page, pageSize, func(dto repositoryDTO) registry.Item {
			return repositoryItem(parent, dto)
		})
	case registry.KindArtifact:
		path, err := artifactsPath(op, parent)
		if err != nil {
			return registry.Page{}, err
		}
		return list(ctx, c, op, path+"?with_tag=true&with_scan_overview=true", page, pageSize, func(dto artifactDTO) registry.Item {
			return artifactItem(parent, dto)
		})
	case registry.KindTag:
		path, err := additionsBase(op, parent)
		if err != nil {
			return registry.Page{}, err
		}
		return list(ctx, c, op, path+"/tags", page, pageSize, func(dto tagDTO) registry.Item {
			return tagItem(parent, dto)
		})
	case registry.KindVulnerability:
		return c.listVulnerabilities(ctx, op, parent, page, pageSize)
	default:
		return registry.Page{}, registry.NewError(registry.ErrorProtocol, op, "unknown kind")
	}
}

// Get implements registry.Client. Artifact and repository identifiers
// are full paths ("project/repo", "project/repo@digest").
func (c *Client) Get(ctx context.Context, kind registry.Kind, id string) (registry.Item, error) {
	op := "get " + string(kind)

	switch kind {
	case registry.KindProject:
		var dto projectDTO
		if err := c.getJSON(ctx, op, "/projects/"+url.PathEscape(id), nil, &dto); err != nil {
			return registry.Item{}, err
		}
		return projectItem(dto), nil
	case registry.KindRepository:
		project, repo, ok := strings.Cut(id, "/")
		if !ok {
			return registry.Item{}, registry.NewError(registry.ErrorProtocol, op, "malformed repository id "+id)
		}
		var dto repositoryDTO
		path := "/projects/" + url.PathEscape(project) + "/repositories/" + escapeRepo(repo)
		if err := c.getJSON(ctx, op, path, nil, &dto); err != nil {
			return registry.Item{}, err
		}
		return repositoryItem(project, dto), nil
	case registry.KindArtifact:
		repo, digest, ok := strings.Cut(id, "@")
		if !ok {
			return registry.Item{}, registry.NewError(registry.ErrorProtocol, op, "malformed artifact id "+id)
		}
		path, err := artifactsPath(op, repo)
		if err != nil {
			return registry.Item{}, err
		}
		var dto artifactDTO
		query := url.Values{"with_tag": {"true"}, "with_scan_overview": {"true"}}
		if err := c.getJSON(ctx, op, path+"/"+url.PathEscape(digest), query, &dto); err != nil {
			return registry.Item{}, err
		}
		return artifactItem(repo, dto), nil
	default:
		return registry.Item{}, registry.NewError(registry.ErrorProtocol, op, "no detail endpoint for kind")
	}
}

// Delete implements registry.Deleter for projects, repositories and
// artifacts.
func (c *Client) Delete(ctx context.Context, kind registry.Kind, id string) error {
	op := "delete " + string(kind)

	var path string
	switch kind {
	case registry.KindProject:
		path = "/projects/" + url.PathEscape(id)
	case registry.KindRepository:
		project, repo, ok := strings.Cut(id, "/")
		if !ok {
			return registry.NewError(registry.ErrorProtocol, op, "malformed repository id "+id)
		}
		path = "/projects/" + url.PathEscape(project) + "/repositories/" + escapeRepo(repo)
	case registry.KindArtifact:
		repo, digest, ok := strings.Cut(id, "@")
		if !ok {
			return registry.NewError(registry.ErrorProtocol, op, "malformed artifact id "+id)
		}
		base, err := artifactsPath(op, repo)
		if err != nil {
			return err
		}
		path = base + "/" + url.PathEscape(digest)
	default:
		return registry.NewError(registry.ErrorProtocol, op, "kind cannot be deleted")
	}

	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return registry.WrapError(registry.ErrorNetwork, op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return registry.WrapError(registry.ErrorNetwork, op, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info(log.CatAPI, "deleted", "kind", kind, "id", id)
		return nil
	}
	return statusError(op, resp.StatusCode)
}

// list fetches one page of path and converts each DTO with conv. Extra
// query parameters may be inlined on the path.
func list[D any](ctx context.Context, c *Client, op, path string, page, pageSize int, conv func(D) registry.Item) (registry.Page, error) {
	query := url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}
	if base, rawQuery, ok := strings.Cut(path, "?"); ok {
		path = base
		extra, _ := url.ParseQuery(rawQuery)
		for k, vs := range extra {
			query[k] = vs
		}
	}

	var dtos []D
	total, err := c.getJSONWithTotal(ctx, op, path, query, &dtos)
	if err != nil {
		return registry.Page{}, err
	}

	items := make([]registry.Item, 0, len(dtos))
	for _, dto := range dtos {
		items = append(items, conv(dto))
	}

	return registry.Page{Items: items, NextCursor: nextCursor(page, pageSize, len(items), total)}, nil
}

// nextCursor derives the follow-up page number from the X-Total-Count
// header, falling back to a full-page heuristic when the header is
// missing.
func nextCursor(page, pageSize, got int, total int64) string {
	if got == 0 {
		return ""
	}
	if total >= 0 {
		if int64(page)*int64(pageSize) >= total {
			return ""
		}
		return strconv.Itoa(page + 1)
	}
	if got < pageSize {
		return ""
	}
	return strconv.Itoa(page + 1)
}

// listVulnerabilities serves the scan report. Harbor returns the full
// report in one response, so pagination happens client-side to keep the
// page contract uniform.
func (c *Client) listVulnerabilities(ctx context.Context, op, parent string, page, pageSize int) (registry.Page, error) {
	base, err := additionsBase(op, parent)
	if err != nil {
		return registry.Page{}, err
	}

	// Keyed by report mime type.
	var reports map[string]vulnReportDTO
	if err := c.getJSON(ctx, op, base+"/additions/vulnerabilities", nil, &reports); err != nil {
		return registry.Page{}, err
	}

	var all []registry.Item
	for _, report := range reports {
		for _, v := range report.Vulnerabilities {
			all = append(all, vulnerabilityItem(parent, v))
		}
	}

	start := (page - 1) * pageSize
	if start >= len(all) {
		return registry.Page{}, nil
	}
	end := start + pageSize
	next := ""
	if end >= len(all) {
		end = len(all)
	} else {
		next = strconv.Itoa(page + 1)
	}
	return registry.Page{Items: all[start:end], NextCursor: next}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	// Built as a string so pre-escaped segments (nested repository
	// names) are not re-encoded.
	target := c.base.String() + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	_, err := c.getJSONWithTotal(ctx, op, path, query, out)
	return err
}

// getJSONWithTotal performs a GET and decodes the body, returning the
// X-Total-Count header value or -1 when absent.
func (c *Client) getJSONWithTotal(ctx context.Context, op, path string, query url.Values, out any) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query)
	if err != nil {
		return -1, registry.WrapError(registry.ErrorNetwork, op, err)
	}

	log.Debug(log.CatAPI, "request", "method", req.Method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return -1, registry.WrapError(registry.ErrorNetwork, op, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn(log.CatAPI, "request failed", "path", path, "status", resp.StatusCode)
		return -1, statusError(op, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return -1, registry.WrapError(registry.ErrorProtocol, op, err)
	}

	total := int64(-1)
	if header := resp.Header.Get("X-Total-Count"); header != "" {
		if n, err := strconv.ParseInt(header, 10, 64); err == nil {
			total = n
		}
	}
	return total, nil
}

// statusError maps an HTTP status to the error classification the fetch
// layer retries and reports on.
func statusError(op string, status int) *registry.Error {
	detail := fmt.Sprintf("HTTP %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return registry.NewError(registry.ErrorAuth, op, detail)
	case status == http.StatusNotFound:
		return registry.NewError(registry.ErrorNotFound, op, detail)
	case status == http.StatusTooManyRequests:
		return registry.NewError(registry.ErrorRateLimited, op, detail)
	case status >= 500:
		return registry.NewError(registry.ErrorServer, op, detail)
	default:
		return registry.NewError(registry.ErrorServer, op, detail)
	}
}

// artifactsPath builds the artifact collection path for a repository
// parent ("project/repo").
func artifactsPath(op, parent string) (string, error) {
	project, repo, ok := strings.Cut(parent, "/")
	if !ok {
		return "", registry.NewError(registry.ErrorProtocol, op, "malformed repository path "+parent)
	}
	return "/projects/" + url.PathEscape(project) + "/repositories/" + escapeRepo(repo) + "/artifacts", nil
}

// additionsBase builds the artifact path for an artifact parent
// ("project/repo@digest").
func additionsBase(op, parent string) (string, error) {
	repo, digest, ok := strings.Cut(parent, "@")
	if !ok {
		return "", registry.NewError(registry.ErrorProtocol, op, "malformed artifact path "+parent)
	}
	base, err := artifactsPath(op, repo)
	if err != nil {
		return "", err
	}
	return base + "/" + url.PathEscape(digest), nil
}

// escapeRepo encodes a repository name for use as a single path
// segment. Harbor expects nested names double-encoded ("a/b" becomes
// "a%252Fb" on the wire).
func escapeRepo(name string) string {
	return url.PathEscape(strings.ReplaceAll(name, "/", "%2F"))
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
