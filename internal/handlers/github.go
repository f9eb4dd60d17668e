package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"magpie/internal/faults"
	"magpie/internal/logging"
)

const githubAPIBase = "https://api.github.com"

// GitHub resolves repository URLs through the REST API and can download the
// default-branch tarball. The token rides along unless the dispatch is
// degraded.
type GitHub struct {
	client  *http.Client
	logger  *slog.Logger
	apiBase string
}

// NewGitHub constructs the GitHub handler.
func NewGitHub(client *http.Client, logger *slog.Logger) *GitHub {
	if client == nil {
		client = http.DefaultClient
	}
	return &GitHub{
		client:  client,
		logger:  logging.NewComponentLogger(logger, "handler-github"),
		apiBase: githubAPIBase,
	}
}

// NewGitHubWithBase constructs a GitHub handler against an alternate API
// endpoint. Tests point this at a local server.
func NewGitHubWithBase(client *http.Client, logger *slog.Logger, apiBase string) *GitHub {
	h := NewGitHub(client, logger)
	h.apiBase = strings.TrimRight(apiBase, "/")
	return h
}

func (g *GitHub) Detect(rawURL string) bool {
	_, _, err := splitRepoPath(rawURL)
	return err == nil
}

type repoResponse struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Size          int64  `json:"size"`
	Private       bool   `json:"private"`
}

func (g *GitHub) FetchMetadata(ctx context.Context, req Request) (Metadata, error) {
	owner, repo, err := splitRepoPath(req.URL)
	if err != nil {
		return Metadata{}, err
	}
	req.report(Progress{Status: "fetching repository metadata"})

	info, err := g.fetchRepo(ctx, req, owner, repo)
	if err != nil {
		return Metadata{}, err
	}

	title := info.FullName
	if info.Description != "" {
		title = fmt.Sprintf("%s - %s", info.FullName, info.Description)
	}
	return Metadata{
		Title:       title,
		ContentType: "application/vnd.github.repository",
		Size:        info.Size * 1024, // API reports kilobytes
	}, nil
}

func (g *GitHub) Download(ctx context.Context, req Request) (Result, error) {
	owner, repo, err := splitRepoPath(req.URL)
	if err != nil {
		return Result{}, err
	}

	meta, err := g.FetchMetadata(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if !req.DownloadFiles {
		req.report(Progress{Status: "metadata only", Percent: 100, ContentType: meta.ContentType})
		return Result{Title: meta.Title, ContentType: meta.ContentType, Size: meta.Size}, nil
	}

	req.report(Progress{Status: "downloading tarball", ContentType: "application/gzip"})

	target := fmt.Sprintf("%s/repos/%s/%s/tarball", g.apiBase, owner, repo)
	resp, err := g.do(ctx, req, target)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	dest := filepath.Join(req.OutputDir, fmt.Sprintf("%s-%s.tar.gz", owner, repo))
	written, err := writeStream(req, dest, resp.Body, resp.ContentLength)
	if err != nil {
		return Result{}, err
	}

	req.report(Progress{Status: "download complete", Percent: 100, ContentType: "application/gzip"})
	return Result{
		Title:       meta.Title,
		ContentType: "application/gzip",
		Size:        written,
		Files:       1,
	}, nil
}

func (g *GitHub) fetchRepo(ctx context.Context, req Request, owner, repo string) (repoResponse, error) {
	target := fmt.Sprintf("%s/repos/%s/%s", g.apiBase, owner, repo)
	resp, err := g.do(ctx, req, target)
	if err != nil {
		return repoResponse{}, err
	}
	defer resp.Body.Close()

	var info repoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, metadataReadLimit)).Decode(&info); err != nil {
		return repoResponse{}, faults.Wrap(faults.ErrHandlerFault, "github", "decode repo", target, err)
	}
	if info.FullName == "" {
		info.FullName = fmt.Sprintf("%s/%s", owner, repo)
	}
	return info, nil
}

func (g *GitHub) do(ctx context.Context, req Request, target string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", faults.ErrInvalidInput, err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("User-Agent", userAgent)
	if req.Token != "" && !req.Degraded {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, faults.Wrap(faults.ErrHandlerFault, "github", "request", target, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, faults.Wrap(faults.ErrNotFound, "github", "request",
			fmt.Sprintf("%s returned 404", target), nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, faults.Wrap(faults.ErrAuthRequired, "github", "request",
			fmt.Sprintf("%s returned %d", target, resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, faults.Wrap(faults.ErrHandlerFault, "github", "request",
			fmt.Sprintf("%s returned %d", target, resp.StatusCode), nil)
	}
	return resp, nil
}

func splitRepoPath(rawURL string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", faults.ErrInvalidInput, rawURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s is not a repository url", faults.ErrInvalidInput, rawURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
