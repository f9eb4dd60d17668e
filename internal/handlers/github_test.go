package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"magpie/internal/faults"
	"magpie/internal/handlers"
	"magpie/internal/logging"
)

func newGitHubServer(t *testing.T) (*httptest.Server, *http.Header) {
	t.Helper()
	var lastHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastHeaders = r.Header.Clone()
		switch r.URL.Path {
		case "/repos/acme/widgets":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"full_name":"acme/widgets","description":"Widget toolkit","default_branch":"main","size":2048,"private":false}`))
		case "/repos/acme/widgets/tarball":
			w.Header().Set("Content-Type", "application/gzip")
			_, _ = w.Write([]byte("pretend-tarball-bytes"))
		case "/repos/ghost/hidden":
			http.Error(w, "requires auth", http.StatusUnauthorized)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &lastHeaders
}

func TestGitHubDetect(t *testing.T) {
	h := handlers.NewGitHub(nil, logging.NewNop())

	if !h.Detect("https://github.com/acme/widgets") {
		t.Error("expected owner/repo url to be detected")
	}
	if !h.Detect("https://github.com/acme/widgets.git") {
		t.Error("expected .git url to be detected")
	}
	if h.Detect("https://github.com/acme") {
		t.Error("expected owner-only url to be rejected")
	}
}

func TestGitHubFetchMetadata(t *testing.T) {
	server, _ := newGitHubServer(t)
	h := handlers.NewGitHubWithBase(server.Client(), logging.NewNop(), server.URL)

	meta, err := h.FetchMetadata(context.Background(), handlers.Request{URL: "https://github.com/acme/widgets"})
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Title != "acme/widgets - Widget toolkit" {
		t.Errorf("title: got %q", meta.Title)
	}
	if meta.Size != 2048*1024 {
		t.Errorf("size: expected %d, got %d", 2048*1024, meta.Size)
	}
	if meta.ContentType != "application/vnd.github.repository" {
		t.Errorf("content type: got %q", meta.ContentType)
	}
}

func TestGitHubDownloadTarball(t *testing.T) {
	server, _ := newGitHubServer(t)
	h := handlers.NewGitHubWithBase(server.Client(), logging.NewNop(), server.URL)

	outputDir := t.TempDir()
	result, err := h.Download(context.Background(), handlers.Request{
		URL:           "https://github.com/acme/widgets",
		DownloadFiles: true,
		OutputDir:     outputDir,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.Files != 1 {
		t.Errorf("expected 1 file, got %d", result.Files)
	}
	if result.ContentType != "application/gzip" {
		t.Errorf("content type: got %q", result.ContentType)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "acme-widgets.tar.gz")); err != nil {
		t.Fatalf("expected tarball on disk: %v", err)
	}
}

func TestGitHubSendsTokenUnlessDegraded(t *testing.T) {
	server, headers := newGitHubServer(t)
	h := handlers.NewGitHubWithBase(server.Client(), logging.NewNop(), server.URL)

	req := handlers.Request{URL: "https://github.com/acme/widgets", Token: "ghp_tok"}
	if _, err := h.FetchMetadata(context.Background(), req); err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if got := headers.Get("Authorization"); got != "Bearer ghp_tok" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	req.Degraded = true
	if _, err := h.FetchMetadata(context.Background(), req); err != nil {
		t.Fatalf("FetchMetadata degraded: %v", err)
	}
	if got := headers.Get("Authorization"); got != "" {
		t.Fatalf("degraded dispatch must not send auth, got %q", got)
	}
}

func TestGitHubErrorClassification(t *testing.T) {
	server, _ := newGitHubServer(t)
	h := handlers.NewGitHubWithBase(server.Client(), logging.NewNop(), server.URL)

	_, err := h.FetchMetadata(context.Background(), handlers.Request{URL: "https://github.com/nobody/nothing"})
	if !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown repo, got %v", err)
	}

	_, err = h.FetchMetadata(context.Background(), handlers.Request{URL: "https://github.com/ghost/hidden"})
	if !errors.Is(err, faults.ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired for 401, got %v", err)
	}

	_, err = h.FetchMetadata(context.Background(), handlers.Request{URL: "https://github.com/acme"})
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for non-repo url, got %v", err)
	}
}
