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

func TestGenericDetect(t *testing.T) {
	g := handlers.NewGeneric(nil, logging.NewNop())

	if !g.Detect("https://example.com/file.bin") {
		t.Error("expected http url to be detected")
	}
	if g.Detect("ftp://example.com/file.bin") {
		t.Error("expected ftp url to be rejected")
	}
	if g.Detect("https://") {
		t.Error("expected hostless url to be rejected")
	}
}

func TestGenericFetchMetadataHTMLTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>Example Page</title></head><body>hi</body></html>"))
	}))
	defer server.Close()

	g := handlers.NewGeneric(server.Client(), logging.NewNop())
	meta, err := g.FetchMetadata(context.Background(), handlers.Request{URL: server.URL + "/page"})
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Title != "Example Page" {
		t.Errorf("title: expected Example Page, got %q", meta.Title)
	}
	if meta.ContentType != "text/html" {
		t.Errorf("content type: expected text/html, got %q", meta.ContentType)
	}
}

func TestGenericFetchMetadataFallsBackToURLName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("binary"))
	}))
	defer server.Close()

	g := handlers.NewGeneric(server.Client(), logging.NewNop())
	meta, err := g.FetchMetadata(context.Background(), handlers.Request{URL: server.URL + "/artifacts/build.zip"})
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Title != "build.zip" {
		t.Errorf("title: expected build.zip, got %q", meta.Title)
	}
}

func TestGenericDownloadWritesFileAndReportsProgress(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	outputDir := t.TempDir()
	var sawComplete bool
	req := handlers.Request{
		URL:           server.URL + "/data.bin",
		DownloadFiles: true,
		OutputDir:     outputDir,
		Progress: func(p handlers.Progress) {
			if p.Status == "download complete" {
				sawComplete = true
			}
		},
	}

	g := handlers.NewGeneric(server.Client(), logging.NewNop())
	result, err := g.Download(context.Background(), req)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.Files != 1 {
		t.Errorf("expected 1 file, got %d", result.Files)
	}
	if result.Size != int64(len(payload)) {
		t.Errorf("size: expected %d, got %d", len(payload), result.Size)
	}
	if !sawComplete {
		t.Error("expected a download complete progress report")
	}

	data, err := os.ReadFile(filepath.Join(outputDir, "data.bin"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if len(data) != len(payload) {
		t.Fatalf("downloaded %d bytes, expected %d", len(data), len(payload))
	}
}

func TestGenericMetadataOnlySkipsFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("data"))
	}))
	defer server.Close()

	outputDir := t.TempDir()
	g := handlers.NewGeneric(server.Client(), logging.NewNop())
	result, err := g.Download(context.Background(), handlers.Request{
		URL:       server.URL + "/data.bin",
		OutputDir: outputDir,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.Files != 0 {
		t.Errorf("metadata-only must not count files, got %d", result.Files)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("metadata-only must not write files, found %d", len(entries))
	}
}

func TestGenericContentDispositionFilename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="renamed.tar.gz"`)
		_, _ = w.Write([]byte("tarball"))
	}))
	defer server.Close()

	outputDir := t.TempDir()
	g := handlers.NewGeneric(server.Client(), logging.NewNop())
	if _, err := g.Download(context.Background(), handlers.Request{
		URL:           server.URL + "/download?id=7",
		DownloadFiles: true,
		OutputDir:     outputDir,
	}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "renamed.tar.gz")); err != nil {
		t.Fatalf("expected renamed.tar.gz from content disposition: %v", err)
	}
}

func TestGenericErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	g := handlers.NewGeneric(server.Client(), logging.NewNop())

	_, err := g.FetchMetadata(context.Background(), handlers.Request{URL: server.URL + "/missing"})
	if !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("expected ErrNotFound for 404, got %v", err)
	}

	_, err = g.FetchMetadata(context.Background(), handlers.Request{URL: server.URL + "/broken"})
	if !errors.Is(err, faults.ErrHandlerFault) {
		t.Errorf("expected ErrHandlerFault for 500, got %v", err)
	}
}

func TestSetLookupFallsBackToGeneric(t *testing.T) {
	set := handlers.NewSet(nil, logging.NewNop())

	if set.Lookup("github") == set.Lookup("youtube") {
		t.Error("expected a dedicated github handler")
	}
	if set.Lookup("youtube") != set.Lookup("generic") {
		t.Error("expected platforms without handlers to share the generic one")
	}
}
