package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"magpie/internal/platform"
)

// Progress is one progress report from a handler. Every report resets the
// orchestrator's idle watchdog.
type Progress struct {
	Status      string
	Percent     float64
	ContentType string
}

// ProgressFunc receives handler progress reports.
type ProgressFunc func(Progress)

// Request carries everything a handler needs for one dispatch. Handlers
// must not attach auth when Degraded is set; the gate empties Token in that
// case and Degraded is the signal to skip authenticated endpoints.
type Request struct {
	JobID         string
	URL           string
	Platform      *platform.Descriptor
	Token         string
	Degraded      bool
	DownloadFiles bool
	OutputDir     string
	Progress      ProgressFunc
}

func (r Request) report(p Progress) {
	if r.Progress != nil {
		r.Progress(p)
	}
}

// Metadata is what FetchMetadata learns about a URL without downloading.
type Metadata struct {
	Title       string
	ContentType string
	Size        int64
}

// Result summarizes a finished download.
type Result struct {
	Title       string
	ContentType string
	Size        int64
	Files       int
}

// Handler implements platform-specific fetching. Handlers never publish
// terminal events; they return and the orchestrator decides the outcome.
type Handler interface {
	// Detect reports whether the handler recognizes the URL. The registry
	// has already resolved the platform; Detect is a final sanity check
	// before side effects begin.
	Detect(rawURL string) bool
	// FetchMetadata inspects the URL without persisting anything.
	FetchMetadata(ctx context.Context, req Request) (Metadata, error)
	// Download fetches content into req.OutputDir and reports progress.
	Download(ctx context.Context, req Request) (Result, error)
}

// Set is the closed handler table. Platforms without a dedicated handler
// fall through to the generic one.
type Set struct {
	byPlatform map[string]Handler
	generic    Handler
}

// NewSet wires the builtin handlers against a shared HTTP client.
func NewSet(client *http.Client, logger *slog.Logger) *Set {
	generic := NewGeneric(client, logger)
	return &Set{
		byPlatform: map[string]Handler{
			"github": NewGitHub(client, logger),
		},
		generic: generic,
	}
}

// NewSetWith builds a handler table from explicit handlers. The generic
// handler backs every platform missing from byPlatform.
func NewSetWith(generic Handler, byPlatform map[string]Handler) *Set {
	table := make(map[string]Handler, len(byPlatform))
	for id, h := range byPlatform {
		table[id] = h
	}
	return &Set{byPlatform: table, generic: generic}
}

// Lookup returns the handler for a platform id, falling back to generic.
func (s *Set) Lookup(platformID string) Handler {
	if h, ok := s.byPlatform[platformID]; ok {
		return h
	}
	return s.generic
}

// NewHTTPClient builds the outbound client handlers share. The timeout
// bounds one full HTTP exchange including the body read.
func NewHTTPClient(requestTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
	}
}
