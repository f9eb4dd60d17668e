package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"magpie/internal/faults"
	"magpie/internal/logging"
)

// metadataReadLimit caps how much of a page FetchMetadata reads while
// looking for a title.
const metadataReadLimit = 512 * 1024

// Generic fetches arbitrary HTTP(S) URLs. It backs every platform without a
// dedicated handler and is the registry's fallback target.
type Generic struct {
	client *http.Client
	logger *slog.Logger
}

// NewGeneric constructs the generic handler.
func NewGeneric(client *http.Client, logger *slog.Logger) *Generic {
	if client == nil {
		client = http.DefaultClient
	}
	return &Generic{
		client: client,
		logger: logging.NewComponentLogger(logger, "handler-generic"),
	}
}

func (g *Generic) Detect(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

func (g *Generic) FetchMetadata(ctx context.Context, req Request) (Metadata, error) {
	req.report(Progress{Status: "fetching metadata"})

	resp, err := g.get(ctx, req, req.URL)
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	meta := Metadata{
		ContentType: contentTypeOf(resp),
		Size:        resp.ContentLength,
	}
	if meta.Size < 0 {
		meta.Size = 0
	}

	if strings.HasPrefix(meta.ContentType, "text/html") {
		if title := extractTitle(io.LimitReader(resp.Body, metadataReadLimit)); title != "" {
			meta.Title = title
		}
	}
	if meta.Title == "" {
		meta.Title = titleFromURL(req.URL)
	}
	return meta, nil
}

func (g *Generic) Download(ctx context.Context, req Request) (Result, error) {
	meta, err := g.FetchMetadata(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if !req.DownloadFiles {
		req.report(Progress{Status: "metadata only", Percent: 100, ContentType: meta.ContentType})
		return Result{Title: meta.Title, ContentType: meta.ContentType, Size: meta.Size}, nil
	}

	req.report(Progress{Status: "downloading", ContentType: meta.ContentType})

	resp, err := g.get(ctx, req, req.URL)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	filename := filenameFromResponse(req.URL, resp)
	written, err := writeStream(req, filepath.Join(req.OutputDir, filename), resp.Body, resp.ContentLength)
	if err != nil {
		return Result{}, err
	}

	req.report(Progress{Status: "download complete", Percent: 100, ContentType: contentTypeOf(resp)})
	return Result{
		Title:       meta.Title,
		ContentType: contentTypeOf(resp),
		Size:        written,
		Files:       1,
	}, nil
}

func (g *Generic) get(ctx context.Context, req Request, target string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", faults.ErrInvalidInput, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, faults.Wrap(faults.ErrHandlerFault, "generic", "fetch", target, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, faults.Wrap(faults.ErrNotFound, "generic", "fetch",
				fmt.Sprintf("%s returned %d", target, resp.StatusCode), nil)
		}
		return nil, faults.Wrap(faults.ErrHandlerFault, "generic", "fetch",
			fmt.Sprintf("%s returned %d", target, resp.StatusCode), nil)
	}
	return resp, nil
}

const userAgent = "magpie/1.0"

func contentTypeOf(resp *http.Response) string {
	raw := resp.Header.Get("Content-Type")
	if raw == "" {
		return "application/octet-stream"
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	return raw
}

// extractTitle walks the HTML token stream for the first <title> text node.
func extractTitle(r io.Reader) string {
	tokenizer := html.NewTokenizer(r)
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" {
				inTitle = false
			}
		case html.TextToken:
			if inTitle {
				if title := strings.TrimSpace(string(tokenizer.Text())); title != "" {
					return title
				}
			}
		}
	}
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	base := path.Base(u.Path)
	if base == "" || base == "/" || base == "." {
		return u.Hostname()
	}
	return base
}

func filenameFromResponse(rawURL string, resp *http.Response) string {
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := sanitizeFilename(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if name := sanitizeFilename(path.Base(u.Path)); name != "" && name != "/" && name != "." {
			return name
		}
	}
	if strings.HasPrefix(contentTypeOf(resp), "text/html") {
		return "index.html"
	}
	return "download"
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// writeStream copies a response body to disk, reporting percentage progress
// when the total size is known.
func writeStream(req Request, dest string, body io.Reader, total int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("ensure output directory: %w", err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	var written int64
	buf := make([]byte, 128*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return written, fmt.Errorf("write output file: %w", writeErr)
			}
			written += int64(n)
			progress := Progress{Status: "downloading"}
			if total > 0 {
				progress.Percent = float64(written) / float64(total) * 100
			}
			req.report(progress)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, faults.Wrap(faults.ErrHandlerFault, "generic", "stream", dest, readErr)
		}
	}
}
