package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"magpie/internal/broadcast"
	"magpie/internal/config"
	"magpie/internal/creds"
	"magpie/internal/handlers"
	"magpie/internal/jobs"
	"magpie/internal/ledger"
	"magpie/internal/logging"
	"magpie/internal/platform"
	"magpie/internal/testsupport"
)

type stubHandler struct {
	download func(ctx context.Context, req handlers.Request) (handlers.Result, error)
}

func (s *stubHandler) Detect(string) bool { return true }

func (s *stubHandler) FetchMetadata(ctx context.Context, req handlers.Request) (handlers.Metadata, error) {
	return handlers.Metadata{}, nil
}

func (s *stubHandler) Download(ctx context.Context, req handlers.Request) (handlers.Result, error) {
	if s.download == nil {
		return handlers.Result{Title: "stub"}, nil
	}
	return s.download(ctx, req)
}

func newTestDaemon(t *testing.T, cfg *config.Config, handler handlers.Handler) *Daemon {
	t.Helper()

	registry, err := platform.NewRegistry(platform.Builtin())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	credStore := testsupport.MustOpenCreds(t, cfg)
	ledgerStore := testsupport.MustOpenLedger(t, cfg)
	hub := broadcast.NewHub(logging.NewNop())
	orch := jobs.NewOrchestrator(cfg, registry, credStore,
		handlers.NewSetWith(handler, nil), hub, ledgerStore, logging.NewNop())

	d, err := New(cfg, logging.NewNop(), registry, credStore, ledgerStore, hub, orch)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return d
}

func newAPITestServer(t *testing.T, d *Daemon) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(d.api.server.Handler)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (message, kind string) {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error, payload.Kind
}

func TestParseEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &stubHandler{})
	server := newAPITestServer(t, d)

	resp := postJSON(t, server.URL+"/api/parse", map[string]string{"url": "https://github.com/o/r"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var info PlatformInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.ID != "github" {
		t.Errorf("platform_id: expected github, got %q", info.ID)
	}
	if info.Auth != "optional" {
		t.Errorf("auth: expected optional, got %q", info.Auth)
	}
}

func TestParseEndpointRejectsMalformedURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &stubHandler{})
	server := newAPITestServer(t, d)

	resp := postJSON(t, server.URL+"/api/parse", map[string]string{"url": "ftp://nope"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	_, kind := decodeError(t, resp)
	if kind != "invalid_input" {
		t.Errorf("kind: expected invalid_input, got %q", kind)
	}
}

func TestDownloadEndpointStreamsUntilTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := &stubHandler{download: func(ctx context.Context, req handlers.Request) (handlers.Result, error) {
		req.Progress(handlers.Progress{Status: "downloading", Percent: 42})
		return handlers.Result{Title: "file.bin", ContentType: "application/octet-stream", Size: 10}, nil
	}}
	d := newTestDaemon(t, cfg, handler)
	server := newAPITestServer(t, d)

	resp := postJSON(t, server.URL+"/api/download", map[string]any{"url": "https://example.com/file.bin"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type: got %q", ct)
	}

	var events []broadcast.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var evt broadcast.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan stream: %v", err)
	}

	if len(events) == 0 {
		t.Fatal("expected events on the stream")
	}
	last := events[len(events)-1]
	if !last.Terminal() {
		t.Fatalf("expected terminal event last, got %+v", last)
	}
	if last.Kind != broadcast.KindComplete {
		t.Fatalf("expected complete, got %s (%s)", last.Kind, last.Message)
	}
	for _, evt := range events[:len(events)-1] {
		if evt.Terminal() {
			t.Fatal("terminal event before end of stream")
		}
	}
}

func TestDownloadEndpointHonorsDownloadFilesOverride(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var gotDownloadFiles bool
	handler := &stubHandler{download: func(ctx context.Context, req handlers.Request) (handlers.Result, error) {
		gotDownloadFiles = req.DownloadFiles
		return handlers.Result{}, nil
	}}
	d := newTestDaemon(t, cfg, handler)
	server := newAPITestServer(t, d)

	resp := postJSON(t, server.URL+"/api/download", map[string]any{
		"url":            "https://example.com/page",
		"download_files": false,
	})
	defer resp.Body.Close()
	var last broadcast.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &last); err != nil {
			t.Fatalf("decode event: %v", err)
		}
	}
	if last.Kind != broadcast.KindComplete {
		t.Fatalf("expected complete, got %s (%s)", last.Kind, last.Message)
	}
	if gotDownloadFiles {
		t.Fatal("expected download_files=false to reach the handler")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &stubHandler{})
	server := newAPITestServer(t, d)
	ctx := context.Background()

	if err := d.ledger.Record(ctx, ledger.Entry{Folder: "github-abc", Size: 42, Platform: "github"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	resp, err := http.Get(server.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	var listPayload struct {
		Entries []ledger.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listPayload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(listPayload.Entries) != 1 || listPayload.Entries[0].Folder != "github-abc" {
		t.Fatalf("history: %+v", listPayload.Entries)
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/history/github-abc", nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE history: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", delResp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/api/history/github-abc", nil)
	missingResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE missing: %v", err)
	}
	defer missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing entry, got %d", missingResp.StatusCode)
	}
	_, kind := decodeError(t, missingResp)
	if kind != "not_found" {
		t.Errorf("kind: expected not_found, got %q", kind)
	}
}

func TestPlatformsEndpointReportsCredentialPresence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &stubHandler{})
	server := newAPITestServer(t, d)

	if err := d.creds.Set("github", creds.Record{Token: "tok"}); err != nil {
		t.Fatalf("Set credential: %v", err)
	}

	resp, err := http.Get(server.URL + "/api/platforms")
	if err != nil {
		t.Fatalf("GET platforms: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Platforms []PlatformInfo `json:"platforms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var sawGitHub, sawGeneric bool
	for _, info := range payload.Platforms {
		switch info.ID {
		case "github":
			sawGitHub = true
			if !info.HasAPIKey {
				t.Error("expected has_api_key for github")
			}
		case platform.GenericID:
			sawGeneric = true
			if info.HasAPIKey {
				t.Error("generic must not report a credential")
			}
		}
	}
	if !sawGitHub || !sawGeneric {
		t.Fatalf("expected github and generic in listing, got %d platforms", len(payload.Platforms))
	}
	// Generic resolves last.
	if last := payload.Platforms[len(payload.Platforms)-1]; last.ID != platform.GenericID {
		t.Errorf("expected generic last, got %q", last.ID)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	d := newTestDaemon(t, cfg, &stubHandler{})
	server := newAPITestServer(t, d)

	// Missing token.
	resp, err := http.Get(server.URL + "/api/platforms")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// Wrong token.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/platforms", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		resp.Body.Close()
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read 401 body: %v", err)
	}
	if !strings.Contains(string(body), "auth_required") {
		t.Fatalf("expected auth_required kind in body, got %q", body)
	}

	// Correct token.
	req, _ = http.NewRequest(http.MethodGet, server.URL+"/api/platforms", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &stubHandler{})
	server := newAPITestServer(t, d)

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Running  bool           `json:"running"`
		PID      int            `json:"pid"`
		LedgerDB string         `json:"ledger_db"`
		Jobs     map[string]int `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Running {
		t.Error("daemon was not started; expected running=false")
	}
	if payload.PID == 0 {
		t.Error("expected pid in status")
	}
	if payload.LedgerDB == "" {
		t.Error("expected ledger path in status")
	}
}
