package ipc

import (
	"time"

	"magpie/internal/daemon"
)

// PlatformInfo mirrors the HTTP API platform DTO for IPC callers.
type PlatformInfo = daemon.PlatformInfo

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime status.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockPath     string         `json:"lock_path"`
	LedgerDBPath string         `json:"ledger_db_path"`
	JobStats     map[string]int `json:"job_stats"`
	LedgerCount  int64          `json:"ledger_count"`
	LedgerSize   int64          `json:"ledger_size"`
}

// ParseRequest resolves a URL to a platform.
type ParseRequest struct {
	URL string `json:"url"`
}

// ParseResponse carries the resolved platform.
type ParseResponse struct {
	Platform PlatformInfo `json:"platform"`
}

// PlatformsRequest lists registered platforms.
type PlatformsRequest struct{}

// PlatformsResponse contains platforms in resolution order.
type PlatformsResponse struct {
	Platforms []PlatformInfo `json:"platforms"`
}

// HistoryEntry is one ledger entry for IPC callers.
type HistoryEntry struct {
	Folder      string    `json:"folder"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
	Size        int64     `json:"size"`
	Title       string    `json:"title"`
	Platform    string    `json:"platform"`
	ContentType string    `json:"content_type"`
}

// HistoryListRequest lists ledger entries.
type HistoryListRequest struct{}

// HistoryListResponse contains ledger entries, newest first.
type HistoryListResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryRemoveRequest deletes one ledger entry and its artifacts.
type HistoryRemoveRequest struct {
	Folder string `json:"folder"`
}

// HistoryRemoveResponse reports the removed folder.
type HistoryRemoveResponse struct {
	Removed string `json:"removed"`
}

// CredentialSetRequest stores a credential for a platform.
type CredentialSetRequest struct {
	Platform string `json:"platform"`
	Token    string `json:"token"`
	Validity string `json:"validity"`
}

// CredentialSetResponse acknowledges the write.
type CredentialSetResponse struct {
	Stored bool `json:"stored"`
}

// CredentialRemoveRequest deletes a stored credential.
type CredentialRemoveRequest struct {
	Platform string `json:"platform"`
}

// CredentialRemoveResponse acknowledges the removal.
type CredentialRemoveResponse struct {
	Removed bool `json:"removed"`
}

// CredentialInfo describes one stored credential without exposing the token.
type CredentialInfo struct {
	Platform  string    `json:"platform"`
	Validity  string    `json:"validity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialListRequest lists stored credentials.
type CredentialListRequest struct{}

// CredentialListResponse contains stored credentials, sorted by platform.
type CredentialListResponse struct {
	Credentials []CredentialInfo `json:"credentials"`
}
