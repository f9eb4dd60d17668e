package ledger

import "time"

// Entry is one recorded download artifact.
type Entry struct {
	ID          int64     `json:"-"`
	Folder      string    `json:"folder"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
	Size        int64     `json:"size"`
	Title       string    `json:"title"`
	Platform    string    `json:"platform"`
	ContentType string    `json:"content_type"`
}

// Stats summarizes the ledger for status output.
type Stats struct {
	Entries   int64 `json:"entries"`
	TotalSize int64 `json:"total_size"`
}

// Metadata is the sidecar written into each artifact folder. It carries
// enough to rebuild a ledger row if the database is lost.
type Metadata struct {
	JobID       string    `json:"job_id"`
	SourceURL   string    `json:"source_url"`
	Folder      string    `json:"folder"`
	Title       string    `json:"title"`
	Platform    string    `json:"platform"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Degraded    bool      `json:"degraded,omitempty"`
}
