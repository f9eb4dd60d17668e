package broadcast

import "time"

// Kind classifies a job event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Result summarizes a completed download for terminal events and callers.
type Result struct {
	Folder      string `json:"folder"`
	Path        string `json:"path"`
	Title       string `json:"title"`
	Platform    string `json:"platform"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Files       int    `json:"files,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// Event is one entry in a job's event stream. Events are JSON-tagged for
// newline-delimited output on the HTTP stream and the events socket.
type Event struct {
	Sequence    uint64    `json:"seq"`
	JobID       string    `json:"job_id"`
	Kind        Kind      `json:"kind"`
	Timestamp   time.Time `json:"ts"`
	Status      string    `json:"status,omitempty"`
	Percent     float64   `json:"percent,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Message     string    `json:"message,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Result      *Result   `json:"result,omitempty"`
}

// Terminal reports whether the event ends its job's stream.
func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}
