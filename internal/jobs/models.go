package jobs

import (
	"strings"
	"time"

	"magpie/internal/broadcast"
	"magpie/internal/faults"
)

// State tracks a job through its lifecycle. Transitions only move forward:
// Created, Resolving, Gating, Dispatching, Running, then exactly one of
// Completed or Failed. Terminal states are final; retry means a new job.
type State string

const (
	StateCreated     State = "created"
	StateResolving   State = "resolving"
	StateGating      State = "gating"
	StateDispatching State = "dispatching"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

var allStates = []State{
	StateCreated,
	StateResolving,
	StateGating,
	StateDispatching,
	StateRunning,
	StateCompleted,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, s := range allStates {
		set[s] = struct{}{}
	}
	return set
}()

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stateSet[state]
	return state, ok
}

// Terminal reports whether the state ends the job's lifecycle.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Options carries per-job dispatch options.
type Options struct {
	// DownloadFiles controls whether the handler persists files or stops
	// after metadata.
	DownloadFiles bool
	// OutputDir overrides the artifact directory for this job.
	OutputDir string
}

// Job is one dispatch through the engine.
type Job struct {
	ID             string            `json:"id"`
	SourceURL      string            `json:"source_url"`
	PlatformID     string            `json:"platform_id,omitempty"`
	State          State             `json:"state"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    time.Time         `json:"completed_at,omitzero"`
	Options        Options           `json:"-"`
	Degraded       bool              `json:"degraded,omitempty"`
	DegradedReason string            `json:"degraded_reason,omitempty"`
	Result         *broadcast.Result `json:"result,omitempty"`
	ErrorKind      faults.Kind       `json:"error_kind,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}
