// Package broadcast fans job lifecycle events out to stream consumers with
// full-history replay and a single-terminal-event guarantee per job.
package broadcast
