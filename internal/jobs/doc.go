// Package jobs runs the dispatch lifecycle for download jobs: platform
// resolution, credential gating, bounded-concurrency handler execution,
// progress broadcasting, and terminal bookkeeping.
package jobs
