// Package ledger persists the append-only record of completed downloads and
// the metadata sidecars written into artifact folders.
package ledger
