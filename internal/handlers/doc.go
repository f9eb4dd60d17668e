// Package handlers holds the closed set of platform handlers the
// orchestrator dispatches to.
package handlers
