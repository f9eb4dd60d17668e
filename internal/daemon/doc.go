// Package daemon ties the dispatch engine together and serves its HTTP API.
package daemon
