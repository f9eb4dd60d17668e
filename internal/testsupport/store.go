package testsupport

import (
	"testing"

	"magpie/internal/config"
	"magpie/internal/creds"
	"magpie/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCreds opens a credential store for tests.
func MustOpenCreds(t testing.TB, cfg *config.Config) *creds.Store {
	t.Helper()

	store, err := creds.Open(cfg.Credentials.Path)
	if err != nil {
		t.Fatalf("creds.Open: %v", err)
	}
	return store
}
