package testsupport

import (
	"context"
	"testing"

	"sceneflow/internal/checkpoint"
	"sceneflow/internal/config"
	"sceneflow/internal/ledger"
)

// MustOpenCheckpoints opens the checkpoint store for tests and registers cleanup.
func MustOpenCheckpoints(t testing.TB, cfg *config.Config) *checkpoint.Store {
	t.Helper()

	store, err := checkpoint.Open(context.Background(), cfg.CheckpointDBPath())
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLedger opens the download ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(context.Background(), cfg.LedgerDBPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
	})
	return l
}
