package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/gatewright/internal/store"
)

// TempStore opens a ledger store backed by a file under tb's temp
// directory. The store is closed automatically when the test finishes.
func TempStore(tb testing.TB) *store.Store {
	tb.Helper()
	s, err := store.Open(filepath.Join(tb.TempDir(), "ledger.db"))
	if err != nil {
		tb.Fatalf("open temp store: %v", err)
	}
	tb.Cleanup(func() { s.Close() })
	return s
}
