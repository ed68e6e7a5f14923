// Package storetest provides in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/teemow/applytrack/internal/store"
)

// NewTestStore creates an in-memory SQLite store with all migrations
// applied. It is closed when the test completes.
func NewTestStore(t testing.TB) *store.SQLStore {
	t.Helper()

	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
