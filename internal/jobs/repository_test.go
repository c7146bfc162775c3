package jobs

import (
	"testing"
)

func TestNewRepository(t *testing.T) {
	repo := NewRepository(nil)
	if repo == nil {
		t.Fatal("NewRepository returned nil")
	}
	if repo.pool != nil {
		t.Error("repo.pool should be nil when constructed with nil")
	}
}

// Database-backed behavior is covered by the integration suite in
// integration_test.go, which runs against a real postgres via the
// integration build tag.
