// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer Sync(logger) //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false, zap.String("version", "test"))
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer Sync(logger) //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestSyncNilAndObserved ensures Sync tolerates nil and in-memory cores.
func TestSyncNilAndObserved(t *testing.T) {
	t.Parallel()

	if err := Sync(nil); err != nil {
		t.Fatalf("Sync(nil) error = %v", err)
	}
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	logger.Info("observed")
	if err := Sync(logger); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 observed entry, got %d", logs.Len())
	}
}
