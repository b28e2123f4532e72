// Package testutil provides testing utilities for crystal
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// EventFileExtension matches columnar.FileExtension. testutil does not import
// columnar so the writer's tests stay free of import cycles.
const EventFileExtension = ".parquet"

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext returns a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// EventFile returns a path for an event file named name in a fresh
// temporary directory. The file is not created.
func EventFile(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+EventFileExtension)
}
