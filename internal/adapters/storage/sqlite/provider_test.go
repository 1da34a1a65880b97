package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(":memory:")
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	defer provider.Close()

	var _ ports.StorageProvider = provider
	if err := provider.RecordURL(context.Background(), "https://example.com"); err != nil {
		t.Errorf("RecordURL() error = %v", err)
	}
}

func TestNewProvider_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "request-logic.db")

	provider, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	ctx := context.Background()
	if err := provider.RecordURL(ctx, "https://example.com/persisted"); err != nil {
		t.Fatal(err)
	}
	if err := provider.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewProvider(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.ListHistory(ctx, 0)
	if err != nil || len(entries) != 1 || entries[0].URL != "https://example.com/persisted" {
		t.Errorf("entries = %v, err = %v", entries, err)
	}
}

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Error("expected an error for an empty path")
	}
}
