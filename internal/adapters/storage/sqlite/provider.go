// Package sqlite provides the SQLite storage adapter.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/sqldb"
)

// Provider implements ports.StorageProvider on a SQLite file.
type Provider struct {
	*sqldb.Store
}

// NewProvider opens the database at path. The parent directory is created
// when missing; ":memory:" opens a private in-memory database.
func NewProvider(path string) (*Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	store, err := sqldb.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	return &Provider{Store: store}, nil
}

var _ ports.StorageProvider = (*Provider)(nil)
