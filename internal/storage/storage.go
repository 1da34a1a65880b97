// Package storage holds the persistence backends used by the service: an
// in-memory store and SQL stores for SQLite and PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// Re-export storage interfaces and types from core/ports.
type (
	Provider              = ports.StorageProvider
	HistoryStore          = ports.HistoryStore
	HistoryEntry          = ports.HistoryEntry
	CertificateRepository = ports.CertificateRepository
	ResultStore           = ports.ResultStore
)

// ErrNotFound is returned for unknown keys.
var ErrNotFound = ports.ErrNotFound

// SeedCertificates saves every certificate into repo, stopping at the first
// failure.
func SeedCertificates(ctx context.Context, repo CertificateRepository, certs []*domain.Certificate) error {
	for _, c := range certs {
		if c == nil {
			continue
		}
		if err := repo.SaveCertificate(ctx, c); err != nil {
			return fmt.Errorf("seed certificate %s: %w", c.ID, err)
		}
	}
	return nil
}

// IsNotFound reports whether err means a key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, domain.ErrCertificateNotFound)
}
