package ports

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
)

// ErrNotFound is returned by stores for unknown keys.
var ErrNotFound = errors.New("not found")

// HistoryEntry is a URL recorded after a submission.
type HistoryEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists URL history.
type HistoryStore interface {
	HistoryRecorder

	// ListHistory returns the most recent entries first.
	ListHistory(ctx context.Context, limit int) ([]*HistoryEntry, error)
}

// CertificateRepository stores client certificates.
type CertificateRepository interface {
	CertificateStore

	SaveCertificate(ctx context.Context, cert *domain.Certificate) error
	DeleteCertificate(ctx context.Context, id string) error

	// ListCertificates returns every stored certificate ordered by id.
	ListCertificates(ctx context.Context) ([]*domain.Certificate, error)
}

// ResultStore keeps terminal results for later lookup.
type ResultStore interface {
	SaveResult(ctx context.Context, result *domain.Result) error

	// GetResult returns the encoded result for id, or an error when absent.
	GetResult(ctx context.Context, id string) ([]byte, error)
}

// StorageProvider manages all storage operations.
// Implementations: memory (default), SQLite, PostgreSQL.
type StorageProvider interface {
	HistoryStore
	CertificateRepository
	ResultStore

	Close() error
}
