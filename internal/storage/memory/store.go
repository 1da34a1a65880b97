// Package memory provides the default in-process storage backend.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage"
)

// DefaultHistoryLimit caps the number of history entries kept.
const DefaultHistoryLimit = 1000

// Store is an in-memory implementation of storage.Provider. Nothing
// survives a restart.
type Store struct {
	mu           sync.RWMutex
	history      []*storage.HistoryEntry
	historyLimit int
	certs        map[string]*domain.Certificate
	results      map[string][]byte
}

var _ storage.Provider = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		historyLimit: DefaultHistoryLimit,
		certs:        make(map[string]*domain.Certificate),
		results:      make(map[string][]byte),
	}
}

// RecordURL appends url to the history, dropping the oldest entry once the
// limit is reached.
func (s *Store) RecordURL(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, &storage.HistoryEntry{
		ID:        uuid.NewString(),
		URL:       url,
		CreatedAt: time.Now().UTC(),
	})
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]*storage.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*storage.HistoryEntry, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		e := *s.history[i]
		out = append(out, &e)
	}
	return out, nil
}

func (s *Store) GetCertificate(ctx context.Context, id string) (*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.certs[id]
	if !ok {
		return nil, domain.ErrCertificateNotFound
	}
	return cloneCertificate(c), nil
}

func (s *Store) SaveCertificate(ctx context.Context, cert *domain.Certificate) error {
	if cert == nil || cert.ID == "" {
		return errors.New("certificate id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.ID] = cloneCertificate(cert)
	return nil
}

func (s *Store) DeleteCertificate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.certs[id]; !ok {
		return domain.ErrCertificateNotFound
	}
	delete(s.certs, id)
	return nil
}

func (s *Store) ListCertificates(ctx context.Context) ([]*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Certificate, 0, len(s.certs))
	for _, c := range s.certs {
		out = append(out, cloneCertificate(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveResult(ctx context.Context, result *domain.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ID] = body
	return nil
}

func (s *Store) GetResult(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.results[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return body, nil
}

func (s *Store) Close() error {
	return nil
}

func cloneCertificate(c *domain.Certificate) *domain.Certificate {
	cp := *c
	if c.Key != nil {
		key := *c.Key
		cp.Key = &key
	}
	return &cp
}
