package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage"
	"github.com/tjfontaine/polyglot-request-logic/internal/storage/dialect"
)

// Store is a SQL implementation of storage.Provider that supports multiple
// database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ storage.Provider = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name() == string(dialect.SQLite) {
		// In-memory databases exist per connection.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range d.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	store := &Store{db: db, dialect: d}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a SQLite store at path.
func NewSQLite(path string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: path})
}

// NewPostgres creates a PostgreSQL store using the pgx driver.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "pgx", DSN: dsn})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS history (
id TEXT PRIMARY KEY,
url TEXT NOT NULL,
created_at %s NOT NULL
)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS certificates (
id TEXT PRIMARY KEY,
type TEXT NOT NULL,
cert_data TEXT NOT NULL,
cert_passphrase TEXT NOT NULL DEFAULT '',
key_data TEXT,
key_passphrase TEXT,
updated_at %s NOT NULL
)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS results (
id TEXT PRIMARY KEY,
is_error %s NOT NULL,
body TEXT NOT NULL,
created_at %s NOT NULL
)`, s.dialect.BooleanType(), ts),
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordURL appends url to the history.
func (s *Store) RecordURL(ctx context.Context, url string) error {
	query := s.dialect.Rebind(`INSERT INTO history (id, url, created_at) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), url, time.Now().UTC()); err != nil {
		return fmt.Errorf("record url: %w", err)
	}
	return nil
}

type historyRow struct {
	ID        string    `db:"id"`
	URL       string    `db:"url"`
	CreatedAt time.Time `db:"created_at"`
}

// ListHistory returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]*storage.HistoryEntry, error) {
	query := `SELECT id, url, created_at FROM history ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	out := make([]*storage.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = &storage.HistoryEntry{ID: r.ID, URL: r.URL, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

type certificateRow struct {
	ID             string         `db:"id"`
	Type           string         `db:"type"`
	CertData       string         `db:"cert_data"`
	CertPassphrase string         `db:"cert_passphrase"`
	KeyData        sql.NullString `db:"key_data"`
	KeyPassphrase  sql.NullString `db:"key_passphrase"`
}

// GetCertificate returns the certificate stored under id.
func (s *Store) GetCertificate(ctx context.Context, id string) (*domain.Certificate, error) {
	query := s.dialect.Rebind(`SELECT id, type, cert_data, cert_passphrase, key_data, key_passphrase
FROM certificates WHERE id = ?`)

	var row certificateRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}

	return row.certificate(), nil
}

func (r certificateRow) certificate() *domain.Certificate {
	cert := &domain.Certificate{
		ID:   r.ID,
		Type: r.Type,
		Cert: domain.CertificateData{Data: r.CertData, Passphrase: r.CertPassphrase},
	}
	if r.KeyData.Valid {
		cert.Key = &domain.CertificateData{Data: r.KeyData.String, Passphrase: r.KeyPassphrase.String}
	}
	return cert
}

// ListCertificates returns every certificate ordered by id.
func (s *Store) ListCertificates(ctx context.Context) ([]*domain.Certificate, error) {
	var rows []certificateRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, type, cert_data, cert_passphrase, key_data, key_passphrase
FROM certificates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}

	out := make([]*domain.Certificate, len(rows))
	for i, r := range rows {
		out[i] = r.certificate()
	}
	return out, nil
}

// SaveCertificate inserts or replaces cert.
func (s *Store) SaveCertificate(ctx context.Context, cert *domain.Certificate) error {
	if cert == nil || cert.ID == "" {
		return errors.New("certificate id is required")
	}

	var keyData, keyPassphrase sql.NullString
	if cert.Key != nil {
		keyData = sql.NullString{String: cert.Key.Data, Valid: true}
		keyPassphrase = sql.NullString{String: cert.Key.Passphrase, Valid: true}
	}

	query := s.dialect.Rebind(`INSERT INTO certificates
(id, type, cert_data, cert_passphrase, key_data, key_passphrase, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?) ` + s.dialect.UpsertClause("id",
		[]string{"type", "cert_data", "cert_passphrase", "key_data", "key_passphrase", "updated_at"}))

	_, err := s.db.ExecContext(ctx, query,
		cert.ID, cert.Type, cert.Cert.Data, cert.Cert.Passphrase, keyData, keyPassphrase, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

// DeleteCertificate removes the certificate stored under id.
func (s *Store) DeleteCertificate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM certificates WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

// SaveResult stores the encoded result, replacing an earlier one for the
// same id.
func (s *Store) SaveResult(ctx context.Context, result *domain.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := s.dialect.Rebind(`INSERT INTO results (id, is_error, body, created_at) VALUES (?, ?, ?, ?) ` +
		s.dialect.UpsertClause("id", []string{"is_error", "body", "created_at"}))
	if _, err := s.db.ExecContext(ctx, query, result.ID, result.IsError, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// GetResult returns the encoded result for id.
func (s *Store) GetResult(ctx context.Context, id string) ([]byte, error) {
	var body string
	err := s.db.GetContext(ctx, &body, s.dialect.Rebind(`SELECT body FROM results WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return []byte(body), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
