// Package dialect hides the SQL differences between the supported databases.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres").
	Name() string

	// DriverName returns the database/sql driver registered for the dialect.
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	Rebind(query string) string

	// BooleanType returns the SQL type for boolean values.
	BooleanType() string

	// TimestampType returns the SQL type for timestamps.
	TimestampType() string

	// UpsertClause returns the ON CONFLICT clause replacing updateColumns.
	UpsertClause(conflictColumn string, updateColumns []string) string

	// InitStatements run once after the connection is opened.
	InitStatements() []string
}

// DialectType names a supported database.
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
)

// New creates the Dialect for dialectType.
func New(dialectType DialectType) (Dialect, error) {
	switch dialectType {
	case SQLite:
		return sqliteDialect{}, nil
	case Postgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialectType)
	}
}

// FromDriverName returns the dialect for a configured driver name.
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

// upsert renders "ON CONFLICT (col) DO UPDATE SET ..." using the given
// reference to the proposed row.
func upsert(conflictColumn string, updateColumns []string, excluded string) string {
	if len(updateColumns) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", conflictColumn)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = %s.%s", col, excluded, col)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflictColumn, strings.Join(updates, ", "))
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return string(SQLite) }
func (sqliteDialect) DriverName() string         { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return query }
func (sqliteDialect) BooleanType() string        { return "INTEGER" }
func (sqliteDialect) TimestampType() string      { return "TIMESTAMP" }

func (sqliteDialect) UpsertClause(conflictColumn string, updateColumns []string) string {
	return upsert(conflictColumn, updateColumns, "excluded")
}

func (sqliteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string          { return string(Postgres) }
func (postgresDialect) DriverName() string    { return "pgx" }
func (postgresDialect) BooleanType() string   { return "BOOLEAN" }
func (postgresDialect) TimestampType() string { return "TIMESTAMP WITH TIME ZONE" }

// Rebind numbers placeholders as $1, $2 and so on. Question marks inside
// single-quoted literals are left alone.
func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	idx := 1
	quoted := false
	for _, ch := range query {
		switch {
		case ch == '\'':
			quoted = !quoted
			b.WriteRune(ch)
		case ch == '?' && !quoted:
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(idx))
			idx++
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func (postgresDialect) UpsertClause(conflictColumn string, updateColumns []string) string {
	return upsert(conflictColumn, updateColumns, "EXCLUDED")
}

func (postgresDialect) InitStatements() []string { return nil }
