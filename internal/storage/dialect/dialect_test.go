package dialect

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantDriver  string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "pgx", false},
		{"mysql", DialectType("mysql"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantErr    bool
	}{
		{"sqlite", "sqlite", false},
		{"SQLite3", "sqlite", false},
		{"postgres", "postgres", false},
		{"postgresql", "postgres", false},
		{"pgx", "postgres", false},
		{"unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		query   string
		want    string
	}{
		{sqliteDialect{}, "SELECT * FROM history WHERE id = ? AND url = ?", "SELECT * FROM history WHERE id = ? AND url = ?"},
		{postgresDialect{}, "SELECT * FROM history WHERE id = ?", "SELECT * FROM history WHERE id = $1"},
		{postgresDialect{}, "INSERT INTO results VALUES (?, ?, ?)", "INSERT INTO results VALUES ($1, $2, $3)"},
		{postgresDialect{}, "SELECT '?' FROM results WHERE id = ?", "SELECT '?' FROM results WHERE id = $1"},
		{postgresDialect{}, "SELECT * FROM results", "SELECT * FROM results"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name()+"/"+tt.query, func(t *testing.T) {
			if got := tt.dialect.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpsertClause(t *testing.T) {
	tests := []struct {
		dialect Dialect
		columns []string
		want    string
	}{
		{sqliteDialect{}, nil, "ON CONFLICT (id) DO NOTHING"},
		{sqliteDialect{}, []string{"body", "updated_at"}, "ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at"},
		{postgresDialect{}, []string{"body"}, "ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body"},
	}

	for _, tt := range tests {
		if got := tt.dialect.UpsertClause("id", tt.columns); got != tt.want {
			t.Errorf("%s UpsertClause() = %v, want %v", tt.dialect.Name(), got, tt.want)
		}
	}
}

func TestInitStatements(t *testing.T) {
	if len(sqliteDialect{}.InitStatements()) == 0 {
		t.Error("sqlite should configure pragmas")
	}
	if len(postgresDialect{}.InitStatements()) != 0 {
		t.Error("postgres needs no init statements")
	}
}
