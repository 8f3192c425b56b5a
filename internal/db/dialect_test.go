package db

import "testing"

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		query    string
		expected string
	}{
		{Postgres, "SELECT * FROM cards WHERE id = ? AND status = ?", "SELECT * FROM cards WHERE id = $1 AND status = $2"},
		{Postgres, "SELECT '?' FROM cards WHERE id = ?", "SELECT '?' FROM cards WHERE id = $1"},
		{SQLite, "SELECT * FROM cards WHERE id = ?", "SELECT * FROM cards WHERE id = ?"},
	}

	for _, tt := range tests {
		if got := tt.dialect.Rebind(tt.query); got != tt.expected {
			t.Errorf("%s Rebind(%q) = %q, want %q", tt.dialect.Name(), tt.query, got, tt.expected)
		}
	}
}

func TestDialectFor(t *testing.T) {
	if d, err := DialectFor("postgres"); err != nil || d != Postgres {
		t.Errorf("DialectFor(postgres) = %v, %v", d, err)
	}
	if d, err := DialectFor("sqlite"); err != nil || d != SQLite {
		t.Errorf("DialectFor(sqlite) = %v, %v", d, err)
	}
	if _, err := DialectFor("mysql"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestLockClause(t *testing.T) {
	if Postgres.LockClause() != " FOR UPDATE" {
		t.Errorf("unexpected postgres lock clause %q", Postgres.LockClause())
	}
	if SQLite.LockClause() != "" {
		t.Errorf("unexpected sqlite lock clause %q", SQLite.LockClause())
	}
}
