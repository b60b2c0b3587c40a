package guard

import (
	"strings"
	"testing"
)

func assertRejected(t *testing.T, sql string, errContains string) {
	t.Helper()
	err := Check(sql)
	if err == nil {
		t.Fatalf("expected error containing %q for SQL %q, got nil", errContains, sql)
	}
	if !strings.Contains(err.Error(), errContains) {
		t.Fatalf("expected error containing %q, got %q", errContains, err.Error())
	}
}

func assertAllowed(t *testing.T, sql string) {
	t.Helper()
	if err := Check(sql); err != nil {
		t.Fatalf("expected SQL to be allowed: %q, got error: %v", sql, err)
	}
}

func TestSelectAllowed(t *testing.T) {
	t.Parallel()
	assertAllowed(t, "SELECT 1")
	assertAllowed(t, "select id, name from users where id = 5")
	assertAllowed(t, "SELECT * FROM tasks ORDER BY created_at DESC LIMIT 20")
}

func TestCTEAllowed(t *testing.T) {
	t.Parallel()
	assertAllowed(t, "WITH recent AS (SELECT * FROM tasks) SELECT count(*) FROM recent")
	assertAllowed(t, "with a as (select 1 as n), b as (select 2 as n) select * from a union all select * from b")
}

func TestNonSelectRejected(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sql         string
		errContains string
	}{
		{"DELETE FROM t", "only SELECT queries are allowed"},
		{"INSERT INTO t VALUES (1)", "only SELECT queries are allowed"},
		{"UPDATE t SET x = 1", "only SELECT queries are allowed"},
		{"DROP TABLE t", "only SELECT queries are allowed"},
		{"TRUNCATE t", "only SELECT queries are allowed"},
		{"EXPLAIN SELECT 1", "only SELECT queries are allowed"},
		{"SHOW search_path", "only SELECT queries are allowed"},
		{"", "only SELECT queries are allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assertRejected(t, tt.sql, tt.errContains)
		})
	}
}

func TestEmbeddedWriteKeywordRejected(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sql         string
		errContains string
	}{
		{"WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", "DELETE statements are not allowed"},
		{"WITH i AS (INSERT INTO t VALUES (1) RETURNING *) SELECT * FROM i", "INSERT statements are not allowed"},
		{"SELECT 1; DROP TABLE users", "DROP statements are not allowed"},
		{"SELECT 1; GRANT ALL ON t TO hacker", "GRANT statements are not allowed"},
		{"select * from t where x = 1 ; truncate t", "TRUNCATE statements are not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assertRejected(t, tt.sql, tt.errContains)
		})
	}
}

func TestKeywordAsIdentifierAllowed(t *testing.T) {
	t.Parallel()
	// Standalone-token matching: keywords glued to punctuation or inside
	// identifiers must not trip the denylist.
	assertAllowed(t, "SELECT created_at, updated_at FROM audit_log")
	assertAllowed(t, "SELECT * FROM deployments WHERE deleted_at IS NULL")
}

func TestCommentSmuggling(t *testing.T) {
	t.Parallel()
	// A denylisted keyword inside a comment is invisible to validation,
	// and a SELECT hidden behind comments is still a SELECT.
	assertAllowed(t, "SELECT 1 -- DROP TABLE users")
	assertAllowed(t, "/* DELETE FROM t */ SELECT 1")
	assertAllowed(t, "-- leading comment\nSELECT 1")
	// Comments cannot be used to disguise a mutating statement.
	assertRejected(t, "/* harmless */ DELETE FROM t", "only SELECT queries are allowed")
	assertRejected(t, "-- note\nDROP TABLE t", "only SELECT queries are allowed")
}

func TestValidationIgnoresComments(t *testing.T) {
	t.Parallel()
	// Validation over a commented query must equal validation over the same
	// query with the comment spans removed.
	pairs := [][2]string{
		{"SELECT 1 -- trailing", "SELECT 1"},
		{"/* lead */ SELECT * FROM t", "SELECT * FROM t"},
		{"SELECT /* inline */ x FROM t", "SELECT  x FROM t"},
		{"DELETE FROM t -- whoops", "DELETE FROM t"},
	}
	for _, p := range pairs {
		gotErr := Validate(p[0])
		wantErr := Validate(p[1])
		if (gotErr == nil) != (wantErr == nil) {
			t.Errorf("validation of %q (err=%v) differs from %q (err=%v)", p[0], gotErr, p[1], wantErr)
		}
	}
}

func TestMultiStatementRejected(t *testing.T) {
	t.Parallel()
	assertRejected(t, "SELECT 1; SELECT 2", "multi-statement queries are not allowed: found 2 statements")
	assertRejected(t, "SELECT 1; SELECT 2; SELECT 3", "multi-statement queries are not allowed: found 3 statements")
	assertAllowed(t, "SELECT 1;")
}

func TestUnparsableRejected(t *testing.T) {
	t.Parallel()
	assertRejected(t, "SELECTX nonsense FROM", "SQL parse error")
}

func TestStripComments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1 -- comment", "SELECT 1"},
		{"SELECT 1 /* multi\nline */ + 2", "SELECT 1  + 2"},
		{"-- only a comment", ""},
		{"SELECT '--'", "SELECT '"}, // lexical, not a SQL parser: literals are not special
	}
	for _, tt := range tests {
		if got := StripComments(tt.in); got != tt.want {
			t.Errorf("StripComments(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
