// Package guard validates SQL statements before they reach the database.
//
// Validation runs in two layers. The first is a conservative lexical gate:
// comments are stripped so comment-smuggled keywords cannot slip through,
// the statement must start with SELECT or WITH, and a fixed denylist of
// mutating keywords is rejected wherever one appears as a standalone token.
// The second layer parses the statement with PostgreSQL's actual parser
// (pg_query) and rejects anything that is not a single plain SELECT.
package guard

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// writeKeywords are rejected as standalone tokens anywhere in the cleaned
// statement. This catches mutating statements embedded after a leading WITH.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "EXECUTE", "COPY",
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// StripComments removes SQL line comments (-- ...) and block comments
// (/* ... */) from a statement.
func StripComments(sql string) string {
	sql = lineCommentRe.ReplaceAllString(sql, "")
	sql = blockCommentRe.ReplaceAllString(sql, "")
	return strings.TrimSpace(sql)
}

// Validate is the lexical gate. It classifies the statement without parsing
// it as SQL: false negatives (cleverly obfuscated mutating statements) are
// an accepted residual risk, backed by the AST layer in Check and by the
// read-only session setting on every pooled connection.
func Validate(sql string) error {
	clean := strings.ToUpper(StripComments(sql))
	if !strings.HasPrefix(clean, "SELECT") && !strings.HasPrefix(clean, "WITH") {
		return fmt.Errorf("only SELECT queries are allowed: start with SELECT or WITH (for CTEs)")
	}
	padded := " " + clean + " "
	for _, kw := range writeKeywords {
		if strings.Contains(padded, " "+kw+" ") || strings.HasPrefix(clean, kw+" ") {
			return fmt.Errorf("%s statements are not allowed: this is a read-only connection", kw)
		}
	}
	return nil
}

// Check runs the lexical gate, then parses the statement with pg_query and
// rejects multi-statement input and anything that is not a plain SELECT.
func Check(sql string) error {
	if err := Validate(sql); err != nil {
		return err
	}

	result, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("SQL parse error: %w", err)
	}
	if len(result.Stmts) == 0 {
		return fmt.Errorf("SQL parse error: empty query")
	}
	if len(result.Stmts) > 1 {
		return fmt.Errorf("multi-statement queries are not allowed: found %d statements", len(result.Stmts))
	}
	if _, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt); !ok {
		return fmt.Errorf("only SELECT statements are allowed")
	}
	return nil
}
