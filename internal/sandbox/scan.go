package sandbox

import (
	"regexp"
	"strings"
)

// dbQuery call sites are extracted from the source text before execution so
// the queries can be validated and fetched up front. Only string literals
// are recognized; a dynamically built query never reaches the database.
var dbQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile("dbQuery\\s*\\(\\s*`([\\s\\S]+?)`\\s*\\)"),
	regexp.MustCompile(`dbQuery\s*\(\s*"([^"]+)"\s*\)`),
	regexp.MustCompile(`dbQuery\s*\(\s*'([^']+)'\s*\)`),
}

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\s`),
	regexp.MustCompile(`\brequire\s*\(`),
}

// normalizeQuery collapses whitespace so a literal split across lines maps
// to the same cache key as its single-line form.
func normalizeQuery(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// extractQueries returns the distinct normalized dbQuery literals in source
// order of first appearance.
func extractQueries(code string) []string {
	seen := map[string]bool{}
	var queries []string
	for _, pattern := range dbQueryPatterns {
		for _, m := range pattern.FindAllStringSubmatch(code, -1) {
			q := normalizeQuery(m[1])
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			queries = append(queries, q)
		}
	}
	return queries
}

// usesModules reports whether the code tries to import or require modules.
func usesModules(code string) bool {
	for _, pattern := range importPatterns {
		if pattern.MatchString(code) {
			return true
		}
	}
	return false
}
