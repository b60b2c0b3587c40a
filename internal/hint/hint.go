// Package hint annotates database error messages with remediation guidance
// for the calling agent. Hints are advisory text appended to the message,
// never part of the error's identity.
package hint

import (
	"fmt"
	"regexp"
)

// Rule maps an error-message pattern to a guidance message. Patterns are
// matched case-insensitively.
type Rule struct {
	Pattern string
	Message string
}

// DefaultRules covers the common failure modes of agent-written SQL.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `relation`, Message: "Table not found. Use get_schema to see available tables."},
		{Pattern: `column`, Message: "Column not found. Use get_schema with a table filter to see its columns."},
		{Pattern: `permission denied`, Message: "Permission denied. This is a read-only connection."},
		{Pattern: `syntax error`, Message: "SQL syntax error. Check your query syntax."},
		{Pattern: `canceling statement`, Message: "Query timeout. Add more specific WHERE conditions or LIMIT."},
	}
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher checks error messages against rules, first match wins.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the rules. Returns an error on an invalid pattern.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("hint: invalid pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Match returns the guidance message of the first matching rule, or "" when
// no rule matches.
func (m *Matcher) Match(errMsg string) string {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			return rule.message
		}
	}
	return ""
}

// Annotate appends the matched hint to the error message. When no rule
// matches, the message is returned unchanged.
func (m *Matcher) Annotate(errMsg string) string {
	hint := m.Match(errMsg)
	if hint == "" {
		return errMsg
	}
	return errMsg + "\n\nHint: " + hint
}
