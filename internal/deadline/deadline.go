// Package deadline resolves the per-statement execution deadline for a
// query, with regex rules that override the default for matching SQL.
package deadline

import (
	"fmt"
	"regexp"
	"time"
)

// Rule overrides the default deadline for SQL matching Pattern.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Resolver maps a SQL text to its statement deadline.
type Resolver struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewResolver compiles the rules. Returns an error on an invalid pattern.
func NewResolver(defaultTimeout time.Duration, rules []Rule) (*Resolver, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("deadline: invalid pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Resolver{rules: compiled, defaultTimeout: defaultTimeout}, nil
}

// Resolve returns the deadline for the given SQL and the pattern of the rule
// that matched ("" for the default). First matching rule wins.
func (r *Resolver) Resolve(sql string) (time.Duration, string) {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return r.defaultTimeout, ""
}
