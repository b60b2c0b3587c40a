// Package redact applies regex-based redaction to result field values
// before they leave the gateway, recursing into JSONB objects and arrays.
package redact

import (
	"fmt"
	"regexp"
)

// Rule replaces every match of Pattern with Replacement in string field
// values.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor applies a fixed rule set to result rows.
type Redactor struct {
	rules []compiledRule
}

// NewRedactor compiles the rules. Returns an error on an invalid pattern.
func NewRedactor(rules []Rule) (*Redactor, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact: invalid pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Redactor{rules: compiled}, nil
}

// HasRules reports whether any rules are configured.
func (r *Redactor) HasRules() bool {
	return len(r.rules) > 0
}

// ApplyRows redacts every field value of every row in place and returns the
// slice for chaining. Non-string scalars pass through untouched.
func (r *Redactor) ApplyRows(rows []map[string]any) []map[string]any {
	if !r.HasRules() {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = r.apply(v)
		}
	}
	return rows
}

func (r *Redactor) apply(v any) any {
	switch val := v.(type) {
	case string:
		out := val
		for _, rule := range r.rules {
			out = rule.pattern.ReplaceAllString(out, rule.replacement)
		}
		return out
	case map[string]any:
		for k, item := range val {
			val[k] = r.apply(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = r.apply(item)
		}
		return val
	default:
		return v
	}
}
