package agentpg

import (
	"github.com/helmdb/agentpg/internal/shape"
)

// QueryInput is the input for the Query gateway call.
type QueryInput struct {
	// SQL is the query text. Must be a single read-only statement.
	SQL string `json:"query"`
	// Format selects the serialization: "toon" (compact, default for the
	// MCP tool) or "json".
	Format string `json:"format"`
	// IncludeStats adds per-column statistics over the shaped rows.
	IncludeStats bool `json:"include_stats"`
	// Limit appends a LIMIT clause when the query has none. Capped at
	// QueryConfig.MaxLimit. Zero means no rewrite.
	Limit int `json:"limit"`
	// FullOutput disables all truncation and the LIMIT rewrite.
	FullOutput bool `json:"full_output"`
	// UserEmail overrides the ambient caller identity for row-level
	// security. Empty falls back to the request context.
	UserEmail string `json:"user_email,omitempty"`
}

// ResultMeta describes one query execution and what shaping did to it.
type ResultMeta struct {
	QueryTimeMS float64 `json:"query_time_ms"`
	shape.Meta
	Columns map[string]shape.ColumnStats `json:"columns,omitempty"`
}

// QueryOutput is the result envelope. Exactly one shape is ever returned:
// Data (TOON) or Rows (JSON) with Meta on success, or Error on failure.
// A zero-row JSON result still serializes the rows key as an empty array;
// only the nil slice of a non-JSON envelope omits it.
// All failures, including validation rejections and statement timeouts, land
// in Error; callers never see a Go error from Query.
type QueryOutput struct {
	Data  string           `json:"data,omitempty"`
	Rows  []map[string]any `json:"rows,omitzero"`
	Meta  *ResultMeta      `json:"meta,omitempty"`
	Error string           `json:"error,omitempty"`
}

// GetSchemaInput is the input for the GetSchema tool.
type GetSchemaInput struct {
	Schema  string `json:"schema"`
	Table   string `json:"table"`
	Compact bool   `json:"compact"`
}

// SchemaMeta summarizes a schema rendering.
type SchemaMeta struct {
	Tables  int `json:"tables"`
	Columns int `json:"columns"`
}

// ColumnSchema describes one column in the non-compact schema output.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
	PK   bool   `json:"pk,omitempty"`
	FK   string `json:"fk,omitempty"`
}

// TableSchema describes one table in the non-compact schema output.
type TableSchema struct {
	Schema  string         `json:"schema"`
	Table   string         `json:"table"`
	Columns []ColumnSchema `json:"columns"`
}

// SchemaOutput is the output of the GetSchema tool. Compact mode fills
// Schema with a markdown-ish rendering; otherwise Tables carries the full
// structure.
type SchemaOutput struct {
	Schema string        `json:"schema,omitempty"`
	Tables []TableSchema `json:"tables,omitempty"`
	Meta   *SchemaMeta   `json:"meta,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// DescribeTableInput is the input for the DescribeTable tool.
type DescribeTableInput struct {
	Schema     string `json:"schema"`
	Table      string `json:"table"`
	SampleRows int    `json:"sample_rows"`
}

// DescribeTableOutput combines schema, sample rows, and statistics for one
// table.
type DescribeTableOutput struct {
	Table       string                       `json:"table,omitempty"`
	TotalRows   any                          `json:"total_rows,omitempty"`
	Columns     string                       `json:"columns,omitempty"`
	Sample      []map[string]any             `json:"sample,omitempty"`
	ColumnStats map[string]shape.ColumnStats `json:"column_stats,omitempty"`
	QueryTips   []string                     `json:"query_tips,omitempty"`
	Error       string                       `json:"error,omitempty"`
}

// SearchMessagesInput filters the message search. All text filters are
// case-insensitive partial matches except FromEmail (exact).
type SearchMessagesInput struct {
	Subject    string `json:"subject"`
	FromEmail  string `json:"from_email"`
	SearchText string `json:"search_text"`
	Label      string `json:"label"`
	Limit      int    `json:"limit"`
}

// SearchTasksInput filters the task search.
type SearchTasksInput struct {
	ProjectName   string `json:"project_name"`
	Status        string `json:"status"`
	AssigneeEmail string `json:"assignee_email"`
	SearchText    string `json:"search_text"`
	Tag           string `json:"tag"`
	OverdueOnly   bool   `json:"overdue_only"`
	Limit         int    `json:"limit"`
}

// ProjectInput selects a project by id or by name (case-insensitive partial
// match). Exactly one must be set.
type ProjectInput struct {
	ProjectID   int    `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// DashboardOutput aggregates recent activity for one project.
type DashboardOutput struct {
	Project        map[string]any   `json:"project,omitempty"`
	RecentActivity []map[string]any `json:"recent_activity,omitempty"`
	RecentTasks    []map[string]any `json:"recent_tasks,omitempty"`
	RecentEmails   []map[string]any `json:"recent_emails,omitempty"`
	RecentFiles    []map[string]any `json:"recent_files,omitempty"`
	KeyContacts    []map[string]any `json:"key_contacts,omitempty"`
	Error          string           `json:"error,omitempty"`
}
