package agentpg

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool       PoolConfig       `json:"pool"`
	Query      QueryConfig      `json:"query"`
	Truncation TruncationConfig `json:"truncation"`
	Sandbox    SandboxConfig    `json:"sandbox"`
	Hints      []HintRule       `json:"hints"`
	Redaction  []RedactionRule  `json:"redaction"`

	// Schemas lists the schemas the schema and search tools may touch.
	// Empty means the product defaults (public, teamwork, missive).
	Schemas []string `json:"schemas"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Auth       AuthConfig       `json:"auth"`
}

// ConnectionConfig holds database connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`
}

// PoolConfig holds connection pool settings. Zero values fall back to a
// small pool (min 1, max 5) suitable for a single-agent deployment.
type PoolConfig struct {
	MaxConns int `json:"max_conns"`
	MinConns int `json:"min_conns"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// AuthConfig holds the credential settings for the HTTP boundary.
// All-empty disables authentication (local development).
type AuthConfig struct {
	// BearerTokens is a comma-separated list of token:client pairs.
	BearerTokens string `json:"bearer_tokens"`
	// JWTSecret enables HS256 JWT verification when non-empty.
	JWTSecret string `json:"jwt_secret"`
	// Audience is the required JWT audience claim (default "authenticated").
	Audience string `json:"audience"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds int            `json:"default_timeout_seconds"`
	SchemaTimeoutSeconds  int            `json:"schema_timeout_seconds"`
	MaxSQLLength          int            `json:"max_sql_length"`
	MaxLimit              int            `json:"max_limit"`
	DeadlineRules         []DeadlineRule `json:"deadline_rules"`
}

// TruncationConfig bounds response size. Zero values fall back to the stock
// budget: 8000 chars per response, 200 per cell, 80-char cell previews,
// 3-row minimum preview windows.
type TruncationConfig struct {
	MaxResponseChars  int `json:"max_response_chars"`
	MaxCellChars      int `json:"max_cell_chars"`
	CellPreviewChars  int `json:"cell_preview_chars"`
	MinRowsForPreview int `json:"min_rows_for_preview"`
}

// SandboxConfig bounds run_code executions.
type SandboxConfig struct {
	MaxQueries             int `json:"max_queries"`
	DefaultTimeoutSeconds  int `json:"default_timeout_seconds"`
	MaxTimeoutSeconds      int `json:"max_timeout_seconds"`
	PrefetchTimeoutSeconds int `json:"prefetch_timeout_seconds"`
}

// DeadlineRule maps a SQL pattern to a specific statement timeout.
type DeadlineRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// HintRule maps an error message pattern to a remediation hint.
type HintRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// RedactionRule defines a regex-based field redaction rule.
type RedactionRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}
