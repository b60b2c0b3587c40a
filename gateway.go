package agentpg

import (
	"context"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/helmdb/agentpg/internal/deadline"
	"github.com/helmdb/agentpg/internal/guard"
	"github.com/helmdb/agentpg/internal/hint"
	"github.com/helmdb/agentpg/internal/identity"
	"github.com/helmdb/agentpg/internal/redact"
	"github.com/helmdb/agentpg/internal/shape"
)

// Gateway is the single choke point for database access. Every tool call,
// including sandbox query prefetches, routes through it. All exported
// methods are safe for concurrent use from multiple goroutines.
type Gateway struct {
	config     Config
	connString string
	logger     zerolog.Logger
	hints      *hint.Matcher
	redactor   *redact.Redactor
	deadlines  *deadline.Resolver
	shaper     shape.Config
	semaphore  chan struct{}

	// The pool is created lazily on first use and lives for the process
	// lifetime.
	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New creates a Gateway. connString is the PostgreSQL connection string
// (must include credentials). No connection is made until the first query.
// Panics on invalid config. Returns error only for runtime failures.
func New(connString string, config Config, logger zerolog.Logger) (*Gateway, error) {
	if connString == "" {
		panic("agentpg: connString must be non-empty")
	}
	if config.Pool.MaxConns < 0 || config.Pool.MinConns < 0 {
		panic("agentpg: pool sizes must be >= 0")
	}
	if config.Pool.MaxConns == 0 {
		config.Pool.MaxConns = 5
	}
	if config.Pool.MinConns == 0 {
		config.Pool.MinConns = 1
	}
	if config.Pool.MinConns > config.Pool.MaxConns {
		panic("agentpg: pool.min_conns must be <= pool.max_conns")
	}
	if config.Query.DefaultTimeoutSeconds < 0 {
		panic("agentpg: query.default_timeout_seconds must be >= 0")
	}
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query.DefaultTimeoutSeconds = 30
	}
	if config.Query.SchemaTimeoutSeconds == 0 {
		config.Query.SchemaTimeoutSeconds = 10
	}
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxLimit == 0 {
		config.Query.MaxLimit = 1000
	}
	if len(config.Schemas) == 0 {
		config.Schemas = []string{"public", "teamwork", "missive"}
	}

	hintRules := hint.DefaultRules()
	for _, r := range config.Hints {
		hintRules = append(hintRules, hint.Rule{Pattern: r.Pattern, Message: r.Message})
	}
	hints, err := hint.NewMatcher(hintRules)
	if err != nil {
		panic(fmt.Sprintf("agentpg: %v", err))
	}

	redactRules := make([]redact.Rule, len(config.Redaction))
	for i, r := range config.Redaction {
		redactRules[i] = redact.Rule{Pattern: r.Pattern, Replacement: r.Replacement}
	}
	redactor, err := redact.NewRedactor(redactRules)
	if err != nil {
		panic(fmt.Sprintf("agentpg: %v", err))
	}

	deadlineRules := make([]deadline.Rule, len(config.Query.DeadlineRules))
	for i, r := range config.Query.DeadlineRules {
		if r.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("agentpg: deadline_rule with pattern %q has timeout_seconds <= 0", r.Pattern))
		}
		deadlineRules[i] = deadline.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	deadlines, err := deadline.NewResolver(
		time.Duration(config.Query.DefaultTimeoutSeconds)*time.Second, deadlineRules)
	if err != nil {
		panic(fmt.Sprintf("agentpg: %v", err))
	}

	shaper := shape.Config{
		MaxResponseChars:  config.Truncation.MaxResponseChars,
		MaxCellChars:      config.Truncation.MaxCellChars,
		CellPreviewChars:  config.Truncation.CellPreviewChars,
		MinRowsForPreview: config.Truncation.MinRowsForPreview,
	}
	def := shape.DefaultConfig()
	if shaper.MaxResponseChars == 0 {
		shaper.MaxResponseChars = def.MaxResponseChars
	}
	if shaper.MaxCellChars == 0 {
		shaper.MaxCellChars = def.MaxCellChars
	}
	if shaper.CellPreviewChars == 0 {
		shaper.CellPreviewChars = def.CellPreviewChars
	}
	if shaper.MinRowsForPreview == 0 {
		shaper.MinRowsForPreview = def.MinRowsForPreview
	}

	return &Gateway{
		config:     config,
		connString: connString,
		logger:     logger,
		hints:      hints,
		redactor:   redactor,
		deadlines:  deadlines,
		shaper:     shaper,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
	}, nil
}

// getPool returns the shared pool, creating it on first use.
func (g *Gateway) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		return g.pool, nil
	}

	poolConfig, err := pgxpool.ParseConfig(g.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(g.config.Pool.MaxConns)
	poolConfig.MinConns = int32(g.config.Pool.MinConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	// Database-level defense in depth: even if a statement slipped past
	// validation, the session refuses writes.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
			return fmt.Errorf("failed to SET default_transaction_read_only: %w", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	g.logger.Info().
		Int("max_conns", g.config.Pool.MaxConns).
		Int("min_conns", g.config.Pool.MinConns).
		Msg("connection pool created")
	g.pool = pool
	return pool, nil
}

// Ping verifies database connectivity, creating the pool if needed.
func (g *Gateway) Ping(ctx context.Context) error {
	pool, err := g.getPool(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Close closes the connection pool if one was created. Accepts context for
// API forward-compatibility; pgxpool.Pool.Close() has no context support.
func (g *Gateway) Close(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		g.pool.Close()
		g.pool = nil
	}
}

// Query executes the full gateway pipeline: validate, LIMIT rewrite,
// identity resolution, pooled execution under a statement deadline with the
// row-level-security parameter set, redaction, shaping, and serialization.
// All failures are converted to output.Error with a remediation hint
// appended, so callers only ever check output.Error.
func (g *Gateway) Query(ctx context.Context, input QueryInput) *QueryOutput {
	sql := input.SQL

	if len(sql) > g.config.Query.MaxSQLLength {
		return g.fail(fmt.Errorf("SQL query too long: %d bytes exceeds maximum of %d bytes",
			len(sql), g.config.Query.MaxSQLLength))
	}
	if err := guard.Check(sql); err != nil {
		return g.fail(err)
	}

	sql = applyLimit(sql, input.Limit, input.FullOutput, g.config.Query.MaxLimit)

	email := input.UserEmail
	if email == "" {
		email, _ = identity.Email(ctx)
	}

	timeout, timeoutRule := g.deadlines.Resolve(sql)

	started := time.Now()
	rows, columns, err := g.fetchRows(ctx, sql, timeout, email)
	if err != nil {
		return g.fail(err)
	}
	queryTime := time.Since(started)

	rows = g.redactor.ApplyRows(rows)
	shaped, truncMeta := g.shaper.SmartTruncate(rows, input.FullOutput)

	meta := &ResultMeta{
		QueryTimeMS: math.Round(float64(queryTime.Microseconds())/10) / 100,
		Meta:        truncMeta,
	}
	if input.IncludeStats && len(shaped) > 0 {
		meta.Columns = shape.ComputeColumnStats(shaped, columns)
	}

	logEvent := g.logger.Info().
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", queryTime).
		Int("row_count", truncMeta.TotalRows).
		Int("rows_shown", truncMeta.RowsShown)
	if timeoutRule != "" {
		logEvent = logEvent.Str("deadline_rule", timeoutRule)
	}
	if g.redactor.HasRules() {
		logEvent = logEvent.Bool("redacted", true)
	}
	if email != "" {
		logEvent = logEvent.Str("user_email", email)
	}
	logEvent.Msg("query executed")

	if input.Format == "toon" {
		return &QueryOutput{Data: shape.ToTOON(shaped, columns), Meta: meta}
	}
	return &QueryOutput{Rows: shaped, Meta: meta}
}

// QueryRows is the sandbox prefetch path: validated execution under the
// shorter sandbox deadline, returning raw converted rows without shaping.
func (g *Gateway) QueryRows(ctx context.Context, sql string) ([]map[string]any, error) {
	if err := guard.Check(sql); err != nil {
		return nil, err
	}
	timeout := time.Duration(g.config.Sandbox.PrefetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	email, _ := identity.Email(ctx)
	rows, _, err := g.fetchRows(ctx, sql, timeout, email)
	if err != nil {
		return nil, err
	}
	return g.redactor.ApplyRows(rows), nil
}

// runSelect executes an internally assembled SELECT under the schema-tool
// deadline. It still passes the validator: internal SQL gets no bypass.
func (g *Gateway) runSelect(ctx context.Context, sql string) ([]map[string]any, []string, error) {
	if err := guard.Check(sql); err != nil {
		return nil, nil, err
	}
	timeout := time.Duration(g.config.Query.SchemaTimeoutSeconds) * time.Second
	email, _ := identity.Email(ctx)
	return g.fetchRows(ctx, sql, timeout, email)
}

// fetchRows acquires one pooled connection and executes sql inside a
// transaction with SET LOCAL statement_timeout and the transaction-scoped
// row-level-security parameter. The transaction is always rolled back:
// every statement reaching this point is read-only.
func (g *Gateway) fetchRows(ctx context.Context, sql string, timeout time.Duration, email string) ([]map[string]any, []string, error) {
	select {
	case g.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w",
			cap(g.semaphore), ctx.Err())
	}
	defer func() { <-g.semaphore }()

	pool, err := g.getPool(ctx)
	if err != nil {
		return nil, nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := pool.Acquire(queryCtx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(queryCtx)
	if err != nil {
		return nil, nil, err
	}
	// Rollback uses the parent ctx: if the query timed out, queryCtx is
	// already cancelled and rollback would fail.
	defer tx.Rollback(ctx)

	// SET cannot take bind parameters; the value is a computed integer.
	if _, err := tx.Exec(queryCtx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return nil, nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}
	if email != "" {
		// Transaction-scoped (is_local=true): cannot leak to another
		// request reusing the same physical connection.
		if _, err := tx.Exec(queryCtx, "SELECT set_config('app.user_email', $1, true)", email); err != nil {
			return nil, nil, fmt.Errorf("failed to set RLS context: %w", err)
		}
	}

	rows, err := tx.Query(queryCtx, sql)
	if err != nil {
		return nil, nil, err
	}
	return collectRows(rows)
}

// collectRows reads all rows, converting every value to a JSON-safe form,
// and returns them with the ordered column names.
func collectRows(rows pgx.Rows) ([]map[string]any, []string, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return result, columns, nil
}

// convertValue converts a pgx-returned value to a JSON-friendly Go type.
// Binary data is replaced with a size placeholder rather than encoded.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case netip.Prefix:
		return val.String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(val))
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = convertValue(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = convertValue(item)
		}
		return result
	default:
		return val
	}
}

func convertFloat(f float64) any {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

// applyLimit appends a LIMIT clause when the query has none, an explicit
// limit was supplied, and full output was not requested. A purely textual
// rewrite; it does not parse the SQL.
func applyLimit(sql string, limit int, fullOutput bool, maxLimit int) string {
	if fullOutput || limit <= 0 {
		return sql
	}
	if strings.Contains(strings.ToUpper(sql), "LIMIT") {
		return sql
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}

// fail converts any error into a QueryOutput with an error message,
// augmented by a keyword-matched remediation hint.
func (g *Gateway) fail(err error) *QueryOutput {
	g.logger.Error().Err(err).Msg("query error")
	return &QueryOutput{Error: g.hints.Annotate(err.Error())}
}

// truncateForLog truncates a string for log output to avoid oversized log
// entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
