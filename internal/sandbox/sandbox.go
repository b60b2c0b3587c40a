// Package sandbox executes short agent-supplied JavaScript programs against
// pre-fetched query results. Each run gets a fresh interpreter with a fixed
// set of host bindings, a hard wall-clock deadline, and no access to the
// filesystem, network, or module system.
//
// Database access works by pre-extraction: dbQuery("...") string literals
// are scanned out of the source, validated, and executed before the program
// starts. At runtime dbQuery only serves from that cache, so user code can
// never compose SQL dynamically.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// QueryRunner executes a validated read-only query and returns its rows.
type QueryRunner interface {
	QueryRows(ctx context.Context, sql string) ([]map[string]any, error)
}

// Config bounds a sandbox run.
type Config struct {
	// MaxQueries caps the number of distinct dbQuery literals per run.
	MaxQueries int
	// DefaultTimeoutSeconds applies when the caller does not pass one.
	DefaultTimeoutSeconds int
	// MaxTimeoutSeconds is the ceiling a caller-supplied timeout is
	// clamped to. The floor is 1 second.
	MaxTimeoutSeconds int
}

// DefaultConfig returns the standard sandbox bounds.
func DefaultConfig() Config {
	return Config{
		MaxQueries:            10,
		DefaultTimeoutSeconds: 10,
		MaxTimeoutSeconds:     30,
	}
}

// Input is one sandbox run request.
type Input struct {
	Code           string
	TimeoutSeconds int
}

// Output is the result envelope of a run. Exactly one of Result and Error is
// meaningful; Output carries whatever the program printed either way.
type Output struct {
	Result any    `json:"result,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Engine runs sandboxed programs against a query runner.
type Engine struct {
	runner QueryRunner
	config Config
	logger zerolog.Logger
}

// NewEngine creates an Engine. Zero config fields fall back to defaults.
func NewEngine(runner QueryRunner, config Config, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if config.MaxQueries <= 0 {
		config.MaxQueries = def.MaxQueries
	}
	if config.DefaultTimeoutSeconds <= 0 {
		config.DefaultTimeoutSeconds = def.DefaultTimeoutSeconds
	}
	if config.MaxTimeoutSeconds <= 0 {
		config.MaxTimeoutSeconds = def.MaxTimeoutSeconds
	}
	return &Engine{runner: runner, config: config, logger: logger}
}

func (e *Engine) timeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = e.config.DefaultTimeoutSeconds
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > e.config.MaxTimeoutSeconds {
		seconds = e.config.MaxTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// Run executes one program. Failures are reported in Output.Error rather
// than as a Go error; the error return is reserved for internal faults.
func (e *Engine) Run(ctx context.Context, input Input) (*Output, error) {
	started := time.Now()
	out := e.run(ctx, input)
	event := e.logger.Info()
	if out.Error != "" {
		event = e.logger.Warn().Str("error", out.Error)
	}
	event.
		Int("code_length", len(input.Code)).
		Dur("elapsed", time.Since(started)).
		Msg("sandbox run")
	return out, nil
}

func (e *Engine) run(ctx context.Context, input Input) *Output {
	if strings.TrimSpace(input.Code) == "" {
		return &Output{Error: "no code provided"}
	}
	if usesModules(input.Code) {
		return &Output{Error: "imports are not available in the sandbox. " +
			"Available bindings: dbQuery(sql), print(...), console.log(...), counter(array), JSON, Math, Date."}
	}

	queries := extractQueries(input.Code)
	if len(queries) > e.config.MaxQueries {
		return &Output{Error: fmt.Sprintf(
			"too many queries: found %d dbQuery() calls, limit is %d",
			len(queries), e.config.MaxQueries)}
	}

	cache := make(map[string][]map[string]any, len(queries))
	for _, q := range queries {
		rows, err := e.runner.QueryRows(ctx, q)
		if err != nil {
			return &Output{Error: fmt.Sprintf("query failed: %v", err)}
		}
		cache[q] = rows
	}

	return e.execute(input.Code, cache, e.timeout(input.TimeoutSeconds))
}

func (e *Engine) execute(code string, cache map[string][]map[string]any, timeout time.Duration) *Output {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	var printed strings.Builder
	cacheMiss := ""

	printFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = stringifyValue(arg.Export())
		}
		printed.WriteString(strings.Join(parts, " "))
		printed.WriteString("\n")
		return goja.Undefined()
	}
	vm.Set("print", printFn)
	console := vm.NewObject()
	console.Set("log", printFn)
	vm.Set("console", console)

	vm.Set("dbQuery", func(call goja.FunctionCall) goja.Value {
		sql := normalizeQuery(call.Argument(0).String())
		rows, ok := cache[sql]
		if !ok {
			cacheMiss = sql
			panic(vm.ToValue(fmt.Sprintf(
				"query not pre-cached: %q. Use string literals for dbQuery()", sql)))
		}
		return vm.ToValue(rows)
	})
	// counter builds a frequency map from an array, the common aggregation
	// agents reach for when grouping rows by a field.
	vm.Set("counter", func(call goja.FunctionCall) goja.Value {
		items, ok := call.Argument(0).Export().([]any)
		if !ok {
			panic(vm.ToValue("counter() expects an array"))
		}
		counts := map[string]int64{}
		for _, item := range items {
			counts[stringifyValue(item)]++
		}
		return vm.ToValue(counts)
	})
	vm.Set("eval", goja.Undefined())

	program, err := goja.Compile("sandbox.js", code, false)
	if err != nil {
		return &Output{Error: fmt.Sprintf("syntax error: %v", err), Output: printed.String()}
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("deadline")
	})
	value, err := vm.RunProgram(program)
	timer.Stop()
	vm.ClearInterrupt()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return &Output{
				Error:  fmt.Sprintf("execution timed out after %s", timeout),
				Output: printed.String(),
			}
		}
		msg := err.Error()
		if cacheMiss != "" {
			msg = fmt.Sprintf("query not pre-cached: %q. Use string literals for dbQuery()", cacheMiss)
		}
		return &Output{Error: fmt.Sprintf("execution error: %s", msg), Output: printed.String()}
	}

	out := &Output{Output: printed.String()}
	if value != nil && lastLineIsExpression(code) {
		out.Result = serializeResult(value.Export())
	}
	return out
}

var statementKeywords = []string{
	"var", "let", "const", "if", "for", "while", "function", "return",
	"throw", "try", "class", "switch", "do", "break", "continue",
}

// lastLineIsExpression decides whether the program's completion value should
// be reported as the result. Mirrors the REPL convention: a trailing bare
// expression is the answer, a trailing statement is not.
func lastLineIsExpression(code string) bool {
	lines := strings.Split(code, "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" && !strings.HasPrefix(trimmed, "//") {
			last = trimmed
			break
		}
	}
	if last == "" || last == "}" {
		return false
	}
	for _, kw := range statementKeywords {
		if last == kw || strings.HasPrefix(last, kw+" ") || strings.HasPrefix(last, kw+"(") {
			return false
		}
	}
	if containsAssignment(last) {
		return false
	}
	return true
}

// containsAssignment detects a top-level = that is not part of a comparison
// or arrow function.
func containsAssignment(line string) bool {
	for i := 0; i < len(line); i++ {
		if line[i] != '=' {
			continue
		}
		if i > 0 && strings.ContainsRune("=!<>+-*/%&|^", rune(line[i-1])) {
			continue
		}
		if i+1 < len(line) && (line[i+1] == '=' || line[i+1] == '>') {
			i++
			continue
		}
		return true
	}
	return false
}

func serializeResult(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = serializeResult(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = serializeResult(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = serializeResult(item)
		}
		return out
	case map[string]int64:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case string, bool, int64, float64:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, stringifyValue(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = stringifyValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
