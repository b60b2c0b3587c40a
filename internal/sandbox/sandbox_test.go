package sandbox

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRunner struct {
	results map[string][]map[string]any
	err     error
	calls   []string
}

func (f *fakeRunner) QueryRows(ctx context.Context, sql string) ([]map[string]any, error) {
	f.calls = append(f.calls, sql)
	if f.err != nil {
		return nil, f.err
	}
	if rows, ok := f.results[sql]; ok {
		return rows, nil
	}
	return []map[string]any{}, nil
}

func newTestEngine(runner *fakeRunner) *Engine {
	return NewEngine(runner, DefaultConfig(), zerolog.Nop())
}

func run(t *testing.T, e *Engine, input Input) *Output {
	t.Helper()
	out, err := e.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected internal error: %v", err)
	}
	return out
}

func TestLastExpressionIsResult(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: "var x = 2 + 3\nx * 2"})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.Result != int64(10) {
		t.Errorf("expected 10, got %v (%T)", out.Result, out.Result)
	}
}

func TestAssignmentLastLineHasNoResult(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: "var x = 1\nx = x + 1"})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.Result != nil {
		t.Errorf("expected no result for trailing assignment, got %v", out.Result)
	}
}

func TestPrintCapture(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `print("a", 1)` + "\n" + `console.log("b")`})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.Output != "a 1\nb\n" {
		t.Errorf("got output %q", out.Output)
	}
}

func TestDBQueryServedFromCache(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{results: map[string][]map[string]any{
		"SELECT id FROM tasks": {{"id": int64(7)}},
	}}
	e := newTestEngine(runner)
	out := run(t, e, Input{Code: `var rows = dbQuery("SELECT id FROM tasks")` + "\nrows.length"})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.Result != int64(1) {
		t.Errorf("expected 1 row, got %v", out.Result)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "SELECT id FROM tasks" {
		t.Errorf("prefetch calls = %v", runner.calls)
	}
}

func TestDuplicateLiteralsFetchedOnce(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	e := newTestEngine(runner)
	code := `var a = dbQuery("SELECT 1")` + "\n" +
		`var b = dbQuery("SELECT   1")` + "\n" + // same query, extra whitespace
		`var c = dbQuery("SELECT 2")` + "\n" +
		"a.length + b.length + c.length"
	out := run(t, e, Input{Code: code})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if len(runner.calls) != 2 {
		t.Errorf("expected 2 prefetches, got %v", runner.calls)
	}
}

func TestDynamicQueryIsCacheMiss(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `var t = "tasks"` + "\n" + `dbQuery("SELECT * FROM " + t)`})
	if !strings.Contains(out.Error, "query not pre-cached") {
		t.Errorf("expected cache-miss error, got %q", out.Error)
	}
	if !strings.Contains(out.Error, "string literals") {
		t.Errorf("error should explain the literal requirement, got %q", out.Error)
	}
}

func TestPrefetchFailureAbortsBeforeExecution(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{err: fmt.Errorf("relation \"nope\" does not exist")}
	e := newTestEngine(runner)
	out := run(t, e, Input{Code: `print("should not run")` + "\n" + `dbQuery("SELECT * FROM nope")`})
	if !strings.Contains(out.Error, "query failed") {
		t.Errorf("expected prefetch failure, got %q", out.Error)
	}
	if out.Output != "" {
		t.Errorf("user code must not run after a prefetch failure, printed %q", out.Output)
	}
}

func TestQueryCapExceeded(t *testing.T) {
	t.Parallel()
	e := NewEngine(&fakeRunner{}, Config{MaxQueries: 2}, zerolog.Nop())
	code := `dbQuery("SELECT 1")` + "\n" + `dbQuery("SELECT 2")` + "\n" + `dbQuery("SELECT 3")`
	out := run(t, e, Input{Code: code})
	if !strings.Contains(out.Error, "too many queries") {
		t.Errorf("expected cap error, got %q", out.Error)
	}
}

func TestImportsRejected(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	for _, code := range []string{
		`import fs from "fs"` + "\nfs.readFileSync('/etc/passwd')",
		`var fs = require("fs")`,
	} {
		out := run(t, e, Input{Code: code})
		if !strings.Contains(out.Error, "imports are not available") {
			t.Errorf("code %q: expected import rejection, got %q", code, out.Error)
		}
		if !strings.Contains(out.Error, "dbQuery") {
			t.Errorf("error should list available bindings, got %q", out.Error)
		}
	}
}

func TestInfiniteLoopTimesOut(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	started := time.Now()
	out := run(t, e, Input{Code: `print("before")` + "\nwhile (true) {}", TimeoutSeconds: 1})
	elapsed := time.Since(started)
	if !strings.Contains(out.Error, "timed out") {
		t.Fatalf("expected timeout, got %q", out.Error)
	}
	if elapsed > 3*time.Second {
		t.Errorf("interrupt took too long: %v", elapsed)
	}
	if out.Output != "before\n" {
		t.Errorf("partial output lost, got %q", out.Output)
	}
}

func TestTimeoutClamping(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{-5, 10 * time.Second},
		{5, 5 * time.Second},
		{300, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := e.timeout(tt.seconds); got != tt.want {
			t.Errorf("timeout(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestThrowBecomesExecutionError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `throw new Error("boom")`})
	if !strings.Contains(out.Error, "execution error") || !strings.Contains(out.Error, "boom") {
		t.Errorf("got %q", out.Error)
	}
}

func TestSyntaxError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `var = = 1`})
	if !strings.Contains(out.Error, "syntax error") {
		t.Errorf("got %q", out.Error)
	}
}

func TestEvalDisabled(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `eval("1 + 1")`})
	if !strings.Contains(out.Error, "execution error") {
		t.Errorf("eval must not be callable, got result=%v error=%q", out.Result, out.Error)
	}
}

func TestEmptyCode(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: "   \n  "})
	if out.Error != "no code provided" {
		t.Errorf("got %q", out.Error)
	}
}

func TestCounterHelper(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `var c = counter(["a", "b", "a"])` + "\nc.a"})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	if out.Result != int64(2) {
		t.Errorf("expected count 2, got %v (%T)", out.Result, out.Result)
	}
}

func TestObjectResultSerialized(t *testing.T) {
	t.Parallel()
	e := newTestEngine(&fakeRunner{})
	out := run(t, e, Input{Code: `var o = {a: 1, b: "x"}` + "\no"})
	if out.Error != "" {
		t.Fatalf("unexpected error: %s", out.Error)
	}
	m, ok := out.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out.Result)
	}
	if m["a"] != int64(1) || m["b"] != "x" {
		t.Errorf("got %v", m)
	}
}

func TestLastLineIsExpression(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code string
		want bool
	}{
		{"1 + 1", true},
		{"var x = 1", false},
		{"var x = 1\nx", true},
		{"var x = 1\nx = 2", false},
		{"x == 2", true},
		{"x === 2", true},
		{"x >= 2", true},
		{"rows.map(r => r.id)", true},
		{"return x", false},
		{"for (var i = 0; i < 3; i++) {\n  print(i)\n}", false},
		{"x // trailing comment line ignored\n// done", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := lastLineIsExpression(tt.code); got != tt.want {
			t.Errorf("lastLineIsExpression(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
