package agentpg

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helmdb/agentpg/internal/sandbox"
)

// RunCodeInput is the input for the sandbox tool.
type RunCodeInput struct {
	// Code is a JavaScript snippet. Database access goes through
	// dbQuery("SELECT ..."), which only accepts string literals.
	Code string `json:"code"`
	// TimeoutSeconds is the wall-clock budget, clamped to [1, 30].
	// Zero means the configured default (10s).
	TimeoutSeconds int `json:"timeout_seconds"`
}

// RunCodeOutput is the sandbox result envelope. Output carries captured
// print/console.log text even when Error is set.
type RunCodeOutput struct {
	Result any    `json:"result,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Sandbox runs short agent-supplied snippets against gateway-prefetched
// query results. Safe for concurrent use: every run gets its own
// interpreter.
type Sandbox struct {
	engine *sandbox.Engine
}

// NewSandbox creates a Sandbox whose dbQuery prefetches route through the
// gateway's validated read path. Zero config fields fall back to defaults
// (10 queries, 10s default timeout, 30s ceiling).
func NewSandbox(g *Gateway, config SandboxConfig, logger zerolog.Logger) *Sandbox {
	return &Sandbox{
		engine: sandbox.NewEngine(g, sandbox.Config{
			MaxQueries:            config.MaxQueries,
			DefaultTimeoutSeconds: config.DefaultTimeoutSeconds,
			MaxTimeoutSeconds:     config.MaxTimeoutSeconds,
		}, logger),
	}
}

// Run executes one snippet. Failures are reported in the envelope's Error
// field; the Go error is reserved for internal faults.
func (s *Sandbox) Run(ctx context.Context, input RunCodeInput) (*RunCodeOutput, error) {
	out, err := s.engine.Run(ctx, sandbox.Input{
		Code:           input.Code,
		TimeoutSeconds: input.TimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}
	return &RunCodeOutput{Result: out.Result, Output: out.Output, Error: out.Error}, nil
}
