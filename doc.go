// Package agentpg gives LLM agents read-only PostgreSQL access through the
// Model Context Protocol (MCP), with every response bounded to a fixed
// character budget.
//
// The query gateway validates each statement twice (a lexical gate that
// strips comments and rejects anything that is not a SELECT/WITH query,
// then an AST check using PostgreSQL's actual C parser via pg_query) and
// executes it on a pooled read-only session under a statement deadline.
// Results are shaped for token-constrained callers: long cells are elided
// in the middle, oversized row sets are reduced to a first/last preview
// window, and the compact TOON format packs rows into one line each.
//
// The run_code sandbox lets agents run short JavaScript snippets over query
// results. Queries are extracted from the source as string literals,
// prefetched through the gateway, and served from an in-memory cache; the
// interpreter has no filesystem, network, or module access and is
// interrupted preemptively at its wall-clock deadline.
//
// # Library Usage
//
//	g, err := agentpg.New(connString, agentpg.Config{}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer g.Close(ctx)
//
//	// Use directly
//	output := g.Query(ctx, agentpg.QueryInput{
//		SQL:    "SELECT * FROM teamwork.tasks LIMIT 10",
//		Format: "toon",
//	})
//
//	// Or register as MCP tools
//	sb := agentpg.NewSandbox(g, agentpg.SandboxConfig{}, logger)
//	agentpg.RegisterMCPTools(mcpServer, g, sb)
//
// Row-level security: the caller's email, verified at the HTTP boundary, is
// carried on the request context and applied per transaction via
// set_config('app.user_email', ..., true), so concurrent requests on the
// same pool never see each other's identity.
package agentpg
