package agentpg

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers the gateway and sandbox tools on the given MCP
// server.
func RegisterMCPTools(mcpServer *server.MCPServer, g *Gateway, sb *Sandbox) {
	queryTool := mcp.NewTool("query_database",
		mcp.WithDescription("Execute a read-only SQL query. Responses are truncated to a fixed character budget; use format=toon for the most token-efficient output."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SELECT (or WITH ... SELECT) query to execute"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'toon' (compact, default) or 'json'"),
		),
		mcp.WithBoolean("include_stats",
			mcp.Description("Include per-column statistics over the returned rows"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Append LIMIT N when the query has none (capped at 1000)"),
		),
		mcp.WithBoolean("full_output",
			mcp.Description("Disable truncation and the LIMIT rewrite. Use with care"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(queryTool, g.loggedToolHandler("query_database", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		output := g.Query(ctx, queryInputFromRequest(req, sql))
		return marshalResult(output, output.Error)
	}))

	runCodeTool := mcp.NewTool("run_code",
		mcp.WithDescription("Run a short JavaScript snippet against query results. Fetch data with dbQuery(\"SELECT ...\") using string literals only; the last expression becomes the result."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("JavaScript source. Available: dbQuery(sql), print(...), console.log(...), counter(array), JSON, Math, Date"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Wall-clock budget in seconds, clamped to [1, 30] (default 10)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(runCodeTool, g.loggedToolHandler("run_code", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("code")
		if err != nil {
			return mcp.NewToolResultError("code parameter is required"), nil
		}
		output, err := sb.Run(ctx, RunCodeInput{
			Code:           code,
			TimeoutSeconds: req.GetInt("timeout_seconds", 0),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(output, output.Error)
	}))

	getSchemaTool := mcp.NewTool("get_schema",
		mcp.WithDescription("Get the database schema in a compact, LLM-friendly format: one line per table with columns, types, PKs, and foreign key references."),
		mcp.WithString("schema",
			mcp.Description("Filter by schema. Empty = all allowed schemas"),
		),
		mcp.WithString("table",
			mcp.Description("Filter by specific table"),
		),
		mcp.WithBoolean("compact",
			mcp.Description("Compact one-line-per-table rendering (default true)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(getSchemaTool, g.loggedToolHandler("get_schema", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := g.GetSchema(ctx, GetSchemaInput{
			Schema:  req.GetString("schema", ""),
			Table:   req.GetString("table", ""),
			Compact: req.GetBool("compact", true),
		})
		return marshalResult(output, output.Error)
	}))

	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Get a table overview: columns, sample rows, row count, and column statistics. Good first call for an unfamiliar table."),
		mcp.WithString("schema",
			mcp.Required(),
			mcp.Description("Schema name"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name"),
		),
		mcp.WithNumber("sample_rows",
			mcp.Description("Number of sample rows (default 3, max 10)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, g.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := req.RequireString("schema")
		if err != nil {
			return mcp.NewToolResultError("schema parameter is required"), nil
		}
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output := g.DescribeTable(ctx, DescribeTableInput{
			Schema:     schema,
			Table:      table,
			SampleRows: req.GetInt("sample_rows", 3),
		})
		return marshalResult(output, output.Error)
	}))

	searchMessagesTool := mcp.NewTool("search_messages",
		mcp.WithDescription("Search email messages by subject, sender, label, or text, newest first."),
		mcp.WithString("subject", mcp.Description("Subject filter (case-insensitive partial match)")),
		mcp.WithString("from_email", mcp.Description("Sender email (exact match)")),
		mcp.WithString("search_text", mcp.Description("Search in subject and body")),
		mcp.WithString("label", mcp.Description("Label name filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50, max 200)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(searchMessagesTool, g.loggedToolHandler("search_messages", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := g.SearchMessages(ctx, SearchMessagesInput{
			Subject:    req.GetString("subject", ""),
			FromEmail:  req.GetString("from_email", ""),
			SearchText: req.GetString("search_text", ""),
			Label:      req.GetString("label", ""),
			Limit:      req.GetInt("limit", 50),
		})
		return marshalResult(output, output.Error)
	}))

	searchTasksTool := mcp.NewTool("search_tasks",
		mcp.WithDescription("Search tasks by project, status, assignee, tag, or text, newest first."),
		mcp.WithString("project_name", mcp.Description("Project name filter (case-insensitive partial match)")),
		mcp.WithString("status", mcp.Description("Status filter, e.g. 'completed', 'new', 'in progress'")),
		mcp.WithString("assignee_email", mcp.Description("Assignee email filter")),
		mcp.WithString("search_text", mcp.Description("Search in task name and description")),
		mcp.WithString("tag", mcp.Description("Tag name filter")),
		mcp.WithBoolean("overdue_only", mcp.Description("Only overdue incomplete tasks")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50, max 200)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(searchTasksTool, g.loggedToolHandler("search_tasks", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := g.SearchTasks(ctx, SearchTasksInput{
			ProjectName:   req.GetString("project_name", ""),
			Status:        req.GetString("status", ""),
			AssigneeEmail: req.GetString("assignee_email", ""),
			SearchText:    req.GetString("search_text", ""),
			Tag:           req.GetString("tag", ""),
			OverdueOnly:   req.GetBool("overdue_only", false),
			Limit:         req.GetInt("limit", 50),
		})
		return marshalResult(output, output.Error)
	}))

	projectSummaryTool := mcp.NewTool("get_project_summary",
		mcp.WithDescription("Get project summary with task statistics: counts by status, overdue count, last activity."),
		mcp.WithNumber("project_id", mcp.Description("Project ID")),
		mcp.WithString("project_name", mcp.Description("Project name (case-insensitive partial match)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(projectSummaryTool, g.loggedToolHandler("get_project_summary", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := g.ProjectSummary(ctx, ProjectInput{
			ProjectID:   req.GetInt("project_id", 0),
			ProjectName: req.GetString("project_name", ""),
		})
		return marshalResult(output, output.Error)
	}))

	projectDashboardTool := mcp.NewTool("get_project_dashboard",
		mcp.WithDescription("Get a project dashboard: task stats plus recent tasks, emails, files, key contacts, and combined activity."),
		mcp.WithNumber("project_id", mcp.Description("Project ID")),
		mcp.WithString("project_name", mcp.Description("Project name (case-insensitive partial match)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(projectDashboardTool, g.loggedToolHandler("get_project_dashboard", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := g.ProjectDashboard(ctx, ProjectInput{
			ProjectID:   req.GetInt("project_id", 0),
			ProjectName: req.GetString("project_name", ""),
		})
		return marshalResult(output, output.Error)
	}))
}

// queryInputFromRequest builds the gateway input from tool arguments. An
// omitted limit means zero: the query runs without a LIMIT rewrite and
// oversized results are handled by response shaping, not row capping.
func queryInputFromRequest(req mcp.CallToolRequest, sql string) QueryInput {
	return QueryInput{
		SQL:          sql,
		Format:       req.GetString("format", "toon"),
		IncludeStats: req.GetBool("include_stats", false),
		Limit:        req.GetInt("limit", 0),
		FullOutput:   req.GetBool("full_output", false),
	}
}

// marshalResult turns a tool output into a CallToolResult, routing envelope
// errors through the MCP error channel.
func marshalResult(output any, errMsg string) (*mcp.CallToolResult, error) {
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal tool result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response sizes.
func (g *Gateway) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		g.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request
// arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a
// CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
