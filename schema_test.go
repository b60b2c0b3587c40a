package agentpg

import (
	"context"
	"strings"
	"testing"
)

func TestAbbrevType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pgType  string
		udtName string
		want    string
	}{
		{"integer", "int4", "int"},
		{"character varying", "varchar", "varchar"},
		{"timestamp with time zone", "timestamptz", "tstz"},
		{"ARRAY", "_text", "text[]"},
		{"ARRAY", "_int8", "int8[]"},
		{"USER-DEFINED", "task_status", "task_status"},
		{"unknown_type", "", "unknown_type"},
	}
	for _, tt := range tests {
		if got := abbrevType(tt.pgType, tt.udtName); got != tt.want {
			t.Errorf("abbrevType(%q, %q) = %q, want %q", tt.pgType, tt.udtName, got, tt.want)
		}
	}
}

func TestSchemaWhereAlias(t *testing.T) {
	t.Parallel()
	// A schema name containing "t." must survive intact in the quoted
	// literal no matter which alias the conditions are built under.
	g := testGateway(t, Config{Schemas: []string{"audit.trail", "public"}})
	input := GetSchemaInput{Schema: "audit.trail", Table: "events"}

	for _, alias := range []string{"t", "tc"} {
		where := g.schemaWhere(alias, input)
		if !strings.Contains(where, "'audit.trail'") {
			t.Errorf("alias %s: literal corrupted: %s", alias, where)
		}
		if !strings.Contains(where, alias+".table_schema = 'audit.trail'") {
			t.Errorf("alias %s: schema condition missing: %s", alias, where)
		}
		if !strings.Contains(where, alias+".table_name = 'events'") {
			t.Errorf("alias %s: table condition missing: %s", alias, where)
		}
	}
}

func TestValidTableName(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"tasks":          true,
		"task_assignees": true,
		"t2":             true,
		"":               false,
		"tasks; DROP":    false,
		"tasks--":        false,
		"schema.table":   false,
	} {
		if got := validTableName(name); got != want {
			t.Errorf("validTableName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGetSchemaRejectsBadInput(t *testing.T) {
	t.Parallel()
	g := testGateway(t, Config{})

	out := g.GetSchema(context.Background(), GetSchemaInput{Schema: "pg_catalog"})
	if !strings.Contains(out.Error, "invalid schema") {
		t.Errorf("got %q", out.Error)
	}

	out = g.GetSchema(context.Background(), GetSchemaInput{Table: "x; DROP TABLE y"})
	if !strings.Contains(out.Error, "invalid table name") {
		t.Errorf("got %q", out.Error)
	}
}

func TestDescribeTableRejectsBadInput(t *testing.T) {
	t.Parallel()
	g := testGateway(t, Config{})

	out := g.DescribeTable(context.Background(), DescribeTableInput{Schema: "nope", Table: "tasks"})
	if !strings.Contains(out.Error, "invalid schema") {
		t.Errorf("got %q", out.Error)
	}
}

func sampleColumns() []columnRow {
	return []columnRow{
		{Schema: "teamwork", Table: "projects", Column: "id", Type: "int", PK: true},
		{Schema: "teamwork", Table: "projects", Column: "name", Type: "text"},
		{Schema: "teamwork", Table: "tasks", Column: "id", Type: "int", PK: true},
		{Schema: "teamwork", Table: "tasks", Column: "project_id", Type: "int", FK: "projects.id"},
		{Schema: "teamwork", Table: "tasks", Column: "status", Type: "varchar(50)"},
	}
}

func TestRenderCompactSchema(t *testing.T) {
	t.Parallel()
	rendered, tables := renderCompactSchema(sampleColumns())
	if tables != 2 {
		t.Errorf("table count = %d", tables)
	}
	if !strings.Contains(rendered, "# teamwork") {
		t.Errorf("missing schema heading:\n%s", rendered)
	}
	if !strings.Contains(rendered, "**projects**: id int pk, name text") {
		t.Errorf("projects line wrong:\n%s", rendered)
	}
	if !strings.Contains(rendered, "**tasks**: id int pk, project_id int (→projects.id), status varchar(50)") {
		t.Errorf("tasks line wrong:\n%s", rendered)
	}
}

func TestRenderCompactSchemaCompositePK(t *testing.T) {
	t.Parallel()
	cols := []columnRow{
		{Schema: "teamwork", Table: "task_tags", Column: "task_id", Type: "int", CompPKs: []string{"task_id", "tag_id"}},
		{Schema: "teamwork", Table: "task_tags", Column: "tag_id", Type: "int"},
	}
	rendered, _ := renderCompactSchema(cols)
	if !strings.Contains(rendered, "[pk: task_id, tag_id]") {
		t.Errorf("composite pk suffix missing:\n%s", rendered)
	}
}

func TestGroupTables(t *testing.T) {
	t.Parallel()
	tables := groupTables(sampleColumns())
	if len(tables) != 2 {
		t.Fatalf("got %d tables", len(tables))
	}
	if tables[0].Table != "projects" || len(tables[0].Columns) != 2 {
		t.Errorf("projects grouping wrong: %+v", tables[0])
	}
	if tables[1].Columns[1].FK != "projects.id" {
		t.Errorf("fk not carried: %+v", tables[1].Columns[1])
	}
}

func TestBuildColumnRows(t *testing.T) {
	t.Parallel()
	colRows := []map[string]any{
		{"table_schema": "teamwork", "table_name": "tasks", "column_name": "id",
			"data_type": "integer", "udt_name": "int4", "character_maximum_length": nil},
		{"table_schema": "teamwork", "table_name": "tasks", "column_name": "name",
			"data_type": "character varying", "udt_name": "varchar", "character_maximum_length": int64(255)},
	}
	pkRows := []map[string]any{
		{"table_schema": "teamwork", "table_name": "tasks", "column_name": "id"},
	}
	fkRows := []map[string]any{}

	cols := buildColumnRows(colRows, pkRows, fkRows)
	if len(cols) != 2 {
		t.Fatalf("got %d columns", len(cols))
	}
	if !cols[0].PK {
		t.Error("single-column pk not marked")
	}
	if cols[1].Type != "varchar(255)" {
		t.Errorf("type = %q", cols[1].Type)
	}
}

func TestQueryTips(t *testing.T) {
	t.Parallel()
	tips := queryTips("**tasks**: id int pk, project_id int, created_at tstz")
	joined := strings.Join(tips, "|")
	if !strings.Contains(joined, "created_at") || !strings.Contains(joined, "*_id") {
		t.Errorf("got %v", tips)
	}

	fallback := queryTips("**t**: a int")
	if len(fallback) == 0 {
		t.Error("expected fallback tips")
	}
}
