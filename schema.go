package agentpg

import (
	"context"
	"fmt"
	"strings"
)

var typeAbbrev = map[string]string{
	"integer": "int", "bigint": "bigint", "smallint": "smallint",
	"numeric": "decimal", "real": "float", "double precision": "double",
	"boolean": "bool", "character varying": "varchar", "character": "char",
	"text": "text", "uuid": "uuid", "date": "date",
	"timestamp without time zone": "ts", "timestamp with time zone": "tstz",
	"json": "json", "jsonb": "jsonb", "bytea": "bytes",
	"ARRAY": "array", "USER-DEFINED": "enum",
}

// abbrevType converts a PostgreSQL type name to its compact form.
func abbrevType(pgType, udtName string) string {
	if pgType == "ARRAY" && udtName != "" {
		base := strings.TrimLeft(udtName, "_")
		if abbr, ok := typeAbbrev[base]; ok {
			return abbr + "[]"
		}
		return base + "[]"
	}
	if pgType == "USER-DEFINED" && udtName != "" {
		return udtName
	}
	if abbr, ok := typeAbbrev[pgType]; ok {
		return abbr
	}
	return pgType
}

func validTableName(table string) bool {
	if table == "" {
		return false
	}
	for _, r := range table {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

func (g *Gateway) schemaAllowed(schema string) bool {
	for _, s := range g.config.Schemas {
		if s == schema {
			return true
		}
	}
	return false
}

func (g *Gateway) schemaListLiteral() string {
	quoted := make([]string, len(g.config.Schemas))
	for i, s := range g.config.Schemas {
		quoted[i] = "'" + escapeLiteral(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

// schemaWhere assembles the schema/table filter conditions under the given
// table alias. Built per alias from the raw inputs so quoted literals are
// never rewritten.
func (g *Gateway) schemaWhere(alias string, input GetSchemaInput) string {
	conditions := []string{fmt.Sprintf("%s.table_schema IN (%s)", alias, g.schemaListLiteral())}
	if input.Schema != "" {
		conditions = append(conditions, fmt.Sprintf("%s.table_schema = '%s'", alias, escapeLiteral(input.Schema)))
	}
	if input.Table != "" {
		conditions = append(conditions, fmt.Sprintf("%s.table_name = '%s'", alias, escapeLiteral(input.Table)))
	}
	return strings.Join(conditions, " AND ")
}

type columnRow struct {
	Schema  string
	Table   string
	Column  string
	Type    string
	PK      bool
	FK      string
	CompPKs []string // non-empty on the first column of a composite-PK table
}

// GetSchema returns the database schema, either as a compact markdown-ish
// rendering (one line per table, abbreviated types, PK/FK markers) or as a
// full structure. Filters are validated before any SQL is assembled.
func (g *Gateway) GetSchema(ctx context.Context, input GetSchemaInput) *SchemaOutput {
	if input.Schema != "" && !g.schemaAllowed(input.Schema) {
		return &SchemaOutput{Error: fmt.Sprintf("invalid schema %q: valid schemas are %s",
			input.Schema, strings.Join(g.config.Schemas, ", "))}
	}
	if input.Table != "" && !validTableName(input.Table) {
		return &SchemaOutput{Error: fmt.Sprintf("invalid table name %q: only letters, numbers, and underscores are allowed", input.Table)}
	}

	where := g.schemaWhere("t", input)

	colsSQL := fmt.Sprintf(`SELECT t.table_schema, t.table_name, c.column_name, c.data_type, c.udt_name,
       c.character_maximum_length
FROM information_schema.tables t
JOIN information_schema.columns c ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE %s AND t.table_type IN ('BASE TABLE', 'VIEW')
ORDER BY t.table_schema, t.table_name, c.ordinal_position`, where)

	colRows, _, err := g.runSelect(ctx, colsSQL)
	if err != nil {
		return &SchemaOutput{Error: g.hints.Annotate(err.Error())}
	}

	tcWhere := g.schemaWhere("tc", input)
	pkSQL := fmt.Sprintf(`SELECT tc.table_schema, tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND %s
ORDER BY tc.table_schema, tc.table_name, kcu.ordinal_position`, tcWhere)

	pkRows, _, err := g.runSelect(ctx, pkSQL)
	if err != nil {
		return &SchemaOutput{Error: g.hints.Annotate(err.Error())}
	}

	fkSQL := fmt.Sprintf(`SELECT tc.table_schema, tc.table_name, kcu.column_name, ccu.table_name AS ref_table, ccu.column_name AS ref_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
WHERE tc.constraint_type = 'FOREIGN KEY' AND %s`, tcWhere)

	fkRows, _, err := g.runSelect(ctx, fkSQL)
	if err != nil {
		return &SchemaOutput{Error: g.hints.Annotate(err.Error())}
	}

	columns := buildColumnRows(colRows, pkRows, fkRows)

	if input.Compact {
		rendered, tables := renderCompactSchema(columns)
		return &SchemaOutput{
			Schema: rendered,
			Meta:   &SchemaMeta{Tables: tables, Columns: len(columns)},
		}
	}
	return &SchemaOutput{Tables: groupTables(columns)}
}

// buildColumnRows merges the three information_schema result sets into one
// ordered column list with PK/FK annotations.
func buildColumnRows(colRows, pkRows, fkRows []map[string]any) []columnRow {
	type tableKey struct{ schema, table string }

	pkCols := map[tableKey][]string{}
	for _, r := range pkRows {
		key := tableKey{asString(r["table_schema"]), asString(r["table_name"])}
		pkCols[key] = append(pkCols[key], asString(r["column_name"]))
	}
	pkSet := map[[3]string]bool{}
	compositePK := map[tableKey][]string{}
	for key, cols := range pkCols {
		if len(cols) > 1 {
			compositePK[key] = cols
			continue
		}
		for _, c := range cols {
			pkSet[[3]string{key.schema, key.table, c}] = true
		}
	}

	fkMap := map[[3]string]string{}
	for _, r := range fkRows {
		key := [3]string{asString(r["table_schema"]), asString(r["table_name"]), asString(r["column_name"])}
		fkMap[key] = asString(r["ref_table"]) + "." + asString(r["ref_column"])
	}

	seenTable := map[tableKey]bool{}
	out := make([]columnRow, 0, len(colRows))
	for _, r := range colRows {
		schema := asString(r["table_schema"])
		table := asString(r["table_name"])
		name := asString(r["column_name"])

		colType := abbrevType(asString(r["data_type"]), asString(r["udt_name"]))
		if maxLen := r["character_maximum_length"]; maxLen != nil {
			colType += fmt.Sprintf("(%v)", maxLen)
		}

		col := columnRow{
			Schema: schema,
			Table:  table,
			Column: name,
			Type:   colType,
			PK:     pkSet[[3]string{schema, table, name}],
			FK:     fkMap[[3]string{schema, table, name}],
		}
		key := tableKey{schema, table}
		if !seenTable[key] {
			seenTable[key] = true
			col.CompPKs = compositePK[key]
		}
		out = append(out, col)
	}
	return out
}

// renderCompactSchema renders one line per table:
//
//	**tasks**: id int pk, project_id int (→projects.id), name text
//
// grouped under a heading per schema, with composite primary keys appended
// as a [pk: a, b] suffix. Returns the rendering and the table count.
func renderCompactSchema(columns []columnRow) (string, int) {
	var out []string
	var tableCols []string
	var tableCompPK []string
	currentSchema, currentTable := "", ""
	tables := 0

	flushTable := func() {
		if currentTable == "" || len(tableCols) == 0 {
			return
		}
		line := fmt.Sprintf("**%s**: %s", currentTable, strings.Join(tableCols, ", "))
		if len(tableCompPK) > 0 {
			line += fmt.Sprintf(" [pk: %s]", strings.Join(tableCompPK, ", "))
		}
		out = append(out, line)
		tables++
	}

	for _, col := range columns {
		if col.Schema != currentSchema {
			flushTable()
			if currentSchema != "" {
				out = append(out, "")
			}
			out = append(out, "# "+col.Schema, "")
			currentSchema, currentTable = col.Schema, ""
			tableCols = nil
		}
		if col.Table != currentTable {
			flushTable()
			currentTable = col.Table
			tableCols = nil
			tableCompPK = col.CompPKs
		}

		colStr := col.Column + " " + col.Type
		if col.PK {
			colStr += " pk"
		}
		if col.FK != "" {
			colStr += fmt.Sprintf(" (→%s)", col.FK)
		}
		tableCols = append(tableCols, colStr)
	}
	flushTable()

	return strings.Join(out, "\n"), tables
}

// groupTables builds the non-compact structured output.
func groupTables(columns []columnRow) []TableSchema {
	var out []TableSchema
	for _, col := range columns {
		if len(out) == 0 || out[len(out)-1].Schema != col.Schema || out[len(out)-1].Table != col.Table {
			out = append(out, TableSchema{Schema: col.Schema, Table: col.Table})
		}
		last := &out[len(out)-1]
		last.Columns = append(last.Columns, ColumnSchema{
			Name: col.Column,
			Type: col.Type,
			PK:   col.PK,
			FK:   col.FK,
		})
	}
	return out
}

// DescribeTable combines schema info, sample rows with column statistics,
// and a row count for one table. Good first call when exploring an
// unfamiliar table.
func (g *Gateway) DescribeTable(ctx context.Context, input DescribeTableInput) *DescribeTableOutput {
	if !g.schemaAllowed(input.Schema) {
		return &DescribeTableOutput{Error: fmt.Sprintf("invalid schema %q: valid schemas are %s",
			input.Schema, strings.Join(g.config.Schemas, ", "))}
	}
	if !validTableName(input.Table) {
		return &DescribeTableOutput{Error: fmt.Sprintf("invalid table name %q", input.Table)}
	}

	sampleRows := input.SampleRows
	if sampleRows < 1 {
		sampleRows = 3
	}
	if sampleRows > 10 {
		sampleRows = 10
	}

	schemaOut := g.GetSchema(ctx, GetSchemaInput{Schema: input.Schema, Table: input.Table, Compact: true})
	if schemaOut.Error != "" {
		return &DescribeTableOutput{Error: schemaOut.Error}
	}

	sampleSQL := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d", input.Schema, input.Table, sampleRows)
	sample := g.Query(ctx, QueryInput{SQL: sampleSQL, IncludeStats: true})
	if sample.Error != "" {
		return &DescribeTableOutput{Columns: schemaOut.Schema, Error: sample.Error}
	}

	out := &DescribeTableOutput{
		Table:   input.Schema + "." + input.Table,
		Columns: schemaOut.Schema,
		Sample:  sample.Rows,
	}
	if sample.Meta != nil {
		out.ColumnStats = sample.Meta.Columns
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s.%s", input.Schema, input.Table)
	count := g.Query(ctx, QueryInput{SQL: countSQL})
	if count.Error == "" && len(count.Rows) == 1 {
		out.TotalRows = count.Rows[0]["total"]
	}

	out.QueryTips = queryTips(schemaOut.Schema)
	return out
}

// queryTips suggests query patterns based on the column names present.
func queryTips(schemaText string) []string {
	var tips []string
	if strings.Contains(schemaText, "created_at") {
		tips = append(tips, "ORDER BY created_at DESC - for recent records")
	}
	if strings.Contains(schemaText, "_id") {
		tips = append(tips, "JOIN on *_id columns for related data")
	}
	if strings.Contains(schemaText, "email") {
		tips = append(tips, "Filter by email with ILIKE for case-insensitive match")
	}
	if len(tips) == 0 {
		return []string{"Use LIMIT to preview data", "Use ILIKE for text search"}
	}
	if len(tips) > 3 {
		tips = tips[:3]
	}
	return tips
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
