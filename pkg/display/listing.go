package display

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/AliciaSchep/pginspect/pkg/db"
)

func newListing(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(header)
	return t
}

// RenderSchemas lists schema names.
func RenderSchemas(w io.Writer, schemas []db.SchemaInfo) {
	if len(schemas) == 0 {
		fmt.Fprintln(w, "(0 schemas)")
		return
	}
	t := newListing(w, table.Row{"Schema"})
	for _, s := range schemas {
		t.AppendRow(table.Row{s.Name})
	}
	t.Render()
}

// RenderTables lists the base tables of schema.
func RenderTables(w io.Writer, schema string, tables []db.TableInfo) {
	if len(tables) == 0 {
		fmt.Fprintf(w, "(no tables in schema %q)\n", schema)
		return
	}
	t := newListing(w, table.Row{"Schema", "Table"})
	for _, tbl := range tables {
		t.AppendRow(table.Row{tbl.SchemaName, tbl.TableName})
	}
	t.Render()
}

// RenderColumns lists the columns of schema.table in ordinal order.
func RenderColumns(w io.Writer, schema, tableName string, columns []db.ColumnInfo) {
	if len(columns) == 0 {
		fmt.Fprintf(w, "(no columns found for %s.%s)\n", schema, tableName)
		return
	}
	fmt.Fprintf(w, "Table: %s.%s\n", schema, tableName)
	t := newListing(w, table.Row{"Column", "Type", "Nullable"})
	for _, c := range columns {
		t.AppendRow(table.Row{c.ColumnName, c.DataType, c.IsNullable})
	}
	t.Render()
}

// RenderDatabaseInfo prints the connected database, user and server version.
func RenderDatabaseInfo(w io.Writer, info *db.DatabaseInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Database", info.Database},
		{"User", info.User},
		{"Version", info.Version},
	})
	t.Render()
}
