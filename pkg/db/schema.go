package db

import (
	"context"
	"fmt"

	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
)

// SchemaInfo represents one namespace
type SchemaInfo struct {
	Name string
}

// TableInfo identifies a base table
type TableInfo struct {
	SchemaName string
	TableName  string
}

// ColumnInfo describes a column. IsNullable is "YES" or "NO" as reported
// by information_schema.
type ColumnInfo struct {
	ColumnName string
	DataType   string
	IsNullable string
}

// Nullable reports whether the column accepts NULL.
func (c ColumnInfo) Nullable() bool {
	return c.IsNullable == "YES"
}

// ExcludedSchemas are internal namespaces hidden from the schema list.
var ExcludedSchemas = []string{"pg_toast", "pg_temp_1", "pg_toast_temp_1"}

const (
	schemasQuery = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_toast', 'pg_temp_1', 'pg_toast_temp_1')
		ORDER BY schema_name`

	tablesQuery = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	columnsQuery = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position`
)

// LoadSchemas lists all schemas except ExcludedSchemas, sorted by name.
func LoadSchemas(ctx context.Context, q Querier) ([]SchemaInfo, error) {
	rows, err := q.QueryContext(ctx, schemasQuery)
	if err != nil {
		return nil, apperrors.Classify("list schemas", err)
	}
	defer rows.Close()

	var schemas []SchemaInfo
	for rows.Next() {
		var schema SchemaInfo
		if err := rows.Scan(&schema.Name); err != nil {
			return nil, apperrors.Classify("list schemas", fmt.Errorf("failed to scan schema: %w", err))
		}
		schemas = append(schemas, schema)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Classify("list schemas", err)
	}
	return schemas, nil
}

// LoadTables lists the base tables of schema, sorted by name. Views are
// excluded.
func LoadTables(ctx context.Context, q Querier, schema string) ([]TableInfo, error) {
	rows, err := q.QueryContext(ctx, tablesQuery, schema)
	if err != nil {
		return nil, apperrors.Classify("list tables", err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var table TableInfo
		if err := rows.Scan(&table.SchemaName, &table.TableName); err != nil {
			return nil, apperrors.Classify("list tables", fmt.Errorf("failed to scan table: %w", err))
		}
		tables = append(tables, table)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Classify("list tables", err)
	}
	return tables, nil
}

// LoadColumns lists the columns of schema.table in ordinal position order.
func LoadColumns(ctx context.Context, q Querier, schema, table string) ([]ColumnInfo, error) {
	rows, err := q.QueryContext(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, apperrors.Classify("list columns", err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.ColumnName, &col.DataType, &col.IsNullable); err != nil {
			return nil, apperrors.Classify("list columns", fmt.Errorf("failed to scan column: %w", err))
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Classify("list columns", err)
	}
	return columns, nil
}
