package db

import "slices"

// Row maps column name to cell value.
type Row map[string]Value

// QueryResult is a fully materialised result set. Columns are in projection
// order; a statement that returns no result set has no columns.
type QueryResult struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Values returns row i's cells in column order.
func (r *QueryResult) Values(i int) []Value {
	row := r.Rows[i]
	cells := make([]Value, len(r.Columns))
	for j, col := range r.Columns {
		cells[j] = row[col]
	}
	return cells
}

// Records renders every row as display strings in column order. NULL
// becomes the empty string.
func (r *QueryResult) Records() [][]string {
	records := make([][]string, len(r.Rows))
	for i := range r.Rows {
		cells := r.Values(i)
		record := make([]string, len(cells))
		for j, cell := range cells {
			record[j] = cell.String()
		}
		records[i] = record
	}
	return records
}

// Clone returns a deep copy.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	rows := make([]Row, len(r.Rows))
	for i, row := range r.Rows {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		rows[i] = copied
	}
	return &QueryResult{Columns: slices.Clone(r.Columns), Rows: rows}
}
