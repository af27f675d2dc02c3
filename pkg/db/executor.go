package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

// MutatingVerbs are the leading keywords rejected by CheckReadOnly.
var MutatingVerbs = []string{
	"ALTER", "COMMENT", "CREATE", "DELETE", "DROP",
	"GRANT", "INSERT", "REVOKE", "TRUNCATE", "UPDATE",
}

var mutatingVerbSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(MutatingVerbs))
	for _, verb := range MutatingVerbs {
		set[verb] = struct{}{}
	}
	return set
}()

// CheckReadOnly rejects sqlText when its first whitespace-delimited token,
// upper-cased, is a mutating verb. Empty text passes.
//
// This is a syntactic check only. Writes inside a CTE (WITH ... INSERT),
// side-effecting functions and later statements in a multi-statement
// string are not detected.
func CheckReadOnly(sqlText string) error {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return nil
	}
	verb := strings.ToUpper(fields[0])
	if _, ok := mutatingVerbSet[verb]; ok {
		return apperrors.ReadOnlyViolation(verb)
	}
	return nil
}

// QueryExecutor runs read-only SQL text and materialises the full result.
type QueryExecutor struct {
	logger *zap.Logger
}

// NewQueryExecutor creates an executor.
func NewQueryExecutor(logger *zap.Logger) *QueryExecutor {
	return &QueryExecutor{logger: logging.OrNop(logger)}
}

// Execute validates sqlText and, if it passes, runs it once on q. The
// result keeps the projection's column names even when no rows match.
func (e *QueryExecutor) Execute(ctx context.Context, q Querier, sqlText string) (*QueryResult, error) {
	if err := CheckReadOnly(sqlText); err != nil {
		e.logger.Info("rejected mutating statement",
			zap.String("query", logging.SanitizeQuery(sqlText)))
		return nil, err
	}

	start := time.Now()
	rows, err := q.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, e.fail(sqlText, err)
	}
	defer rows.Close()

	result, err := materialize(rows)
	if err != nil {
		return nil, e.fail(sqlText, err)
	}

	e.logger.Debug("query executed",
		zap.String("query", logging.SanitizeQuery(sqlText)),
		zap.Int("columns", len(result.Columns)),
		zap.Int("rows", result.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (e *QueryExecutor) fail(sqlText string, err error) error {
	classified := apperrors.Classify("run query", err)
	e.logger.Warn("query failed",
		zap.String("query", logging.SanitizeQuery(sqlText)),
		zap.String("error", logging.SanitizeError(err)))
	return classified
}

func materialize(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if columns == nil {
		columns = []string{}
	}

	typeNames := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			if i < len(typeNames) {
				typeNames[i] = ct.DatabaseTypeName()
			}
		}
	}

	result := &QueryResult{Columns: columns, Rows: []Row{}}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = NewColumnValue(values[i], typeNames[i])
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
