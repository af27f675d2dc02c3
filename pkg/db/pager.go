package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/AliciaSchep/pginspect/pkg/logging"
)

// PageSize is the number of rows fetched per page.
const PageSize = 100

// ErrNoTable is returned by navigation before any table has been opened.
var ErrNoTable = errors.New("no table open")

// QuoteIdentifier wraps name in double quotes, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// PageQuery builds the SELECT for one page of schema.table.
func PageQuery(schema, table string, offset int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d",
		pgx.Identifier{schema, table}.Sanitize(), PageSize, offset)
}

// PageStatus describes a page for the status line.
func PageStatus(offset, rows int) string {
	if rows == 0 {
		return fmt.Sprintf("Rows 0 (offset %d, limit %d)", offset, PageSize)
	}
	return fmt.Sprintf("Rows %d-%d (limit %d)", offset+1, offset+rows, PageSize)
}

// Page is one loaded page of a table.
type Page struct {
	Schema string
	Table  string
	Offset int
	Result *QueryResult
	Status string
}

// TablePager walks a table one page at a time. It is safe for concurrent
// use, but callers normally drive it from a single screen.
type TablePager struct {
	runner QueryRunner
	logger *zap.Logger

	mu     sync.Mutex
	schema string
	table  string
	open   bool
	offset int
}

// NewTablePager creates a pager that loads pages through runner.
func NewTablePager(runner QueryRunner, logger *zap.Logger) *TablePager {
	return &TablePager{runner: runner, logger: logging.OrNop(logger)}
}

// Open selects schema.table, resets the offset to 0 and loads the first page.
func (p *TablePager) Open(ctx context.Context, schema, table string) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.schema, p.table, p.open = schema, table, true
	p.offset = 0
	return p.loadLocked(ctx, 0)
}

// Next advances one page and loads it.
func (p *TablePager) Next(ctx context.Context) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil, ErrNoTable
	}
	return p.loadLocked(ctx, p.offset+PageSize)
}

// Prev moves back one page and loads it. At offset 0 it does nothing and
// returns a nil page.
func (p *TablePager) Prev(ctx context.Context) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil, ErrNoTable
	}
	if p.offset == 0 {
		return nil, nil
	}
	return p.loadLocked(ctx, max(0, p.offset-PageSize))
}

// Reload fetches the current page again.
func (p *TablePager) Reload(ctx context.Context) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil, ErrNoTable
	}
	return p.loadLocked(ctx, p.offset)
}

// Offset returns the current row offset.
func (p *TablePager) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Table returns the open table and whether one is open.
func (p *TablePager) Table() (schema, table string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schema, p.table, p.open
}

// loadLocked runs the page query for offset and commits the offset only
// when the query succeeds.
func (p *TablePager) loadLocked(ctx context.Context, offset int) (*Page, error) {
	result, err := p.runner.RunQuery(ctx, PageQuery(p.schema, p.table, offset))
	if err != nil {
		p.logger.Warn("page load failed",
			zap.String("schema", p.schema),
			zap.String("table", p.table),
			zap.Int("offset", offset),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	p.offset = offset
	return &Page{
		Schema: p.schema,
		Table:  p.table,
		Offset: offset,
		Result: result,
		Status: PageStatus(offset, result.Len()),
	}, nil
}
