package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/AliciaSchep/pginspect/pkg/db"
	"github.com/AliciaSchep/pginspect/pkg/display"
	apperrors "github.com/AliciaSchep/pginspect/pkg/errors"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

// handleCommand processes backslash commands
func (s *Session) handleCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	args := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch parts[0] {
	case `\q`, `\quit`:
		return true

	case `\help`, `\h`, `\?`:
		s.showHelp()

	case `\dn`:
		s.listSchemas(ctx)

	case `\dt`:
		schema := s.schema
		if args != "" {
			var err error
			if schema, err = ParseSchemaName(args); err != nil {
				apperrors.UserError(s.out, "%v", err)
				return false
			}
		}
		s.listTables(ctx, schema)

	case `\d`:
		if args == "" {
			apperrors.UserError(s.out, `usage: \d schema.table`)
			return false
		}
		s.describeTable(ctx, args)

	case `\o`:
		if args == "" {
			apperrors.UserError(s.out, `usage: \o schema.table`)
			return false
		}
		s.openTable(ctx, args)

	case `\n`:
		s.pageMove(ctx, s.pager.Next)

	case `\p`:
		s.pageMove(ctx, s.pager.Prev)

	case `\r`:
		s.pageMove(ctx, s.pager.Reload)

	case `\refresh`:
		s.browser.ClearMetadataCache()
		fmt.Fprintln(s.out, "Metadata cache cleared")

	case `\warm`:
		s.warm(ctx)

	case `\export`:
		s.export(args)

	case `\less`:
		s.less(ctx)

	case `\info`:
		s.info(ctx)

	default:
		apperrors.UserError(s.out, `unknown command: %s (type \help for available commands)`, parts[0])
	}
	return false
}

// run executes fn as the session's single task and reports a failure on
// the status line. A cancelled task is reported as such, not as an error.
func (s *Session) run(ctx context.Context, action string, fn func(ctx context.Context) error) {
	err := s.runner.Run(ctx, fn)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.logger.Debug("task cancelled", zap.String("action", action))
		fmt.Fprintln(s.out, "Cancelled")
	default:
		s.logger.Debug("task failed",
			zap.String("action", action),
			zap.String("error", logging.SanitizeError(err)))
		apperrors.ActionFailed(s.out, err)
	}
}

func (s *Session) runQuery(ctx context.Context, query string) {
	s.run(ctx, "query", func(ctx context.Context) error {
		result, err := s.browser.RunQuery(ctx, query)
		if err != nil {
			return err
		}
		s.showResult(ctx, result, "Query Results")
		fmt.Fprintf(s.out, "Rows: %d\n", result.Len())
		return nil
	})
}

func (s *Session) listSchemas(ctx context.Context) {
	s.run(ctx, "list schemas", func(ctx context.Context) error {
		schemas, err := s.browser.ListSchemas(ctx)
		if err != nil {
			return err
		}
		display.RenderSchemas(s.out, schemas)
		return nil
	})
}

func (s *Session) listTables(ctx context.Context, schema string) {
	s.run(ctx, "list tables", func(ctx context.Context) error {
		tables, err := s.browser.ListTables(ctx, schema)
		if err != nil {
			return err
		}
		s.schema = schema
		display.RenderTables(s.out, schema, tables)
		return nil
	})
}

func (s *Session) describeTable(ctx context.Context, name string) {
	schema, table, err := ParseTableName(name, s.schema)
	if err != nil {
		apperrors.UserError(s.out, "%v", err)
		return
	}
	s.run(ctx, "list columns", func(ctx context.Context) error {
		columns, err := s.browser.ListColumns(ctx, schema, table)
		if err != nil {
			return err
		}
		s.schema = schema
		display.RenderColumns(s.out, schema, table, columns)
		return nil
	})
}

func (s *Session) openTable(ctx context.Context, name string) {
	schema, table, err := ParseTableName(name, s.schema)
	if err != nil {
		apperrors.UserError(s.out, "%v", err)
		return
	}
	s.run(ctx, "open table", func(ctx context.Context) error {
		columns, err := s.browser.ListColumns(ctx, schema, table)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			apperrors.UserError(s.out, "table %s.%s not found", completionIdent(schema), completionIdent(table))
			return nil
		}

		page, err := s.pager.Open(ctx, schema, table)
		if err != nil {
			return err
		}
		s.schema = schema
		s.showPage(ctx, page)
		return nil
	})
}

func (s *Session) pageMove(ctx context.Context, move func(context.Context) (*db.Page, error)) {
	s.run(ctx, "page", func(ctx context.Context) error {
		page, err := move(ctx)
		if errors.Is(err, db.ErrNoTable) {
			apperrors.UserInfo(s.out, `no table open (use \o schema.table)`)
			return nil
		}
		if err != nil {
			return err
		}
		if page == nil {
			fmt.Fprintln(s.out, "Already at the first page")
			return nil
		}
		s.showPage(ctx, page)
		return nil
	})
}

func (s *Session) showPage(ctx context.Context, page *db.Page) {
	title := fmt.Sprintf("%s.%s", page.Schema, page.Table)
	s.showResult(ctx, page.Result, title)
	fmt.Fprintln(s.out, page.Status)
}

// showResult prints result as a grid, handing it to the pager when it
// would not fit on an interactive screen. It becomes the result used by
// \export and \less.
func (s *Session) showResult(ctx context.Context, result *db.QueryResult, title string) {
	s.lastResult, s.lastTitle = result, title

	width, height := display.TerminalSize(s.out)
	var buf bytes.Buffer
	display.RenderResult(&buf, result, width)

	if display.IsInteractive(s.out) && display.ShouldPage(strings.Count(buf.String(), "\n"), height) {
		if err := s.viewer.Page(ctx, title, buf.String()); err == nil {
			return
		}
	}
	_, _ = s.out.Write(buf.Bytes())
}

func (s *Session) warm(ctx context.Context) {
	s.run(ctx, "warm", func(ctx context.Context) error {
		n, err := s.browser.Warm(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Cached table lists for %d schemas\n", n)
		return nil
	})
}

func (s *Session) export(filename string) {
	if s.lastResult == nil {
		apperrors.UserInfo(s.out, "nothing to export yet (run a query or open a table first)")
		return
	}
	path, err := display.SaveResult(s.lastResult, filename)
	if err != nil {
		apperrors.UserError(s.out, "export failed: %v", err)
		return
	}
	fmt.Fprintf(s.out, "✅ Exported %d rows to %s\n", s.lastResult.Len(), path)
}

func (s *Session) less(ctx context.Context) {
	if s.lastResult == nil {
		apperrors.UserInfo(s.out, "nothing to show yet (run a query or open a table first)")
		return
	}
	width, _ := display.TerminalSize(s.out)
	s.run(ctx, "less", func(ctx context.Context) error {
		return s.viewer.PageResult(ctx, s.lastResult, s.lastTitle, width)
	})
}

func (s *Session) info(ctx context.Context) {
	s.run(ctx, "info", func(ctx context.Context) error {
		info, err := s.browser.DatabaseInfo(ctx)
		if err != nil {
			return err
		}
		display.RenderDatabaseInfo(s.out, info)
		return nil
	})
}

// showHelp displays available commands
func (s *Session) showHelp() {
	fmt.Fprintln(s.out, `Available commands:
  \dn                 List schemas
  \dt [schema]        List tables (default: last used schema)
  \d schema.table     Describe a table's columns
  \o schema.table     Open a table at the first page
  \n, \p, \r          Next, previous, reload page
  \refresh            Clear the metadata cache
  \warm               Prefetch table lists for every schema
  \export <file>      Export the last result (.csv, .json, .yaml)
  \less               View the last result in less
  \info               Show database information
  \help               Show this help message
  \q                  Quit

Anything else is SQL, run when a line ends with ';'.
Only read-only statements are accepted. Ctrl+C cancels a running query.`)
}

// ParseTableName splits "schema.table" into its parts. Double-quoted parts
// may contain dots and doubled quotes; a bare table name gets defaultSchema.
func ParseTableName(name, defaultSchema string) (schema, table string, err error) {
	parts, err := splitIdentifiers(name)
	if err != nil {
		return "", "", err
	}
	switch {
	case len(parts) == 1 && parts[0] != "":
		return defaultSchema, parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid table name %q (expected schema.table)", name)
	}
}

// ParseSchemaName unquotes a single, possibly double-quoted, schema name.
func ParseSchemaName(name string) (string, error) {
	parts, err := splitIdentifiers(name)
	if err != nil {
		return "", err
	}
	if len(parts) != 1 || parts[0] == "" {
		return "", fmt.Errorf("invalid schema name %q", name)
	}
	return parts[0], nil
}

func splitIdentifiers(name string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	runes := []rune(strings.TrimSpace(name))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == '.' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())

	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted identifier in %q", name)
	}
	return parts, nil
}
