package session

import (
	"context"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/AliciaSchep/pginspect/pkg/db"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

const completionTimeout = 2 * time.Second

// completer offers commands, schema names after \dt and qualified table
// names after \d and \o. Names come from the metadata cache, so only the
// first completion of a schema touches the database.
func (s *Session) completer(ctx context.Context) *readline.PrefixCompleter {
	tables := readline.PcItemDynamic(func(string) []string { return s.tableNames(ctx) })
	return readline.NewPrefixCompleter(
		readline.PcItem(`\dn`),
		readline.PcItem(`\dt`, readline.PcItemDynamic(func(string) []string { return s.schemaNames(ctx) })),
		readline.PcItem(`\d`, tables),
		readline.PcItem(`\o`, tables),
		readline.PcItem(`\n`),
		readline.PcItem(`\p`),
		readline.PcItem(`\r`),
		readline.PcItem(`\refresh`),
		readline.PcItem(`\warm`),
		readline.PcItem(`\export`),
		readline.PcItem(`\less`),
		readline.PcItem(`\info`),
		readline.PcItem(`\help`),
		readline.PcItem(`\q`),
	)
}

func (s *Session) schemaNames(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	schemas, err := s.browser.ListSchemas(ctx)
	if err != nil {
		s.logCompletionError(err)
		return nil
	}
	names := make([]string, len(schemas))
	for i, schema := range schemas {
		names[i] = completionIdent(schema.Name)
	}
	return names
}

// tableNames lists schema.table for every schema. A schema that fails to
// load is skipped.
func (s *Session) tableNames(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	schemas, err := s.browser.ListSchemas(ctx)
	if err != nil {
		s.logCompletionError(err)
		return nil
	}

	var names []string
	for _, schema := range schemas {
		tables, err := s.browser.ListTables(ctx, schema.Name)
		if err != nil {
			s.logCompletionError(err)
			continue
		}
		for _, t := range tables {
			names = append(names, qualifiedName(t))
		}
	}
	return names
}

func qualifiedName(t db.TableInfo) string {
	return completionIdent(t.SchemaName) + "." + completionIdent(t.TableName)
}

// completionIdent quotes names that ParseTableName would otherwise split
// or mangle.
func completionIdent(name string) string {
	for _, r := range name {
		if r == '.' || r == '"' || r == ' ' {
			return db.QuoteIdentifier(name)
		}
	}
	return name
}

func (s *Session) logCompletionError(err error) {
	s.logger.Debug("completion lookup failed", zap.String("error", logging.SanitizeError(err)))
}
