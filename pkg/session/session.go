package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AliciaSchep/pginspect/pkg/db"
	"github.com/AliciaSchep/pginspect/pkg/display"
	"github.com/AliciaSchep/pginspect/pkg/logging"
)

const (
	prompt             = "pginspect> "
	continuationPrompt = "      ...> "
)

// Browser is the access layer the session drives. *db.Inspector
// implements it.
type Browser interface {
	db.QueryRunner
	ListSchemas(ctx context.Context) ([]db.SchemaInfo, error)
	ListTables(ctx context.Context, schema string) ([]db.TableInfo, error)
	ListColumns(ctx context.Context, schema, table string) ([]db.ColumnInfo, error)
	ClearMetadataCache()
	Warm(ctx context.Context) (int, error)
	DatabaseInfo(ctx context.Context) (*db.DatabaseInfo, error)
}

var _ Browser = (*db.Inspector)(nil)

// Options configures a Session. Zero values select stdout, stderr, a nop
// logger, less and the public schema.
type Options struct {
	Out           io.Writer
	ErrOut        io.Writer
	Logger        *zap.Logger
	Pager         *display.Pager
	DefaultSchema string
	// CatchInterrupt makes Ctrl+C cancel the running task rather than
	// terminate the process.
	CatchInterrupt bool
}

// Session represents an interactive browsing session
type Session struct {
	browser Browser
	pager   *db.TablePager
	runner  *TaskRunner
	viewer  *display.Pager
	out     io.Writer
	errOut  io.Writer
	logger  *zap.Logger
	id      string

	schema     string
	lastResult *db.QueryResult
	lastTitle  string
	sqlBuffer  strings.Builder
}

// NewSession creates a new session over browser.
func NewSession(browser Browser, opts Options) *Session {
	id := uuid.NewString()
	logger := logging.OrNop(opts.Logger).With(zap.String("session_id", id))

	s := &Session{
		browser: browser,
		pager:   db.NewTablePager(browser, logger),
		runner:  NewTaskRunner(opts.CatchInterrupt),
		viewer:  opts.Pager,
		out:     opts.Out,
		errOut:  opts.ErrOut,
		logger:  logger,
		id:      id,
		schema:  opts.DefaultSchema,
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.errOut == nil {
		s.errOut = os.Stderr
	}
	if s.viewer == nil {
		s.viewer = display.NewLessPager()
	}
	if s.schema == "" {
		s.schema = "public"
	}
	return s
}

// ID returns the session id attached to every log line.
func (s *Session) ID() string {
	return s.id
}

// Start runs the read-eval-print loop until \q, Ctrl+D or ctx is done.
func (s *Session) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    s.completer(ctx),
		InterruptPrompt: "^C",
		EOFPrompt:       `\q`,
		Stdout:          s.out,
		Stderr:          s.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	s.logger.Info("session started")
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.sqlBuffer.Reset()
			rl.SetPrompt(prompt)
			continue
		}
		if err != nil {
			break
		}

		if s.HandleLine(ctx, line) {
			break
		}
		if s.sqlBuffer.Len() > 0 {
			rl.SetPrompt(continuationPrompt)
		} else {
			rl.SetPrompt(prompt)
		}
	}

	s.runner.Cancel()
	s.logger.Info("session ended")
	fmt.Fprintln(s.out, "Goodbye!")
	return nil
}

// HandleLine processes one line of input and reports whether the session
// should end. Backslash commands run immediately, even while a statement
// is being typed; anything else is buffered as SQL until a line ends with
// a semicolon.
func (s *Session) HandleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, `\`) {
		return s.handleCommand(ctx, line)
	}

	if s.sqlBuffer.Len() > 0 {
		s.sqlBuffer.WriteString("\n")
	}
	s.sqlBuffer.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		return false
	}

	query := strings.TrimSuffix(s.sqlBuffer.String(), ";")
	s.sqlBuffer.Reset()
	s.runQuery(ctx, query)
	return false
}

// Pending reports whether an unterminated SQL statement is buffered.
func (s *Session) Pending() bool {
	return s.sqlBuffer.Len() > 0
}
