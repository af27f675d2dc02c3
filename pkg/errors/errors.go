package errors

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Failure categories surfaced by the access layer. Callers match them with
// errors.Is; the driver error stays reachable through errors.As.
var (
	// ErrConfiguration means the connection string is missing or malformed.
	ErrConfiguration = stderrors.New("configuration error")

	// ErrNotInitialized means a connection was requested before any
	// configuration was supplied.
	ErrNotInitialized = stderrors.New("connection manager not initialized")

	// ErrConnection means the database could not be reached or the
	// connection broke mid-call.
	ErrConnection = stderrors.New("connection error")

	// ErrReadOnlyViolation means the statement starts with a mutating verb.
	ErrReadOnlyViolation = stderrors.New("read-only violation")

	// ErrQueryExecution means the database rejected the statement.
	ErrQueryExecution = stderrors.New("query execution error")
)

// Configuration wraps a configuration problem.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ReadOnlyViolation reports a statement rejected by the mutating-verb check.
func ReadOnlyViolation(verb string) error {
	return fmt.Errorf("%w: only read-only queries are allowed (%s statements are rejected)",
		ErrReadOnlyViolation, verb)
}

// Connection wraps a failure to reach the database. A cancelled context is
// kept unclassified.
func Connection(op string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

// Classify maps a driver error onto the taxonomy. op names the failed
// operation and becomes part of the message. Errors that are already
// classified pass through, and so does a cancelled context.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s: %w", ErrQueryExecution, op, err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: query timed out: %w", ErrQueryExecution, op, err)
	}
	if IsConnectionFailure(err) {
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrQueryExecution, op, err)
}

// IsConnectionFailure reports whether err looks like a transport or
// authentication failure rather than a rejected statement.
func IsConnectionFailure(err error) bool {
	var connectErr *pgconn.ConnectError
	if stderrors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	return stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, sql.ErrConnDone) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.EOF)
}

func isClassified(err error) bool {
	for _, sentinel := range []error{
		ErrConfiguration, ErrNotInitialized, ErrConnection, ErrReadOnlyViolation, ErrQueryExecution,
	} {
		if stderrors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Is and As forward to the standard library so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Message returns the text shown to the user for err. For server errors it
// is the server's own message; otherwise the full wrapped chain.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}

// Status renders an inline status line for a failed action.
func Status(err error) string {
	return "Error: " + Message(err)
}
