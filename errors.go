package liverow

import (
	"errors"
	"fmt"
)

// Kind classifies the failure modes of the data-access layer.
type Kind int

const (
	// KindSchema covers catalog build failures: unreachable database,
	// unknown tables, accessor naming collisions.
	KindSchema Kind = iota + 1
	// KindJoinNotFound means auto-join resolution found no foreign key
	// between the two tables.
	KindJoinNotFound
	// KindJoinAmbiguity means auto-join resolution found more than one
	// candidate foreign key.
	KindJoinAmbiguity
	// KindNoPrimaryKey means a primary-key-dependent operation was
	// requested on a keyless table.
	KindNoPrimaryKey
	// KindStaleRow means an operation on a deleted or invalidated row.
	KindStaleRow
	// KindExec covers driver-level statement failures: constraint
	// violations, syntax errors, connectivity loss mid-statement.
	KindExec
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindJoinNotFound:
		return "join_not_found"
	case KindJoinAmbiguity:
		return "join_ambiguity"
	case KindNoPrimaryKey:
		return "no_primary_key"
	case KindStaleRow:
		return "stale_row"
	case KindExec:
		return "exec"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single reportable error value every public entry point fails
// with. Op names the operation, Table the table involved (may be empty).
type Error struct {
	Kind  Kind
	Op    string
	Table string
	Err   error
}

// Error renders the plain message form.
func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// HasKind reports whether err is (or wraps) an *Error of the given kind.
func HasKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// errf builds a typed error with a formatted cause.
func errf(kind Kind, op, table, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Table: table, Err: fmt.Errorf(format, args...)}
}

// wrapf wraps an existing cause with kind and operation context. The cause
// keeps its identity for errors.Is/As; wrapping an *Error returns it
// unchanged so the original kind survives layered call paths.
func wrapf(kind Kind, op, table string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Table: table, Err: err}
}

// ErrNoRow is returned by Session.WithRow when the query matches nothing.
// OneRow itself represents absence as a nil row, not an error.
var ErrNoRow = errors.New("no matching row")

// ErrorFormat is the presentation policy for reportable errors, selected
// once at Open and applied uniformly wherever errors are rendered rather
// than returned (CLI output, scoped-flush warnings).
type ErrorFormat interface {
	Format(err error) string
}

// PlainFormat renders the bare message string.
type PlainFormat struct{}

// Format implements ErrorFormat.
func (PlainFormat) Format(err error) string { return err.Error() }

// RecordFormat renders a structured kind/op/table/msg record.
type RecordFormat struct{}

// Format implements ErrorFormat.
func (RecordFormat) Format(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return fmt.Sprintf("kind=unknown msg=%q", err.Error())
	}
	if e.Table != "" {
		return fmt.Sprintf("kind=%s op=%s table=%s msg=%q", e.Kind, e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("kind=%s op=%s msg=%q", e.Kind, e.Op, e.Err)
}
