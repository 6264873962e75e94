package liverow

import (
	"fmt"
	"strings"

	"github.com/liverow/liverow/schema"
)

// Expr is a literal SQL expression used as a write-time value: the fragment
// is embedded in the generated statement verbatim instead of being bound as
// an ordinary scalar. Placeholders inside the fragment are written as ? and
// renumbered into the statement's placeholder sequence, with Args supplying
// the bind values in order.
type Expr struct {
	SQL  string
	Args []any
}

// Literal wraps a raw SQL fragment, optionally parameterized with ?
// placeholders, e.g. Literal("balance + ?", 10).
func Literal(sql string, args ...any) Expr {
	return Expr{SQL: sql, Args: args}
}

// expand rewrites the fragment's ? placeholders into the dialect's style,
// starting at *idx and advancing it. The placeholder count must match the
// argument count; ? inside single-quoted literals is not supported.
func (e Expr) expand(d schema.Dialect, idx *int) (string, []any, error) {
	n := strings.Count(e.SQL, "?")
	if n != len(e.Args) {
		return "", nil, fmt.Errorf("literal expression %q has %d placeholders but %d args", e.SQL, n, len(e.Args))
	}

	var b strings.Builder
	for _, ch := range e.SQL {
		if ch == '?' {
			b.WriteString(d.Placeholder(*idx))
			*idx++
			continue
		}
		b.WriteRune(ch)
	}
	return b.String(), e.Args, nil
}

// Cond is a raw where-condition escape hatch: a prewritten SQL fragment with
// ? placeholders, passed through the condition translator untouched apart
// from placeholder renumbering.
type Cond struct {
	SQL  string
	Args []any
}

// Raw wraps a raw condition fragment, e.g. Raw("age > ? AND age < ?", 18, 65).
func Raw(sql string, args ...any) Cond {
	return Cond{SQL: sql, Args: args}
}
