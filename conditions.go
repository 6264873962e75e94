package liverow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liverow/liverow/schema"
)

// Translator turns a structured condition into a SQL fragment plus ordered
// bind values. Scalar inputs mean primary-key equality on the given table,
// mapping inputs mean field conditions ANDed together, and ordered-list
// inputs mean OR-of-conditions. Implementations are pluggable at Open; the
// core passes conditions through untouched.
type Translator interface {
	// Translate renders cond to a fragment whose placeholders start at the
	// 1-based index start, returning the next free index.
	Translate(t *schema.Table, d schema.Dialect, cond any, start int) (sql string, args []any, next int, err error)

	// TranslateOrder renders an order-by spec ("col", "col DESC, other", or
	// a []string of such elements) to a validated SQL fragment.
	TranslateOrder(d schema.Dialect, order any) (string, error)
}

// StdTranslator is the default condition translator.
type StdTranslator struct{}

// Translate implements Translator.
func (StdTranslator) Translate(t *schema.Table, d schema.Dialect, cond any, start int) (string, []any, int, error) {
	switch c := cond.(type) {
	case nil:
		return "", nil, start, nil

	case Cond:
		sql, args, err := Expr(c).expand(d, &start)
		return sql, args, start, err

	case Expr:
		sql, args, err := c.expand(d, &start)
		return sql, args, start, err

	case string:
		// Prewritten fragment with no binds.
		return c, nil, start, nil

	case map[string]any:
		return translateMap(t, d, c, start)

	case []any:
		if len(c) == 0 {
			return "", nil, start, fmt.Errorf("empty condition list")
		}
		parts := make([]string, 0, len(c))
		var args []any
		for _, sub := range c {
			sql, subArgs, next, err := (StdTranslator{}).Translate(t, d, sub, start)
			if err != nil {
				return "", nil, start, err
			}
			start = next
			parts = append(parts, "("+sql+")")
			args = append(args, subArgs...)
		}
		return strings.Join(parts, " OR "), args, start, nil

	default:
		// Any remaining scalar is a primary-key equality shortcut.
		return translatePK(t, d, c, start)
	}
}

// translatePK renders a scalar as single-column primary-key equality.
func translatePK(t *schema.Table, d schema.Dialect, v any, start int) (string, []any, int, error) {
	if t == nil || !t.HasPrimaryKey() {
		name := ""
		if t != nil {
			name = t.Name
		}
		return "", nil, start, errf(KindNoPrimaryKey, "translate", name,
			"scalar condition requires a primary key")
	}
	if len(t.PrimaryKey) > 1 {
		return "", nil, start, errf(KindNoPrimaryKey, "translate", t.Name,
			"scalar condition requires a single-column primary key, table has %d", len(t.PrimaryKey))
	}
	sql := d.Quote(t.PrimaryKey[0]) + " = " + d.Placeholder(start)
	return sql, []any{v}, start + 1, nil
}

// translateMap renders a field-condition mapping. Keys are either a column
// name (equality) or "column op" for explicit operators. Values may be nil
// (IS NULL), a slice (IN list), a literal Expr, or an ordinary bound scalar.
// Keys are sorted for deterministic output.
func translateMap(t *schema.Table, d schema.Dialect, m map[string]any, start int) (string, []any, int, error) {
	if len(m) == 0 {
		return "", nil, start, fmt.Errorf("empty condition mapping")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	var args []any

	for _, key := range keys {
		col, op, err := splitFieldOp(key)
		if err != nil {
			return "", nil, start, err
		}
		quoted, err := quoteColumnRef(d, col)
		if err != nil {
			return "", nil, start, err
		}

		switch v := m[key].(type) {
		case nil:
			switch op {
			case "=":
				parts = append(parts, quoted+" IS NULL")
			case "!=", "<>":
				parts = append(parts, quoted+" IS NOT NULL")
			default:
				return "", nil, start, fmt.Errorf("operator %q cannot take a nil value", op)
			}

		case Expr:
			sql, exprArgs, err := v.expand(d, &start)
			if err != nil {
				return "", nil, start, err
			}
			parts = append(parts, quoted+" "+op+" ("+sql+")")
			args = append(args, exprArgs...)

		case []any:
			if len(v) == 0 {
				return "", nil, start, fmt.Errorf("empty IN list for column %q", col)
			}
			placeholders := make([]string, len(v))
			for i, item := range v {
				placeholders[i] = d.Placeholder(start)
				start++
				args = append(args, item)
			}
			in := "IN"
			if op == "!=" || op == "<>" {
				in = "NOT IN"
			}
			parts = append(parts, quoted+" "+in+" ("+strings.Join(placeholders, ", ")+")")

		default:
			parts = append(parts, quoted+" "+op+" "+d.Placeholder(start))
			start++
			args = append(args, v)
		}
	}

	return strings.Join(parts, " AND "), args, start, nil
}

// condOperators is the operator whitelist for "column op" mapping keys.
var condOperators = map[string]bool{
	"=": true, "!=": true, "<>": true,
	">": true, ">=": true, "<": true, "<=": true,
	"LIKE": true, "NOT LIKE": true,
}

// splitFieldOp splits a mapping key into column and operator, defaulting to
// equality.
func splitFieldOp(key string) (col, op string, err error) {
	key = strings.TrimSpace(key)
	idx := strings.IndexAny(key, " \t")
	if idx < 0 {
		return key, "=", nil
	}
	col = key[:idx]
	op = strings.ToUpper(strings.TrimSpace(key[idx+1:]))
	if !condOperators[op] {
		return "", "", fmt.Errorf("unsupported condition operator %q in key %q", op, key)
	}
	return col, op, nil
}

// TranslateOrder implements Translator.
func (StdTranslator) TranslateOrder(d schema.Dialect, order any) (string, error) {
	switch o := order.(type) {
	case nil:
		return "", nil
	case string:
		return parseOrder(d, o)
	case []string:
		parts := make([]string, 0, len(o))
		for _, item := range o {
			sql, err := parseOrder(d, item)
			if err != nil {
				return "", err
			}
			if sql != "" {
				parts = append(parts, sql)
			}
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("unsupported order-by spec of type %T", order)
	}
}

// parseOrder parses "created_at DESC, name ASC" into a validated, quoted
// fragment. Direction defaults to ASC when omitted.
func parseOrder(d schema.Dialect, order string) (string, error) {
	order = strings.TrimSpace(order)
	if order == "" {
		return "", nil
	}

	parts := strings.Split(order, ",")
	clauses := make([]string, 0, len(parts))

	for _, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > 2 {
			return "", fmt.Errorf("invalid order clause %q: expected 'column [ASC|DESC]'", strings.TrimSpace(part))
		}

		quoted, err := quoteColumnRef(d, tokens[0])
		if err != nil {
			return "", fmt.Errorf("invalid order column: %w", err)
		}

		dir := "ASC"
		if len(tokens) == 2 {
			switch up := strings.ToUpper(tokens[1]); up {
			case "ASC", "DESC":
				dir = up
			default:
				return "", fmt.Errorf("invalid order direction %q: must be ASC or DESC", tokens[1])
			}
		}
		clauses = append(clauses, quoted+" "+dir)
	}

	return strings.Join(clauses, ", "), nil
}
