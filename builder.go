package liverow

import (
	"sort"
	"strings"

	"github.com/liverow/liverow/schema"
)

// buildSelect turns a query spec into SQL text plus an ordered bind list.
// Condition and order translation is delegated to the translator; identifier
// quoting and placeholder style come from the catalog's dialect.
func buildSelect(cat *Catalog, tr Translator, spec *QuerySpec) (string, []any, error) {
	idx := 1
	return buildSelectAt(cat, tr, spec, &idx)
}

// buildSelectAt is buildSelect with an explicit placeholder start index, so
// derived-table sub-selects keep numbering continuous with their parent.
func buildSelectAt(cat *Catalog, tr Translator, spec *QuerySpec, idx *int) (string, []any, error) {
	if spec.RawSQL != "" {
		return buildRawSelect(cat, tr, spec)
	}

	d := cat.Dialect()
	table, err := cat.Table(spec.Table)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	proj, err := projection(d, spec)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(proj)

	b.WriteString(" FROM ")
	b.WriteString(d.Quote(spec.Table))
	if spec.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(d.Quote(spec.Alias))
	}

	for _, j := range spec.Joins {
		b.WriteString(" ")
		b.WriteString(j.Kind.SQL())
		b.WriteString(" ")

		if j.Sub != nil {
			subSQL, subArgs, err := buildSelectAt(cat, tr, j.Sub, idx)
			if err != nil {
				return "", nil, err
			}
			b.WriteString("(")
			b.WriteString(subSQL)
			b.WriteString(") AS ")
			b.WriteString(d.Quote(j.Alias))
			args = append(args, subArgs...)
		} else {
			b.WriteString(d.Quote(j.Table))
			if j.Alias != "" {
				b.WriteString(" AS ")
				b.WriteString(d.Quote(j.Alias))
			}
		}

		switch {
		case j.Using != "":
			b.WriteString(" USING (")
			b.WriteString(d.Quote(j.Using))
			b.WriteString(")")
		case j.On != "":
			b.WriteString(" ON ")
			b.WriteString(j.On)
		}
	}

	if spec.Where != nil {
		sql, whereArgs, next, err := tr.Translate(table, d, spec.Where, *idx)
		if err != nil {
			return "", nil, err
		}
		*idx = next
		b.WriteString(" WHERE ")
		b.WriteString(sql)
		args = append(args, whereArgs...)
	}

	if len(spec.GroupBy) > 0 {
		quoted := make([]string, len(spec.GroupBy))
		for i, col := range spec.GroupBy {
			q, err := quoteColumnRef(d, col)
			if err != nil {
				return "", nil, err
			}
			quoted[i] = q
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(quoted, ", "))
	}

	if spec.Having != nil {
		sql, havingArgs, next, err := tr.Translate(table, d, spec.Having, *idx)
		if err != nil {
			return "", nil, err
		}
		*idx = next
		b.WriteString(" HAVING ")
		b.WriteString(sql)
		args = append(args, havingArgs...)
	}

	tail, tailArgs, err := buildTail(cat, tr, spec, idx)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(tail)
	args = append(args, tailArgs...)

	return b.String(), args, nil
}

// buildRawSelect layers order/limit/offset modifiers and bind values onto an
// opaque SQL string; no column or join inference happens on this path, so a
// translated condition cannot be merged into the text and is an error rather
// than a silently dropped clause.
func buildRawSelect(cat *Catalog, tr Translator, spec *QuerySpec) (string, []any, error) {
	if spec.Where != nil || spec.Having != nil {
		return "", nil, errf(KindExec, "select", "",
			"raw SQL cannot carry a translated condition, write it into the statement text")
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(spec.RawSQL))
	args := append([]any(nil), spec.RawArgs...)

	idx := len(args) + 1
	tail, tailArgs, err := buildTail(cat, tr, spec, &idx)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(tail)
	args = append(args, tailArgs...)

	return b.String(), args, nil
}

// buildTail renders the shared ORDER BY / LIMIT / OFFSET trailer.
func buildTail(cat *Catalog, tr Translator, spec *QuerySpec, idx *int) (string, []any, error) {
	d := cat.Dialect()
	var b strings.Builder
	var args []any

	if spec.Order != nil {
		sql, err := tr.TranslateOrder(d, spec.Order)
		if err != nil {
			return "", nil, err
		}
		if sql != "" {
			b.WriteString(" ORDER BY ")
			b.WriteString(sql)
		}
	}

	if spec.HasLimit {
		b.WriteString(" LIMIT ")
		b.WriteString(d.Placeholder(*idx))
		*idx++
		args = append(args, spec.Limit)
	} else if spec.HasOffset {
		// OFFSET without LIMIT needs a dialect-specific "no limit" marker
		// on engines that require the LIMIT keyword.
		switch d.Name() {
		case "sqlite":
			b.WriteString(" LIMIT -1")
		case "mysql":
			b.WriteString(" LIMIT 18446744073709551615")
		}
	}

	if spec.HasOffset {
		b.WriteString(" OFFSET ")
		b.WriteString(d.Placeholder(*idx))
		*idx++
		args = append(args, spec.Offset)
	}

	return b.String(), args, nil
}

// projection renders the column list: the explicit projection when given,
// a bare * for single-table queries, and the primary table's columns when
// joins are present so hydration stays aligned with the descriptor.
func projection(d schema.Dialect, spec *QuerySpec) (string, error) {
	if len(spec.Columns) > 0 {
		quoted := make([]string, len(spec.Columns))
		for i, col := range spec.Columns {
			q, err := quoteColumnRef(d, col)
			if err != nil {
				return "", err
			}
			quoted[i] = q
		}
		return strings.Join(quoted, ", "), nil
	}
	if len(spec.Joins) == 0 {
		return "*", nil
	}
	return d.Quote(spec.primaryRef()) + ".*", nil
}

// buildInsert constructs an INSERT for one record. Column names are sorted
// for deterministic output; Literal expression values are embedded verbatim
// with their binds renumbered in place. Appends RETURNING * when the
// dialect supports it so database-applied defaults come back with the row.
func buildInsert(cat *Catalog, table string, values map[string]any) (string, []any, error) {
	d := cat.Dialect()
	if len(values) == 0 {
		return "", nil, errf(KindExec, "insert", table, "at least one column value is required")
	}

	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	var args []any
	idx := 1

	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := validIdentifier(col); err != nil {
			return "", nil, errf(KindExec, "insert", table, "invalid column: %v", err)
		}
		b.WriteString(d.Quote(col))
	}
	b.WriteString(") VALUES (")

	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if expr, ok := values[col].(Expr); ok {
			sql, exprArgs, err := expr.expand(d, &idx)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(sql)
			args = append(args, exprArgs...)
			continue
		}
		b.WriteString(d.Placeholder(idx))
		idx++
		args = append(args, values[col])
	}
	b.WriteString(")")

	if d.SupportsReturning() {
		b.WriteString(" RETURNING *")
	}

	return b.String(), args, nil
}

// buildUpdate constructs an UPDATE with a parameterized SET clause and a
// translated where condition. Refuses to update all rows: a nil condition
// is an error at the call sites, enforced here as well.
func buildUpdate(cat *Catalog, tr Translator, table *schema.Table, values map[string]any, where any) (string, []any, error) {
	d := cat.Dialect()
	if len(values) == 0 {
		return "", nil, errf(KindExec, "update", table.Name, "at least one column value is required")
	}
	if where == nil {
		return "", nil, errf(KindExec, "update", table.Name,
			"condition required (refusing to update all rows)")
	}

	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	var args []any
	idx := 1

	b.WriteString("UPDATE ")
	b.WriteString(d.Quote(table.Name))
	b.WriteString(" SET ")

	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := validIdentifier(col); err != nil {
			return "", nil, errf(KindExec, "update", table.Name, "invalid column: %v", err)
		}
		b.WriteString(d.Quote(col))
		b.WriteString(" = ")
		if expr, ok := values[col].(Expr); ok {
			sql, exprArgs, err := expr.expand(d, &idx)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(sql)
			args = append(args, exprArgs...)
			continue
		}
		b.WriteString(d.Placeholder(idx))
		idx++
		args = append(args, values[col])
	}

	sql, whereArgs, _, err := tr.Translate(table, d, where, idx)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" WHERE ")
	b.WriteString(sql)
	args = append(args, whereArgs...)

	return b.String(), args, nil
}

// buildDelete constructs a DELETE with a translated where condition,
// likewise refusing to run unconditioned.
func buildDelete(cat *Catalog, tr Translator, table *schema.Table, where any) (string, []any, error) {
	d := cat.Dialect()
	if where == nil {
		return "", nil, errf(KindExec, "delete", table.Name,
			"condition required (refusing to delete all rows)")
	}

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(d.Quote(table.Name))

	sql, args, _, err := tr.Translate(table, d, where, 1)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" WHERE ")
	b.WriteString(sql)

	return b.String(), args, nil
}

// buildCount constructs a SELECT COUNT(*) with an optional condition.
func buildCount(cat *Catalog, tr Translator, table *schema.Table, where any) (string, []any, error) {
	d := cat.Dialect()

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(d.Quote(table.Name))

	if where == nil {
		return b.String(), nil, nil
	}
	sql, args, _, err := tr.Translate(table, d, where, 1)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" WHERE ")
	b.WriteString(sql)
	return b.String(), args, nil
}

// buildFetch constructs the SELECT used by Row.Fetch and the MySQL insert
// fallback: all columns by primary-key equality.
func buildFetch(cat *Catalog, tr Translator, table *schema.Table, pk map[string]any) (string, []any, error) {
	d := cat.Dialect()

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.Quote(table.Name))

	sql, args, _, err := tr.Translate(table, d, pk, 1)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" WHERE ")
	b.WriteString(sql)
	b.WriteString(" LIMIT 1")
	return b.String(), args, nil
}
