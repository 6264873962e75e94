package liverow

import (
	"fmt"
	"regexp"
	"strings"
)

// rawSelectRegex recognizes the opaque-SQL table-spec form: a string that
// begins with the select keyword and contains a FROM clause.
var rawSelectRegex = regexp.MustCompile(`(?is)^\s*select\b.*\bfrom\b`)

// normalizer accumulates state while turning the polymorphic call arguments
// of OneRow/AllRows into a canonical QuerySpec.
type normalizer struct {
	cat  *Catalog
	spec *QuerySpec

	// chain records every table added to the join graph, in order; entry 0
	// is the primary table. Auto-join resolution pairs each join with the
	// table added immediately before it.
	chain []tableRef
}

type tableRef struct {
	table string
	alias string
}

func (r tableRef) ref() string {
	if r.alias != "" {
		return r.alias
	}
	return r.table
}

// normalize resolves a table spec (bare name, raw SQL, ordered directive
// list, or prebuilt *QuerySpec) plus modifier arguments into one QuerySpec.
func normalize(cat *Catalog, tableSpec any, args []any) (*QuerySpec, error) {
	n := &normalizer{cat: cat, spec: &QuerySpec{}}

	switch ts := tableSpec.(type) {
	case *QuerySpec:
		copied := *ts
		n.spec = &copied
		if n.spec.Table != "" {
			n.chain = append(n.chain, tableRef{table: n.spec.Table, alias: n.spec.Alias})
		}

	case string:
		if rawSelectRegex.MatchString(ts) {
			n.spec.RawSQL = ts
		} else if err := n.addTable(JoinInner, ts); err != nil {
			return nil, err
		}

	case []any:
		for _, item := range ts {
			switch v := item.(type) {
			case string:
				if err := n.addTable(JoinInner, v); err != nil {
					return nil, err
				}
			case Directive:
				if err := v.apply(n); err != nil {
					return nil, err
				}
			case func(*Row) error:
				if err := n.setEach(v); err != nil {
					return nil, err
				}
			default:
				return nil, errf(KindSchema, "normalize", "",
					"unsupported table-spec element of type %T", item)
			}
		}
		if n.spec.Table == "" {
			return nil, errf(KindSchema, "normalize", "", "table spec names no table")
		}

	default:
		return nil, errf(KindSchema, "normalize", "",
			"unsupported table spec of type %T", tableSpec)
	}

	if err := n.applyArgs(args); err != nil {
		return nil, err
	}
	if err := n.resolveJoins(); err != nil {
		return nil, err
	}
	return n.spec, nil
}

// applyArgs interprets the modifier arguments following the table spec.
// Directives and per-row visitors may appear anywhere; the first remaining
// value is the where condition (a scalar means primary-key equality). For
// the opaque-SQL form, remaining values are bind values for the raw text.
func (n *normalizer) applyArgs(args []any) error {
	for _, arg := range args {
		switch v := arg.(type) {
		case Directive:
			if err := v.apply(n); err != nil {
				return err
			}
		case func(*Row) error:
			if err := n.setEach(v); err != nil {
				return err
			}
		default:
			if n.spec.RawSQL != "" {
				if list, ok := v.([]any); ok {
					n.spec.RawArgs = append(n.spec.RawArgs, list...)
				} else {
					n.spec.RawArgs = append(n.spec.RawArgs, v)
				}
				continue
			}
			if n.spec.Where != nil {
				return errf(KindSchema, "normalize", n.spec.Table,
					"multiple where conditions given")
			}
			n.spec.Where = v
		}
	}
	return nil
}

// addTable adds a table to the join graph: the first becomes the primary
// table, every further one a join clause whose condition is resolved later
// unless an explicit On/Using follows.
func (n *normalizer) addTable(kind JoinKind, spec string) error {
	name, alias, err := splitTableAlias(spec)
	if err != nil {
		return err
	}
	if _, err := n.cat.Table(name); err != nil {
		return err
	}

	if n.spec.Table == "" {
		if kind != JoinInner {
			return errf(KindSchema, "normalize", name,
				"outer join given before any primary table")
		}
		n.spec.Table = name
		n.spec.Alias = alias
	} else {
		n.spec.Joins = append(n.spec.Joins, Join{
			Kind: kind, Table: name, Alias: alias,
			prev: n.chain[len(n.chain)-1],
		})
	}
	n.chain = append(n.chain, tableRef{table: name, alias: alias})
	return nil
}

// addSubquery adds a derived-table join.
func (n *normalizer) addSubquery(kind JoinKind, alias string, sub *QuerySpec) error {
	if n.spec.Table == "" {
		return errf(KindSchema, "normalize", alias,
			"derived-table join given before any primary table")
	}
	if err := validIdentifier(alias); err != nil {
		return errf(KindSchema, "normalize", alias, "invalid derived-table alias: %v", err)
	}
	n.spec.Joins = append(n.spec.Joins, Join{Kind: kind, Alias: alias, Sub: sub})
	n.chain = append(n.chain, tableRef{alias: alias})
	return nil
}

// setOn attaches an explicit on-condition to the most recent join.
func (n *normalizer) setOn(cond string) error {
	j, err := n.lastJoin("on")
	if err != nil {
		return err
	}
	j.On = cond
	return nil
}

// setUsing attaches an explicit using-column to the most recent join.
func (n *normalizer) setUsing(column string) error {
	if err := validIdentifier(column); err != nil {
		return errf(KindSchema, "normalize", "", "invalid using column: %v", err)
	}
	j, err := n.lastJoin("using")
	if err != nil {
		return err
	}
	j.Using = column
	return nil
}

func (n *normalizer) lastJoin(directive string) (*Join, error) {
	if len(n.spec.Joins) == 0 {
		return nil, errf(KindSchema, "normalize", n.spec.Table,
			"%s directive without a preceding join", directive)
	}
	j := &n.spec.Joins[len(n.spec.Joins)-1]
	if j.On != "" || j.Using != "" {
		return nil, errf(KindSchema, "normalize", j.Table,
			"join already has a condition, cannot apply %s", directive)
	}
	return j, nil
}

// setEach records the per-row visitor. More than one visitor in a single
// call is a caller error rather than an attempt at composition.
func (n *normalizer) setEach(fn func(*Row) error) error {
	if n.spec.Each != nil {
		return errf(KindSchema, "normalize", n.spec.Table,
			"more than one per-row function given")
	}
	n.spec.Each = fn
	return nil
}

// resolveJoins synthesizes an on-condition for every join that carries
// neither an explicit condition nor a derived table, from the single
// foreign key relating the join target to the table added just before it.
func (n *normalizer) resolveJoins() error {
	for i := range n.spec.Joins {
		j := &n.spec.Joins[i]
		if j.On != "" || j.Using != "" {
			continue
		}
		if j.Sub != nil {
			return errf(KindSchema, "normalize", j.Alias,
				"derived-table join requires an explicit on or using condition")
		}
		if j.prev.table == "" {
			return errf(KindSchema, "normalize", j.Table,
				"join has no condition and no anchor table to derive one from")
		}

		conds := n.candidateConds(j.prev, tableRef{table: j.Table, alias: j.Alias})
		switch len(conds) {
		case 0:
			return errf(KindJoinNotFound, "normalize", j.Table,
				"no foreign key relates %q and %q", j.prev.table, j.Table)
		case 1:
			j.On = conds[0]
		default:
			return errf(KindJoinAmbiguity, "normalize", j.Table,
				"%d foreign keys relate %q and %q, specify an explicit condition",
				len(conds), j.prev.table, j.Table)
		}
	}
	return nil
}

// candidateConds collects the synthesized on-conditions for every foreign
// key between two tables, in either direction.
func (n *normalizer) candidateConds(left, right tableRef) []string {
	d := n.cat.Dialect()
	var conds []string

	if lt, err := n.cat.Table(left.table); err == nil {
		for _, fk := range lt.ForeignKeys {
			if fk.ReferencedTable == right.table {
				conds = append(conds, fmt.Sprintf("%s.%s = %s.%s",
					d.Quote(left.ref()), d.Quote(fk.ColumnName),
					d.Quote(right.ref()), d.Quote(fk.ReferencedColumn)))
			}
		}
	}
	if rt, err := n.cat.Table(right.table); err == nil {
		for _, fk := range rt.ForeignKeys {
			if fk.ReferencedTable == left.table {
				conds = append(conds, fmt.Sprintf("%s.%s = %s.%s",
					d.Quote(right.ref()), d.Quote(fk.ColumnName),
					d.Quote(left.ref()), d.Quote(fk.ReferencedColumn)))
			}
		}
	}
	return conds
}

// splitTableAlias parses a "table" or "table alias" spec.
func splitTableAlias(spec string) (table, alias string, err error) {
	fields := strings.Fields(spec)
	switch len(fields) {
	case 1:
		table = fields[0]
	case 2:
		table, alias = fields[0], fields[1]
	default:
		return "", "", errf(KindSchema, "normalize", "",
			"invalid table spec %q: expected 'table' or 'table alias'", spec)
	}
	if err := validIdentifier(table); err != nil {
		return "", "", errf(KindSchema, "normalize", table, "invalid table name: %v", err)
	}
	if alias != "" {
		if err := validIdentifier(alias); err != nil {
			return "", "", errf(KindSchema, "normalize", table, "invalid alias: %v", err)
		}
	}
	return table, alias, nil
}
