package liverow

// JoinKind selects the join operator for one join clause.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

// SQL returns the join keyword sequence.
func (k JoinKind) SQL() string {
	switch k {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	default:
		return "JOIN"
	}
}

// Join is one resolved join clause of a query spec. Exactly one of On or
// Using is set once normalization finishes; auto-derived foreign key joins
// are synthesized into On.
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	Sub   *QuerySpec // derived-table join; requires an explicit On or Using
	On    string
	Using string

	// prev is the table added just before this join, the anchor for
	// foreign-key auto-resolution. Set by the normalizer.
	prev tableRef
}

// QuerySpec is the canonical, fully-resolved representation of one query
// before SQL text generation. Built by the normalizer; immutable afterwards.
type QuerySpec struct {
	Table   string
	Alias   string
	RawSQL  string // opaque "select ... from ..." form; Table/Joins unused
	RawArgs []any

	Joins   []Join
	Columns []string
	Where   any
	GroupBy []string
	Having  any
	Order   any

	Limit     int
	HasLimit  bool
	Offset    int
	HasOffset bool

	Hook    func(sql string, args []any)
	SQLInto *string
	DryRun  bool
	Each    func(*Row) error
}

// primaryRef returns the name the primary table is addressed by in SQL.
func (q *QuerySpec) primaryRef() string {
	if q.Alias != "" {
		return q.Alias
	}
	return q.Table
}

// Directive is a tagged query modifier accepted anywhere among the
// arguments of OneRow, AllRows, and ordered table-spec lists. Directives are
// recognized by type, not by position.
type Directive interface {
	apply(n *normalizer) error
}

// directiveFunc adapts a closure to the Directive interface.
type directiveFunc func(n *normalizer) error

func (f directiveFunc) apply(n *normalizer) error { return f(n) }

// Columns sets the projection list. Each entry is a column name, optionally
// qualified ("employee.name") or a qualified star ("employee.*").
func Columns(cols ...string) Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.Columns = append(n.spec.Columns, cols...)
		return nil
	})
}

// Inner adds an inner join against the given table ("name" or "name alias").
func Inner(table string) Directive { return joinDirective(JoinInner, table) }

// Left adds a left outer join against the given table.
func Left(table string) Directive { return joinDirective(JoinLeft, table) }

// Right adds a right outer join against the given table.
func Right(table string) Directive { return joinDirective(JoinRight, table) }

func joinDirective(kind JoinKind, table string) Directive {
	return directiveFunc(func(n *normalizer) error {
		return n.addTable(kind, table)
	})
}

// Subquery joins a derived table: the sub-spec is rendered as a
// parenthesized select under the given alias. Foreign keys cannot be
// inferred for derived tables, so an explicit On or Using must follow.
func Subquery(kind JoinKind, alias string, sub *QuerySpec) Directive {
	return directiveFunc(func(n *normalizer) error {
		return n.addSubquery(kind, alias, sub)
	})
}

// On attaches an explicit join condition to the most recently added join.
func On(cond string) Directive {
	return directiveFunc(func(n *normalizer) error {
		return n.setOn(cond)
	})
}

// Using attaches an explicit USING column to the most recently added join.
func Using(column string) Directive {
	return directiveFunc(func(n *normalizer) error {
		return n.setUsing(column)
	})
}

// GroupBy sets the grouping column list.
func GroupBy(cols ...string) Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.GroupBy = append(n.spec.GroupBy, cols...)
		return nil
	})
}

// Having sets the having condition, translated like a where condition.
func Having(cond any) Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.Having = cond
		return nil
	})
}

// OrderBy sets the order-by spec ("col", "col DESC, other ASC", or []string).
func OrderBy(order any) Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.Order = order
		return nil
	})
}

// Limit caps the number of returned rows.
func Limit(n int) Directive {
	return directiveFunc(func(s *normalizer) error {
		s.spec.Limit = n
		s.spec.HasLimit = true
		return nil
	})
}

// Offset skips the given number of rows.
func Offset(n int) Directive {
	return directiveFunc(func(s *normalizer) error {
		s.spec.Offset = n
		s.spec.HasOffset = true
		return nil
	})
}

// Capture stores the final SQL text into the given holder before execution.
func Capture(into *string) Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.SQLInto = into
		return nil
	})
}

// Hook registers a function invoked with the final SQL text and bind list
// before execution (or instead of it, under DryRun).
func Hook(fn func(sql string, args []any)) Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.Hook = fn
		return nil
	})
}

// DryRun builds the statement but short-circuits before execution.
func DryRun() Directive {
	return directiveFunc(func(n *normalizer) error {
		n.spec.DryRun = true
		return nil
	})
}

// Each registers a per-row visitor invoked for every hydrated row. At most
// one visitor per query; a bare func(*Row) error among the arguments is
// accepted as shorthand.
func Each(fn func(*Row) error) Directive {
	return directiveFunc(func(n *normalizer) error {
		return n.setEach(fn)
	})
}
