// Package liverow is a schema-introspecting data-access layer. Opening a
// session introspects the connected database's tables, columns, primary keys,
// and foreign keys into a catalog, then offers a flexible query surface over
// the discovered schema:
//
//	sess, err := liverow.Open(ctx, "postgres", dsn)
//	row, err := sess.OneRow(ctx, "employee", 42)
//	rows, err := sess.AllRows(ctx,
//		[]any{"employee", "employer"},             // auto-joined via the FK
//		map[string]any{"employee.active": true},
//		liverow.OrderBy("name"), liverow.Limit(10))
//
// Queries take a bare table name, a raw "select ... from ..." string, or an
// ordered []any mixing table names and typed directives (Columns, Inner,
// Left, Right, On, Using, GroupBy, Having, OrderBy, Limit, Offset, Capture,
// Hook, DryRun, Each). When two tables are related by exactly one foreign
// key, the join condition is derived automatically.
//
// Result rows are dirty-tracked: Set marks columns changed, Update writes
// only those back by primary key, Delete invalidates the row, Fetch reloads
// it. JSON-typed columns decode to nested structures on read and re-encode
// on write. Relationships derived from foreign keys are traversed by name
// through RelatedOne and RelatedAll.
//
// Write values wrapped with Literal embed raw SQL instead of bound scalars:
//
//	err = row.Set("balance", liverow.Literal("balance + ?", 10))
package liverow
