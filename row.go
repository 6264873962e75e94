package liverow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/liverow/liverow/schema"
)

// Row is the mutable in-memory representation of one database row. Values
// are stored in an array index-aligned with the table descriptor's column
// order; the descriptor's shared name→index lookup resolves column names, so
// rows themselves carry no per-row key storage. A parallel dirty-flag array
// records which columns changed since the last sync with the database.
//
// Rows are not safe for concurrent mutation; each represents one logical
// snapshot with mutable dirty state.
type Row struct {
	sess  *Session
	table *schema.Table

	values []any
	dirty  []bool

	// decoded caches JSON column values in their unmarshaled form, keyed by
	// column index. Reads hit the cache; Update re-encodes dirty entries.
	decoded map[int]any

	invalid bool
}

func newRow(sess *Session, table *schema.Table) *Row {
	return &Row{
		sess:   sess,
		table:  table,
		values: make([]any, table.NumColumns()),
		dirty:  make([]bool, table.NumColumns()),
	}
}

// Table returns the shared descriptor this row is aligned with.
func (r *Row) Table() *schema.Table { return r.table }

func (r *Row) check(op string) error {
	if r.invalid {
		return errf(KindStaleRow, op, r.table.Name, "row has been deleted")
	}
	return nil
}

func (r *Row) columnIndex(op, name string) (int, error) {
	i, ok := r.table.ColumnIndex(name)
	if !ok {
		return 0, errf(KindSchema, op, r.table.Name, "no column %q", name)
	}
	return i, nil
}

// Get returns the current in-memory value of the named column. JSON-typed
// columns are decoded into nested structures on first access and the decoded
// form is cached; repeated reads return the same structure, so in-place
// mutation of it is visible to later reads (see MarkUpdated).
func (r *Row) Get(name string) (any, error) {
	if err := r.check("get"); err != nil {
		return nil, err
	}
	i, err := r.columnIndex("get", name)
	if err != nil {
		return nil, err
	}

	if !r.table.Columns[i].JSON {
		return r.values[i], nil
	}
	if v, ok := r.decoded[i]; ok {
		return v, nil
	}
	decoded, err := decodeJSON(r.values[i])
	if err != nil {
		return nil, errf(KindSchema, "get", r.table.Name, "decode json column %q: %v", name, err)
	}
	if r.decoded == nil {
		r.decoded = make(map[int]any)
	}
	r.decoded[i] = decoded
	return decoded, nil
}

// Set stores a value into the named column and marks it dirty. For JSON
// columns the structure is kept decoded and re-encoded at write time; a
// Literal expression value is passed through to the statement builder
// verbatim instead of being bound as a scalar.
func (r *Row) Set(name string, value any) error {
	if err := r.check("set"); err != nil {
		return err
	}
	i, err := r.columnIndex("set", name)
	if err != nil {
		return err
	}

	if _, isExpr := value.(Expr); !isExpr && r.table.Columns[i].JSON {
		if r.decoded == nil {
			r.decoded = make(map[int]any)
		}
		r.decoded[i] = value
	} else {
		r.values[i] = value
		delete(r.decoded, i)
	}
	r.dirty[i] = true
	return nil
}

// SetValues applies a batch of column values via Set.
func (r *Row) SetValues(values map[string]any) error {
	for name, v := range values {
		if err := r.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// MarkUpdated flags a column dirty without changing its slot. Needed when a
// nested element inside an already-decoded JSON structure was mutated in
// place, which never touches the column slot itself.
func (r *Row) MarkUpdated(name string) error {
	if err := r.check("mark_updated"); err != nil {
		return err
	}
	i, err := r.columnIndex("mark_updated", name)
	if err != nil {
		return err
	}
	r.dirty[i] = true
	return nil
}

// Data returns the row as a column→value mapping, with JSON columns in
// decoded form.
func (r *Row) Data() (map[string]any, error) {
	if err := r.check("data"); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(r.table.Columns))
	for _, col := range r.table.Columns {
		v, err := r.Get(col.Name)
		if err != nil {
			return nil, err
		}
		out[col.Name] = v
	}
	return out, nil
}

// Dirty returns the names of the columns written since the last sync,
// in descriptor order.
func (r *Row) Dirty() []string {
	var names []string
	for i, d := range r.dirty {
		if d {
			names = append(names, r.table.Columns[i].Name)
		}
	}
	return names
}

// FilterTimestamp truncates fractional seconds on every timestamp-typed
// column holding a time value, marking truncated columns dirty. Databases
// that round rather than truncate sub-second precision otherwise make
// round-trip comparisons fail.
func (r *Row) FilterTimestamp() error {
	if err := r.check("filter_timestamp"); err != nil {
		return err
	}
	for i, col := range r.table.Columns {
		if !isTimestampType(col.Type) {
			continue
		}
		t, ok := r.values[i].(time.Time)
		if !ok {
			continue
		}
		truncated := t.Truncate(time.Second)
		if !truncated.Equal(t) {
			r.values[i] = truncated
			r.dirty[i] = true
		}
	}
	return nil
}

func isTimestampType(dbType string) bool {
	up := strings.ToUpper(dbType)
	return strings.Contains(up, "TIMESTAMP") || strings.Contains(up, "DATETIME")
}

// pkValues returns the primary-key predicate mapping for this row.
func (r *Row) pkValues(op string) (map[string]any, error) {
	if !r.table.HasPrimaryKey() {
		return nil, errf(KindNoPrimaryKey, op, r.table.Name, "table has no primary key")
	}
	pk := make(map[string]any, len(r.table.PrimaryKey))
	for _, name := range r.table.PrimaryKey {
		i, err := r.columnIndex(op, name)
		if err != nil {
			return nil, err
		}
		pk[name] = r.values[i]
	}
	return pk, nil
}

// dirtyValues collects the dirty columns as a column→value mapping ready for
// the statement builder, re-encoding JSON columns from their decoded form.
func (r *Row) dirtyValues() (map[string]any, error) {
	out := make(map[string]any)
	for i, d := range r.dirty {
		if !d {
			continue
		}
		col := r.table.Columns[i]
		if v, ok := r.decoded[i]; ok && col.JSON {
			encoded, err := encodeJSON(v)
			if err != nil {
				return nil, errf(KindSchema, "update", r.table.Name,
					"encode json column %q: %v", col.Name, err)
			}
			out[col.Name] = encoded
			continue
		}
		out[col.Name] = r.values[i]
	}
	return out, nil
}

// Update writes the dirty columns back to the database by primary-key
// predicate and clears the dirty flags. A row with no dirty columns is a
// no-op and performs no statement. When a dirty column carried a Literal
// expression, the database-computed result is re-fetched so the in-memory
// row matches what was stored.
func (r *Row) Update(ctx context.Context) error {
	if err := r.check("update"); err != nil {
		return err
	}

	values, err := r.dirtyValues()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	pk, err := r.pkValues("update")
	if err != nil {
		return err
	}

	sqlText, args, err := buildUpdate(r.sess.cat(), r.sess.translator, r.table, values, pk)
	if err != nil {
		return err
	}
	if _, err := r.sess.exec(ctx, "update", r.table.Name, sqlText, args); err != nil {
		return err
	}

	hasExpr := false
	for i := range r.dirty {
		if r.dirty[i] {
			if _, ok := r.values[i].(Expr); ok {
				hasExpr = true
			}
		}
		r.dirty[i] = false
	}
	if hasExpr {
		return r.Fetch(ctx)
	}
	return nil
}

// Delete removes the row by primary-key predicate and invalidates the
// object; every later operation on it fails with a stale-row error.
func (r *Row) Delete(ctx context.Context) error {
	if err := r.check("delete"); err != nil {
		return err
	}
	pk, err := r.pkValues("delete")
	if err != nil {
		return err
	}

	sqlText, args, err := buildDelete(r.sess.cat(), r.sess.translator, r.table, pk)
	if err != nil {
		return err
	}
	if _, err := r.sess.exec(ctx, "delete", r.table.Name, sqlText, args); err != nil {
		return err
	}
	r.invalid = true
	return nil
}

// Fetch re-reads every column for the current primary key and replaces the
// value array wholesale, clearing all dirty flags and the JSON cache.
func (r *Row) Fetch(ctx context.Context) error {
	if err := r.check("fetch"); err != nil {
		return err
	}
	pk, err := r.pkValues("fetch")
	if err != nil {
		return err
	}

	sqlText, args, err := buildFetch(r.sess.cat(), r.sess.translator, r.table, pk)
	if err != nil {
		return err
	}
	cols, vals, found, err := r.sess.queryRowValues(ctx, "fetch", r.table.Name, sqlText, args)
	if err != nil {
		return err
	}
	if !found {
		return errf(KindExec, "fetch", r.table.Name, "row no longer exists")
	}
	return r.hydrate(cols, vals)
}

// hydrate maps one scanned result row into the value array by column name.
// Result columns unknown to the descriptor are ignored (joined projections);
// on duplicate names the first occurrence wins. Descriptor columns absent
// from the result keep their zero slot.
func (r *Row) hydrate(cols []string, vals []any) error {
	r.values = make([]any, r.table.NumColumns())
	r.dirty = make([]bool, r.table.NumColumns())
	r.decoded = nil

	seen := make(map[int]bool, len(cols))
	for ci, name := range cols {
		i, ok := r.table.ColumnIndex(name)
		if !ok || seen[i] {
			continue
		}
		seen[i] = true
		r.values[i] = normalizeScanned(vals[ci])
	}
	return nil
}

// normalizeScanned converts driver byte slices to strings so values compare
// and re-bind cleanly across drivers.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// RelatedOne traverses a single-valued derived relationship accessor:
// the forward direction of a foreign key, or a reverse singular accessor.
// Returns (nil, nil) when the key value is NULL or no row matches. Extra
// arguments are additional query directives.
func (r *Row) RelatedOne(ctx context.Context, name string, extra ...any) (*Row, error) {
	if err := r.check("related"); err != nil {
		return nil, err
	}
	rel, ok := r.table.Relationship(name)
	if !ok {
		return nil, errf(KindSchema, "related", r.table.Name, "no relationship accessor %q", name)
	}
	if rel.Kind == schema.RelReverseMany {
		return nil, errf(KindSchema, "related", r.table.Name,
			"accessor %q yields multiple rows, use RelatedAll", name)
	}

	targetTable, where, skip, err := r.relationQuery(rel)
	if err != nil || skip {
		return nil, err
	}
	args := append([]any{where}, extra...)
	return r.sess.OneRow(ctx, targetTable, args...)
}

// RelatedAll traverses a reverse plural accessor, returning every row on the
// declaring side of the foreign key. Extra arguments are additional query
// directives.
func (r *Row) RelatedAll(ctx context.Context, name string, extra ...any) ([]*Row, error) {
	if err := r.check("related"); err != nil {
		return nil, err
	}
	rel, ok := r.table.Relationship(name)
	if !ok {
		return nil, errf(KindSchema, "related", r.table.Name, "no relationship accessor %q", name)
	}
	if rel.Kind != schema.RelReverseMany {
		return nil, errf(KindSchema, "related", r.table.Name,
			"accessor %q yields at most one row, use RelatedOne", name)
	}

	targetTable, where, skip, err := r.relationQuery(rel)
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}
	args := append([]any{where}, extra...)
	return r.sess.AllRows(ctx, targetTable, args...)
}

// relationQuery resolves the table and key condition for one traversal.
// skip is set when this row's key value is NULL, meaning no related rows
// can exist.
func (r *Row) relationQuery(rel schema.Relationship) (table string, where map[string]any, skip bool, err error) {
	var keyColumn, condColumn string
	if rel.Kind == schema.RelForward {
		// This row declares the FK; look up the referenced row.
		table, keyColumn, condColumn = rel.TargetTable, rel.SourceColumn, rel.TargetColumn
	} else {
		// This row is referenced; look up the declaring rows.
		table, keyColumn, condColumn = rel.SourceTable, rel.TargetColumn, rel.SourceColumn
	}

	i, err := r.columnIndex("related", keyColumn)
	if err != nil {
		return "", nil, false, err
	}
	v := r.values[i]
	if v == nil {
		return "", nil, true, nil
	}
	return table, map[string]any{condColumn: v}, false, nil
}

// decodeJSON unmarshals a stored JSON column value. NULL stays nil.
func decodeJSON(v any) (any, error) {
	var data []byte
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(s)
	case []byte:
		data = s
	default:
		// Already a structure (freshly constructed row).
		return v, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeJSON marshals a decoded structure back to its stored string form.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
