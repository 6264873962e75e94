package liverow

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/liverow/liverow/internal/introspect"
	"github.com/liverow/liverow/schema"
)

// Session is the explicitly constructed context object every entry point
// operates on: the live connection gateway, the current catalog snapshot,
// and the pluggable translator/presentation policies. Multiple independent
// sessions, each with its own catalog, may coexist in one process.
//
// The catalog pointer is replaced atomically on reconnect; rows created
// before a reconnect keep consistent references into the old snapshot.
type Session struct {
	gw         *gateway
	intr       introspect.Introspector
	catalog    atomic.Pointer[Catalog]
	schemaName string

	translator Translator
	errFormat  ErrorFormat
	log        *slog.Logger
}

// Option configures a Session at Open time.
type Option func(*Session)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// WithTranslator replaces the default condition translator.
func WithTranslator(tr Translator) Option { return func(s *Session) { s.translator = tr } }

// WithErrorFormat selects the presentation policy used wherever errors are
// rendered rather than returned. Defaults to PlainFormat.
func WithErrorFormat(f ErrorFormat) Option { return func(s *Session) { s.errFormat = f } }

// WithSchema sets the database schema to introspect instead of the
// connection's default.
func WithSchema(name string) Option { return func(s *Session) { s.schemaName = name } }

// WithPool sets connection pool tuning parameters.
func WithPool(p PoolConfig) Option {
	return func(s *Session) {
		if s.gw != nil {
			s.gw.pool = p
		}
	}
}

// WithReconnectTimeout bounds the reconnect attempt after a lost connection.
func WithReconnectTimeout(d time.Duration) Option {
	return func(s *Session) {
		if s.gw != nil {
			s.gw.reconnectTimeout = d
		}
	}
}

// Open connects to the database, introspects its schema, and returns a
// ready session. Driver is one of the logical names "postgres", "mysql",
// "sqlite"; the DSN is normalized for known driver quirks before use.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Session, error) {
	intr, err := introspect.For(driver)
	if err != nil {
		return nil, wrapf(KindSchema, "open", "", err)
	}

	s := &Session{
		intr:       intr,
		translator: StdTranslator{},
		errFormat:  PlainFormat{},
		log:        slog.Default(),
	}
	// The gateway must exist before options run so pool options can reach it.
	s.gw = newGateway(intr.SQLDriver(), dsn, PoolConfig{}, 30*time.Second, s.log)
	for _, opt := range opts {
		opt(s)
	}
	s.gw.log = s.log
	// An in-band reconnect replaces the pool; the catalog has to follow it.
	s.gw.onReconnect = s.rebuildCatalog

	if err := s.gw.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.rebuildCatalog(ctx, s.gw.database()); err != nil {
		_ = s.gw.close()
		return nil, err
	}

	s.log.Debug("session opened", "driver", driver, "tables", len(s.cat().tables))
	return s, nil
}

// rebuildCatalog re-introspects through the given pool and swaps the
// session's snapshot atomically. Rows created earlier keep their old
// descriptors.
func (s *Session) rebuildCatalog(ctx context.Context, db *sqlx.DB) error {
	cat, err := buildCatalog(ctx, db, s.intr, s.schemaName)
	if err != nil {
		return err
	}
	s.catalog.Store(cat)
	return nil
}

// Catalog returns the current schema snapshot.
func (s *Session) Catalog() *Catalog { return s.catalog.Load() }

func (s *Session) cat() *Catalog { return s.catalog.Load() }

// Reconnect re-opens the pool and rebuilds the catalog, replacing the
// session's snapshot atomically. Existing rows keep the old descriptors.
func (s *Session) Reconnect(ctx context.Context) error {
	if err := s.gw.connect(ctx); err != nil {
		return err
	}
	return s.rebuildCatalog(ctx, s.gw.database())
}

// Close releases the underlying pool.
func (s *Session) Close() error { return s.gw.close() }

// exec runs a statement through the gateway and returns the affected row
// count.
func (s *Session) exec(ctx context.Context, op, table, sqlText string, args []any) (int64, error) {
	var affected int64
	err := s.gw.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, wrapf(KindExec, op, table, err)
	}
	return affected, nil
}

// queryRowValues runs a select expected to yield at most one row and
// returns its column names and scanned values.
func (s *Session) queryRowValues(ctx context.Context, op, table, sqlText string, args []any) (cols []string, vals []any, found bool, err error) {
	err = s.gw.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		rows, err := db.QueryxContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if !rows.Next() {
			return rows.Err()
		}
		found = true
		cols, err = rows.Columns()
		if err != nil {
			return err
		}
		vals, err = rows.SliceScan()
		return err
	})
	if err != nil {
		return nil, nil, false, wrapf(KindExec, op, table, err)
	}
	return cols, vals, found, nil
}

// OneRow runs the query described by tableSpec and the modifier arguments
// and returns the first matching row, or (nil, nil) when nothing matches.
// A limit of one is applied when the caller sets none.
func (s *Session) OneRow(ctx context.Context, tableSpec any, args ...any) (*Row, error) {
	spec, err := normalize(s.cat(), tableSpec, args)
	if err != nil {
		return nil, err
	}
	// Raw SQL may already carry its own LIMIT; leave it alone.
	if !spec.HasLimit && spec.RawSQL == "" {
		spec.Limit = 1
		spec.HasLimit = true
	}

	rows, err := s.queryRows(ctx, spec)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// AllRows runs the query described by tableSpec and the modifier arguments
// and returns every matching row. When a per-row visitor was given it is
// invoked for each row in result order; a visitor error aborts iteration.
func (s *Session) AllRows(ctx context.Context, tableSpec any, args ...any) ([]*Row, error) {
	spec, err := normalize(s.cat(), tableSpec, args)
	if err != nil {
		return nil, err
	}
	return s.queryRows(ctx, spec)
}

// queryRows builds, emits, and executes one select, hydrating each result
// row against the primary table's descriptor (or an anonymous descriptor
// derived from the result columns for raw SQL queries).
func (s *Session) queryRows(ctx context.Context, spec *QuerySpec) ([]*Row, error) {
	cat := s.cat()
	sqlText, args, err := buildSelect(cat, s.translator, spec)
	if err != nil {
		return nil, err
	}

	if spec.SQLInto != nil {
		*spec.SQLInto = sqlText
	}
	if spec.Hook != nil {
		spec.Hook(sqlText, args)
	}
	if spec.DryRun {
		return nil, nil
	}

	table, err := s.resultTable(cat, spec)
	if err != nil {
		return nil, err
	}

	var out []*Row
	err = s.gw.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		rows, err := db.QueryxContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		var cols []string
		for rows.Next() {
			if cols == nil {
				if cols, err = rows.Columns(); err != nil {
					return err
				}
				if table == nil {
					table = anonymousTable(cols)
				}
			}
			vals, err := rows.SliceScan()
			if err != nil {
				return err
			}
			row := newRow(s, table)
			if err := row.hydrate(cols, vals); err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapf(KindExec, "select", spec.Table, err)
	}

	if spec.Each != nil {
		for _, row := range out {
			if err := spec.Each(row); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// resultTable picks the descriptor result rows hydrate against. Raw SQL has
// no primary table; its descriptor is derived from the result columns once
// the first row arrives.
func (s *Session) resultTable(cat *Catalog, spec *QuerySpec) (*schema.Table, error) {
	if spec.RawSQL != "" {
		return nil, nil
	}
	return cat.Table(spec.Table)
}

// anonymousTable builds a keyless throwaway descriptor for raw SQL results.
func anonymousTable(cols []string) *schema.Table {
	columns := make([]schema.Column, len(cols))
	for i, name := range cols {
		columns[i] = schema.Column{Name: name}
	}
	return schema.NewTable("", columns, nil, nil)
}

// NewRow inserts one record and returns the stored row. Where the dialect
// supports RETURNING the inserted row comes back directly, including
// database-applied defaults; otherwise the row is re-read by its last
// insert id (or by the primary key values the caller supplied).
func (s *Session) NewRow(ctx context.Context, table string, values map[string]any) (*Row, error) {
	cat := s.cat()
	t, err := cat.Table(table)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeColumnValues(t, values)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := buildInsert(cat, table, encoded)
	if err != nil {
		return nil, err
	}

	row := newRow(s, t)

	if cat.Dialect().SupportsReturning() {
		cols, vals, found, err := s.queryRowValues(ctx, "insert", table, sqlText, args)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errf(KindExec, "insert", table, "insert returned no row")
		}
		if err := row.hydrate(cols, vals); err != nil {
			return nil, err
		}
		return row, nil
	}

	var insertID int64
	err = s.gw.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		insertID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, wrapf(KindExec, "insert", table, err)
	}

	// Re-read by the auto-increment key, or by caller-supplied key values
	// when the table's key is not auto-generated.
	if pk := insertPK(t, encoded, insertID); pk != nil {
		for name, v := range pk {
			i, _ := t.ColumnIndex(name)
			row.values[i] = v
		}
		if err := row.Fetch(ctx); err != nil {
			return nil, err
		}
		return row, nil
	}

	// Keyless table: the stored row cannot be re-read reliably, hand back
	// the values as given.
	if err := row.SetValues(values); err != nil {
		return nil, err
	}
	for i := range row.dirty {
		row.dirty[i] = false
	}
	return row, nil
}

// insertPK determines the primary key values of a freshly inserted record,
// or nil when they cannot be known.
func insertPK(t *schema.Table, values map[string]any, insertID int64) map[string]any {
	if !t.HasPrimaryKey() {
		return nil
	}
	if len(t.PrimaryKey) == 1 {
		name := t.PrimaryKey[0]
		if v, ok := values[name]; ok {
			if _, isExpr := v.(Expr); !isExpr {
				return map[string]any{name: v}
			}
			return nil
		}
		if col := t.Column(name); col != nil && col.IsAutoIncrement && insertID > 0 {
			return map[string]any{name: insertID}
		}
		return nil
	}
	pk := make(map[string]any, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		v, ok := values[name]
		if !ok {
			return nil
		}
		if _, isExpr := v.(Expr); isExpr {
			return nil
		}
		pk[name] = v
	}
	return pk
}

// encodeColumnValues re-encodes JSON column structures into their stored
// string form, leaving Literal expressions and ordinary scalars untouched.
func encodeColumnValues(t *schema.Table, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		col := t.Column(name)
		if col == nil {
			return nil, errf(KindSchema, "insert", t.Name, "no column %q", name)
		}
		if _, isExpr := v.(Expr); !isExpr && col.JSON {
			encoded, err := encodeJSON(v)
			if err != nil {
				return nil, errf(KindSchema, "insert", t.Name, "encode json column %q: %v", name, err)
			}
			out[name] = encoded
			continue
		}
		out[name] = v
	}
	return out, nil
}

// Count returns the number of rows matching the condition (all rows when
// the condition is nil).
func (s *Session) Count(ctx context.Context, table string, where any) (int64, error) {
	cat := s.cat()
	t, err := cat.Table(table)
	if err != nil {
		return 0, err
	}
	sqlText, args, err := buildCount(cat, s.translator, t, where)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.gw.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		return db.QueryRowxContext(ctx, sqlText, args...).Scan(&n)
	})
	if err != nil {
		return 0, wrapf(KindExec, "count", table, err)
	}
	return n, nil
}

// UpdateRows applies a table-wide update, ignoring any row object state.
// The condition is required; updating every row must be spelled out with an
// explicit always-true condition.
func (s *Session) UpdateRows(ctx context.Context, table string, values map[string]any, where any) (int64, error) {
	cat := s.cat()
	t, err := cat.Table(table)
	if err != nil {
		return 0, err
	}
	encoded, err := encodeColumnValues(t, values)
	if err != nil {
		return 0, err
	}
	sqlText, args, err := buildUpdate(cat, s.translator, t, encoded, where)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, "update", table, sqlText, args)
}

// DeleteRows deletes by arbitrary condition, regardless of primary key
// presence. The condition is required.
func (s *Session) DeleteRows(ctx context.Context, table string, where any) (int64, error) {
	cat := s.cat()
	t, err := cat.Table(table)
	if err != nil {
		return 0, err
	}
	sqlText, args, err := buildDelete(cat, s.translator, t, where)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, "delete", table, sqlText, args)
}

// WithRow runs fn against the first row matching the query and flushes any
// dirty columns when fn returns, on every exit path. Returns ErrNoRow when
// nothing matches. When both fn and the flush fail, both errors are joined
// in the return and the flush failure is additionally logged through the
// session's error-format policy, since a caller handling its own error
// easily overlooks the second one.
//
// The flush is a plain update, not a transaction; callers needing atomicity
// across fn must manage it themselves.
func (s *Session) WithRow(ctx context.Context, tableSpec any, fn func(*Row) error, args ...any) error {
	row, err := s.OneRow(ctx, tableSpec, args...)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNoRow
	}

	callerErr := fn(row)

	var flushErr error
	if !row.invalid {
		flushErr = row.Update(ctx)
	}
	if flushErr != nil && callerErr != nil {
		s.log.Warn("row flush failed", "table", row.table.Name,
			"error", s.errFormat.Format(flushErr))
	}
	return errors.Join(callerErr, flushErr)
}
