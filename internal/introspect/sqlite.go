package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/liverow/liverow/schema"
)

// SQLite introspects SQLite databases through sqlite_master and PRAGMA
// statements. The modernc.org driver is pure Go, which also makes this the
// dialect used by the end-to-end tests.
type SQLite struct{}

// Name returns the logical driver identifier.
func (s *SQLite) Name() string { return "sqlite" }

// SQLDriver returns the modernc driver name.
func (s *SQLite) SQLDriver() string { return "sqlite" }

// Quote wraps an identifier in double quotes, doubling any embedded quotes.
func (s *SQLite) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns the ? placeholder regardless of index.
func (s *SQLite) Placeholder(_ int) string { return "?" }

// SupportsReturning indicates that SQLite (3.35+) supports RETURNING clauses.
func (s *SQLite) SupportsReturning() bool { return true }

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// fkListRow holds a row from PRAGMA foreign_key_list().
type fkListRow struct {
	ID       int     `db:"id"`
	Seq      int     `db:"seq"`
	Table    string  `db:"table"`
	From     string  `db:"from"`
	To       *string `db:"to"` // nil when the FK references the implicit primary key
	OnUpdate string  `db:"on_update"`
	OnDelete string  `db:"on_delete"`
	Match    string  `db:"match"`
}

// Introspect reads all tables from sqlite_master. SQLite has a single
// namespace, so schemaName is ignored.
func (s *SQLite) Introspect(ctx context.Context, db *sqlx.DB, _ string) (map[string]*schema.Table, error) {
	const nameQuery = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var names []string
	if err := db.SelectContext(ctx, &names, nameQuery); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	tables := make(map[string]*schema.Table, len(names))
	for _, name := range names {
		var info []tableInfoRow
		if err := db.SelectContext(ctx, &info, fmt.Sprintf("PRAGMA table_info(%s)", s.Quote(name))); err != nil {
			return nil, fmt.Errorf("introspect columns for %q: %w", name, err)
		}

		var fkRows []fkListRow
		if err := db.SelectContext(ctx, &fkRows, fmt.Sprintf("PRAGMA foreign_key_list(%s)", s.Quote(name))); err != nil {
			return nil, fmt.Errorf("introspect foreign keys for %q: %w", name, err)
		}

		var pk []string
		cols := make([]schema.Column, 0, len(info))
		for _, ci := range info {
			typ := strings.ToLower(ci.Type)
			if ci.PK > 0 {
				pk = append(pk, ci.Name)
			}
			cols = append(cols, schema.Column{
				Name:         ci.Name,
				Type:         typ,
				JSON:         strings.Contains(typ, "json"),
				Nullable:     ci.NotNull == 0 && ci.PK == 0,
				Default:      ci.Default,
				IsPrimaryKey: ci.PK > 0,
				// Single INTEGER primary keys alias the rowid and
				// auto-assign on insert.
				IsAutoIncrement: ci.PK == 1 && typ == "integer",
			})
		}
		if len(pk) > 1 {
			for i := range cols {
				cols[i].IsAutoIncrement = false
			}
		}

		fks := make([]schema.ForeignKey, 0, len(fkRows))
		for _, fk := range fkRows {
			ref := ""
			if fk.To != nil {
				ref = *fk.To
			}
			fks = append(fks, schema.ForeignKey{
				Name:             fmt.Sprintf("fk_%s_%s", name, fk.From),
				ColumnName:       fk.From,
				ReferencedTable:  fk.Table,
				ReferencedColumn: ref,
			})
		}

		tables[name] = schema.NewTable(name, cols, pk, fks)
	}

	// Foreign keys that referenced an implicit primary key resolve to the
	// target table's primary key column now that every table is known.
	for _, t := range tables {
		for i, fk := range t.ForeignKeys {
			if fk.ReferencedColumn != "" {
				continue
			}
			tgt, ok := tables[fk.ReferencedTable]
			if !ok || !tgt.HasPrimaryKey() {
				continue
			}
			t.ForeignKeys[i].ReferencedColumn = tgt.PrimaryKey[0]
		}
	}

	return tables, nil
}
