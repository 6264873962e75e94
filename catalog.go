package liverow

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/liverow/liverow/internal/introspect"
	"github.com/liverow/liverow/schema"
)

// Catalog is the schema snapshot built at connect time: one table
// descriptor per discovered table plus the dialect the database speaks.
// Catalogs are immutable after build; a reconnect builds a fresh catalog
// and replaces the session's pointer atomically, so row objects holding
// references into an old catalog keep a consistent view.
type Catalog struct {
	dialect schema.Dialect
	tables  map[string]*schema.Table
}

// buildCatalog introspects every table in the schema and derives the
// relationship accessors from the discovered foreign keys.
func buildCatalog(ctx context.Context, db *sqlx.DB, intr introspect.Introspector, schemaName string) (*Catalog, error) {
	tables, err := intr.Introspect(ctx, db, schemaName)
	if err != nil {
		return nil, wrapf(KindSchema, "catalog", "", err)
	}
	if err := schema.DeriveRelationships(tables); err != nil {
		return nil, wrapf(KindSchema, "catalog", "", err)
	}
	return &Catalog{dialect: intr, tables: tables}, nil
}

// Table returns the descriptor for the named table.
func (c *Catalog) Table(name string) (*schema.Table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, errf(KindSchema, "catalog", name, "unknown table")
	}
	return t, nil
}

// Tables returns the discovered table names, sorted.
func (c *Catalog) Tables() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dialect returns the SQL-surface rules of the connected database.
func (c *Catalog) Dialect() schema.Dialect { return c.dialect }
