// Package introspect reads table, column, primary key, and foreign key
// metadata from a live database and converts it into schema descriptors.
// Each supported database gets its own Introspector with dialect-specific
// information-schema queries and SQL-surface rules.
package introspect

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/liverow/liverow/schema"
)

// Introspector combines the dialect SQL-surface rules with the ability to
// read the full table metadata for one database schema.
type Introspector interface {
	schema.Dialect

	// SQLDriver returns the database/sql driver name to open connections with.
	SQLDriver() string

	// Introspect reads every table in the given schema (the connected
	// database's default when schemaName is empty) and returns descriptors
	// keyed by table name. Relationships are not derived here.
	Introspect(ctx context.Context, db *sqlx.DB, schemaName string) (map[string]*schema.Table, error)
}

// factories maps logical driver names to introspector constructors.
var factories = map[string]func() Introspector{
	"postgres": func() Introspector { return &Postgres{} },
	"mysql":    func() Introspector { return &MySQL{} },
	"sqlite":   func() Introspector { return &SQLite{} },
}

// For returns the introspector for a logical driver name.
func For(driver string) (Introspector, error) {
	f, ok := factories[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q (available: %v)", driver, Drivers())
	}
	return f(), nil
}

// Drivers returns the supported logical driver names.
func Drivers() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
