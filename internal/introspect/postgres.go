package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/liverow/liverow/schema"
)

// Postgres introspects PostgreSQL databases through information_schema.
type Postgres struct{}

// Name returns the logical driver identifier.
func (p *Postgres) Name() string { return "postgres" }

// SQLDriver returns the pgx stdlib driver name.
func (p *Postgres) SQLDriver() string { return "pgx" }

// Quote wraps an identifier in double quotes, doubling any embedded quotes.
func (p *Postgres) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder returns a numbered $N parameter placeholder.
func (p *Postgres) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// SupportsReturning indicates that PostgreSQL supports RETURNING clauses.
func (p *Postgres) SupportsReturning() bool { return true }

// pgColumnRow holds the result of querying information_schema.columns.
type pgColumnRow struct {
	TableName  string  `db:"table_name"`
	ColumnName string  `db:"column_name"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
	Position   int     `db:"ordinal_position"`
	UDTName    string  `db:"udt_name"`
}

// pgKeyRow holds one primary key or foreign key column mapping.
type pgKeyRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

// pgFKRow holds a foreign key relationship.
type pgFKRow struct {
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
}

// Introspect reads all base tables in the schema, defaulting to "public".
func (p *Postgres) Introspect(ctx context.Context, db *sqlx.DB, schemaName string) (map[string]*schema.Table, error) {
	if schemaName == "" {
		schemaName = "public"
	}

	const tableQuery = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	var names []string
	if err := db.SelectContext(ctx, &names, tableQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	const columnQuery = `SELECT
			c.table_name,
			c.column_name,
			c.is_nullable,
			c.column_default,
			c.ordinal_position,
			c.udt_name
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		ORDER BY c.table_name, c.ordinal_position`

	var columns []pgColumnRow
	if err := db.SelectContext(ctx, &columns, columnQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	const pkQuery = `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
		ORDER BY kcu.table_name, kcu.ordinal_position`

	var pks []pgKeyRow
	if err := db.SelectContext(ctx, &pks, pkQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}

	const fkQuery = `SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1`

	var fks []pgFKRow
	if err := db.SelectContext(ctx, &fks, fkQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	pkMap := make(map[string][]string)
	pkSet := make(map[string]map[string]bool)
	for _, pk := range pks {
		pkMap[pk.TableName] = append(pkMap[pk.TableName], pk.ColumnName)
		if pkSet[pk.TableName] == nil {
			pkSet[pk.TableName] = make(map[string]bool)
		}
		pkSet[pk.TableName][pk.ColumnName] = true
	}

	fkMap := make(map[string][]schema.ForeignKey)
	for _, fk := range fks {
		fkMap[fk.TableName] = append(fkMap[fk.TableName], schema.ForeignKey{
			Name:             fmt.Sprintf("fk_%s_%s", fk.TableName, fk.ColumnName),
			ColumnName:       fk.ColumnName,
			ReferencedTable:  fk.ReferencedTable,
			ReferencedColumn: fk.ReferencedColumn,
		})
	}

	colMap := make(map[string][]schema.Column)
	for _, col := range columns {
		udt := strings.ToLower(col.UDTName)
		colMap[col.TableName] = append(colMap[col.TableName], schema.Column{
			Name:            col.ColumnName,
			Type:            udt,
			JSON:            udt == "json" || udt == "jsonb",
			Nullable:        col.IsNullable == "YES",
			Default:         col.Default,
			IsPrimaryKey:    pkSet[col.TableName][col.ColumnName],
			IsAutoIncrement: col.Default != nil && strings.Contains(*col.Default, "nextval"),
		})
	}

	tables := make(map[string]*schema.Table, len(names))
	for _, name := range names {
		tables[name] = schema.NewTable(name, colMap[name], pkMap[name], fkMap[name])
	}
	return tables, nil
}
