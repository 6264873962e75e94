package introspect

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/liverow/liverow/schema"
)

// MySQL introspects MySQL and MariaDB databases through INFORMATION_SCHEMA.
type MySQL struct{}

// Name returns the logical driver identifier.
func (m *MySQL) Name() string { return "mysql" }

// SQLDriver returns the go-sql-driver name.
func (m *MySQL) SQLDriver() string { return "mysql" }

// Quote wraps an identifier in backticks, doubling any embedded backticks.
func (m *MySQL) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Placeholder returns the ? placeholder regardless of index.
func (m *MySQL) Placeholder(_ int) string { return "?" }

// SupportsReturning indicates that MySQL has no RETURNING clause; inserts
// fall back to LastInsertId plus a re-fetch.
func (m *MySQL) SupportsReturning() bool { return false }

// myColumnRow holds the result of querying INFORMATION_SCHEMA.COLUMNS.
type myColumnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	Extra      string  `db:"EXTRA"`
}

// myKeyRow holds one primary key column mapping.
type myKeyRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// myFKRow holds a foreign key relationship.
type myFKRow struct {
	TableName        string `db:"TABLE_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
}

// Introspect reads all base tables, defaulting to the connected database
// (DATABASE()) when no schema name is configured.
func (m *MySQL) Introspect(ctx context.Context, db *sqlx.DB, schemaName string) (map[string]*schema.Table, error) {
	if schemaName == "" {
		if err := db.GetContext(ctx, &schemaName, "SELECT DATABASE()"); err != nil {
			return nil, fmt.Errorf("resolve current database: %w", err)
		}
	}

	const tableQuery = `SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	var names []string
	if err := db.SelectContext(ctx, &names, tableQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	const columnQuery = `SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			c.EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	var columns []myColumnRow
	if err := db.SelectContext(ctx, &columns, columnQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	const pkQuery = `SELECT TABLE_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var pks []myKeyRow
	if err := db.SelectContext(ctx, &pks, pkQuery, schemaName); err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}

	const fkQuery = `SELECT
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		WHERE kcu.TABLE_SCHEMA = ?
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`

	var fks []myFKRow
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
		dt := strings.ToLower(col.DataType)
		colMap[col.TableName] = append(colMap[col.TableName], schema.Column{
			Name:            col.ColumnName,
			Type:            dt,
			JSON:            dt == "json",
			Nullable:        col.IsNullable == "YES",
			Default:         col.Default,
			IsPrimaryKey:    pkSet[col.TableName][col.ColumnName],
			IsAutoIncrement: strings.Contains(col.Extra, "auto_increment"),
		})
	}

	tables := make(map[string]*schema.Table, len(names))
	for _, name := range names {
		tables[name] = schema.NewTable(name, colMap[name], pkMap[name], fkMap[name])
	}
	return tables, nil
}
