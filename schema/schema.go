// Package schema holds the metadata descriptors produced by catalog
// introspection: tables, columns, foreign keys, and the relationship
// accessors derived from them. Descriptors are built once per connect and
// treated as read-only afterwards; every row object of a table shares the
// same *Table, including its name→index lookup.
package schema

import (
	"fmt"
	"strings"
)

// Table describes the structure of a single discovered table. The column
// slice order defines the array layout used by every row of this table.
type Table struct {
	Name          string                  `json:"name"`
	Columns       []Column                `json:"columns"`
	PrimaryKey    []string                `json:"primary_key"`
	ForeignKeys   []ForeignKey            `json:"foreign_keys"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`

	index map[string]int // column name → position in Columns, shared across rows
}

// Column describes a single column within a table.
type Column struct {
	Name            string  `json:"name"`
	Position        int     `json:"position"` // zero-based index into the row value array
	Type            string  `json:"db_type"`
	JSON            bool    `json:"json,omitempty"` // json/jsonb typed, decoded transparently by rows
	Nullable        bool    `json:"nullable"`
	Default         *string `json:"default,omitempty"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
	IsAutoIncrement bool    `json:"is_auto_increment"`
}

// ForeignKey describes a foreign key constraint between two tables.
type ForeignKey struct {
	Name             string `json:"name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// RelKind distinguishes the traversal direction of a derived relationship.
type RelKind int

const (
	// RelForward follows a foreign key from the declaring table to the
	// referenced table and yields at most one row.
	RelForward RelKind = iota
	// RelReverseOne follows a foreign key backwards and yields at most one row.
	RelReverseOne
	// RelReverseMany follows a foreign key backwards and yields all rows.
	RelReverseMany
)

// Relationship is one derived accessor registered on a table descriptor.
// SourceTable.SourceColumn references TargetTable.TargetColumn regardless of
// which side the relationship is registered on.
type Relationship struct {
	Name         string  `json:"name"`
	Kind         RelKind `json:"kind"`
	SourceTable  string  `json:"source_table"`
	SourceColumn string  `json:"source_column"`
	TargetTable  string  `json:"target_table"`
	TargetColumn string  `json:"target_column"`
}

// NewTable assembles a table descriptor and builds its shared column index.
func NewTable(name string, columns []Column, primaryKey []string, foreignKeys []ForeignKey) *Table {
	t := &Table{
		Name:        name,
		Columns:     columns,
		PrimaryKey:  primaryKey,
		ForeignKeys: foreignKeys,
		index:       make(map[string]int, len(columns)),
	}
	for i := range t.Columns {
		t.Columns[i].Position = i
		t.index[t.Columns[i].Name] = i
	}
	return t
}

// ColumnIndex returns the position of the named column in the row value
// array, or false if the table has no such column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Column returns the descriptor for the named column, or nil.
func (t *Table) Column(name string) *Column {
	if i, ok := t.index[name]; ok {
		return &t.Columns[i]
	}
	return nil
}

// NumColumns returns the number of columns, which is also the fixed length
// of every row value array for this table.
func (t *Table) NumColumns() int { return len(t.Columns) }

// HasPrimaryKey reports whether the table has at least one primary key column.
func (t *Table) HasPrimaryKey() bool { return len(t.PrimaryKey) > 0 }

// Relationship looks up a derived accessor by name.
func (t *Table) Relationship(name string) (Relationship, bool) {
	rel, ok := t.Relationships[name]
	return rel, ok
}

// refPrefix is the fixed prefix for reverse relationship accessor names.
const refPrefix = "Ref"

// DeriveRelationships walks every foreign key in the table set and registers
// the derived accessors on both involved descriptors: a forward accessor on
// the declaring table, and reverse singular/plural accessors on the
// referenced table. A derived name colliding with one already registered is
// a configuration error and fails the whole derivation.
func DeriveRelationships(tables map[string]*Table) error {
	for _, src := range tables {
		for _, fk := range src.ForeignKeys {
			tgt, ok := tables[fk.ReferencedTable]
			if !ok {
				// FK into a table outside the introspected schema; no accessor.
				continue
			}

			suffix := relationSuffix(fk.ColumnName, fk.ReferencedTable)

			forward := Relationship{
				Name:         CamelCase(tgt.Name) + CamelCase(suffix),
				Kind:         RelForward,
				SourceTable:  src.Name,
				SourceColumn: fk.ColumnName,
				TargetTable:  tgt.Name,
				TargetColumn: fk.ReferencedColumn,
			}
			if err := register(src, forward); err != nil {
				return err
			}

			refOne := Relationship{
				Name:         refPrefix + CamelCase(src.Name) + CamelCase(suffix),
				Kind:         RelReverseOne,
				SourceTable:  src.Name,
				SourceColumn: fk.ColumnName,
				TargetTable:  tgt.Name,
				TargetColumn: fk.ReferencedColumn,
			}
			if err := register(tgt, refOne); err != nil {
				return err
			}

			refMany := refOne
			refMany.Name += "s"
			refMany.Kind = RelReverseMany
			if err := register(tgt, refMany); err != nil {
				return err
			}
		}
	}
	return nil
}

func register(t *Table, rel Relationship) error {
	if t.Relationships == nil {
		t.Relationships = make(map[string]Relationship)
	}
	if prev, ok := t.Relationships[rel.Name]; ok {
		return fmt.Errorf("relationship accessor %q on table %q derived twice (columns %s.%s and %s.%s)",
			rel.Name, t.Name, prev.SourceTable, prev.SourceColumn, rel.SourceTable, rel.SourceColumn)
	}
	t.Relationships[rel.Name] = rel
	return nil
}

// relationSuffix extracts the portion of a foreign key column name beyond
// the conventional "<target>_id" / "id_<target>" patterns. A column that
// matches the convention exactly yields an empty suffix; a column like
// "boss_employer_id" referencing "employer" yields "boss"; a column that
// does not embed the target name at all yields its own name minus the id
// affix, keeping distinct foreign keys distinct.
func relationSuffix(column, target string) string {
	base := column
	switch {
	case strings.HasPrefix(base, "id_"):
		base = strings.TrimPrefix(base, "id_")
	case strings.HasSuffix(base, "_id"):
		base = strings.TrimSuffix(base, "_id")
	}

	switch {
	case base == target:
		return ""
	case strings.HasPrefix(base, target+"_"):
		return strings.TrimPrefix(base, target+"_")
	case strings.HasSuffix(base, "_"+target):
		return strings.TrimSuffix(base, "_"+target)
	}
	return base
}

// CamelCase converts a snake_case identifier to exported CamelCase:
// "order_item" → "OrderItem". Used for derived accessor names.
func CamelCase(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// Dialect abstracts the SQL-surface differences between supported databases:
// identifier quoting, parameter placeholder style, and RETURNING support.
type Dialect interface {
	Name() string
	Quote(name string) string
	Placeholder(index int) string
	SupportsReturning() bool
}
