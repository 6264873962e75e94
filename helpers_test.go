package liverow

import (
	"fmt"

	"github.com/liverow/liverow/schema"
)

// testDialect is a stand-in dialect: double-quote quoting with either ?
// or $N placeholders, so both numbering styles get exercised without a
// database.
type testDialect struct {
	dollar bool
}

func (d testDialect) Name() string {
	if d.dollar {
		return "postgres"
	}
	return "sqlite"
}

func (d testDialect) Quote(name string) string { return `"` + name + `"` }

func (d testDialect) Placeholder(index int) string {
	if d.dollar {
		return fmt.Sprintf("$%d", index)
	}
	return "?"
}

func (d testDialect) SupportsReturning() bool { return true }

// testCatalog builds an offline catalog around the employee/employer pair
// used throughout the builder and normalizer tests.
func testCatalog(d schema.Dialect) *Catalog {
	employer := schema.NewTable("employer",
		[]schema.Column{{Name: "id"}, {Name: "name"}},
		[]string{"id"}, nil)
	employee := schema.NewTable("employee",
		[]schema.Column{{Name: "id"}, {Name: "name"}, {Name: "employer_id"}, {Name: "settings", JSON: true}},
		[]string{"id"},
		[]schema.ForeignKey{
			{Name: "fk_employee_employer", ColumnName: "employer_id", ReferencedTable: "employer", ReferencedColumn: "id"},
		})
	audit := schema.NewTable("audit_log",
		[]schema.Column{{Name: "entry"}, {Name: "at"}},
		nil, nil)

	tables := map[string]*schema.Table{
		"employer":  employer,
		"employee":  employee,
		"audit_log": audit,
	}
	if err := schema.DeriveRelationships(tables); err != nil {
		panic(err)
	}
	return &Catalog{dialect: d, tables: tables}
}

// doubleLinkedCatalog has two foreign keys between the same table pair, so
// auto-join resolution is ambiguous.
func doubleLinkedCatalog(d schema.Dialect) *Catalog {
	employer := schema.NewTable("employer",
		[]schema.Column{{Name: "id"}},
		[]string{"id"}, nil)
	employee := schema.NewTable("employee",
		[]schema.Column{{Name: "id"}, {Name: "employer_id"}, {Name: "boss_employer_id"}},
		[]string{"id"},
		[]schema.ForeignKey{
			{ColumnName: "employer_id", ReferencedTable: "employer", ReferencedColumn: "id"},
			{ColumnName: "boss_employer_id", ReferencedTable: "employer", ReferencedColumn: "id"},
		})
	tables := map[string]*schema.Table{"employer": employer, "employee": employee}
	if err := schema.DeriveRelationships(tables); err != nil {
		panic(err)
	}
	return &Catalog{dialect: d, tables: tables}
}
