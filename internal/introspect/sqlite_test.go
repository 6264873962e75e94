package introspect

import (
	"context"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"
)

func newTestDB(t *testing.T, stmts ...string) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db
}

func TestSQLiteDialect(t *testing.T) {
	s := &SQLite{}
	if got := s.Quote(`we"ird`); got != `"we""ird"` {
		t.Errorf("Quote() = %q", got)
	}
	if got := s.Placeholder(7); got != "?" {
		t.Errorf("Placeholder() = %q", got)
	}
	if !s.SupportsReturning() {
		t.Error("SupportsReturning() = false")
	}
}

func TestSQLiteIntrospect(t *testing.T) {
	db := newTestDB(t,
		`CREATE TABLE employer (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE employee (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			employer_id INTEGER REFERENCES employer(id),
			settings JSON,
			joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE pairing (
			a INTEGER,
			b INTEGER,
			PRIMARY KEY (a, b)
		)`,
	)

	tables, err := (&SQLite{}).Introspect(context.Background(), db, "")
	if err != nil {
		t.Fatalf("Introspect() error: %v", err)
	}
	if len(tables) != 3 {
		t.Fatalf("tables = %d", len(tables))
	}

	emp := tables["employee"]
	if emp == nil {
		t.Fatal("employee not discovered")
	}
	if !reflect.DeepEqual(emp.PrimaryKey, []string{"id"}) {
		t.Errorf("pk = %v", emp.PrimaryKey)
	}
	if col := emp.Column("id"); col == nil || !col.IsAutoIncrement {
		t.Errorf("id column = %+v, want auto-increment", col)
	}
	if col := emp.Column("settings"); col == nil || !col.JSON || !col.Nullable {
		t.Errorf("settings column = %+v", col)
	}
	if col := emp.Column("name"); col == nil || col.Nullable {
		t.Errorf("name column = %+v, want NOT NULL", col)
	}
	if col := emp.Column("joined_at"); col == nil || col.Default == nil {
		t.Errorf("joined_at column = %+v, want default recorded", col)
	}

	if len(emp.ForeignKeys) != 1 {
		t.Fatalf("fks = %+v", emp.ForeignKeys)
	}
	fk := emp.ForeignKeys[0]
	if fk.ColumnName != "employer_id" || fk.ReferencedTable != "employer" || fk.ReferencedColumn != "id" {
		t.Errorf("fk = %+v", fk)
	}

	// Composite keys never report auto-increment.
	pairing := tables["pairing"]
	if !reflect.DeepEqual(pairing.PrimaryKey, []string{"a", "b"}) {
		t.Errorf("pairing pk = %v", pairing.PrimaryKey)
	}
	for _, c := range pairing.Columns {
		if c.IsAutoIncrement {
			t.Errorf("composite pk column %q reports auto-increment", c.Name)
		}
	}
}

func TestSQLiteImplicitFKTarget(t *testing.T) {
	// REFERENCES employer (no column) resolves to the target's primary key.
	db := newTestDB(t,
		`CREATE TABLE employer (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE employee (id INTEGER PRIMARY KEY, employer_id INTEGER REFERENCES employer)`,
	)

	tables, err := (&SQLite{}).Introspect(context.Background(), db, "")
	if err != nil {
		t.Fatalf("Introspect() error: %v", err)
	}
	fk := tables["employee"].ForeignKeys[0]
	if fk.ReferencedColumn != "id" {
		t.Errorf("implicit fk target = %q, want id", fk.ReferencedColumn)
	}
}

func TestForUnknownDriver(t *testing.T) {
	if _, err := For("oracle"); err == nil {
		t.Fatal("For(oracle) succeeded, want error")
	}
	want := []string{"mysql", "postgres", "sqlite"}
	if got := Drivers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Drivers() = %v, want %v", got, want)
	}
}
