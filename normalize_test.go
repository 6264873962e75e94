package liverow

import (
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Table-spec form tests
// ---------------------------------------------------------------------------

func TestNormalizeBareTable(t *testing.T) {
	cat := testCatalog(testDialect{})

	spec, err := normalize(cat, "employee", nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.Table != "employee" || len(spec.Joins) != 0 {
		t.Errorf("spec = %+v", spec)
	}

	if _, err := normalize(cat, "missing", nil); !HasKind(err, KindSchema) {
		t.Errorf("unknown table error = %v, want schema kind", err)
	}
}

func TestNormalizeTableAlias(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, "employee e", nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.Table != "employee" || spec.Alias != "e" {
		t.Errorf("table/alias = %q/%q", spec.Table, spec.Alias)
	}

	if _, err := normalize(cat, "employee e extra", nil); err == nil {
		t.Error("three-field table spec accepted, want error")
	}
}

func TestNormalizeRawSQL(t *testing.T) {
	cat := testCatalog(testDialect{})
	raw := "select e.name from employee e where e.age > ?"
	spec, err := normalize(cat, raw, []any{18})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.RawSQL != raw {
		t.Errorf("RawSQL = %q", spec.RawSQL)
	}
	if !reflect.DeepEqual(spec.RawArgs, []any{18}) {
		t.Errorf("RawArgs = %v", spec.RawArgs)
	}
}

func TestNormalizeRawSQLFlattensBindList(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, "select * from employee where id in (?, ?)", []any{[]any{1, 2}})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if !reflect.DeepEqual(spec.RawArgs, []any{1, 2}) {
		t.Errorf("RawArgs = %v", spec.RawArgs)
	}
}

func TestNormalizePrebuiltSpecIsCopied(t *testing.T) {
	cat := testCatalog(testDialect{})
	base := &QuerySpec{Table: "employee"}
	spec, err := normalize(cat, base, []any{Limit(5)})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if !spec.HasLimit || spec.Limit != 5 {
		t.Errorf("limit not applied: %+v", spec)
	}
	if base.HasLimit {
		t.Error("normalize mutated the caller's spec")
	}
}

// ---------------------------------------------------------------------------
// Modifier argument tests
// ---------------------------------------------------------------------------

func TestNormalizeWhereAndDirectives(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, "employee", []any{
		OrderBy("name DESC"),
		map[string]any{"employer_id": 7},
		Limit(10),
		Offset(5),
		Columns("id", "name"),
	})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if !reflect.DeepEqual(spec.Where, map[string]any{"employer_id": 7}) {
		t.Errorf("Where = %v", spec.Where)
	}
	if spec.Order != "name DESC" || spec.Limit != 10 || spec.Offset != 5 {
		t.Errorf("modifiers = %+v", spec)
	}
	if !reflect.DeepEqual(spec.Columns, []string{"id", "name"}) {
		t.Errorf("Columns = %v", spec.Columns)
	}
}

func TestNormalizeScalarWhereShortcut(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, "employee", []any{42})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.Where != 42 {
		t.Errorf("Where = %v, want 42", spec.Where)
	}
}

func TestNormalizeRejectsSecondWhere(t *testing.T) {
	cat := testCatalog(testDialect{})
	_, err := normalize(cat, "employee", []any{42, map[string]any{"name": "x"}})
	if err == nil {
		t.Fatal("two where conditions accepted, want error")
	}
}

func TestNormalizeEachVisitor(t *testing.T) {
	cat := testCatalog(testDialect{})
	fn := func(*Row) error { return nil }

	spec, err := normalize(cat, "employee", []any{fn})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.Each == nil {
		t.Error("visitor not recorded")
	}
	if spec.Where != nil {
		t.Errorf("visitor leaked into Where: %v", spec.Where)
	}

	// More than one visitor is a caller error, not composition.
	if _, err := normalize(cat, "employee", []any{fn, Each(fn)}); err == nil {
		t.Error("two visitors accepted, want error")
	}
}

// ---------------------------------------------------------------------------
// Join resolution tests
// ---------------------------------------------------------------------------

func TestNormalizeAutoJoin(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, []any{"employee", "employer"}, nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if len(spec.Joins) != 1 {
		t.Fatalf("joins = %+v", spec.Joins)
	}
	want := `"employee"."employer_id" = "employer"."id"`
	if spec.Joins[0].On != want {
		t.Errorf("On = %q, want %q", spec.Joins[0].On, want)
	}
}

func TestNormalizeAutoJoinWithAliases(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, []any{"employee e", "employer c"}, nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	want := `"e"."employer_id" = "c"."id"`
	if spec.Joins[0].On != want {
		t.Errorf("On = %q, want %q", spec.Joins[0].On, want)
	}
}

func TestNormalizeAutoJoinNotFound(t *testing.T) {
	cat := testCatalog(testDialect{})
	_, err := normalize(cat, []any{"employee", "audit_log"}, nil)
	if !HasKind(err, KindJoinNotFound) {
		t.Fatalf("error = %v, want join-not-found kind", err)
	}
}

func TestNormalizeAutoJoinAmbiguous(t *testing.T) {
	cat := doubleLinkedCatalog(testDialect{})
	_, err := normalize(cat, []any{"employee", "employer"}, nil)
	if !HasKind(err, KindJoinAmbiguity) {
		t.Fatalf("error = %v, want join-ambiguity kind", err)
	}
}

func TestNormalizeExplicitOnBypassesResolution(t *testing.T) {
	// With an explicit condition the ambiguous pair is fine.
	cat := doubleLinkedCatalog(testDialect{})
	spec, err := normalize(cat, []any{"employee", "employer", On(`"employee"."boss_employer_id" = "employer"."id"`)}, nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.Joins[0].On == "" {
		t.Error("explicit On not recorded")
	}
}

func TestNormalizeJoinDirectives(t *testing.T) {
	cat := testCatalog(testDialect{})
	spec, err := normalize(cat, []any{"employee", Left("employer"), Using("employer_id")}, nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	j := spec.Joins[0]
	if j.Kind != JoinLeft || j.Using != "employer_id" {
		t.Errorf("join = %+v", j)
	}
}

func TestNormalizeOnWithoutJoin(t *testing.T) {
	cat := testCatalog(testDialect{})
	if _, err := normalize(cat, []any{"employee", On("x = y")}, nil); err == nil {
		t.Error("On without a join accepted, want error")
	}
}

func TestNormalizeDoubleJoinCondition(t *testing.T) {
	cat := testCatalog(testDialect{})
	_, err := normalize(cat, []any{"employee", Inner("employer"), On("a = b"), Using("employer_id")}, nil)
	if err == nil {
		t.Error("both On and Using accepted on one join, want error")
	}
}

func TestNormalizeSubqueryNeedsCondition(t *testing.T) {
	cat := testCatalog(testDialect{})
	sub := &QuerySpec{Table: "employee"}

	if _, err := normalize(cat, []any{"employer", Subquery(JoinInner, "top", sub)}, nil); err == nil {
		t.Error("derived-table join without condition accepted, want error")
	}

	spec, err := normalize(cat, []any{"employer", Subquery(JoinInner, "top", sub), On(`"top"."employer_id" = "employer"."id"`)}, nil)
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.Joins[0].Sub != sub {
		t.Error("sub spec not recorded")
	}
}

func TestNormalizeCaptureHookDryRun(t *testing.T) {
	cat := testCatalog(testDialect{})
	var captured string
	hooked := false

	spec, err := normalize(cat, "employee", []any{
		Capture(&captured),
		Hook(func(string, []any) { hooked = true }),
		DryRun(),
	})
	if err != nil {
		t.Fatalf("normalize() error: %v", err)
	}
	if spec.SQLInto == nil || spec.Hook == nil || !spec.DryRun {
		t.Errorf("spec = %+v", spec)
	}
	_ = hooked
}
