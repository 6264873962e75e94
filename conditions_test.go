package liverow

import (
	"reflect"
	"testing"

	"github.com/liverow/liverow/schema"
)

func employeeTable() *schema.Table {
	return schema.NewTable("employee",
		[]schema.Column{{Name: "id"}, {Name: "name"}, {Name: "age"}},
		[]string{"id"}, nil)
}

// ---------------------------------------------------------------------------
// Translate tests
// ---------------------------------------------------------------------------

func TestTranslate(t *testing.T) {
	tbl := employeeTable()
	tests := []struct {
		name     string
		cond     any
		wantSQL  string
		wantArgs []any
		wantNext int
		wantErr  bool
	}{
		{
			name:     "nil condition",
			cond:     nil,
			wantSQL:  "",
			wantNext: 1,
		},
		{
			name:     "scalar is primary key equality",
			cond:     42,
			wantSQL:  `"id" = ?`,
			wantArgs: []any{42},
			wantNext: 2,
		},
		{
			name:     "map equality",
			cond:     map[string]any{"name": "alice"},
			wantSQL:  `"name" = ?`,
			wantArgs: []any{"alice"},
			wantNext: 2,
		},
		{
			name:     "map keys are sorted",
			cond:     map[string]any{"name": "alice", "age": 30},
			wantSQL:  `"age" = ? AND "name" = ?`,
			wantArgs: []any{30, "alice"},
			wantNext: 3,
		},
		{
			name:     "explicit operator",
			cond:     map[string]any{"age >": 18},
			wantSQL:  `"age" > ?`,
			wantArgs: []any{18},
			wantNext: 2,
		},
		{
			name:     "like operator",
			cond:     map[string]any{"name LIKE": "a%"},
			wantSQL:  `"name" LIKE ?`,
			wantArgs: []any{"a%"},
			wantNext: 2,
		},
		{
			name:     "nil value is IS NULL",
			cond:     map[string]any{"name": nil},
			wantSQL:  `"name" IS NULL`,
			wantNext: 1,
		},
		{
			name:     "negated nil is IS NOT NULL",
			cond:     map[string]any{"name !=": nil},
			wantSQL:  `"name" IS NOT NULL`,
			wantNext: 1,
		},
		{
			name:     "slice value is IN list",
			cond:     map[string]any{"age": []any{1, 2, 3}},
			wantSQL:  `"age" IN (?, ?, ?)`,
			wantArgs: []any{1, 2, 3},
			wantNext: 4,
		},
		{
			name:     "negated slice is NOT IN",
			cond:     map[string]any{"age !=": []any{1, 2}},
			wantSQL:  `"age" NOT IN (?, ?)`,
			wantArgs: []any{1, 2},
			wantNext: 3,
		},
		{
			name:     "literal expression value",
			cond:     map[string]any{"age >": Literal("age_limit - ?", 5)},
			wantSQL:  `"age" > (age_limit - ?)`,
			wantArgs: []any{5},
			wantNext: 2,
		},
		{
			name:     "ordered list is OR of conditions",
			cond:     []any{map[string]any{"age": 1}, map[string]any{"age": 2}},
			wantSQL:  `("age" = ?) OR ("age" = ?)`,
			wantArgs: []any{1, 2},
			wantNext: 3,
		},
		{
			name:     "raw condition passthrough",
			cond:     Raw("age > ? AND age < ?", 18, 65),
			wantSQL:  `age > ? AND age < ?`,
			wantArgs: []any{18, 65},
			wantNext: 3,
		},
		{
			name:     "prewritten string fragment",
			cond:     "deleted_at IS NULL",
			wantSQL:  "deleted_at IS NULL",
			wantNext: 1,
		},
		{
			name:    "unsupported operator",
			cond:    map[string]any{"age ;drop": 1},
			wantErr: true,
		},
		{
			name:    "empty IN list",
			cond:    map[string]any{"age": []any{}},
			wantErr: true,
		},
		{
			// Would otherwise render "WHERE " with nothing after it.
			name:    "empty condition mapping",
			cond:    map[string]any{},
			wantErr: true,
		},
		{
			name:    "empty condition list",
			cond:    []any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, next, err := (StdTranslator{}).Translate(tbl, testDialect{}, tt.cond, 1)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Translate() = %q, want error", sql)
				}
				return
			}
			if err != nil {
				t.Fatalf("Translate() error: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
			if next != tt.wantNext {
				t.Errorf("next = %d, want %d", next, tt.wantNext)
			}
		})
	}
}

func TestTranslateDollarPlaceholders(t *testing.T) {
	tbl := employeeTable()
	sql, args, next, err := (StdTranslator{}).Translate(tbl, testDialect{dollar: true},
		map[string]any{"age": 30, "name": "bob"}, 3)
	if err != nil {
		t.Fatalf("Translate() error: %v", err)
	}
	if want := `"age" = $3 AND "name" = $4`; sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{30, "bob"}) {
		t.Errorf("args = %v", args)
	}
	if next != 5 {
		t.Errorf("next = %d, want 5", next)
	}
}

func TestTranslateScalarWithoutPrimaryKey(t *testing.T) {
	keyless := schema.NewTable("audit_log", []schema.Column{{Name: "entry"}}, nil, nil)
	_, _, _, err := (StdTranslator{}).Translate(keyless, testDialect{}, 42, 1)
	if !HasKind(err, KindNoPrimaryKey) {
		t.Fatalf("Translate() error = %v, want no-primary-key kind", err)
	}

	composite := schema.NewTable("pair", []schema.Column{{Name: "a"}, {Name: "b"}}, []string{"a", "b"}, nil)
	_, _, _, err = (StdTranslator{}).Translate(composite, testDialect{}, 42, 1)
	if !HasKind(err, KindNoPrimaryKey) {
		t.Fatalf("composite pk error = %v, want no-primary-key kind", err)
	}
}

// ---------------------------------------------------------------------------
// TranslateOrder tests
// ---------------------------------------------------------------------------

func TestTranslateOrder(t *testing.T) {
	tests := []struct {
		name    string
		order   any
		want    string
		wantErr bool
	}{
		{name: "nil", order: nil, want: ""},
		{name: "single column", order: "name", want: `"name" ASC`},
		{name: "explicit desc", order: "created_at DESC", want: `"created_at" DESC`},
		{name: "comma list", order: "age DESC, name", want: `"age" DESC, "name" ASC`},
		{name: "qualified column", order: "employee.name", want: `"employee"."name" ASC`},
		{name: "string slice", order: []string{"age DESC", "name ASC"}, want: `"age" DESC, "name" ASC`},
		{name: "bad direction", order: "name SIDEWAYS", wantErr: true},
		{name: "injection attempt", order: "name; DROP TABLE x", wantErr: true},
		{name: "unsupported type", order: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := (StdTranslator{}).TranslateOrder(testDialect{}, tt.order)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TranslateOrder() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("TranslateOrder() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("TranslateOrder() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Literal expression tests
// ---------------------------------------------------------------------------

func TestExprExpand(t *testing.T) {
	idx := 2
	sql, args, err := Literal("balance + ? - ?", 10, 3).expand(testDialect{dollar: true}, &idx)
	if err != nil {
		t.Fatalf("expand() error: %v", err)
	}
	if want := "balance + $2 - $3"; sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{10, 3}) {
		t.Errorf("args = %v", args)
	}
	if idx != 4 {
		t.Errorf("idx = %d, want 4", idx)
	}
}

func TestExprExpandArgMismatch(t *testing.T) {
	idx := 1
	if _, _, err := Literal("a + ?", 1, 2).expand(testDialect{}, &idx); err == nil {
		t.Fatal("expand() succeeded with mismatched args, want error")
	}
}
