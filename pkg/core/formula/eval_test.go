package formula

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"captable_engine/pkg/core/layout"
)

func constRef(id string) Ref {
	return R(layout.Address{Kind: layout.KindNamedConstant, ID: id})
}

func TestDateSerial(t *testing.T) {
	// Spreadsheet epoch: 1899-12-30 is day zero.
	cases := []struct {
		date string
		want int64
	}{
		{"1899-12-31", 1},
		{"1900-01-01", 2},
		{"2023-01-01", 44927},
		{"2024-01-01", 45292},
	}
	for _, c := range cases {
		d, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			t.Fatalf("parse %s: %v", c.date, err)
		}
		if got := DateSerial(d); !got.Equal(decimal.NewFromInt(c.want)) {
			t.Errorf("DateSerial(%s): expected %d, got %s", c.date, c.want, got)
		}
	}
}

func TestEval_Arithmetic(t *testing.T) {
	env := Env{
		"$a": decimal.NewFromInt(12),
		"$b": decimal.NewFromInt(4),
	}
	a, b := constRef("a"), constRef("b")

	cases := []struct {
		name string
		expr Expr
		want string
	}{
		{"add", Add(a, b), "16"},
		{"sub", Sub(a, b), "8"},
		{"mul", Mul(a, b), "48"},
		{"div", Div(a, b), "3"},
		{"min picks smaller", MinOf{A: a, B: b}, "4"},
		{"days is a difference", DaysBetween{End: a, Start: b}, "8"},
		{"guard passes through", Guarded(a, b, LitInt(99)), "3"},
		{"guard falls back", Guarded(a, LitInt(0), LitInt(99)), "99"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Eval(c.expr, env)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got.String() != c.want {
				t.Errorf("Expected %s, got %s", c.want, got)
			}
		})
	}
}

func TestEval_Power(t *testing.T) {
	got, err := Eval(PowerOf{Base: Lit(1.1), Exp: LitInt(2)}, nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if diff := math.Abs(got.InexactFloat64() - 1.21); diff > 1e-9 {
		t.Errorf("Expected 1.21, got %s", got)
	}
}

func TestEval_UnguardedDivisionByZero(t *testing.T) {
	_, err := Eval(Div(LitInt(1), LitInt(0)), nil)
	if err == nil {
		t.Fatal("Expected division-by-zero error")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestEval_UnboundReference(t *testing.T) {
	_, err := Eval(constRef("missing"), Env{})
	if err == nil {
		t.Fatal("Expected unbound reference error")
	}
	if _, ok := err.(*errUnboundRef); !ok {
		t.Errorf("Expected *errUnboundRef, got %T", err)
	}
}

func TestEval_TextHasNoNumericValue(t *testing.T) {
	if _, err := Eval(Text{Value: "common"}, nil); err == nil {
		t.Error("Expected text literal evaluation to fail")
	}
}

func TestEvalSet_ForwardReference(t *testing.T) {
	// b is emitted before a but depends on it; the fixpoint must settle anyway.
	s := NewSet()
	addrA := layout.Address{Kind: layout.KindNamedConstant, ID: "a"}
	addrB := layout.Address{Kind: layout.KindNamedConstant, ID: "b"}
	if err := s.add(layout.ConstKey("b"), addrB, KindFormula, Mul(R(addrA), LitInt(3))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.add(layout.ConstKey("a"), addrA, KindInput, LitInt(7)); err != nil {
		t.Fatalf("add: %v", err)
	}

	env, err := EvalSet(s)
	if err != nil {
		t.Fatalf("EvalSet: %v", err)
	}
	if got := env["$b"]; !got.Equal(decimal.NewFromInt(21)) {
		t.Errorf("Expected b = 21, got %s", got)
	}
}

func TestEvalSet_DetectsCycle(t *testing.T) {
	s := NewSet()
	addrA := layout.Address{Kind: layout.KindNamedConstant, ID: "a"}
	addrB := layout.Address{Kind: layout.KindNamedConstant, ID: "b"}
	if err := s.add(layout.ConstKey("a"), addrA, KindFormula, Add(R(addrB), LitInt(1))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.add(layout.ConstKey("b"), addrB, KindFormula, Add(R(addrA), LitInt(1))); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := EvalSet(s); err == nil {
		t.Fatal("Expected cycle detection to fail the evaluation")
	}
}

func TestEvalSet_SkipsLabelsAndColumnFormulas(t *testing.T) {
	s := NewSet()
	name := layout.Address{Kind: layout.KindCoordinate, Section: "holders", Row: 1, Column: "name"}
	col := layout.Address{Kind: layout.KindTableColumn, Table: "holders", Column: "ownership"}
	if err := s.add(layout.TableRowKey("holders", 0, "name"), name, KindLabel, Text{Value: "Alice"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.add(layout.TableColKey("holders", "ownership"), col, KindColumnFormula, LitInt(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	env, err := EvalSet(s)
	if err != nil {
		t.Fatalf("EvalSet: %v", err)
	}
	if len(env) != 0 {
		t.Errorf("Expected empty environment, got %d entries", len(env))
	}
}

func TestFindCycle_ReportsMutualReferences(t *testing.T) {
	addrA := layout.Address{Kind: layout.KindNamedConstant, ID: "a"}
	addrB := layout.Address{Kind: layout.KindNamedConstant, ID: "b"}

	s := NewSet()
	if err := s.add(layout.ConstKey("a"), addrA, KindFormula, Add(R(addrB), LitInt(1))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.add(layout.ConstKey("b"), addrB, KindFormula, R(addrA)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if key := findCycle(s.Entries()); key == "" {
		t.Fatal("Expected a stuck entry for mutually referencing formulas")
	}
}

func TestFindCycle_AcceptsForwardChains(t *testing.T) {
	addrA := layout.Address{Kind: layout.KindNamedConstant, ID: "a"}
	addrB := layout.Address{Kind: layout.KindNamedConstant, ID: "b"}

	s := NewSet()
	// Emission order is backwards on purpose: the check is structural, not
	// order-sensitive.
	if err := s.add(layout.ConstKey("a"), addrA, KindFormula, Mul(R(addrB), LitInt(2))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.add(layout.ConstKey("b"), addrB, KindInput, LitInt(7)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if key := findCycle(s.Entries()); key != "" {
		t.Errorf("Expected no cycle, got stuck entry %q", key)
	}
}

func TestFindCycle_SelfReference(t *testing.T) {
	addr := layout.Address{Kind: layout.KindNamedConstant, ID: "a"}

	s := NewSet()
	if err := s.add(layout.ConstKey("a"), addr, KindFormula, Add(R(addr), LitInt(1))); err != nil {
		t.Fatalf("add: %v", err)
	}

	if key := findCycle(s.Entries()); key == "" {
		t.Fatal("Expected a self-referencing formula to be reported")
	}
}
