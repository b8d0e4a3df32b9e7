package formula

import (
	"testing"
	"time"

	"captable_engine/pkg/core/layout"
)

func TestExpr_Render(t *testing.T) {
	price := R(layout.Address{Kind: layout.KindCoordinate, Section: "series_a", Row: 5, Column: "value"})
	investment := R(layout.Address{Kind: layout.KindCoordinate, Section: "series_a", Row: 8, Column: "investment_amount"})

	cases := []struct {
		name string
		expr Expr
		want string
	}{
		{"reference", price, "series_a!R5.value"},
		{"integer literal", LitInt(0), "0"},
		{"float literal", Lit(0.08), "0.08"},
		{
			"date literal",
			DateLit{Value: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)},
			"DATE(2024-01-15)",
		},
		{"text literal", Text{Value: "Series A Preferred"}, `"Series A Preferred"`},
		{"sum", Add(price, investment), "(series_a!R5.value + series_a!R8.investment_amount)"},
		{
			"nested arithmetic",
			Mul(Sub(LitInt(1), Lit(0.2)), price),
			"((1 - 0.2) * series_a!R5.value)",
		},
		{"min", MinOf{A: price, B: investment}, "MIN(series_a!R5.value, series_a!R8.investment_amount)"},
		{"power", PowerOf{Base: Add(LitInt(1), Lit(0.1)), Exp: LitInt(2)}, "POWER((1 + 0.1), 2)"},
		{"days", DaysBetween{End: price, Start: investment}, "DAYS(series_a!R5.value, series_a!R8.investment_amount)"},
		{
			"guarded division",
			Guarded(investment, price, LitInt(0)),
			"SAFEDIV(series_a!R8.investment_amount, series_a!R5.value, 0)",
		},
		{"empty sum", Sum(), "0"},
		{"chained sum", Sum(price, investment, LitInt(1)), "((series_a!R5.value + series_a!R8.investment_amount) + 1)"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.expr.Render(); got != c.want {
				t.Errorf("Expected %q, got %q", c.want, got)
			}
		})
	}
}

func TestExpr_RenderIsStable(t *testing.T) {
	e := Guarded(
		Mul(R(layout.Address{Kind: layout.KindNamedConstant, ID: "total_fd_shares"}), Lit(0.2)),
		Sub(LitInt(1), Lit(0.2)),
		LitInt(0),
	)
	first := e.Render()
	for i := 0; i < 10; i++ {
		if got := e.Render(); got != first {
			t.Fatalf("render %d diverged: %q vs %q", i, got, first)
		}
	}
}
