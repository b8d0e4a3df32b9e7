// Package formula builds the symbolic calculation expressions for every
// calculated field of the model. Expressions are a small closed algebra over
// address tokens: + - * /, MIN, POWER, a DAYS date-difference primitive, and a
// SAFEDIV divide-by-zero guard. Rendering is deterministic; the rendered
// string is the contract with the downstream document assembler.
package formula

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"captable_engine/pkg/core/layout"
	"captable_engine/pkg/models"
)

// Expr is one node of the expression tree.
type Expr interface {
	// Render produces the canonical expression string.
	Render() string
}

// =============================================================================
// LEAVES
// =============================================================================

// Ref is an address token.
type Ref struct {
	Addr layout.Address
}

func (r Ref) Render() string { return r.Addr.String() }

// Num is an exact numeric literal.
type Num struct {
	Value decimal.Decimal
}

func (n Num) Render() string { return n.Value.String() }

// DateLit is a date literal, rendered DATE(YYYY-MM-DD).
type DateLit struct {
	Value time.Time
}

func (d DateLit) Render() string {
	return fmt.Sprintf("DATE(%s)", d.Value.Format(models.DateLayout))
}

// Text is a non-numeric input literal (holder names, enum tags). It never
// participates in arithmetic.
type Text struct {
	Value string
}

func (t Text) Render() string { return fmt.Sprintf("%q", t.Value) }

// =============================================================================
// OPERATORS
// =============================================================================

// Binary is one of the four arithmetic operators.
type Binary struct {
	Op          string // "+", "-", "*", "/"
	Left, Right Expr
}

func (b Binary) Render() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.Render(), b.Op, b.Right.Render())
}

// MinOf is the two-argument MIN primitive.
type MinOf struct {
	A, B Expr
}

func (m MinOf) Render() string {
	return fmt.Sprintf("MIN(%s, %s)", m.A.Render(), m.B.Render())
}

// PowerOf is exponentiation.
type PowerOf struct {
	Base, Exp Expr
}

func (p PowerOf) Render() string {
	return fmt.Sprintf("POWER(%s, %s)", p.Base.Render(), p.Exp.Render())
}

// DaysBetween is the date-difference primitive: whole days from Start to End.
type DaysBetween struct {
	End, Start Expr
}

func (d DaysBetween) Render() string {
	return fmt.Sprintf("DAYS(%s, %s)", d.End.Render(), d.Start.Render())
}

// SafeDiv is the guarded division wrapper: Num / Den unless Den is zero, in
// which case the defined Fallback value is produced instead of a failure.
type SafeDiv struct {
	Num, Den, Fallback Expr
}

func (s SafeDiv) Render() string {
	return fmt.Sprintf("SAFEDIV(%s, %s, %s)", s.Num.Render(), s.Den.Render(), s.Fallback.Render())
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// Lit builds an exact literal from a float input value.
func Lit(v float64) Num {
	return Num{Value: decimal.NewFromFloat(v)}
}

// LitInt builds an integer literal.
func LitInt(v int64) Num {
	return Num{Value: decimal.NewFromInt(v)}
}

// R wraps an address into a reference.
func R(addr layout.Address) Ref {
	return Ref{Addr: addr}
}

func Add(l, r Expr) Expr { return Binary{Op: "+", Left: l, Right: r} }
func Sub(l, r Expr) Expr { return Binary{Op: "-", Left: l, Right: r} }
func Mul(l, r Expr) Expr { return Binary{Op: "*", Left: l, Right: r} }
func Div(l, r Expr) Expr { return Binary{Op: "/", Left: l, Right: r} }

// Guarded builds SAFEDIV(num, den, fallback).
func Guarded(num, den, fallback Expr) Expr {
	return SafeDiv{Num: num, Den: den, Fallback: fallback}
}

// Sum chains the given expressions with +. An empty list is the zero literal.
func Sum(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return LitInt(0)
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = Add(out, e)
	}
	return out
}
