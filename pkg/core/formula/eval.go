package formula

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"captable_engine/pkg/core/layout"
)

// The evaluator gives the emitted algebra a numeric meaning so tests and the
// verification harness can check worked examples against the exact expressions
// the resolver produces. The document assembler never uses it; spreadsheets
// evaluate the rendered formulas themselves.

// dateEpoch anchors date serial numbers (days since 1899-12-30, the
// spreadsheet convention).
var dateEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// DateSerial converts a date into its serial-number representation.
func DateSerial(t time.Time) decimal.Decimal {
	days := int64(t.Sub(dateEpoch).Hours() / 24)
	return decimal.NewFromInt(days)
}

// Env maps canonical address tokens to their current numeric values.
type Env map[string]decimal.Decimal

// errUnboundRef marks an expression that references a token the environment
// does not hold yet; EvalSet retries those on a later pass.
type errUnboundRef struct {
	token string
}

func (e *errUnboundRef) Error() string {
	return fmt.Sprintf("unbound reference %s", e.token)
}

// Eval computes the numeric value of an expression under env.
func Eval(e Expr, env Env) (decimal.Decimal, error) {
	switch n := e.(type) {
	case Num:
		return n.Value, nil

	case DateLit:
		return DateSerial(n.Value), nil

	case Text:
		return decimal.Zero, fmt.Errorf("text literal %s has no numeric value", n.Render())

	case Ref:
		v, ok := env[n.Addr.String()]
		if !ok {
			return decimal.Zero, &errUnboundRef{token: n.Addr.String()}
		}
		return v, nil

	case Binary:
		l, err := Eval(n.Left, env)
		if err != nil {
			return decimal.Zero, err
		}
		r, err := Eval(n.Right, env)
		if err != nil {
			return decimal.Zero, err
		}
		switch n.Op {
		case "+":
			return l.Add(r), nil
		case "-":
			return l.Sub(r), nil
		case "*":
			return l.Mul(r), nil
		case "/":
			if r.IsZero() {
				return decimal.Zero, fmt.Errorf("unguarded division by zero in %s", e.Render())
			}
			return l.Div(r), nil
		}
		return decimal.Zero, fmt.Errorf("unknown operator %q", n.Op)

	case MinOf:
		a, err := Eval(n.A, env)
		if err != nil {
			return decimal.Zero, err
		}
		b, err := Eval(n.B, env)
		if err != nil {
			return decimal.Zero, err
		}
		if a.LessThan(b) {
			return a, nil
		}
		return b, nil

	case PowerOf:
		base, err := Eval(n.Base, env)
		if err != nil {
			return decimal.Zero, err
		}
		exp, err := Eval(n.Exp, env)
		if err != nil {
			return decimal.Zero, err
		}
		// Fractional exponents fall outside exact decimal arithmetic; the
		// spreadsheet computes POWER in floating point too.
		v := math.Pow(base.InexactFloat64(), exp.InexactFloat64())
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("POWER produced non-finite value in %s", e.Render())
		}
		return decimal.NewFromFloat(v), nil

	case DaysBetween:
		end, err := Eval(n.End, env)
		if err != nil {
			return decimal.Zero, err
		}
		start, err := Eval(n.Start, env)
		if err != nil {
			return decimal.Zero, err
		}
		return end.Sub(start), nil

	case SafeDiv:
		den, err := Eval(n.Den, env)
		if err != nil {
			return decimal.Zero, err
		}
		if den.IsZero() {
			return Eval(n.Fallback, env)
		}
		num, err := Eval(n.Num, env)
		if err != nil {
			return decimal.Zero, err
		}
		return num.Div(den), nil
	}

	return decimal.Zero, fmt.Errorf("unknown expression node %T", e)
}

// EvalSet evaluates every input and formula entry of a set, iterating until
// the environment is stable so forward references (a note priced off a later
// round) resolve. Label and column-formula entries are skipped: labels are not
// numeric, and column formulas only have a value per table row.
func EvalSet(s *Set) (Env, error) {
	return EvalEntries(s.Entries())
}

// EvalEntries is EvalSet over a bare entry slice, as carried by a generation
// result.
func EvalEntries(entries []Entry) (Env, error) {
	env := make(Env)
	pending := make(map[string]Entry)

	for _, entry := range entries {
		switch entry.Kind {
		case KindInput, KindFormula:
			pending[entry.Ref] = entry
		}
	}

	// Entries are emitted mostly in dependency order, so the fixpoint settles
	// in very few passes; the bound only guards against a genuine cycle.
	maxPasses := len(pending) + 1
	for pass := 0; pass < maxPasses; pass++ {
		progressed := false
		for ref, entry := range pending {
			v, err := Eval(entry.AST(), env)
			if err != nil {
				if _, unbound := err.(*errUnboundRef); unbound {
					continue
				}
				return nil, fmt.Errorf("evaluate %s: %w", entry.Key, err)
			}
			env[ref] = v
			delete(pending, ref)
			progressed = true
		}
		if len(pending) == 0 {
			return env, nil
		}
		if !progressed {
			break
		}
	}

	for _, entry := range pending {
		return nil, fmt.Errorf("evaluate %s: unresolved references (dependency cycle?)", entry.Key)
	}
	return env, nil
}

// exprRefs collects the address tokens an expression references.
func exprRefs(e Expr, out map[string]bool) {
	switch n := e.(type) {
	case Ref:
		out[n.Addr.String()] = true
	case Binary:
		exprRefs(n.Left, out)
		exprRefs(n.Right, out)
	case MinOf:
		exprRefs(n.A, out)
		exprRefs(n.B, out)
	case PowerOf:
		exprRefs(n.Base, out)
		exprRefs(n.Exp, out)
	case DaysBetween:
		exprRefs(n.End, out)
		exprRefs(n.Start, out)
	case SafeDiv:
		exprRefs(n.Num, out)
		exprRefs(n.Den, out)
		exprRefs(n.Fallback, out)
	}
}

// findCycle structurally checks the input and formula entries: entries whose
// in-set dependencies have all settled settle in turn, and anything left at
// the fixpoint sits on a reference cycle. Returns the smallest stuck key so
// the error message is stable, or "" for an acyclic set.
func findCycle(entries []Entry) layout.Key {
	pending := make(map[string]map[string]bool)
	keyOf := make(map[string]layout.Key)
	for _, entry := range entries {
		switch entry.Kind {
		case KindInput, KindFormula:
			refs := make(map[string]bool)
			exprRefs(entry.AST(), refs)
			pending[entry.Ref] = refs
			keyOf[entry.Ref] = entry.Key
		}
	}

	for changed := true; changed && len(pending) > 0; {
		changed = false
		for ref, refs := range pending {
			blocked := false
			for dep := range refs {
				if _, waiting := pending[dep]; waiting {
					blocked = true
					break
				}
			}
			if !blocked {
				delete(pending, ref)
				changed = true
			}
		}
	}

	var stuck layout.Key
	for ref := range pending {
		if stuck == "" || keyOf[ref] < stuck {
			stuck = keyOf[ref]
		}
	}
	return stuck
}
