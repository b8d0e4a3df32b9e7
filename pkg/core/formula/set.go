package formula

import (
	"fmt"

	"captable_engine/pkg/core/layout"
)

// EntryKind classifies what a formula-set entry carries.
type EntryKind string

const (
	// KindInput is a numeric or date input value copied verbatim to its address.
	KindInput EntryKind = "input"
	// KindLabel is a non-numeric input (names, enum tags).
	KindLabel EntryKind = "label"
	// KindFormula is a calculated cell expression.
	KindFormula EntryKind = "formula"
	// KindColumnFormula is a table-column expression with current-row
	// semantics, applied by the assembler to every data row of its table.
	KindColumnFormula EntryKind = "column_formula"
)

// Entry is one cell of the output contract: the entity key, its resolved
// address token, and the expression (or literal) to place there.
type Entry struct {
	Key  layout.Key `json:"key"`
	Ref  string     `json:"ref"` // canonical address token
	Kind EntryKind  `json:"kind"`
	Expr string     `json:"expr"`

	ast Expr
}

// AST returns the expression tree behind the rendered string. It is carried
// for the evaluator; the rendered Expr string is the external contract.
func (e Entry) AST() Expr { return e.ast }

// Set is the ordered collection of resolved entries for one generation pass.
type Set struct {
	entries []Entry
	index   map[layout.Key]int
}

// NewSet returns an empty formula set.
func NewSet() *Set {
	return &Set{index: make(map[layout.Key]int)}
}

func (s *Set) add(key layout.Key, addr layout.Address, kind EntryKind, e Expr) error {
	if _, dup := s.index[key]; dup {
		return fmt.Errorf("formula: duplicate entry for key %q", key)
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{
		Key:  key,
		Ref:  addr.String(),
		Kind: kind,
		Expr: e.Render(),
		ast:  e,
	})
	return nil
}

// Entries returns the set in emission order. Callers must not mutate it.
func (s *Set) Entries() []Entry {
	return s.entries
}

// Lookup returns the entry emitted for a key.
func (s *Set) Lookup(key layout.Key) (Entry, bool) {
	i, ok := s.index[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Len returns the number of entries.
func (s *Set) Len() int {
	return len(s.entries)
}

// GenerationError reports that a formula template could not be completed: a
// required model value or address is absent, or a circular dependency is
// unresolvable under the two-pass strategy. It aborts the pass.
type GenerationError struct {
	Round  string
	Field  string
	Reason string
}

func (e *GenerationError) Error() string {
	if e.Round == "" {
		return fmt.Sprintf("formula generation failed for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("formula generation failed for round %s, field %s: %s", e.Round, e.Field, e.Reason)
}
