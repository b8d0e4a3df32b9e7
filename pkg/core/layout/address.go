// Package layout implements the deterministic layout map: a single forward
// pass over the cap-table model that assigns every entity and calculated field
// a stable, collision-free output address. The full address table is built
// before any formula resolves; regeneration from an unchanged model reproduces
// byte-identical addresses.
package layout

import (
	"fmt"
	"strings"
)

// =============================================================================
// ADDRESS
// =============================================================================

// AddressKind discriminates the three address shapes the map can assign.
type AddressKind string

const (
	// KindNamedConstant is a global singleton cell, e.g. total outstanding shares.
	KindNamedConstant AddressKind = "named_constant"
	// KindTableColumn is a repeated-row column reference meaning
	// "this column, current row".
	KindTableColumn AddressKind = "table_column"
	// KindCoordinate is a section-relative cell: section id, row offset, column.
	KindCoordinate AddressKind = "coordinate"
)

// Address is one assigned output location. The zero value is invalid.
type Address struct {
	Kind AddressKind `json:"kind"`

	// Named constant.
	ID string `json:"id,omitempty"`

	// Table column.
	Table  string `json:"table,omitempty"`
	Column string `json:"column,omitempty"`

	// Coordinate. Column is shared with the table-column shape.
	Section string `json:"section,omitempty"`
	Row     int    `json:"row,omitempty"`
}

// String renders the canonical address token embedded in formula strings.
// The rendering is part of the determinism contract:
//
//	named constant  $total_fd_shares
//	table column    holders[@].ownership
//	coordinate      seed!R5.shares
func (a Address) String() string {
	switch a.Kind {
	case KindNamedConstant:
		return "$" + a.ID
	case KindTableColumn:
		return fmt.Sprintf("%s[@].%s", a.Table, a.Column)
	case KindCoordinate:
		return fmt.Sprintf("%s!R%d.%s", a.Section, a.Row, a.Column)
	}
	return "<invalid address>"
}

// SectionSlug normalizes an entity name into a section identifier usable
// inside address tokens.
func SectionSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// =============================================================================
// KEYS
// =============================================================================

// Key is the stable entity identifier an address is registered under. Keys are
// derived from model names and positions, never from layout geometry, so an
// entity keeps its key when unrelated rounds move.
type Key string

// ConstKey identifies a named constant.
func ConstKey(id string) Key {
	return Key("const/" + id)
}

// TableColKey identifies a table column (current-row semantics).
func TableColKey(table, column string) Key {
	return Key(fmt.Sprintf("table/%s/col/%s", table, column))
}

// TableRowKey identifies one cell of a table data row.
func TableRowKey(table string, row int, column string) Key {
	return Key(fmt.Sprintf("table/%s/row/%d/%s", table, row, column))
}

// RoundKey identifies a round-section constant.
func RoundKey(round, field string) Key {
	return Key(fmt.Sprintf("round/%s/%s", SectionSlug(round), field))
}

// InstrumentKey identifies one field of a round's instrument row.
func InstrumentKey(round string, index int, field string) Key {
	return Key(fmt.Sprintf("round/%s/inst/%d/%s", SectionSlug(round), index, field))
}

// =============================================================================
// ERRORS
// =============================================================================

// AddressResolutionError reports a lookup against a key that was never
// registered. It indicates an internal sequencing bug (resolution started
// before layout completed), not a user input error, and aborts the pass.
type AddressResolutionError struct {
	Key Key
}

func (e *AddressResolutionError) Error() string {
	return fmt.Sprintf("address resolution failed: %q was never registered", e.Key)
}
