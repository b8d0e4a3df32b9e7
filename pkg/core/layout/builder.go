package layout

import (
	"fmt"
)

// =============================================================================
// BUILDER
// =============================================================================

// Builder assembles the address table in one pass. It is not safe for
// concurrent use; Build seals the result into an immutable Map.
type Builder struct {
	entries []Entry
	index   map[Key]int

	sections      map[string]int // section id -> base offset
	sectionCursor int            // running height of all stacked sections
}

// Entry pairs a registered key with its address, in registration order.
type Entry struct {
	Key     Key     `json:"key"`
	Address Address `json:"address"`
}

// NewBuilder returns an empty layout builder.
func NewBuilder() *Builder {
	return &Builder{
		index:    make(map[Key]int),
		sections: make(map[string]int),
	}
}

func (b *Builder) register(key Key, addr Address) (Address, error) {
	if _, dup := b.index[key]; dup {
		return Address{}, fmt.Errorf("layout: duplicate registration of key %q", key)
	}
	b.index[key] = len(b.entries)
	b.entries = append(b.entries, Entry{Key: key, Address: addr})
	return addr, nil
}

// NamedConstant registers a global singleton address.
func (b *Builder) NamedConstant(id string) (Address, error) {
	return b.register(ConstKey(id), Address{Kind: KindNamedConstant, ID: id})
}

// Table registers a repeated-row structure: one current-row column address per
// column, plus a coordinate per data-row cell. Row 0 of the table section is
// the header; data rows start at offset 1.
func (b *Builder) Table(id string, columns []string, rows int) (*TableHandle, error) {
	for _, col := range columns {
		_, err := b.register(TableColKey(id, col), Address{
			Kind: KindTableColumn, Table: id, Column: col,
		})
		if err != nil {
			return nil, err
		}
	}
	for row := 0; row < rows; row++ {
		for _, col := range columns {
			_, err := b.register(TableRowKey(id, row, col), Address{
				Kind: KindCoordinate, Section: id, Row: 1 + row, Column: col,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return &TableHandle{builder: b, id: id, rows: rows}, nil
}

// TableHandle exposes lookups into a registered table.
type TableHandle struct {
	builder *Builder
	id      string
	rows    int
}

// Column returns the current-row address of a column.
func (t *TableHandle) Column(col string) (Address, error) {
	return t.builder.lookup(TableColKey(t.id, col))
}

// Row returns the coordinate address of one data-row cell.
func (t *TableHandle) Row(index int, col string) (Address, error) {
	return t.builder.lookup(TableRowKey(t.id, index, col))
}

// Section reserves a vertically stacked section of the given height and
// returns its base row offset. Offsets are the running sum of all previously
// reserved sections, computed once here, never per lookup.
func (b *Builder) Section(id string, height int) (int, error) {
	if _, dup := b.sections[id]; dup {
		return 0, fmt.Errorf("layout: duplicate section %q", id)
	}
	if height <= 0 {
		return 0, fmt.Errorf("layout: section %q has non-positive height %d", id, height)
	}
	base := b.sectionCursor
	b.sections[id] = base
	b.sectionCursor += height
	return base, nil
}

// Coordinate registers a section-relative cell under the given key.
func (b *Builder) Coordinate(key Key, section string, rowOffset int, column string) (Address, error) {
	if _, ok := b.sections[section]; !ok {
		return Address{}, fmt.Errorf("layout: coordinate in unreserved section %q", section)
	}
	return b.register(key, Address{
		Kind: KindCoordinate, Section: section, Row: rowOffset, Column: column,
	})
}

// SectionBase returns the base offset reserved for a section.
func (b *Builder) SectionBase(id string) (int, bool) {
	base, ok := b.sections[id]
	return base, ok
}

func (b *Builder) lookup(key Key) (Address, error) {
	i, ok := b.index[key]
	if !ok {
		return Address{}, &AddressResolutionError{Key: key}
	}
	return b.entries[i].Address, nil
}

// Build seals the builder into an immutable Map. The builder must not be used
// afterwards.
func (b *Builder) Build() *Map {
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	index := make(map[Key]int, len(b.index))
	for k, v := range b.index {
		index[k] = v
	}
	sections := make(map[string]int, len(b.sections))
	for k, v := range b.sections {
		sections[k] = v
	}
	return &Map{entries: entries, index: index, sections: sections}
}

// =============================================================================
// MAP
// =============================================================================

// Map is the sealed address table. It is never mutated after Build, so it may
// be shared freely within a generation pass.
type Map struct {
	entries  []Entry
	index    map[Key]int
	sections map[string]int
}

// Resolve returns the address registered for a key, or an
// *AddressResolutionError if the key was never registered.
func (m *Map) Resolve(key Key) (Address, error) {
	i, ok := m.index[key]
	if !ok {
		return Address{}, &AddressResolutionError{Key: key}
	}
	return m.entries[i].Address, nil
}

// Entries returns the address table in registration order. Callers must not
// mutate the returned slice.
func (m *Map) Entries() []Entry {
	return m.entries
}

// Len returns the number of registered addresses.
func (m *Map) Len() int {
	return len(m.entries)
}

// SectionBase returns the base offset of a reserved section.
func (m *Map) SectionBase(id string) (int, bool) {
	base, ok := m.sections[id]
	return base, ok
}
