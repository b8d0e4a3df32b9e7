package layout

import (
	"fmt"

	"captable_engine/pkg/core/dispatch"
	"captable_engine/pkg/models"
)

// Layout geometry shared by every round section: one heading row above the
// constants block, two blank rows between sections.
const (
	headingRows = 1
	sectionGap  = 2
)

// HoldersTable is the table id of the holder summary.
const HoldersTable = "holders"

// Named constant ids.
const (
	ConstCurrentDate   = "current_date"
	ConstTotalFDShares = "total_fd_shares"
)

// Holders table columns.
const (
	ColHolderName  = "name"
	ColHolderGroup = "group"
	ColSharesTotal = "shares_total"
	ColOwnership   = "ownership"
)

// BuildLayout assigns an address to every entity and calculated field of the
// model in dependency order: named constants, then tables, then round
// sections, then instrument rows. It consumes the model once and returns the
// sealed map; formulas resolve against it afterwards.
func BuildLayout(doc *models.Document) (*Map, error) {
	b := NewBuilder()

	// Global constants.
	if _, err := b.NamedConstant(ConstCurrentDate); err != nil {
		return nil, err
	}
	if _, err := b.NamedConstant(ConstTotalFDShares); err != nil {
		return nil, err
	}

	// Holder summary table.
	columns := []string{ColHolderName, ColHolderGroup, ColSharesTotal, ColOwnership}
	if _, err := b.Table(HoldersTable, columns, len(doc.Holders)); err != nil {
		return nil, err
	}

	// Round sections, stacked in model order. The base offset of each section
	// is the running sum of every preceding section's height; this fold is the
	// only place offsets are computed.
	for i := range doc.Rounds {
		if err := layoutRound(b, &doc.Rounds[i]); err != nil {
			return nil, fmt.Errorf("round %s: %w", doc.Rounds[i].Name, err)
		}
	}

	return b.Build(), nil
}

func layoutRound(b *Builder, round *models.Round) error {
	mode, ok := dispatch.ModeOf(round.CalculationType)
	if !ok {
		return fmt.Errorf("unknown calculation_type %q", round.CalculationType)
	}

	section := SectionSlug(round.Name)
	height := headingRows + len(mode.SectionConstants) + len(round.Instruments) + sectionGap
	if _, err := b.Section(section, height); err != nil {
		return err
	}

	// Constants block, directly under the heading.
	for ci, field := range mode.SectionConstants {
		key := RoundKey(round.Name, string(field))
		if _, err := b.Coordinate(key, section, headingRows+ci, "value"); err != nil {
			return err
		}
	}

	// One row per instrument, under the constants block.
	rowBase := headingRows + len(mode.SectionConstants)
	for ii := range round.Instruments {
		spec := &round.Instruments[ii]
		fields := mode.InstrumentColumns
		if spec.IsProRata() {
			fields = dispatch.ProRataColumns()
		}
		for _, field := range fields {
			key := InstrumentKey(round.Name, ii, string(field))
			if _, err := b.Coordinate(key, section, rowBase+ii, string(field)); err != nil {
				return err
			}
		}
	}

	return nil
}
