// Package dispatch maps each calculation type to the instrument shape, the
// round-level companion fields, and the formula template set it requires.
// The mapping is a closed table fixed at init; a round's calculation type is
// assigned once at model construction and never transitions.
package dispatch

import (
	"captable_engine/pkg/models"
)

// FieldID names an addressable field within a round section or instrument row.
type FieldID string

// Instrument row fields (inputs).
const (
	FieldHolder           FieldID = "holder"
	FieldClass            FieldID = "class"
	FieldQuantity         FieldID = "quantity"
	FieldTargetPct        FieldID = "target_percentage"
	FieldInvestment       FieldID = "investment_amount"
	FieldInterestRate     FieldID = "interest_rate"
	FieldPaymentDate      FieldID = "payment_date"
	FieldConversionDate   FieldID = "expected_conversion_date"
	FieldInterestType     FieldID = "interest_type"
	FieldDiscountRate     FieldID = "discount_rate"
	FieldValuationCap     FieldID = "valuation_cap"
	FieldValuationCapType FieldID = "valuation_cap_type"
	FieldProRataType      FieldID = "pro_rata_type"
	FieldProRataPct       FieldID = "pro_rata_percentage"
)

// Instrument row fields (calculated).
const (
	FieldDays            FieldID = "days_outstanding"
	FieldInterest        FieldID = "accrued_interest"
	FieldDiscountPrice   FieldID = "discount_price"
	FieldCapPrice        FieldID = "cap_price"
	FieldConversionPrice FieldID = "conversion_price"
	FieldShares          FieldID = "shares"
	FieldOwnership       FieldID = "ownership"
	FieldHolderPreShares FieldID = "holder_pre_shares"
)

// Round section constants.
const (
	RoundDate            FieldID = "date"
	RoundPreShares       FieldID = "pre_round_shares"
	RoundNewShares       FieldID = "new_shares"
	RoundPostShares      FieldID = "post_round_shares"
	RoundValuation       FieldID = "valuation"
	RoundTotalInvestment FieldID = "total_investment"
	RoundPrice           FieldID = "price_per_share"
	RoundTotalConverted  FieldID = "total_converted"
)

// Mode describes everything the pipeline needs to know about one calculation
// type: which round-level fields must be present, which instrument fields the
// required variant carries, and which addresses the layout must allocate.
type Mode struct {
	Type models.CalculationType

	// Wire field names the validator requires on the round itself.
	RequiredRoundFields []string

	// Wire field names the validator requires on each non-pro-rata instrument.
	RequiredInstrumentFields []string

	// Wire field names that may legally appear in addition to the required set.
	OptionalInstrumentFields []string

	// SectionConstants is the ordered constants block of the round section.
	SectionConstants []FieldID

	// InstrumentColumns is the ordered field set of a non-pro-rata instrument
	// row, inputs first, calculated fields after.
	InstrumentColumns []FieldID
}

// ProRataColumns is the field set of a pro-rata allocation row. Pro-rata
// entries are legal under every calculation type, so this set is mode
// independent.
func ProRataColumns() []FieldID {
	return []FieldID{
		FieldHolder, FieldClass, FieldProRataType, FieldProRataPct,
		FieldHolderPreShares, FieldShares,
	}
}

var modes = map[models.CalculationType]Mode{
	models.CalcFixedShares: {
		Type:                     models.CalcFixedShares,
		RequiredInstrumentFields: []string{"quantity"},
		SectionConstants:         []FieldID{RoundDate, RoundPreShares, RoundNewShares, RoundPostShares},
		InstrumentColumns:        []FieldID{FieldHolder, FieldClass, FieldQuantity},
	},
	models.CalcTargetPercentage: {
		Type:                     models.CalcTargetPercentage,
		RequiredInstrumentFields: []string{"target_percentage"},
		SectionConstants:         []FieldID{RoundDate, RoundPreShares, RoundNewShares, RoundPostShares},
		InstrumentColumns: []FieldID{
			FieldHolder, FieldClass, FieldTargetPct, FieldShares, FieldOwnership,
		},
	},
	models.CalcValuationBased: {
		Type:                     models.CalcValuationBased,
		RequiredRoundFields:      []string{"valuation_basis", "valuation"},
		RequiredInstrumentFields: []string{"investment_amount"},
		SectionConstants: []FieldID{
			RoundDate, RoundValuation, RoundTotalInvestment, RoundPreShares,
			RoundPrice, RoundNewShares, RoundPostShares,
		},
		InstrumentColumns: []FieldID{
			FieldHolder, FieldClass, FieldInvestment, FieldShares,
		},
	},
	models.CalcConvertible: {
		Type:                models.CalcConvertible,
		RequiredRoundFields: []string{"valuation_basis", "conversion_round_ref"},
		RequiredInstrumentFields: []string{
			"investment_amount", "interest_rate", "payment_date",
			"expected_conversion_date", "interest_type", "discount_rate",
		},
		OptionalInstrumentFields: []string{"valuation_cap", "valuation_cap_type"},
		SectionConstants: []FieldID{
			RoundDate, RoundPreShares, RoundTotalConverted, RoundNewShares, RoundPostShares,
		},
		InstrumentColumns: []FieldID{
			FieldHolder, FieldClass, FieldInvestment, FieldInterestRate,
			FieldPaymentDate, FieldConversionDate, FieldInterestType,
			FieldDiscountRate, FieldValuationCap, FieldValuationCapType,
			FieldDays, FieldInterest, FieldDiscountPrice, FieldCapPrice,
			FieldConversionPrice, FieldShares,
		},
	},
	models.CalcSafe: {
		Type:                models.CalcSafe,
		RequiredRoundFields: []string{"valuation_basis", "conversion_round_ref"},
		RequiredInstrumentFields: []string{
			"investment_amount", "expected_conversion_date", "discount_rate",
		},
		OptionalInstrumentFields: []string{"valuation_cap", "valuation_cap_type"},
		SectionConstants: []FieldID{
			RoundDate, RoundPreShares, RoundTotalConverted, RoundNewShares, RoundPostShares,
		},
		InstrumentColumns: []FieldID{
			FieldHolder, FieldClass, FieldInvestment, FieldConversionDate,
			FieldDiscountRate, FieldValuationCap, FieldValuationCapType,
			FieldDays, FieldDiscountPrice, FieldCapPrice,
			FieldConversionPrice, FieldShares,
		},
	},
}

// ModeOf looks up the mode for a calculation type. The second return is false
// for types outside the closed set.
func ModeOf(ct models.CalculationType) (Mode, bool) {
	m, ok := modes[ct]
	return m, ok
}

// ShareField returns the instrument row field that carries the row's share
// count: fixed-share rows copy the input quantity, every other variant
// calculates shares.
func ShareField(ct models.CalculationType, proRata bool) FieldID {
	if !proRata && ct == models.CalcFixedShares {
		return FieldQuantity
	}
	return FieldShares
}
