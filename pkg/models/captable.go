// Package models defines the cap-table document model consumed by the
// generation pipeline. The wire shapes (Document, RoundSpec, InstrumentSpec)
// mirror the structured input produced upstream; DecodeInstrument converts a
// flat instrument entry into the closed typed union used by the formula
// resolver.
package models

import (
	"fmt"
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// CalculationType selects the calculation semantics of a financing round.
type CalculationType string

const (
	CalcFixedShares      CalculationType = "fixed_shares"
	CalcTargetPercentage CalculationType = "target_percentage"
	CalcValuationBased   CalculationType = "valuation_based"
	CalcConvertible      CalculationType = "convertible"
	CalcSafe             CalculationType = "safe"
)

// AllCalculationTypes lists every supported calculation type, in declaration order.
func AllCalculationTypes() []CalculationType {
	return []CalculationType{
		CalcFixedShares, CalcTargetPercentage, CalcValuationBased, CalcConvertible, CalcSafe,
	}
}

// Valid reports whether the calculation type is one of the closed set.
func (c CalculationType) Valid() bool {
	switch c {
	case CalcFixedShares, CalcTargetPercentage, CalcValuationBased, CalcConvertible, CalcSafe:
		return true
	}
	return false
}

// ValuationBasis distinguishes pre-money and post-money round valuations.
type ValuationBasis string

const (
	BasisPreMoney  ValuationBasis = "pre_money"
	BasisPostMoney ValuationBasis = "post_money"
)

func (b ValuationBasis) Valid() bool {
	return b == BasisPreMoney || b == BasisPostMoney
}

// ValuationCapType selects the share basis a valuation cap is priced over.
type ValuationCapType string

const (
	CapPreConversion       ValuationCapType = "pre_conversion"
	CapPostConversionOwn   ValuationCapType = "post_conversion_own"
	CapPostConversionTotal ValuationCapType = "post_conversion_total"
)

func (c ValuationCapType) Valid() bool {
	switch c {
	case CapPreConversion, CapPostConversionOwn, CapPostConversionTotal:
		return true
	}
	return false
}

// InterestType selects the accrual formula for a convertible note.
type InterestType string

const (
	InterestSimple          InterestType = "simple"
	InterestCompoundYearly  InterestType = "compound_yearly"
	InterestCompoundMonthly InterestType = "compound_monthly"
	InterestCompoundDaily   InterestType = "compound_daily"
	InterestNone            InterestType = "no_interest"
)

func (i InterestType) Valid() bool {
	switch i {
	case InterestSimple, InterestCompoundYearly, InterestCompoundMonthly, InterestCompoundDaily, InterestNone:
		return true
	}
	return false
}

// CompoundingPeriods returns the periods-per-year for a compound interest type,
// or 0 for simple / no_interest.
func (i InterestType) CompoundingPeriods() int {
	switch i {
	case InterestCompoundYearly:
		return 1
	case InterestCompoundMonthly:
		return 12
	case InterestCompoundDaily:
		return 365
	}
	return 0
}

// ProRataType distinguishes standard (maintain ownership) from super
// (target percentage of post-round ownership) pro-rata rights.
type ProRataType string

const (
	ProRataStandard ProRataType = "standard"
	ProRataSuper    ProRataType = "super"
)

func (p ProRataType) Valid() bool {
	return p == ProRataStandard || p == ProRataSuper
}

// =============================================================================
// WIRE MODEL
// =============================================================================

// Document is the top-level cap-table model. It is treated as immutable input
// for one generation pass.
type Document struct {
	SchemaVersion   string          `json:"schema_version" yaml:"schema_version"`
	Company         string          `json:"company,omitempty" yaml:"company,omitempty"`
	ValuationDate   string          `json:"valuation_date,omitempty" yaml:"valuation_date,omitempty"`
	Holders         []Holder        `json:"holders" yaml:"holders"`
	SecurityClasses []SecurityClass `json:"security_classes" yaml:"security_classes"`
	Rounds          []Round         `json:"rounds" yaml:"rounds"`
}

// Holder is a cap-table participant, referenced by name from instruments.
type Holder struct {
	Name        string `json:"name" yaml:"name"`
	Group       string `json:"group,omitempty" yaml:"group,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SecurityClass identifies an instrument's share class. It is a lookup key
// only; class mechanics are external to this core.
type SecurityClass struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Round is a financing round with an immutable calculation type assigned at
// model construction time.
type Round struct {
	Name               string            `json:"name" yaml:"name"`
	Date               string            `json:"date" yaml:"date"`
	CalculationType    CalculationType   `json:"calculation_type" yaml:"calculation_type"`
	ValuationBasis     *ValuationBasis   `json:"valuation_basis,omitempty" yaml:"valuation_basis,omitempty"`
	Valuation          *float64          `json:"valuation,omitempty" yaml:"valuation,omitempty"`
	ValuationCapBasis  *ValuationCapType `json:"valuation_cap_basis,omitempty" yaml:"valuation_cap_basis,omitempty"`
	ConversionRoundRef *string           `json:"conversion_round_ref,omitempty" yaml:"conversion_round_ref,omitempty"`
	Instruments        []InstrumentSpec  `json:"instruments" yaml:"instruments"`
}

// InstrumentSpec is the flat wire shape of an instrument entry. Which fields
// are required depends on the owning round's calculation type; the validator
// enforces completeness before DecodeInstrument builds the typed variant.
type InstrumentSpec struct {
	Holder                 string            `json:"holder" yaml:"holder"`
	Class                  string            `json:"class" yaml:"class"`
	Quantity               *float64          `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	TargetPercentage       *float64          `json:"target_percentage,omitempty" yaml:"target_percentage,omitempty"`
	InvestmentAmount       *float64          `json:"investment_amount,omitempty" yaml:"investment_amount,omitempty"`
	InterestRate           *float64          `json:"interest_rate,omitempty" yaml:"interest_rate,omitempty"`
	PaymentDate            string            `json:"payment_date,omitempty" yaml:"payment_date,omitempty"`
	ExpectedConversionDate string            `json:"expected_conversion_date,omitempty" yaml:"expected_conversion_date,omitempty"`
	InterestType           InterestType      `json:"interest_type,omitempty" yaml:"interest_type,omitempty"`
	DiscountRate           *float64          `json:"discount_rate,omitempty" yaml:"discount_rate,omitempty"`
	ValuationCap           *float64          `json:"valuation_cap,omitempty" yaml:"valuation_cap,omitempty"`
	ValuationCapType       *ValuationCapType `json:"valuation_cap_type,omitempty" yaml:"valuation_cap_type,omitempty"`
	ProRataType            ProRataType       `json:"pro_rata_type,omitempty" yaml:"pro_rata_type,omitempty"`
	ProRataPercentage      *float64          `json:"pro_rata_percentage,omitempty" yaml:"pro_rata_percentage,omitempty"`
}

// IsProRata reports whether the entry is a pro-rata allocation, which is legal
// under every calculation type.
func (s *InstrumentSpec) IsProRata() bool {
	return s.ProRataType != ""
}

// =============================================================================
// DATE HANDLING
// =============================================================================

// DateLayout is the wire format for all dates in the model.
const DateLayout = "2006-01-02"

// ParseDate parses a wire-format date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// =============================================================================
// TYPED INSTRUMENT UNION
// =============================================================================

// Instrument is the closed union of instrument variants. Downstream consumers
// switch exhaustively over the concrete types; an unknown variant is a
// programming error, never a silent coercion.
type Instrument interface {
	HolderName() string
	ClassName() string
	isInstrument()
}

// FixedShares issues an explicit share quantity.
type FixedShares struct {
	Holder   string
	Class    string
	Quantity float64
}

// TargetPercentage issues enough shares to reach a post-round ownership target.
type TargetPercentage struct {
	Holder string
	Class  string
	Target float64 // strictly within (0,1)
}

// ValuationBased issues shares for an investment at the round's price per share.
type ValuationBased struct {
	Holder     string
	Class      string
	Investment float64
}

// Convertible is an interest-bearing note converting at a discounted and/or
// capped price in a later priced round.
type Convertible struct {
	Holder                 string
	Class                  string
	Principal              float64
	InterestRate           float64
	PaymentDate            time.Time
	ExpectedConversionDate time.Time
	InterestType           InterestType
	DiscountRate           float64
	ValuationCap           *float64
	ValuationCapType       ValuationCapType
}

// Safe is a simple agreement for future equity: no interest accrual, otherwise
// converting like a note.
type Safe struct {
	Holder                 string
	Class                  string
	Principal              float64
	ExpectedConversionDate time.Time
	DiscountRate           float64
	ValuationCap           *float64
	ValuationCapType       ValuationCapType
}

// ProRata allocates shares to maintain (standard) or reach (super) an
// ownership percentage through the owning round.
type ProRata struct {
	Holder     string
	Class      string
	Type       ProRataType
	Percentage *float64 // set exactly when Type == super
}

func (f FixedShares) HolderName() string      { return f.Holder }
func (f FixedShares) ClassName() string       { return f.Class }
func (f FixedShares) isInstrument()           {}
func (t TargetPercentage) HolderName() string { return t.Holder }
func (t TargetPercentage) ClassName() string  { return t.Class }
func (t TargetPercentage) isInstrument()      {}
func (v ValuationBased) HolderName() string   { return v.Holder }
func (v ValuationBased) ClassName() string    { return v.Class }
func (v ValuationBased) isInstrument()        {}
func (c Convertible) HolderName() string      { return c.Holder }
func (c Convertible) ClassName() string       { return c.Class }
func (c Convertible) isInstrument()           {}
func (s Safe) HolderName() string             { return s.Holder }
func (s Safe) ClassName() string              { return s.Class }
func (s Safe) isInstrument()                  {}
func (p ProRata) HolderName() string          { return p.Holder }
func (p ProRata) ClassName() string           { return p.Class }
func (p ProRata) isInstrument()               {}

// capType picks the effective cap share basis: instrument override first, then
// the round-level default, then pre_conversion.
func capType(spec *InstrumentSpec, round *Round) ValuationCapType {
	if spec.ValuationCapType != nil {
		return *spec.ValuationCapType
	}
	if round.ValuationCapBasis != nil {
		return *round.ValuationCapBasis
	}
	return CapPreConversion
}

// DecodeInstrument converts a flat instrument entry into its typed variant for
// the owning round's calculation type. Validation runs before decoding, so a
// failure here indicates a field the validator should already have flagged;
// the error still names it precisely.
func DecodeInstrument(spec *InstrumentSpec, round *Round) (Instrument, error) {
	if spec.IsProRata() {
		if !spec.ProRataType.Valid() {
			return nil, fmt.Errorf("instrument %s: unknown pro_rata_type %q", spec.Holder, spec.ProRataType)
		}
		return ProRata{
			Holder:     spec.Holder,
			Class:      spec.Class,
			Type:       spec.ProRataType,
			Percentage: spec.ProRataPercentage,
		}, nil
	}

	switch round.CalculationType {
	case CalcFixedShares:
		if spec.Quantity == nil {
			return nil, missingField(spec, "quantity")
		}
		return FixedShares{Holder: spec.Holder, Class: spec.Class, Quantity: *spec.Quantity}, nil

	case CalcTargetPercentage:
		if spec.TargetPercentage == nil {
			return nil, missingField(spec, "target_percentage")
		}
		return TargetPercentage{Holder: spec.Holder, Class: spec.Class, Target: *spec.TargetPercentage}, nil

	case CalcValuationBased:
		if spec.InvestmentAmount == nil {
			return nil, missingField(spec, "investment_amount")
		}
		return ValuationBased{Holder: spec.Holder, Class: spec.Class, Investment: *spec.InvestmentAmount}, nil

	case CalcConvertible:
		for _, req := range []struct {
			field  string
			absent bool
		}{
			{"investment_amount", spec.InvestmentAmount == nil},
			{"interest_rate", spec.InterestRate == nil},
			{"discount_rate", spec.DiscountRate == nil},
			{"payment_date", spec.PaymentDate == ""},
			{"expected_conversion_date", spec.ExpectedConversionDate == ""},
		} {
			if req.absent {
				return nil, missingField(spec, req.field)
			}
		}
		if !spec.InterestType.Valid() {
			return nil, fmt.Errorf("instrument %s: unknown interest_type %q", spec.Holder, spec.InterestType)
		}
		paid, err := ParseDate(spec.PaymentDate)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: payment_date: %w", spec.Holder, err)
		}
		conv, err := ParseDate(spec.ExpectedConversionDate)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: expected_conversion_date: %w", spec.Holder, err)
		}
		return Convertible{
			Holder:                 spec.Holder,
			Class:                  spec.Class,
			Principal:              *spec.InvestmentAmount,
			InterestRate:           *spec.InterestRate,
			PaymentDate:            paid,
			ExpectedConversionDate: conv,
			InterestType:           spec.InterestType,
			DiscountRate:           *spec.DiscountRate,
			ValuationCap:           spec.ValuationCap,
			ValuationCapType:       capType(spec, round),
		}, nil

	case CalcSafe:
		for _, req := range []struct {
			field  string
			absent bool
		}{
			{"investment_amount", spec.InvestmentAmount == nil},
			{"discount_rate", spec.DiscountRate == nil},
			{"expected_conversion_date", spec.ExpectedConversionDate == ""},
		} {
			if req.absent {
				return nil, missingField(spec, req.field)
			}
		}
		conv, err := ParseDate(spec.ExpectedConversionDate)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: expected_conversion_date: %w", spec.Holder, err)
		}
		return Safe{
			Holder:                 spec.Holder,
			Class:                  spec.Class,
			Principal:              *spec.InvestmentAmount,
			ExpectedConversionDate: conv,
			DiscountRate:           *spec.DiscountRate,
			ValuationCap:           spec.ValuationCap,
			ValuationCapType:       capType(spec, round),
		}, nil
	}

	return nil, fmt.Errorf("round %s: unknown calculation_type %q", round.Name, round.CalculationType)
}

func missingField(spec *InstrumentSpec, field string) error {
	return fmt.Errorf("instrument %s: missing required field %s", spec.Holder, field)
}

// RoundByName returns the round with the given unique name.
func (d *Document) RoundByName(name string) (*Round, bool) {
	for i := range d.Rounds {
		if d.Rounds[i].Name == name {
			return &d.Rounds[i], true
		}
	}
	return nil, false
}
