// Package validate implements the business-rule pass over a cap-table model:
// name uniqueness, reference integrity, date ordering, numeric ranges, and
// per-calculation-type field completeness. It runs after structural schema
// validation and before any address or formula work. The pass never fails
// fast; every violation across the whole model is collected so the caller can
// present them in one shot.
package validate

import (
	"fmt"

	"captable_engine/pkg/core/dispatch"
	"captable_engine/pkg/core/layout"
	"captable_engine/pkg/models"
)

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Rule classifies a diagnostic by the business rule it violates.
type Rule string

const (
	// RuleUniqueName: two entities of the same type share a name.
	RuleUniqueName Rule = "unique_name"
	// RuleDanglingRef: a holder/class/round reference names nothing declared.
	RuleDanglingRef Rule = "dangling_reference"
	// RuleDateOrder: a date is unparseable or out of sequence.
	RuleDateOrder Rule = "date_order"
	// RuleNumericRange: a rate or percentage is outside its legal interval.
	RuleNumericRange Rule = "numeric_range"
	// RuleRequiredField: a field the round's calculation type demands is absent.
	RuleRequiredField Rule = "required_field"
	// RuleVariantMismatch: an instrument carries fields of a different variant
	// than its round's calculation type requires.
	RuleVariantMismatch Rule = "variant_mismatch"
	// RuleUnknownEnum: an enum tag outside its closed value set.
	RuleUnknownEnum Rule = "unknown_enum"
)

// Diagnostic is one collected violation. Path points into the model using the
// wire field names, e.g. "rounds[2].instruments[0].discount_rate".
type Diagnostic struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Rule    Rule   `json:"rule"`
}

// Report is the outcome of one validation pass, in model order.
type Report struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Valid reports whether the pass found no violations.
func (r *Report) Valid() bool {
	return len(r.Diagnostics) == 0
}

func (r *Report) add(path string, rule Rule, format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Rule:    rule,
	})
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// Validate runs every business rule over the model and returns the full
// report. A non-empty report means no addresses or formulas should be
// generated from this model.
func Validate(doc *models.Document) *Report {
	v := &validator{
		doc:     doc,
		report:  &Report{},
		holders: make(map[string]bool),
		classes: make(map[string]bool),
		rounds:  make(map[string]int),
		slugs:   make(map[string]string),
	}
	v.checkHolders()
	v.checkClasses()
	v.checkRounds()
	return v.report
}

type validator struct {
	doc    *models.Document
	report *Report

	holders map[string]bool
	classes map[string]bool
	rounds  map[string]int    // name -> index, for ordering checks
	slugs   map[string]string // section slug -> first round name claiming it
}

// =============================================================================
// ENTITY CHECKS
// =============================================================================

func (v *validator) checkHolders() {
	for i, h := range v.doc.Holders {
		path := fmt.Sprintf("holders[%d].name", i)
		if h.Name == "" {
			v.report.add(path, RuleRequiredField, "holder name must not be empty")
			continue
		}
		if v.holders[h.Name] {
			v.report.add(path, RuleUniqueName, "duplicate holder name %q", h.Name)
			continue
		}
		v.holders[h.Name] = true
	}
}

func (v *validator) checkClasses() {
	for i, c := range v.doc.SecurityClasses {
		path := fmt.Sprintf("security_classes[%d].name", i)
		if c.Name == "" {
			v.report.add(path, RuleRequiredField, "security class name must not be empty")
			continue
		}
		if v.classes[c.Name] {
			v.report.add(path, RuleUniqueName, "duplicate security class name %q", c.Name)
			continue
		}
		v.classes[c.Name] = true
	}
}

// =============================================================================
// ROUND CHECKS
// =============================================================================

func (v *validator) checkRounds() {
	for i := range v.doc.Rounds {
		round := &v.doc.Rounds[i]
		path := fmt.Sprintf("rounds[%d]", i)

		if round.Name == "" {
			v.report.add(path+".name", RuleRequiredField, "round name must not be empty")
		} else if _, dup := v.rounds[round.Name]; dup {
			v.report.add(path+".name", RuleUniqueName, "duplicate round name %q", round.Name)
		} else {
			v.rounds[round.Name] = i
			// Distinct names must also keep distinct section ids in the output
			// layout; a collision there is a model error, not an internal one.
			slug := layout.SectionSlug(round.Name)
			if prior, taken := v.slugs[slug]; taken {
				v.report.add(path+".name", RuleUniqueName,
					"round name %q collides with %q in the output layout (both normalize to %q)",
					round.Name, prior, slug)
			} else {
				v.slugs[slug] = round.Name
			}
		}

		if _, err := models.ParseDate(round.Date); err != nil {
			v.report.add(path+".date", RuleDateOrder, "%v", err)
		}

		if !round.CalculationType.Valid() {
			v.report.add(path+".calculation_type", RuleUnknownEnum,
				"unknown calculation_type %q", round.CalculationType)
			continue
		}
		mode, _ := dispatch.ModeOf(round.CalculationType)

		v.checkRoundFields(round, i, path, mode)
		for j := range round.Instruments {
			v.checkInstrument(round, &round.Instruments[j], mode,
				fmt.Sprintf("%s.instruments[%d]", path, j))
		}
	}
}

// checkRoundFields enforces the round-level companion fields of the mode.
func (v *validator) checkRoundFields(round *models.Round, idx int, path string, mode dispatch.Mode) {
	for _, field := range mode.RequiredRoundFields {
		switch field {
		case "valuation_basis":
			if round.ValuationBasis == nil {
				v.report.add(path+".valuation_basis", RuleRequiredField,
					"calculation_type %s requires valuation_basis", round.CalculationType)
			} else if !round.ValuationBasis.Valid() {
				v.report.add(path+".valuation_basis", RuleUnknownEnum,
					"unknown valuation_basis %q", *round.ValuationBasis)
			}

		case "valuation":
			if round.Valuation == nil {
				v.report.add(path+".valuation", RuleRequiredField,
					"calculation_type %s requires valuation", round.CalculationType)
			} else if *round.Valuation <= 0 {
				v.report.add(path+".valuation", RuleNumericRange,
					"valuation must be positive, got %v", *round.Valuation)
			}

		case "conversion_round_ref":
			v.checkConversionRef(round, idx, path)
		}
	}

	if round.ValuationCapBasis != nil && !round.ValuationCapBasis.Valid() {
		v.report.add(path+".valuation_cap_basis", RuleUnknownEnum,
			"unknown valuation_cap_basis %q", *round.ValuationCapBasis)
	}
}

// checkConversionRef enforces that a note round converts into a priced round
// that exists and comes later in the sequence.
func (v *validator) checkConversionRef(round *models.Round, idx int, path string) {
	p := path + ".conversion_round_ref"
	if round.ConversionRoundRef == nil || *round.ConversionRoundRef == "" {
		v.report.add(p, RuleRequiredField,
			"calculation_type %s requires conversion_round_ref", round.CalculationType)
		return
	}
	name := *round.ConversionRoundRef

	target := -1
	for i := range v.doc.Rounds {
		if v.doc.Rounds[i].Name == name {
			target = i
			break
		}
	}
	if target < 0 {
		v.report.add(p, RuleDanglingRef, "conversion_round_ref %q names no declared round", name)
		return
	}
	if target <= idx {
		v.report.add(p, RuleDateOrder,
			"conversion_round_ref %q must name a later round", name)
	}
	if ct := v.doc.Rounds[target].CalculationType; ct != models.CalcValuationBased {
		v.report.add(p, RuleVariantMismatch,
			"conversion_round_ref %q is a %s round; notes convert in a valuation_based round", name, ct)
	}
}

// =============================================================================
// INSTRUMENT CHECKS
// =============================================================================

func (v *validator) checkInstrument(round *models.Round, spec *models.InstrumentSpec,
	mode dispatch.Mode, path string) {

	if spec.Holder == "" {
		v.report.add(path+".holder", RuleRequiredField, "instrument holder must not be empty")
	} else if !v.holders[spec.Holder] {
		v.report.add(path+".holder", RuleDanglingRef, "holder %q is not declared", spec.Holder)
	}
	if spec.Class == "" {
		v.report.add(path+".class", RuleRequiredField, "instrument class must not be empty")
	} else if !v.classes[spec.Class] {
		v.report.add(path+".class", RuleDanglingRef, "security class %q is not declared", spec.Class)
	}

	if spec.IsProRata() {
		v.checkProRata(spec, path)
		return
	}

	for _, field := range mode.RequiredInstrumentFields {
		if !fieldPresent(spec, field) {
			v.report.add(path+"."+field, RuleRequiredField,
				"calculation_type %s requires %s", round.CalculationType, field)
		}
	}
	v.checkForeignFields(round, spec, mode, path)
	v.checkInstrumentRanges(round, spec, path)
	v.checkInstrumentDates(round, spec, path)
}

// checkProRata enforces the pro-rata coupling: percentage mandatory exactly
// when type is super, flagged when present on standard.
func (v *validator) checkProRata(spec *models.InstrumentSpec, path string) {
	if !spec.ProRataType.Valid() {
		v.report.add(path+".pro_rata_type", RuleUnknownEnum,
			"unknown pro_rata_type %q", spec.ProRataType)
		return
	}
	switch spec.ProRataType {
	case models.ProRataSuper:
		if spec.ProRataPercentage == nil {
			v.report.add(path+".pro_rata_percentage", RuleRequiredField,
				"pro_rata_type super requires pro_rata_percentage")
		} else if *spec.ProRataPercentage <= 0 || *spec.ProRataPercentage >= 1 {
			v.report.add(path+".pro_rata_percentage", RuleNumericRange,
				"pro_rata_percentage must be strictly within (0,1), got %v", *spec.ProRataPercentage)
		}
	case models.ProRataStandard:
		if spec.ProRataPercentage != nil {
			v.report.add(path+".pro_rata_percentage", RuleVariantMismatch,
				"pro_rata_percentage is only meaningful with pro_rata_type super")
		}
	}
}

// checkForeignFields flags fields belonging to a different instrument variant.
// A mismatched variant is a validation error, never a silent coercion.
func (v *validator) checkForeignFields(round *models.Round, spec *models.InstrumentSpec,
	mode dispatch.Mode, path string) {

	allowed := make(map[string]bool, len(mode.RequiredInstrumentFields)+len(mode.OptionalInstrumentFields))
	for _, f := range mode.RequiredInstrumentFields {
		allowed[f] = true
	}
	for _, f := range mode.OptionalInstrumentFields {
		allowed[f] = true
	}

	for _, f := range instrumentWireFields {
		if fieldPresent(spec, f) && !allowed[f] {
			v.report.add(path+"."+f, RuleVariantMismatch,
				"%s does not belong to a %s instrument", f, round.CalculationType)
		}
	}
}

func (v *validator) checkInstrumentRanges(round *models.Round, spec *models.InstrumentSpec, path string) {
	// Rates live in [0,1): a zero rate is legal, a 100% rate is not.
	if spec.InterestRate != nil && (*spec.InterestRate < 0 || *spec.InterestRate >= 1) {
		v.report.add(path+".interest_rate", RuleNumericRange,
			"interest_rate must be within [0,1), got %v", *spec.InterestRate)
	}
	if spec.DiscountRate != nil && (*spec.DiscountRate < 0 || *spec.DiscountRate >= 1) {
		v.report.add(path+".discount_rate", RuleNumericRange,
			"discount_rate must be within [0,1), got %v", *spec.DiscountRate)
	}

	// Percentages are strict: 0 means no issuance, 1 divides by zero.
	if spec.TargetPercentage != nil && (*spec.TargetPercentage <= 0 || *spec.TargetPercentage >= 1) {
		v.report.add(path+".target_percentage", RuleNumericRange,
			"target_percentage must be strictly within (0,1), got %v", *spec.TargetPercentage)
	}

	if spec.Quantity != nil && *spec.Quantity <= 0 {
		v.report.add(path+".quantity", RuleNumericRange,
			"quantity must be positive, got %v", *spec.Quantity)
	}
	if spec.InvestmentAmount != nil && *spec.InvestmentAmount <= 0 {
		v.report.add(path+".investment_amount", RuleNumericRange,
			"investment_amount must be positive, got %v", *spec.InvestmentAmount)
	}
	if spec.ValuationCap != nil && *spec.ValuationCap <= 0 {
		v.report.add(path+".valuation_cap", RuleNumericRange,
			"valuation_cap must be positive, got %v", *spec.ValuationCap)
	}
	if spec.ValuationCapType != nil && !spec.ValuationCapType.Valid() {
		v.report.add(path+".valuation_cap_type", RuleUnknownEnum,
			"unknown valuation_cap_type %q", *spec.ValuationCapType)
	}
	if round.CalculationType == models.CalcConvertible && spec.InterestType != "" && !spec.InterestType.Valid() {
		v.report.add(path+".interest_type", RuleUnknownEnum,
			"unknown interest_type %q", spec.InterestType)
	}
}

func (v *validator) checkInstrumentDates(round *models.Round, spec *models.InstrumentSpec, path string) {
	paymentDate, paymentOK := v.parseDateField(spec.PaymentDate, path+".payment_date")
	conversionDate, conversionOK := v.parseDateField(spec.ExpectedConversionDate, path+".expected_conversion_date")

	// Accrual must run forward: conversion strictly after the note's start.
	if paymentOK && conversionOK && !conversionDate.After(paymentDate) {
		v.report.add(path+".expected_conversion_date", RuleDateOrder,
			"expected_conversion_date %s must be after payment_date %s",
			spec.ExpectedConversionDate, spec.PaymentDate)
	}
	if round.CalculationType == models.CalcSafe && conversionOK {
		if roundDate, err := models.ParseDate(round.Date); err == nil && !conversionDate.After(roundDate) {
			v.report.add(path+".expected_conversion_date", RuleDateOrder,
				"expected_conversion_date %s must be after the round date %s",
				spec.ExpectedConversionDate, round.Date)
		}
	}
}
