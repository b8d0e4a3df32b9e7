package validate

import (
	"strings"
	"testing"

	"captable_engine/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }

func basisPtr(b models.ValuationBasis) *models.ValuationBasis { return &b }

func strPtr(s string) *string { return &s }

// validDoc builds a model that passes every rule; tests break it selectively.
func validDoc() *models.Document {
	return &models.Document{
		SchemaVersion: "1.0",
		Holders: []models.Holder{
			{Name: "Alice", Group: "Founders"},
			{Name: "Dan", Group: "Angels"},
			{Name: "Carol", Group: "Investors"},
		},
		SecurityClasses: []models.SecurityClass{{Name: "common"}, {Name: "note"}, {Name: "series_a"}},
		Rounds: []models.Round{
			{
				Name: "Founding", Date: "2022-01-01",
				CalculationType: models.CalcFixedShares,
				Instruments: []models.InstrumentSpec{
					{Holder: "Alice", Class: "common", Quantity: floatPtr(10_000_000)},
				},
			},
			{
				Name: "Bridge", Date: "2022-06-01",
				CalculationType:    models.CalcConvertible,
				ValuationBasis:     basisPtr(models.BasisPreMoney),
				ConversionRoundRef: strPtr("Series A"),
				Instruments: []models.InstrumentSpec{
					{
						Holder: "Dan", Class: "note",
						InvestmentAmount:       floatPtr(100_000),
						InterestRate:           floatPtr(0.08),
						PaymentDate:            "2023-01-01",
						ExpectedConversionDate: "2024-01-01",
						InterestType:           models.InterestSimple,
						DiscountRate:           floatPtr(0.20),
					},
				},
			},
			{
				Name: "Series A", Date: "2024-01-01",
				CalculationType: models.CalcValuationBased,
				ValuationBasis:  basisPtr(models.BasisPreMoney),
				Valuation:       floatPtr(20_000_000),
				Instruments: []models.InstrumentSpec{
					{Holder: "Carol", Class: "series_a", InvestmentAmount: floatPtr(1_000_000)},
				},
			},
		},
	}
}

// expectRule asserts a diagnostic with the given rule whose path contains frag.
func expectRule(t *testing.T, report *Report, rule Rule, frag string) {
	t.Helper()
	for _, d := range report.Diagnostics {
		if d.Rule == rule && strings.Contains(d.Path, frag) {
			return
		}
	}
	t.Errorf("Expected a %s diagnostic at path containing %q, got %+v", rule, frag, report.Diagnostics)
}

func TestValidate_CleanModel(t *testing.T) {
	report := Validate(validDoc())
	if !report.Valid() {
		t.Fatalf("Expected clean report, got %+v", report.Diagnostics)
	}
}

func TestValidate_DuplicateNames(t *testing.T) {
	doc := validDoc()
	doc.Holders = append(doc.Holders, models.Holder{Name: "Alice"})
	doc.SecurityClasses = append(doc.SecurityClasses, models.SecurityClass{Name: "common"})
	doc.Rounds = append(doc.Rounds, doc.Rounds[0])

	report := Validate(doc)
	expectRule(t, report, RuleUniqueName, "holders[3]")
	expectRule(t, report, RuleUniqueName, "security_classes[3]")
	expectRule(t, report, RuleUniqueName, "rounds[3]")
}

func TestValidate_DanglingReferences(t *testing.T) {
	doc := validDoc()
	doc.Rounds[0].Instruments[0].Holder = "Nobody"
	doc.Rounds[2].Instruments[0].Class = "series_z"

	report := Validate(doc)
	expectRule(t, report, RuleDanglingRef, "rounds[0].instruments[0].holder")
	expectRule(t, report, RuleDanglingRef, "rounds[2].instruments[0].class")
}

func TestValidate_ConversionRoundRef(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		doc := validDoc()
		doc.Rounds[1].ConversionRoundRef = nil
		expectRule(t, Validate(doc), RuleRequiredField, "rounds[1].conversion_round_ref")
	})

	t.Run("dangling", func(t *testing.T) {
		doc := validDoc()
		doc.Rounds[1].ConversionRoundRef = strPtr("Series Z")
		expectRule(t, Validate(doc), RuleDanglingRef, "rounds[1].conversion_round_ref")
	})

	t.Run("must be a later round", func(t *testing.T) {
		doc := validDoc()
		doc.Rounds[1].ConversionRoundRef = strPtr("Founding")
		report := Validate(doc)
		expectRule(t, report, RuleDateOrder, "rounds[1].conversion_round_ref")
		// Founding is also not a priced round.
		expectRule(t, report, RuleVariantMismatch, "rounds[1].conversion_round_ref")
	})
}

func TestValidate_RequiredRoundFields(t *testing.T) {
	doc := validDoc()
	doc.Rounds[2].Valuation = nil
	doc.Rounds[2].ValuationBasis = nil

	report := Validate(doc)
	expectRule(t, report, RuleRequiredField, "rounds[2].valuation")
	expectRule(t, report, RuleRequiredField, "rounds[2].valuation_basis")
}

func TestValidate_RequiredInstrumentFields(t *testing.T) {
	doc := validDoc()
	doc.Rounds[1].Instruments[0].InterestRate = nil
	doc.Rounds[1].Instruments[0].PaymentDate = ""

	report := Validate(doc)
	expectRule(t, report, RuleRequiredField, "instruments[0].interest_rate")
	expectRule(t, report, RuleRequiredField, "instruments[0].payment_date")
}

func TestValidate_VariantMismatch(t *testing.T) {
	doc := validDoc()
	// A quantity on a valuation-based instrument belongs to fixed_shares.
	doc.Rounds[2].Instruments[0].Quantity = floatPtr(1_000)

	expectRule(t, Validate(doc), RuleVariantMismatch, "rounds[2].instruments[0].quantity")
}

func TestValidate_NumericRanges(t *testing.T) {
	doc := validDoc()
	doc.Rounds[1].Instruments[0].InterestRate = floatPtr(1.0)
	doc.Rounds[1].Instruments[0].DiscountRate = floatPtr(-0.1)
	doc.Rounds[2].Valuation = floatPtr(0)

	report := Validate(doc)
	expectRule(t, report, RuleNumericRange, "instruments[0].interest_rate")
	expectRule(t, report, RuleNumericRange, "instruments[0].discount_rate")
	expectRule(t, report, RuleNumericRange, "rounds[2].valuation")
}

func TestValidate_TargetPercentageBounds(t *testing.T) {
	doc := validDoc()
	doc.Rounds = append(doc.Rounds, models.Round{
		Name: "Option Pool", Date: "2024-06-01",
		CalculationType: models.CalcTargetPercentage,
		Instruments: []models.InstrumentSpec{
			{Holder: "Alice", Class: "common", TargetPercentage: floatPtr(1.0)},
		},
	})

	// pct = 1 would divide by zero in the share formula.
	expectRule(t, Validate(doc), RuleNumericRange, "instruments[0].target_percentage")
}

func TestValidate_DateOrdering(t *testing.T) {
	doc := validDoc()
	doc.Rounds[1].Instruments[0].ExpectedConversionDate = "2022-12-31"

	expectRule(t, Validate(doc), RuleDateOrder, "instruments[0].expected_conversion_date")
}

func TestValidate_UnparseableDates(t *testing.T) {
	doc := validDoc()
	doc.Rounds[0].Date = "Jan 1, 2022"
	doc.Rounds[1].Instruments[0].PaymentDate = "2023-13-40"

	report := Validate(doc)
	expectRule(t, report, RuleDateOrder, "rounds[0].date")
	expectRule(t, report, RuleDateOrder, "instruments[0].payment_date")
}

func TestValidate_ProRataCoupling(t *testing.T) {
	t.Run("super requires percentage", func(t *testing.T) {
		doc := validDoc()
		doc.Rounds[2].Instruments = append(doc.Rounds[2].Instruments, models.InstrumentSpec{
			Holder: "Dan", Class: "series_a", ProRataType: models.ProRataSuper,
		})
		expectRule(t, Validate(doc), RuleRequiredField, "instruments[1].pro_rata_percentage")
	})

	t.Run("standard forbids percentage", func(t *testing.T) {
		doc := validDoc()
		doc.Rounds[2].Instruments = append(doc.Rounds[2].Instruments, models.InstrumentSpec{
			Holder: "Dan", Class: "series_a",
			ProRataType: models.ProRataStandard, ProRataPercentage: floatPtr(0.1),
		})
		expectRule(t, Validate(doc), RuleVariantMismatch, "instruments[1].pro_rata_percentage")
	})

	t.Run("super percentage bounds", func(t *testing.T) {
		doc := validDoc()
		doc.Rounds[2].Instruments = append(doc.Rounds[2].Instruments, models.InstrumentSpec{
			Holder: "Dan", Class: "series_a",
			ProRataType: models.ProRataSuper, ProRataPercentage: floatPtr(1.5),
		})
		expectRule(t, Validate(doc), RuleNumericRange, "instruments[1].pro_rata_percentage")
	})
}

func TestValidate_RoundNameSlugCollision(t *testing.T) {
	doc := validDoc()
	// Distinct as names, identical as section ids: both become "series_a".
	doc.Rounds = append(doc.Rounds, models.Round{
		Name: "Series-A", Date: "2025-01-01",
		CalculationType: models.CalcFixedShares,
		Instruments: []models.InstrumentSpec{
			{Holder: "Alice", Class: "common", Quantity: floatPtr(1_000)},
		},
	})

	expectRule(t, Validate(doc), RuleUniqueName, "rounds[3].name")
}

func TestValidate_UnknownEnums(t *testing.T) {
	doc := validDoc()
	doc.Rounds[0].CalculationType = "priced"

	expectRule(t, Validate(doc), RuleUnknownEnum, "rounds[0].calculation_type")
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	// One broken model, many independent problems: the pass must report all of
	// them, not stop at the first.
	doc := validDoc()
	doc.Holders = append(doc.Holders, models.Holder{Name: "Alice"})
	doc.Rounds[0].Instruments[0].Holder = "Nobody"
	doc.Rounds[1].Instruments[0].InterestRate = floatPtr(2.0)
	doc.Rounds[2].Valuation = nil

	report := Validate(doc)
	if len(report.Diagnostics) < 4 {
		t.Fatalf("Expected at least 4 diagnostics, got %d: %+v", len(report.Diagnostics), report.Diagnostics)
	}
	expectRule(t, report, RuleUniqueName, "holders[3]")
	expectRule(t, report, RuleDanglingRef, "rounds[0].instruments[0].holder")
	expectRule(t, report, RuleNumericRange, "rounds[1].instruments[0].interest_rate")
	expectRule(t, report, RuleRequiredField, "rounds[2].valuation")
}
