// Command verify_formulas runs built-in worked cap-table examples through the
// full generation pipeline, evaluates the emitted formula set numerically, and
// checks the results against hand-computed values.
package main

import (
	"fmt"
	"math"
	"os"

	"captable_engine/pkg/core/formula"
	"captable_engine/pkg/core/generate"
	"captable_engine/pkg/core/layout"
	"captable_engine/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }

func basisPtr(b models.ValuationBasis) *models.ValuationBasis { return &b }

func strPtr(s string) *string { return &s }

// check is one expected cell value of a worked example.
type check struct {
	label string
	key   layout.Key
	want  float64
}

// example is a worked cap-table model with its hand-computed results.
type example struct {
	name   string
	doc    *models.Document
	checks []check
}

func main() {
	failures := 0
	for _, ex := range examples() {
		fmt.Println("====================================================================================")
		fmt.Printf("  %s\n", ex.name)
		fmt.Println("====================================================================================")
		failures += run(ex)
		fmt.Println()
	}

	if failures > 0 {
		fmt.Printf("%d check(s) FAILED\n", failures)
		os.Exit(1)
	}
	fmt.Println("All checks passed.")
}

func run(ex example) int {
	result, err := generate.Generate(ex.doc)
	if err != nil {
		fmt.Printf("  generation error: %v\n", err)
		return len(ex.checks)
	}
	if !result.Valid() {
		for _, d := range result.Diagnostics {
			fmt.Printf("  diagnostic: %s: %s\n", d.Path, d.Message)
		}
		return len(ex.checks)
	}

	env, err := formula.EvalEntries(result.Formulas)
	if err != nil {
		fmt.Printf("  evaluation error: %v\n", err)
		return len(ex.checks)
	}

	addrByKey := make(map[layout.Key]layout.Address, len(result.Addresses))
	for _, e := range result.Addresses {
		addrByKey[e.Key] = e.Address
	}

	failures := 0
	fmt.Printf("%-40s | %16s | %16s | %s\n", "CHECK", "EXPECTED", "GOT", "STATUS")
	fmt.Println("------------------------------------------------------------------------------------")
	for _, c := range ex.checks {
		addr, ok := addrByKey[c.key]
		if !ok {
			fmt.Printf("%-40s | %16.4f | %16s | FAIL (no address)\n", c.label, c.want, "-")
			failures++
			continue
		}
		value, ok := env[addr.String()]
		if !ok {
			fmt.Printf("%-40s | %16.4f | %16s | FAIL (no value)\n", c.label, c.want, "-")
			failures++
			continue
		}
		got := value.InexactFloat64()
		status := "ok"
		if !closeEnough(got, c.want) {
			status = "FAIL"
			failures++
		}
		fmt.Printf("%-40s | %16.4f | %16.4f | %s\n", c.label, c.want, got, status)
	}
	return failures
}

// closeEnough compares with a relative tolerance wide enough to absorb the
// float64 POWER path.
func closeEnough(got, want float64) bool {
	diff := math.Abs(got - want)
	if diff < 1e-6 {
		return true
	}
	return diff <= 1e-9*math.Max(math.Abs(got), math.Abs(want))
}

// =============================================================================
// WORKED EXAMPLES
// =============================================================================

func examples() []example {
	return []example{pricedRoundExample(), noteConversionExample()}
}

// pricedRoundExample: two founders at 5,000,000 each, then a pre-money
// valuation of 8,000,000 with a 2,000,000 investment. Price 0.80, investor
// shares 2,500,000, post 12,500,000. A 20% target-percentage grant over the
// 12,500,000 base issues 3,125,000.
func pricedRoundExample() example {
	doc := &models.Document{
		SchemaVersion: "1.0",
		Company:       "Worked Example Inc.",
		Holders: []models.Holder{
			{Name: "Alice", Group: "Founders"},
			{Name: "Bob", Group: "Founders"},
			{Name: "Carol", Group: "Investors"},
			{Name: "Pool", Group: "Employees"},
		},
		SecurityClasses: []models.SecurityClass{
			{Name: "common"},
			{Name: "series_a"},
		},
		Rounds: []models.Round{
			{
				Name: "Founding", Date: "2024-01-15",
				CalculationType: models.CalcFixedShares,
				Instruments: []models.InstrumentSpec{
					{Holder: "Alice", Class: "common", Quantity: floatPtr(5_000_000)},
					{Holder: "Bob", Class: "common", Quantity: floatPtr(5_000_000)},
				},
			},
			{
				Name: "Series A", Date: "2025-06-01",
				CalculationType: models.CalcValuationBased,
				ValuationBasis:  basisPtr(models.BasisPreMoney),
				Valuation:       floatPtr(8_000_000),
				Instruments: []models.InstrumentSpec{
					{Holder: "Carol", Class: "series_a", InvestmentAmount: floatPtr(2_000_000)},
				},
			},
			{
				Name: "Option Pool", Date: "2025-07-01",
				CalculationType: models.CalcTargetPercentage,
				Instruments: []models.InstrumentSpec{
					{Holder: "Pool", Class: "common", TargetPercentage: floatPtr(0.2)},
				},
			},
		},
	}
	return example{
		name: "Priced round + target percentage",
		doc:  doc,
		checks: []check{
			{"Series A price per share", layout.RoundKey("Series A", "price_per_share"), 0.80},
			{"Carol shares", layout.InstrumentKey("Series A", 0, "shares"), 2_500_000},
			{"Series A post-round shares", layout.RoundKey("Series A", "post_round_shares"), 12_500_000},
			{"Pool shares (20% target)", layout.InstrumentKey("Option Pool", 0, "shares"), 3_125_000},
			{"Pool post-round shares", layout.RoundKey("Option Pool", "post_round_shares"), 15_625_000},
		},
	}
}

// noteConversionExample: a simple-interest note and a compound-yearly note
// converting into a priced round.
//
// Simple note: 100,000 at 8% over 365 days accrues 8,000. Round price
// 20,000,000 / 10,000,000 = 2.00; discount price 1.60; cap price
// 5,000,000 / 10,000,000 = 0.50; conversion at MIN = 0.50 gives
// 108,000 / 0.50 = 216,000 shares.
//
// Compound note: 500,000 at 10% compounded yearly over 730 days accrues
// 500,000 * (1.1^2 - 1) = 105,000; no cap, discount price 1.60 gives
// 605,000 / 1.60 = 378,125 shares.
func noteConversionExample() example {
	doc := &models.Document{
		SchemaVersion: "1.0",
		Company:       "Note Example Inc.",
		Holders: []models.Holder{
			{Name: "Alice", Group: "Founders"},
			{Name: "Dan", Group: "Angels"},
			{Name: "Erin", Group: "Angels"},
			{Name: "Carol", Group: "Investors"},
		},
		SecurityClasses: []models.SecurityClass{
			{Name: "common"},
			{Name: "note"},
			{Name: "series_a"},
		},
		Rounds: []models.Round{
			{
				Name: "Founding", Date: "2022-01-01",
				CalculationType: models.CalcFixedShares,
				Instruments: []models.InstrumentSpec{
					{Holder: "Alice", Class: "common", Quantity: floatPtr(10_000_000)},
				},
			},
			{
				Name: "Bridge", Date: "2022-01-01",
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
						ValuationCap:           floatPtr(5_000_000),
					},
					{
						Holder: "Erin", Class: "note",
						InvestmentAmount:       floatPtr(500_000),
						InterestRate:           floatPtr(0.10),
						PaymentDate:            "2022-01-01",
						ExpectedConversionDate: "2024-01-01",
						InterestType:           models.InterestCompoundYearly,
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
	return example{
		name: "Convertible notes into a priced round",
		doc:  doc,
		checks: []check{
			{"Dan accrued interest (simple)", layout.InstrumentKey("Bridge", 0, "accrued_interest"), 8_000},
			{"Dan discount price", layout.InstrumentKey("Bridge", 0, "discount_price"), 1.60},
			{"Dan cap price", layout.InstrumentKey("Bridge", 0, "cap_price"), 0.50},
			{"Dan conversion price", layout.InstrumentKey("Bridge", 0, "conversion_price"), 0.50},
			{"Dan shares", layout.InstrumentKey("Bridge", 0, "shares"), 216_000},
			{"Erin accrued interest (compound)", layout.InstrumentKey("Bridge", 1, "accrued_interest"), 105_000},
			{"Erin shares", layout.InstrumentKey("Bridge", 1, "shares"), 378_125},
			{"Bridge new shares (none at issue)", layout.RoundKey("Bridge", "new_shares"), 0},
			{"Series A price per share", layout.RoundKey("Series A", "price_per_share"), 2.00},
			{"Series A new shares", layout.RoundKey("Series A", "new_shares"), 1_094_125},
			{"Series A post-round shares", layout.RoundKey("Series A", "post_round_shares"), 11_094_125},
		},
	}
}
