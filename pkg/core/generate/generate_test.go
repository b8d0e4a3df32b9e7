package generate

import (
	"encoding/json"
	"testing"

	"captable_engine/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }

func basisPtr(b models.ValuationBasis) *models.ValuationBasis { return &b }

func sampleDoc() *models.Document {
	return &models.Document{
		SchemaVersion: "1.0",
		Company:       "Acme",
		Holders: []models.Holder{
			{Name: "Alice", Group: "Founders"},
			{Name: "Carol", Group: "Investors"},
		},
		SecurityClasses: []models.SecurityClass{{Name: "common"}, {Name: "series_a"}},
		Rounds: []models.Round{
			{
				Name: "Founding", Date: "2024-01-15",
				CalculationType: models.CalcFixedShares,
				Instruments: []models.InstrumentSpec{
					{Holder: "Alice", Class: "common", Quantity: floatPtr(10_000_000)},
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
		},
	}
}

func TestGenerate_CleanModel(t *testing.T) {
	result, err := Generate(sampleDoc())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !result.Valid() {
		t.Fatalf("Expected valid result, got diagnostics %+v", result.Diagnostics)
	}
	if result.PassID == "" {
		t.Error("Expected a pass id")
	}
	if result.SchemaVersion != "1.0" {
		t.Errorf("Expected schema version 1.0, got %q", result.SchemaVersion)
	}
	if len(result.Addresses) == 0 || len(result.Formulas) == 0 {
		t.Fatalf("Expected addresses and formulas, got %d/%d", len(result.Addresses), len(result.Formulas))
	}
	t.Logf("generated %d addresses, %d formulas", len(result.Addresses), len(result.Formulas))
}

func TestGenerate_DiagnosticsGateOutput(t *testing.T) {
	doc := sampleDoc()
	doc.Rounds[1].Instruments[0].Holder = "Nobody"

	result, err := Generate(doc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Valid() {
		t.Fatal("Expected diagnostics for a dangling holder reference")
	}
	// Nothing generated from an invalid model may be treated as final.
	if result.Addresses != nil || result.Formulas != nil {
		t.Errorf("Expected no addresses or formulas, got %d/%d", len(result.Addresses), len(result.Formulas))
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	first, err := Generate(sampleDoc())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate(sampleDoc())
	if err != nil {
		t.Fatalf("Generate (rerun): %v", err)
	}

	// The pass id is run metadata; everything else is byte-identical.
	first.PassID, second.PassID = "", ""
	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("Regeneration diverged:\n  %s\n  %s", a, b)
	}
}
