package models

import (
	"testing"
)

const jsonModel = `{
  "schema_version": "1.0",
  "company": "Acme",
  "holders": [{"name": "Alice", "group": "Founders"}],
  "security_classes": [{"name": "common"}],
  "rounds": [
    {
      "name": "Founding",
      "date": "2024-01-15",
      "calculation_type": "fixed_shares",
      "instruments": [{"holder": "Alice", "class": "common", "quantity": 5000000}]
    }
  ]
}`

func TestParseDocument_JSON(t *testing.T) {
	doc, err := ParseDocument([]byte(jsonModel), FormatJSON)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Company != "Acme" {
		t.Errorf("Expected company Acme, got %q", doc.Company)
	}
	if len(doc.Rounds) != 1 || doc.Rounds[0].CalculationType != CalcFixedShares {
		t.Fatalf("Unexpected rounds: %+v", doc.Rounds)
	}
	q := doc.Rounds[0].Instruments[0].Quantity
	if q == nil || *q != 5_000_000 {
		t.Errorf("Expected quantity 5000000, got %v", q)
	}
}

func TestParseDocument_JSONRepair(t *testing.T) {
	// Trailing comma: invalid JSON, recoverable by the repair pass.
	broken := `{
  "schema_version": "1.0",
  "holders": [{"name": "Alice"},],
  "security_classes": [],
  "rounds": [],
}`
	doc, err := ParseDocument([]byte(broken), FormatJSON)
	if err != nil {
		t.Fatalf("Expected repair to recover trailing commas, got %v", err)
	}
	if len(doc.Holders) != 1 || doc.Holders[0].Name != "Alice" {
		t.Errorf("Unexpected holders after repair: %+v", doc.Holders)
	}
}

func TestParseDocument_YAML(t *testing.T) {
	yml := `
schema_version: "1.0"
holders:
  - name: Alice
security_classes:
  - name: common
rounds:
  - name: Founding
    date: 2024-01-15
    calculation_type: fixed_shares
    instruments:
      - holder: Alice
        class: common
        quantity: 5000000
`
	doc, err := ParseDocument([]byte(yml), FormatYAML)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Rounds[0].Date != "2024-01-15" {
		t.Errorf("Expected date 2024-01-15, got %q", doc.Rounds[0].Date)
	}
}

func TestParseDocument_HJSON(t *testing.T) {
	// Relaxed syntax: comments, unquoted keys, quoteless strings. A quoteless
	// string runs to the end of its line, so every member sits on its own line.
	hjson := `{
  # agent-produced model, relaxed syntax
  schema_version: "1.0"
  holders: [
    {
      name: Alice
      group: Founders
    }
  ]
  security_classes: [
    {
      name: common
    }
  ]
  rounds: [
    {
      name: Founding
      date: 2024-01-15
      calculation_type: fixed_shares
      instruments: [
        {
          holder: Alice
          class: common
          quantity: 5000000
        }
      ]
    }
  ]
}`
	doc, err := ParseDocument([]byte(hjson), FormatHJSON)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.Holders[0].Name != "Alice" || doc.Holders[0].Group != "Founders" {
		t.Errorf("Unexpected holders: %+v", doc.Holders)
	}
	if doc.Rounds[0].CalculationType != CalcFixedShares {
		t.Errorf("Expected fixed_shares, got %q", doc.Rounds[0].CalculationType)
	}
	if doc.Rounds[0].Date != "2024-01-15" {
		t.Errorf("Expected date 2024-01-15, got %q", doc.Rounds[0].Date)
	}
	q := doc.Rounds[0].Instruments[0].Quantity
	if q == nil || *q != 5_000_000 {
		t.Errorf("Expected quantity 5000000, got %v", q)
	}
}

func TestFormatForPath(t *testing.T) {
	cases := []struct {
		path string
		want Format
		ok   bool
	}{
		{"model.json", FormatJSON, true},
		{"model.yaml", FormatYAML, true},
		{"model.yml", FormatYAML, true},
		{"model.HJSON", FormatHJSON, true},
		{"model.toml", "", false},
		{"model", "", false},
	}
	for _, c := range cases {
		got, err := FormatForPath(c.path)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("FormatForPath(%q): expected %q, got %q (%v)", c.path, c.want, got, err)
		}
		if !c.ok && err == nil {
			t.Errorf("FormatForPath(%q): expected error", c.path)
		}
	}
}
