// Package generate orchestrates one cap-table generation pass:
// validate → dispatch/layout → formula resolution. A pass is synchronous and
// atomic over an immutable model; callers serialize model edits around it.
package generate

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"captable_engine/pkg/core/formula"
	"captable_engine/pkg/core/layout"
	"captable_engine/pkg/core/validate"
	"captable_engine/pkg/models"
)

// Result is the output contract of one pass, consumed by the external
// document assembler. When Diagnostics is non-empty the model failed the
// business-rule pass and Addresses/Formulas are nil: nothing generated from an
// invalid model may be treated as final.
//
// PassID is run metadata only. Addresses and Formulas are deterministic:
// regenerating from an unchanged model reproduces them byte for byte.
type Result struct {
	PassID        string                `json:"pass_id"`
	SchemaVersion string                `json:"schema_version"`
	Diagnostics   []validate.Diagnostic `json:"diagnostics,omitempty"`
	Addresses     []layout.Entry        `json:"addresses,omitempty"`
	Formulas      []formula.Entry       `json:"formulas,omitempty"`
}

// Valid reports whether the pass produced addresses and formulas.
func (r *Result) Valid() bool {
	return len(r.Diagnostics) == 0
}

// Generator runs generation passes. The zero value is not usable; call New.
type Generator struct {
	logger *log.Logger
}

// New returns a generator logging to the given writer. Pass io.Discard to
// silence it (library callers and tests usually do).
func New(w io.Writer, level log.Level) *Generator {
	return &Generator{
		logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// Generate runs the full pipeline over the model. A returned error marks an
// internal sequencing failure (*layout.AddressResolutionError,
// *formula.GenerationError), never a model problem; model problems come back
// as diagnostics in the result.
func (g *Generator) Generate(doc *models.Document) (*Result, error) {
	result := &Result{
		PassID:        uuid.NewString(),
		SchemaVersion: doc.SchemaVersion,
	}
	g.logger.Info("generation pass started",
		"pass_id", result.PassID,
		"rounds", len(doc.Rounds),
		"holders", len(doc.Holders))

	report := validate.Validate(doc)
	if !report.Valid() {
		g.logger.Warn("model failed business-rule validation",
			"pass_id", result.PassID,
			"violations", len(report.Diagnostics))
		result.Diagnostics = report.Diagnostics
		return result, nil
	}
	g.logger.Debug("business rules passed")

	lm, err := layout.BuildLayout(doc)
	if err != nil {
		return nil, fmt.Errorf("layout pass: %w", err)
	}
	g.logger.Debug("layout built", "addresses", lm.Len())

	set, err := formula.NewResolver(doc, lm).Resolve()
	if err != nil {
		return nil, fmt.Errorf("formula pass: %w", err)
	}
	g.logger.Info("generation pass complete",
		"pass_id", result.PassID,
		"addresses", lm.Len(),
		"formulas", set.Len())

	result.Addresses = lm.Entries()
	result.Formulas = set.Entries()
	return result, nil
}

// Generate is the package-level convenience running one silent pass.
func Generate(doc *models.Document) (*Result, error) {
	return New(io.Discard, log.InfoLevel).Generate(doc)
}
