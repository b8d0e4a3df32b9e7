package validate

import (
	"time"

	"captable_engine/pkg/models"
)

// instrumentWireFields lists every variant-specific wire field of an
// instrument entry, in wire order. Holder and class are universal and
// pro_rata_* is checked separately, so neither appears here.
var instrumentWireFields = []string{
	"quantity",
	"target_percentage",
	"investment_amount",
	"interest_rate",
	"payment_date",
	"expected_conversion_date",
	"interest_type",
	"discount_rate",
	"valuation_cap",
	"valuation_cap_type",
}

// fieldPresent reports whether a variant-specific wire field is set on the
// entry. Field names match the wire tags used by the dispatcher's mode table.
func fieldPresent(spec *models.InstrumentSpec, field string) bool {
	switch field {
	case "quantity":
		return spec.Quantity != nil
	case "target_percentage":
		return spec.TargetPercentage != nil
	case "investment_amount":
		return spec.InvestmentAmount != nil
	case "interest_rate":
		return spec.InterestRate != nil
	case "payment_date":
		return spec.PaymentDate != ""
	case "expected_conversion_date":
		return spec.ExpectedConversionDate != ""
	case "interest_type":
		return spec.InterestType != ""
	case "discount_rate":
		return spec.DiscountRate != nil
	case "valuation_cap":
		return spec.ValuationCap != nil
	case "valuation_cap_type":
		return spec.ValuationCapType != nil
	}
	return false
}

// parseDateField parses an optional date field, recording a diagnostic when
// the value is present but malformed. The bool is true only for a usable date.
func (v *validator) parseDateField(value, path string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := models.ParseDate(value)
	if err != nil {
		v.report.add(path, RuleDateOrder, "%v", err)
		return time.Time{}, false
	}
	return t, true
}
