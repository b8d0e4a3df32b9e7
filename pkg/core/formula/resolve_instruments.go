package formula

import (
	"fmt"

	"captable_engine/pkg/core/dispatch"
	"captable_engine/pkg/core/layout"
	"captable_engine/pkg/models"
)

// resolveInstrument emits the input cells and calculated fields of one
// instrument row. The switch over the variant union is exhaustive; an unknown
// variant aborts the pass.
func (r *Resolver) resolveInstrument(round *models.Round, idx int, inst models.Instrument, instruments []models.Instrument) error {
	ikey := func(field dispatch.FieldID) layout.Key {
		return layout.InstrumentKey(round.Name, idx, string(field))
	}

	if err := r.emit(ikey(dispatch.FieldHolder), KindLabel, Text{Value: inst.HolderName()}); err != nil {
		return err
	}
	if err := r.emit(ikey(dispatch.FieldClass), KindLabel, Text{Value: inst.ClassName()}); err != nil {
		return err
	}

	switch v := inst.(type) {
	case models.FixedShares:
		// No formula: the quantity is an explicit input copied to its address.
		return r.emit(ikey(dispatch.FieldQuantity), KindInput, Lit(v.Quantity))

	case models.TargetPercentage:
		return r.resolveTargetPercentage(round, ikey, v)

	case models.ValuationBased:
		if err := r.emit(ikey(dispatch.FieldInvestment), KindInput, Lit(v.Investment)); err != nil {
			return err
		}
		price, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundPrice)))
		if err != nil {
			return err
		}
		investment, err := r.ref(ikey(dispatch.FieldInvestment))
		if err != nil {
			return err
		}
		return r.emit(ikey(dispatch.FieldShares), KindFormula, Guarded(investment, price, LitInt(0)))

	case models.Convertible:
		return r.resolveConvertible(round, ikey, v)

	case models.Safe:
		return r.resolveSafe(round, ikey, v)

	case models.ProRata:
		return r.resolveProRata(round, ikey, v, instruments)
	}

	return &GenerationError{Round: round.Name, Reason: fmt.Sprintf("unhandled instrument variant %T", inst)}
}

// =============================================================================
// TARGET PERCENTAGE
// =============================================================================

// Solving shares / (pre + shares) = pct gives shares = pre * pct / (1 - pct).
// The validator excludes pct = 1, but the guard stays on the denominator.
func (r *Resolver) resolveTargetPercentage(round *models.Round, ikey func(dispatch.FieldID) layout.Key, v models.TargetPercentage) error {
	if err := r.emit(ikey(dispatch.FieldTargetPct), KindInput, Lit(v.Target)); err != nil {
		return err
	}
	pct, err := r.ref(ikey(dispatch.FieldTargetPct))
	if err != nil {
		return err
	}
	pre, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundPreShares)))
	if err != nil {
		return err
	}
	shares := Guarded(Mul(pre, pct), Sub(LitInt(1), pct), LitInt(0))
	if err := r.emit(ikey(dispatch.FieldShares), KindFormula, shares); err != nil {
		return err
	}

	sharesRef, err := r.ref(ikey(dispatch.FieldShares))
	if err != nil {
		return err
	}
	post, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundPostShares)))
	if err != nil {
		return err
	}
	return r.emit(ikey(dispatch.FieldOwnership), KindFormula, Guarded(sharesRef, post, LitInt(0)))
}

// =============================================================================
// CONVERTIBLE / SAFE
// =============================================================================

func (r *Resolver) resolveConvertible(round *models.Round, ikey func(dispatch.FieldID) layout.Key, v models.Convertible) error {
	inputs := []struct {
		field dispatch.FieldID
		kind  EntryKind
		expr  Expr
	}{
		{dispatch.FieldInvestment, KindInput, Lit(v.Principal)},
		{dispatch.FieldInterestRate, KindInput, Lit(v.InterestRate)},
		{dispatch.FieldPaymentDate, KindInput, DateLit{Value: v.PaymentDate}},
		{dispatch.FieldConversionDate, KindInput, DateLit{Value: v.ExpectedConversionDate}},
		{dispatch.FieldInterestType, KindLabel, Text{Value: string(v.InterestType)}},
		{dispatch.FieldDiscountRate, KindInput, Lit(v.DiscountRate)},
	}
	for _, in := range inputs {
		if err := r.emit(ikey(in.field), in.kind, in.expr); err != nil {
			return err
		}
	}

	// Days outstanding: accrual runs from payment to expected conversion.
	endRef, err := r.ref(ikey(dispatch.FieldConversionDate))
	if err != nil {
		return err
	}
	startRef, err := r.ref(ikey(dispatch.FieldPaymentDate))
	if err != nil {
		return err
	}
	if err := r.emit(ikey(dispatch.FieldDays), KindFormula, DaysBetween{End: endRef, Start: startRef}); err != nil {
		return err
	}

	if err := r.resolveInterest(round, ikey, v); err != nil {
		return err
	}

	principal, err := r.ref(ikey(dispatch.FieldInvestment))
	if err != nil {
		return err
	}
	interest, err := r.ref(ikey(dispatch.FieldInterest))
	if err != nil {
		return err
	}
	converted := Add(principal, interest)

	return r.resolveConversion(round, ikey, conversionSpec{
		discountRate: dispatch.FieldDiscountRate,
		cap:          v.ValuationCap,
		capType:      v.ValuationCapType,
		converted:    converted,
	})
}

func (r *Resolver) resolveSafe(round *models.Round, ikey func(dispatch.FieldID) layout.Key, v models.Safe) error {
	inputs := []struct {
		field dispatch.FieldID
		kind  EntryKind
		expr  Expr
	}{
		{dispatch.FieldInvestment, KindInput, Lit(v.Principal)},
		{dispatch.FieldConversionDate, KindInput, DateLit{Value: v.ExpectedConversionDate}},
		{dispatch.FieldDiscountRate, KindInput, Lit(v.DiscountRate)},
	}
	for _, in := range inputs {
		if err := r.emit(ikey(in.field), in.kind, in.expr); err != nil {
			return err
		}
	}

	// A safe accrues no interest; days still run from the round date so the
	// assembler can surface holding duration.
	endRef, err := r.ref(ikey(dispatch.FieldConversionDate))
	if err != nil {
		return err
	}
	startRef, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundDate)))
	if err != nil {
		return err
	}
	if err := r.emit(ikey(dispatch.FieldDays), KindFormula, DaysBetween{End: endRef, Start: startRef}); err != nil {
		return err
	}

	principal, err := r.ref(ikey(dispatch.FieldInvestment))
	if err != nil {
		return err
	}

	return r.resolveConversion(round, ikey, conversionSpec{
		discountRate: dispatch.FieldDiscountRate,
		cap:          v.ValuationCap,
		capType:      v.ValuationCapType,
		converted:    principal,
	})
}

// resolveInterest emits the accrued-interest formula for a note.
//
//	simple:    principal * rate * days/365
//	compound:  principal * ((1 + rate/n)^(days/365 * n) - 1), n in {1,12,365}
//	none:      0
func (r *Resolver) resolveInterest(round *models.Round, ikey func(dispatch.FieldID) layout.Key, v models.Convertible) error {
	principal, err := r.ref(ikey(dispatch.FieldInvestment))
	if err != nil {
		return err
	}
	rate, err := r.ref(ikey(dispatch.FieldInterestRate))
	if err != nil {
		return err
	}
	days, err := r.ref(ikey(dispatch.FieldDays))
	if err != nil {
		return err
	}
	years := Div(days, LitInt(daysPerYear))

	var interest Expr
	switch v.InterestType {
	case models.InterestNone:
		interest = LitInt(0)
	case models.InterestSimple:
		interest = Mul(Mul(principal, rate), years)
	case models.InterestCompoundYearly, models.InterestCompoundMonthly, models.InterestCompoundDaily:
		n := int64(v.InterestType.CompoundingPeriods())
		growth := PowerOf{
			Base: Add(LitInt(1), Div(rate, LitInt(n))),
			Exp:  Mul(years, LitInt(n)),
		}
		interest = Mul(principal, Sub(growth, LitInt(1)))
	default:
		return &GenerationError{Round: round.Name, Field: string(dispatch.FieldInterest), Reason: fmt.Sprintf("unknown interest_type %q", v.InterestType)}
	}

	return r.emit(ikey(dispatch.FieldInterest), KindFormula, interest)
}

// conversionSpec carries the variant-independent pieces of conversion pricing.
type conversionSpec struct {
	discountRate dispatch.FieldID
	cap          *float64
	capType      models.ValuationCapType
	converted    Expr // principal (+ interest) being converted
}

// resolveConversion emits discount price, cap price, conversion price, and the
// final share count for a converting instrument.
//
// The cap share basis depends on the cap type. All three variants start from
// price = cap / shareBasis, where shareBasis can itself include converted
// shares and would be circular; rearranging onto the dollar side gives:
//
//	pre_conversion:        cap / convPre
//	post_conversion_own:   (cap - ownConverted) / convPre
//	post_conversion_total: (cap - totalConverted) / convPre
//
// The total variant aggregates first and prices second: the aggregate
// converted amount (principal + interest) is closed-form because accrual never
// depends on price, so the rearranged second pass replaces the mutual
// recursion without iteration.
func (r *Resolver) resolveConversion(round *models.Round, ikey func(dispatch.FieldID) layout.Key, spec conversionSpec) error {
	if round.ConversionRoundRef == nil {
		return &GenerationError{Round: round.Name, Field: string(dispatch.FieldConversionPrice), Reason: "missing conversion_round_ref"}
	}
	convRound := *round.ConversionRoundRef

	roundPrice, err := r.ref(layout.RoundKey(convRound, string(dispatch.RoundPrice)))
	if err != nil {
		return err
	}
	discount, err := r.ref(ikey(spec.discountRate))
	if err != nil {
		return err
	}
	discountPrice := Mul(roundPrice, Sub(LitInt(1), discount))
	if err := r.emit(ikey(dispatch.FieldDiscountPrice), KindFormula, discountPrice); err != nil {
		return err
	}

	conversionPrice, err := r.resolveConversionPrice(round, ikey, spec)
	if err != nil {
		return err
	}
	if err := r.emit(ikey(dispatch.FieldConversionPrice), KindFormula, conversionPrice); err != nil {
		return err
	}

	priceRef, err := r.ref(ikey(dispatch.FieldConversionPrice))
	if err != nil {
		return err
	}
	shares := Guarded(spec.converted, priceRef, LitInt(0))
	return r.emit(ikey(dispatch.FieldShares), KindFormula, shares)
}

// resolveConversionPrice emits the cap price cell (when a cap exists) and
// returns the MIN(discount, cap) expression for the conversion price cell.
func (r *Resolver) resolveConversionPrice(round *models.Round, ikey func(dispatch.FieldID) layout.Key, spec conversionSpec) (Expr, error) {
	discountRef, err := r.ref(ikey(dispatch.FieldDiscountPrice))
	if err != nil {
		return nil, err
	}
	if spec.cap == nil {
		return discountRef, nil
	}

	if err := r.emit(ikey(dispatch.FieldValuationCap), KindInput, Lit(*spec.cap)); err != nil {
		return nil, err
	}
	if err := r.emit(ikey(dispatch.FieldValuationCapType), KindLabel, Text{Value: string(spec.capType)}); err != nil {
		return nil, err
	}

	capRef, err := r.ref(ikey(dispatch.FieldValuationCap))
	if err != nil {
		return nil, err
	}
	convPre, err := r.ref(layout.RoundKey(*round.ConversionRoundRef, string(dispatch.RoundPreShares)))
	if err != nil {
		return nil, err
	}

	var numerator Expr
	switch spec.capType {
	case models.CapPreConversion:
		numerator = capRef
	case models.CapPostConversionOwn:
		numerator = Sub(capRef, spec.converted)
	case models.CapPostConversionTotal:
		total, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundTotalConverted)))
		if err != nil {
			return nil, err
		}
		numerator = Sub(capRef, total)
	default:
		return nil, &GenerationError{Round: round.Name, Field: string(dispatch.FieldCapPrice), Reason: fmt.Sprintf("unknown valuation_cap_type %q", spec.capType)}
	}

	capPrice := Guarded(numerator, convPre, LitInt(0))
	if err := r.emit(ikey(dispatch.FieldCapPrice), KindFormula, capPrice); err != nil {
		return nil, err
	}
	capPriceRef, err := r.ref(ikey(dispatch.FieldCapPrice))
	if err != nil {
		return nil, err
	}
	return MinOf{A: discountRef, B: capPriceRef}, nil
}

// =============================================================================
// PRO-RATA
// =============================================================================

// resolveProRata emits a pro-rata allocation row.
//
// standard: keep the holder's pre-round percentage p = h/P through the round.
// Solving (h+x)/(P+N+x) = h/P gives x = h*N / (P-h), with N the round's
// non-pro-rata issuance.
//
// super: reach exactly the stated percentage p of post-round ownership.
// Solving x/(P+N+x) = p gives x = p*(P+N) / (1-p). "Up to" is satisfied by
// construction: the target itself is the allocation.
func (r *Resolver) resolveProRata(round *models.Round, ikey func(dispatch.FieldID) layout.Key, v models.ProRata, instruments []models.Instrument) error {
	if err := r.emit(ikey(dispatch.FieldProRataType), KindLabel, Text{Value: string(v.Type)}); err != nil {
		return err
	}

	// The holder's position entering this round, rebuilt from the share cells
	// of every prior-round instrument held by them.
	var priorRefs []Expr
	for _, addr := range r.holderShareRefs[v.Holder] {
		priorRefs = append(priorRefs, R(addr))
	}
	if err := r.emit(ikey(dispatch.FieldHolderPreShares), KindFormula, Sum(priorRefs...)); err != nil {
		return err
	}

	holderPre, err := r.ref(ikey(dispatch.FieldHolderPreShares))
	if err != nil {
		return err
	}
	pre, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundPreShares)))
	if err != nil {
		return err
	}

	// New issuance the allocation reacts to: equity rows only. Pro-rata rows
	// are excluded because each is defined in terms of the rest of the round,
	// and note rows because they dilute at conversion, not here.
	otherRefs, err := r.shareRefsWhere(round, instruments, func(inst models.Instrument) bool {
		if _, proRata := inst.(models.ProRata); proRata {
			return false
		}
		return !isNote(inst)
	})
	if err != nil {
		return err
	}
	newOther := Sum(otherRefs...)

	var shares Expr
	switch v.Type {
	case models.ProRataStandard:
		shares = Guarded(Mul(holderPre, newOther), Sub(pre, holderPre), LitInt(0))

	case models.ProRataSuper:
		if v.Percentage == nil {
			return &GenerationError{Round: round.Name, Field: string(dispatch.FieldProRataPct), Reason: "super pro-rata requires pro_rata_percentage"}
		}
		if err := r.emit(ikey(dispatch.FieldProRataPct), KindInput, Lit(*v.Percentage)); err != nil {
			return err
		}
		pct, err := r.ref(ikey(dispatch.FieldProRataPct))
		if err != nil {
			return err
		}
		shares = Guarded(Mul(pct, Add(pre, newOther)), Sub(LitInt(1), pct), LitInt(0))

	default:
		return &GenerationError{Round: round.Name, Field: string(dispatch.FieldProRataType), Reason: fmt.Sprintf("unknown pro_rata_type %q", v.Type)}
	}

	return r.emit(ikey(dispatch.FieldShares), KindFormula, shares)
}

// =============================================================================
// HOLDER SUMMARY
// =============================================================================

// resolveHolderSummary fills the holders table: per-row labels and share
// totals, plus a single ownership column formula with current-row semantics.
func (r *Resolver) resolveHolderSummary() error {
	for i, holder := range r.doc.Holders {
		if err := r.emit(layout.TableRowKey(layout.HoldersTable, i, layout.ColHolderName), KindLabel, Text{Value: holder.Name}); err != nil {
			return err
		}
		if err := r.emit(layout.TableRowKey(layout.HoldersTable, i, layout.ColHolderGroup), KindLabel, Text{Value: holder.Group}); err != nil {
			return err
		}

		var refs []Expr
		for _, addr := range r.holderShareRefs[holder.Name] {
			refs = append(refs, R(addr))
		}
		if err := r.emit(layout.TableRowKey(layout.HoldersTable, i, layout.ColSharesTotal), KindFormula, Sum(refs...)); err != nil {
			return err
		}
	}

	sharesCol, err := r.ref(layout.TableColKey(layout.HoldersTable, layout.ColSharesTotal))
	if err != nil {
		return err
	}
	totalFD, err := r.ref(layout.ConstKey(layout.ConstTotalFDShares))
	if err != nil {
		return err
	}
	ownership := Guarded(sharesCol, totalFD, LitInt(0))
	return r.emit(layout.TableColKey(layout.HoldersTable, layout.ColOwnership), KindColumnFormula, ownership)
}
