package formula

import (
	"fmt"

	"captable_engine/pkg/core/dispatch"
	"captable_engine/pkg/core/layout"
	"captable_engine/pkg/models"
)

// daysPerYear is the day-count convention for interest accrual.
const daysPerYear = 365

// Resolver walks the model in order and emits one entry per addressable input
// and calculated field. It requires a fully built layout map: any missing
// address is an internal sequencing bug and aborts the pass.
type Resolver struct {
	doc *models.Document
	lm  *layout.Map
	set *Set

	// holderShareRefs accumulates, per holder, the share-cell addresses of
	// every instrument issued in rounds already resolved. Pro-rata rows read
	// it to reconstruct the holder's pre-round position.
	holderShareRefs map[string][]layout.Address

	// pendingNoteShares holds the share cells of note rows, keyed by the name
	// of the round they convert into. They join holderShareRefs only once that
	// round resolves: the shares do not exist before conversion.
	pendingNoteShares map[string][]noteShare
}

type noteShare struct {
	holder string
	addr   layout.Address
}

// NewResolver builds a resolver over a validated model and its sealed layout.
func NewResolver(doc *models.Document, lm *layout.Map) *Resolver {
	return &Resolver{
		doc:               doc,
		lm:                lm,
		set:               NewSet(),
		holderShareRefs:   make(map[string][]layout.Address),
		pendingNoteShares: make(map[string][]noteShare),
	}
}

// Resolve produces the full formula set. The error is either an
// *layout.AddressResolutionError or a *GenerationError; both are fail-fast.
func (r *Resolver) Resolve() (*Set, error) {
	if err := r.resolveGlobals(); err != nil {
		return nil, err
	}
	for i := range r.doc.Rounds {
		if err := r.resolveRound(&r.doc.Rounds[i]); err != nil {
			return nil, err
		}
	}
	if err := r.resolveHolderSummary(); err != nil {
		return nil, err
	}
	// Backstop: the emitted set must evaluate by forward substitution. A cycle
	// that slips past the per-template rearrangements is a generation failure,
	// not something to hand downstream.
	if key := findCycle(r.set.Entries()); key != "" {
		return nil, &GenerationError{Field: string(key), Reason: "circular reference chain in the emitted formulas"}
	}
	return r.set, nil
}

// emit registers an entry under key, resolving its address first.
func (r *Resolver) emit(key layout.Key, kind EntryKind, e Expr) error {
	addr, err := r.lm.Resolve(key)
	if err != nil {
		return err
	}
	return r.set.add(key, addr, kind, e)
}

// ref resolves a key into a reference expression.
func (r *Resolver) ref(key layout.Key) (Ref, error) {
	addr, err := r.lm.Resolve(key)
	if err != nil {
		return Ref{}, err
	}
	return R(addr), nil
}

// =============================================================================
// GLOBALS
// =============================================================================

func (r *Resolver) resolveGlobals() error {
	// Current valuation date: explicit model value, else the last round date.
	dateStr := r.doc.ValuationDate
	if dateStr == "" && len(r.doc.Rounds) > 0 {
		dateStr = r.doc.Rounds[len(r.doc.Rounds)-1].Date
	}
	if dateStr != "" {
		t, err := models.ParseDate(dateStr)
		if err != nil {
			return &GenerationError{Field: layout.ConstCurrentDate, Reason: err.Error()}
		}
		if err := r.emit(layout.ConstKey(layout.ConstCurrentDate), KindInput, DateLit{Value: t}); err != nil {
			return err
		}
	}

	// Total fully diluted shares: the final round's post-round total.
	var total Expr = LitInt(0)
	if n := len(r.doc.Rounds); n > 0 {
		last := r.doc.Rounds[n-1].Name
		ref, err := r.ref(layout.RoundKey(last, string(dispatch.RoundPostShares)))
		if err != nil {
			return err
		}
		total = ref
	}
	return r.emit(layout.ConstKey(layout.ConstTotalFDShares), KindFormula, total)
}

// =============================================================================
// ROUNDS
// =============================================================================

func (r *Resolver) resolveRound(round *models.Round) error {
	mode, ok := dispatch.ModeOf(round.CalculationType)
	if !ok {
		return &GenerationError{Round: round.Name, Reason: fmt.Sprintf("unknown calculation_type %q", round.CalculationType)}
	}

	instruments := make([]models.Instrument, len(round.Instruments))
	for i := range round.Instruments {
		inst, err := models.DecodeInstrument(&round.Instruments[i], round)
		if err != nil {
			return &GenerationError{Round: round.Name, Reason: err.Error()}
		}
		instruments[i] = inst
	}

	// Round constants, in the dispatcher's block order.
	for _, field := range mode.SectionConstants {
		if err := r.resolveRoundConstant(round, instruments, field); err != nil {
			return err
		}
	}

	// Instrument rows.
	for i, inst := range instruments {
		if err := r.resolveInstrument(round, i, inst, instruments); err != nil {
			return err
		}
	}

	// Only now does the round's issuance become visible to later rounds. Note
	// rows are held back until their conversion round: counting them earlier
	// would let a pro-rata row in an intermediate round pull in the note's
	// share cell, whose conversion price depends on the pre-round share chain
	// running through that same intermediate round.
	for i, inst := range instruments {
		key := r.shareKey(round, i, inst)
		addr, err := r.lm.Resolve(key)
		if err != nil {
			return err
		}
		holder := inst.HolderName()
		if isNote(inst) {
			conv := *round.ConversionRoundRef
			r.pendingNoteShares[conv] = append(r.pendingNoteShares[conv], noteShare{holder: holder, addr: addr})
			continue
		}
		r.holderShareRefs[holder] = append(r.holderShareRefs[holder], addr)
	}

	// Notes converting into this round are part of their holders' positions
	// from the next round on.
	for _, ns := range r.pendingNoteShares[round.Name] {
		r.holderShareRefs[ns.holder] = append(r.holderShareRefs[ns.holder], ns.addr)
	}
	delete(r.pendingNoteShares, round.Name)

	return nil
}

// shareKey returns the key of the cell carrying an instrument row's shares.
func (r *Resolver) shareKey(round *models.Round, idx int, inst models.Instrument) layout.Key {
	_, proRata := inst.(models.ProRata)
	field := dispatch.ShareField(round.CalculationType, proRata)
	return layout.InstrumentKey(round.Name, idx, string(field))
}

// shareRefsWhere collects the share-cell references of the round's rows that
// satisfy keep, in row order.
func (r *Resolver) shareRefsWhere(round *models.Round, instruments []models.Instrument, keep func(models.Instrument) bool) ([]Expr, error) {
	var refs []Expr
	for i, inst := range instruments {
		if !keep(inst) {
			continue
		}
		ref, err := r.ref(r.shareKey(round, i, inst))
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// isNote reports whether a row is a convertible or safe, i.e. not equity at
// its own round's date.
func isNote(inst models.Instrument) bool {
	switch inst.(type) {
	case models.Convertible, models.Safe:
		return true
	}
	return false
}

// equityShareRefs collects the share cells of rows that are equity at the
// round's own date: everything except convertible and safe rows.
func (r *Resolver) equityShareRefs(round *models.Round, instruments []models.Instrument) ([]Expr, error) {
	return r.shareRefsWhere(round, instruments, func(inst models.Instrument) bool {
		return !isNote(inst)
	})
}

// convertedShareRefs collects the share cells of note rows in earlier rounds
// that convert into this round.
func (r *Resolver) convertedShareRefs(target *models.Round) ([]Expr, error) {
	targetIdx := r.roundIndex(target)
	var refs []Expr
	for i := 0; i < targetIdx; i++ {
		source := &r.doc.Rounds[i]
		if source.ConversionRoundRef == nil || *source.ConversionRoundRef != target.Name {
			continue
		}
		for j := range source.Instruments {
			if source.Instruments[j].IsProRata() {
				continue
			}
			ref, err := r.ref(layout.InstrumentKey(source.Name, j, string(dispatch.FieldShares)))
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (r *Resolver) resolveRoundConstant(round *models.Round, instruments []models.Instrument, field dispatch.FieldID) error {
	key := layout.RoundKey(round.Name, string(field))

	switch field {
	case dispatch.RoundDate:
		t, err := models.ParseDate(round.Date)
		if err != nil {
			return &GenerationError{Round: round.Name, Field: string(field), Reason: err.Error()}
		}
		return r.emit(key, KindInput, DateLit{Value: t})

	case dispatch.RoundPreShares:
		// First round starts from zero; later rounds chain off the previous
		// round's post-round total.
		idx := r.roundIndex(round)
		if idx == 0 {
			return r.emit(key, KindFormula, LitInt(0))
		}
		prev := r.doc.Rounds[idx-1].Name
		ref, err := r.ref(layout.RoundKey(prev, string(dispatch.RoundPostShares)))
		if err != nil {
			return err
		}
		return r.emit(key, KindFormula, ref)

	case dispatch.RoundNewShares:
		// Note rounds issue no equity at their own date: converted shares
		// count here, in the round they convert into. Charging them to the
		// note round would make its post-round total depend on the conversion
		// price, which depends on this chain of totals -- a circular
		// reference in the output.
		refs, err := r.equityShareRefs(round, instruments)
		if err != nil {
			return err
		}
		converted, err := r.convertedShareRefs(round)
		if err != nil {
			return err
		}
		return r.emit(key, KindFormula, Sum(append(refs, converted...)...))

	case dispatch.RoundPostShares:
		pre, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundPreShares)))
		if err != nil {
			return err
		}
		neu, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundNewShares)))
		if err != nil {
			return err
		}
		return r.emit(key, KindFormula, Add(pre, neu))

	case dispatch.RoundValuation:
		if round.Valuation == nil {
			return &GenerationError{Round: round.Name, Field: string(field), Reason: "missing valuation"}
		}
		return r.emit(key, KindInput, Lit(*round.Valuation))

	case dispatch.RoundTotalInvestment:
		var refs []Expr
		for i, inst := range instruments {
			if _, ok := inst.(models.ValuationBased); !ok {
				continue
			}
			ref, err := r.ref(layout.InstrumentKey(round.Name, i, string(dispatch.FieldInvestment)))
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		return r.emit(key, KindFormula, Sum(refs...))

	case dispatch.RoundPrice:
		return r.resolveRoundPrice(round, key)

	case dispatch.RoundTotalConverted:
		// Aggregate converted amount of the round. Principal and accrued
		// interest never depend on a share price, so this sum stays
		// closed-form even though converted *shares* would be circular.
		var terms []Expr
		for i, inst := range instruments {
			switch inst.(type) {
			case models.Convertible:
				principal, err := r.ref(layout.InstrumentKey(round.Name, i, string(dispatch.FieldInvestment)))
				if err != nil {
					return err
				}
				interest, err := r.ref(layout.InstrumentKey(round.Name, i, string(dispatch.FieldInterest)))
				if err != nil {
					return err
				}
				terms = append(terms, Add(principal, interest))
			case models.Safe:
				principal, err := r.ref(layout.InstrumentKey(round.Name, i, string(dispatch.FieldInvestment)))
				if err != nil {
					return err
				}
				terms = append(terms, principal)
			}
		}
		return r.emit(key, KindFormula, Sum(terms...))
	}

	return &GenerationError{Round: round.Name, Field: string(field), Reason: "no template for round constant"}
}

// resolveRoundPrice emits the price-per-share constant of a priced round.
//
// Pre-money: price = valuation / preRoundShares.
// Post-money: the naive price = valuation / (pre + new) is circular in the
// shares being solved for; the algebraic rearrangement prices off the dollars
// instead: price = (valuation - totalInvestment) / preRoundShares.
func (r *Resolver) resolveRoundPrice(round *models.Round, key layout.Key) error {
	if round.ValuationBasis == nil {
		return &GenerationError{Round: round.Name, Field: string(dispatch.RoundPrice), Reason: "missing valuation_basis"}
	}
	valuation, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundValuation)))
	if err != nil {
		return err
	}
	pre, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundPreShares)))
	if err != nil {
		return err
	}

	var numerator Expr
	switch *round.ValuationBasis {
	case models.BasisPreMoney:
		numerator = valuation
	case models.BasisPostMoney:
		total, err := r.ref(layout.RoundKey(round.Name, string(dispatch.RoundTotalInvestment)))
		if err != nil {
			return err
		}
		numerator = Sub(valuation, total)
	default:
		return &GenerationError{Round: round.Name, Field: string(dispatch.RoundPrice), Reason: fmt.Sprintf("unknown valuation_basis %q", *round.ValuationBasis)}
	}

	return r.emit(key, KindFormula, Guarded(numerator, pre, LitInt(0)))
}

func (r *Resolver) roundIndex(round *models.Round) int {
	for i := range r.doc.Rounds {
		if &r.doc.Rounds[i] == round {
			return i
		}
	}
	return -1
}
