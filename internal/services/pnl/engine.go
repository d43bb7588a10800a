package pnl

import (
	"github.com/shopspring/decimal"

	"arena/internal/domain/trade"
)

// DefaultLeverage applies to symbols whose fills never report leverage
const DefaultLeverage = 10

// positionEpsilon is the flat threshold: residual amounts below it are
// rounding dust from proportional closes, not real exposure
var positionEpsilon = decimal.New(1, -7)

// Position is the running state of one symbol inside the fold.
// Amount is signed: positive long, negative short. TotalCost is the
// cost basis of the currently open amount only, always non-negative.
type Position struct {
	Amount    decimal.Decimal
	TotalCost decimal.Decimal
	Leverage  int
}

// IsFlat reports whether the position is within epsilon of zero
func (p Position) IsFlat() bool {
	return p.Amount.Abs().LessThan(positionEpsilon)
}

// AvgEntryPrice returns the average entry price of the open amount
func (p Position) AvgEntryPrice() decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Amount.Abs())
}

func (p Position) leverageOrDefault() decimal.Decimal {
	if p.Leverage > 0 {
		return decimal.NewFromInt(int64(p.Leverage))
	}
	return decimal.NewFromInt(DefaultLeverage)
}

// FillEffect classifies what one fill did to its symbol's position.
// A flip both closes and opens: ClosedFraction is the share of the
// fill that went into closing, the remainder opened the other way.
type FillEffect struct {
	OpensPosition  bool
	ClosesPosition bool

	// ClosedFraction is in [0, 1]: the fraction of the fill amount
	// that reduced existing exposure. The fill's reported pnl counts
	// toward realized pnl in exactly this proportion.
	ClosedFraction decimal.Decimal
}

// ClassifyFill tags a fill against the current position without
// applying it. Zero-amount fills neither open nor close.
func ClassifyFill(pos Position, t *trade.FightTrade) FillEffect {
	if t.Amount.IsZero() {
		return FillEffect{ClosedFraction: decimal.Zero}
	}

	delta := t.SignedAmount()

	// Flat, or same direction: pure open / increase
	if pos.IsFlat() || pos.Amount.Sign() == delta.Sign() {
		return FillEffect{OpensPosition: true, ClosedFraction: decimal.Zero}
	}

	// Opposite direction: the fill closes up to the open amount
	closed := decimal.Min(delta.Abs(), pos.Amount.Abs())
	fraction := closed.Div(delta.Abs())

	if delta.Abs().GreaterThan(pos.Amount.Abs()) {
		// Flip: the remainder opens a position the other way
		return FillEffect{OpensPosition: true, ClosesPosition: true, ClosedFraction: fraction}
	}
	return FillEffect{ClosesPosition: true, ClosedFraction: fraction}
}

// Snapshot is the complete accounting state of one participant,
// derived purely from their trade ledger.
type Snapshot struct {
	RealizedPnl   decimal.Decimal
	UnrealizedPnl decimal.Decimal
	TotalFees     decimal.Decimal

	// Margin consumed by residual open positions, priced at the mark
	// when one was supplied and at average entry otherwise
	Margin decimal.Decimal

	// PeakExposure is the high-water mark of open notional across the
	// fold, the maxExposureUsed feed
	PeakExposure decimal.Decimal

	TradesCount int
	Positions   map[string]Position
}

// TotalPnl is the number the score is computed from. Closing fills
// report pnl net of their fees, so fees are not subtracted again;
// TotalFees stays a separate stat.
func (s *Snapshot) TotalPnl() decimal.Decimal {
	return s.RealizedPnl.Add(s.UnrealizedPnl)
}

// Compute folds an ordered trade ledger into a snapshot.
//
// The fold is pure and deterministic: same trades and marks in, same
// snapshot out, inputs never mutated. Trades must be in ledger order.
// marks supplies mark prices for symbols left open and may be nil or
// partial; symbols without a mark contribute no unrealized pnl and
// are margined at their entry price.
func Compute(trades []*trade.FightTrade, marks map[string]decimal.Decimal) *Snapshot {
	snap := &Snapshot{
		RealizedPnl:   decimal.Zero,
		UnrealizedPnl: decimal.Zero,
		TotalFees:     decimal.Zero,
		Margin:        decimal.Zero,
		PeakExposure:  decimal.Zero,
		Positions:     make(map[string]Position),
	}

	for _, t := range trades {
		snap.applyFill(t)
	}

	// Only residual open positions survive into the snapshot
	for symbol, pos := range snap.Positions {
		if pos.IsFlat() {
			delete(snap.Positions, symbol)
		}
	}

	for symbol, pos := range snap.Positions {
		entry := pos.AvgEntryPrice()
		price := entry
		if mark, ok := marks[symbol]; ok {
			price = mark
			// (mark - entry) * signed amount is sign-correct for
			// both directions
			snap.UnrealizedPnl = snap.UnrealizedPnl.Add(mark.Sub(entry).Mul(pos.Amount))
		}
		snap.Margin = snap.Margin.Add(pos.Amount.Abs().Mul(price).Div(pos.leverageOrDefault()))
	}

	return snap
}

func (s *Snapshot) applyFill(t *trade.FightTrade) {
	// Fees and count accumulate on every fill, zero-amount included
	s.TotalFees = s.TotalFees.Add(t.Fee)
	s.TradesCount++

	pos := s.Positions[t.Symbol]
	if t.Leverage != nil && *t.Leverage > 0 {
		pos.Leverage = *t.Leverage
	}

	if t.Amount.IsZero() {
		s.Positions[t.Symbol] = pos
		return
	}

	effect := ClassifyFill(pos, t)
	delta := t.SignedAmount()

	if effect.ClosesPosition {
		// The exchange reports pnl for the whole fill; only the
		// closing fraction of it is realized
		s.RealizedPnl = s.RealizedPnl.Add(t.Pnl.Mul(effect.ClosedFraction))
	}

	switch {
	case effect.ClosesPosition && effect.OpensPosition:
		// Flip: the remainder is a fresh position at the fill price
		remainder := delta.Abs().Sub(pos.Amount.Abs())
		pos.Amount = pos.Amount.Add(delta)
		pos.TotalCost = remainder.Mul(t.Price)

	case effect.ClosesPosition:
		// Partial or full close: cost basis shrinks at average entry,
		// so the entry price of what stays open is unchanged
		entry := pos.AvgEntryPrice()
		pos.Amount = pos.Amount.Add(delta)
		pos.TotalCost = pos.TotalCost.Sub(delta.Abs().Mul(entry))

	default:
		// Open or increase
		pos.Amount = pos.Amount.Add(delta)
		pos.TotalCost = pos.TotalCost.Add(t.Amount.Mul(t.Price))
	}

	if pos.IsFlat() {
		pos.Amount = decimal.Zero
		pos.TotalCost = decimal.Zero
	}
	s.Positions[t.Symbol] = pos

	// Track the notional high-water after every fill
	exposure := decimal.Zero
	for _, p := range s.Positions {
		exposure = exposure.Add(p.TotalCost)
	}
	if exposure.GreaterThan(s.PeakExposure) {
		s.PeakExposure = exposure
	}
}
