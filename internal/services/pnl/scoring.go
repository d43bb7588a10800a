package pnl

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PnlPercent scores a participant's performance against the capital
// they actually committed.
//
// The denominator is the margin still deployed when the fight ends,
// or the peak margin ever used when everything was closed before the
// bell. A participant who never traded scores zero, which still beats
// any negative score.
func PnlPercent(totalPnl, currentMargin, maxExposureUsed decimal.Decimal) decimal.Decimal {
	denominator := currentMargin
	if !denominator.IsPositive() {
		denominator = maxExposureUsed
	}
	if !denominator.IsPositive() {
		return decimal.Zero
	}
	return totalPnl.Div(denominator).Mul(hundred)
}

// Score bundles one participant's final settlement numbers
type Score struct {
	TotalPnl   decimal.Decimal
	PnlPercent decimal.Decimal
}

// ScoreSnapshot derives the final score from an accounting snapshot.
// maxExposureUsed is the participant's stored high-water mark; the
// ledger-derived peak is folded in so a stale stored mark can only
// raise the denominator, never zero the score of a trader who closed
// everything.
func ScoreSnapshot(snap *Snapshot, maxExposureUsed decimal.Decimal) Score {
	peak := decimal.Max(maxExposureUsed, snap.PeakExposure)
	total := snap.TotalPnl()
	return Score{
		TotalPnl:   total,
		PnlPercent: PnlPercent(total, snap.Margin, peak),
	}
}
