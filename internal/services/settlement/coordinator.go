package settlement

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arena/internal/adapters/adjudicator"
	"arena/internal/domain/fight"
	"arena/internal/domain/trade"
	"arena/internal/events"
	"arena/internal/metrics"
	"arena/internal/services/pnl"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// MarkSource supplies current mark prices for margin and unrealized
// PnL. Satisfied by redis.MarkPriceCache.
type MarkSource interface {
	GetAll(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// AuditSink records settlement outcomes for analytics. Satisfied by
// clickhouse.SettlementAuditRepository.
type AuditSink interface {
	Record(ctx context.Context, audit *fight.SettlementAudit) error
}

// EventPublisher announces committed settlements downstream.
type EventPublisher interface {
	PublishFightSettled(ctx context.Context, event *events.FightSettled) error
}

// Coordinator drives a fight from overdue to terminal. Exactly one
// coordinator in the fleet wins each fight's settlement; the rest lose
// the lease race and walk away. Safe to invoke any number of times for
// the same fight.
type Coordinator struct {
	fights       fight.Repository
	participants fight.ParticipantRepository
	trades       trade.Repository
	marks        MarkSource
	adjudicator  adjudicator.Client
	lease        *Lease

	// Optional. Both are best-effort after commit.
	audit     AuditSink
	publisher EventPublisher

	settleBuffer time.Duration
	log          *logger.Logger
	now          func() time.Time
}

// NewCoordinator creates a settlement coordinator.
func NewCoordinator(
	fights fight.Repository,
	participants fight.ParticipantRepository,
	trades trade.Repository,
	marks MarkSource,
	adj adjudicator.Client,
	lease *Lease,
	settleBuffer time.Duration,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		fights:       fights,
		participants: participants,
		trades:       trades,
		marks:        marks,
		adjudicator:  adj,
		lease:        lease,
		settleBuffer: settleBuffer,
		log:          log,
		now:          time.Now,
	}
}

// WithAudit attaches the settlement audit sink.
func (c *Coordinator) WithAudit(sink AuditSink) *Coordinator {
	c.audit = sink
	return c
}

// WithPublisher attaches the settled event publisher.
func (c *Coordinator) WithPublisher(pub EventPublisher) *Coordinator {
	c.publisher = pub
	return c
}

// SettleFight settles one fight end to end: lease, ledger fold,
// adjudication, atomic commit. Returns nil both on success and on a
// benign race loss (someone else settled or is settling). Trigger is
// recorded in metrics: "timer" or "sweep".
func (c *Coordinator) SettleFight(ctx context.Context, fightID uuid.UUID, trigger string) error {
	start := c.now()
	log := c.log.With("fight_id", fightID.String())

	f, err := c.fights.GetByID(ctx, fightID)
	if err != nil {
		if errors.Is(err, errors.ErrFightNotFound) {
			log.Warn("Settle requested for unknown fight")
			return nil
		}
		return errors.Wrap(err, "failed to load fight")
	}

	if f.Status.IsTerminal() {
		log.Debugw("Fight already settled", "status", f.Status.String())
		return nil
	}

	if !f.IsSettleCandidate(c.now(), c.settleBuffer) {
		return errors.Wrapf(errors.ErrNotSettleable, "fight %s status=%s", fightID, f.Status)
	}

	acquired, err := c.lease.Acquire(ctx, fightID)
	if err != nil {
		return errors.Wrap(err, "failed to acquire settlement lease")
	}
	if !acquired {
		metrics.RecordLockAttempt("held_elsewhere")
		log.Debug("Settlement lease held elsewhere, skipping")
		return nil
	}
	metrics.RecordLockAttempt("acquired")

	commit, audits, err := c.evaluate(ctx, f)
	if err != nil {
		// Give the lease back so the sweep can retry before the TTL
		if relErr := c.lease.Release(ctx, fightID); relErr != nil {
			log.Errorf("Failed to release lease after evaluation error: %v", relErr)
		}
		return errors.Wrap(err, "failed to evaluate fight")
	}

	if err := c.fights.CommitSettlement(ctx, commit); err != nil {
		switch {
		case errors.Is(err, errors.ErrAlreadySettled):
			metrics.RecordLockAttempt("lost_at_commit")
			log.Infow("Fight settled by another process", "settled_by", "peer")
			return nil
		case errors.Is(err, errors.ErrLockLost):
			metrics.RecordLockAttempt("lost_at_commit")
			log.Warn("Settlement lease stolen before commit")
			return nil
		default:
			if relErr := c.lease.Release(ctx, fightID); relErr != nil {
				log.Errorf("Failed to release lease after commit error: %v", relErr)
			}
			return errors.Wrap(err, "failed to commit settlement")
		}
	}

	duration := c.now().Sub(start)
	metrics.RecordSettlement(commit.Status.String(), audits[0].VerdictSource == "fallback", trigger, duration)

	log.Infow("Fight settled",
		"status", commit.Status.String(),
		"is_draw", commit.IsDraw,
		"winner_id", winnerString(commit.WinnerID),
		"duration", duration,
	)

	c.afterCommit(ctx, commit, audits)
	return nil
}

// SettleDueFights settles every overdue fight, one lease at a time.
// Used by the reconciliation sweep. Returns the number settled.
func (c *Coordinator) SettleDueFights(ctx context.Context, limit int) (int, error) {
	candidates, err := c.fights.GetSettleCandidates(ctx, c.settleBuffer, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load settle candidates")
	}

	metrics.SettlementBacklog.Set(float64(len(candidates)))

	if len(candidates) > 0 {
		// Candidates come back oldest deadline first
		if deadline, ok := candidates[0].Deadline(); ok {
			c.log.Infow("Sweeping overdue fights",
				"count", len(candidates),
				"oldest_deadline", humanize.Time(deadline),
			)
		}
	}

	settled := 0
	for _, f := range candidates {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		if err := c.SettleFight(ctx, f.ID, "sweep"); err != nil {
			// One stuck fight must not starve the rest of the sweep
			c.log.Errorw("Sweep settlement failed",
				"fight_id", f.ID.String(),
				"error", err,
			)
			continue
		}
		settled++
	}

	return settled, nil
}

// evaluate folds both ledgers, scores both sides and builds the commit
// plus audit rows. No writes happen here.
func (c *Coordinator) evaluate(ctx context.Context, f *fight.Fight) (*fight.SettlementCommit, []*fight.SettlementAudit, error) {
	parts, err := c.participants.GetByFight(ctx, f.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load participants")
	}
	if len(parts) != 2 {
		return nil, nil, errors.Newf("fight %s is live with %d participants", f.ID, len(parts))
	}

	ledgers := make([][]*trade.FightTrade, len(parts))
	symbolSet := make(map[string]struct{})
	for i, p := range parts {
		ledger, err := c.trades.ListByParticipant(ctx, f.ID, p.UserID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to load trades for user %s", p.UserID)
		}
		ledgers[i] = ledger
		for _, t := range ledger {
			symbolSet[t.Symbol] = struct{}{}
		}
	}

	marks := c.fetchMarks(ctx, symbolSet)

	snaps := make([]*pnl.Snapshot, len(parts))
	scores := make([]pnl.Score, len(parts))
	for i, p := range parts {
		snaps[i] = pnl.Compute(ledgers[i], marks)
		scores[i] = pnl.ScoreSnapshot(snaps[i], p.MaxExposureUsed)
	}

	// Provisional outcome: higher pnlPercent wins, equality is a draw.
	// A participant with no trades scores zero and beats any loss.
	var provisionalWinner *uuid.UUID
	provisionalDraw := false
	switch scores[0].PnlPercent.Cmp(scores[1].PnlPercent) {
	case 1:
		provisionalWinner = &parts[0].UserID
	case -1:
		provisionalWinner = &parts[1].UserID
	default:
		provisionalDraw = true
	}

	verdict, err := c.adjudicator.Review(ctx, f.ID, provisionalWinner, provisionalDraw)
	if err != nil {
		return nil, nil, errors.Wrap(err, "adjudicator review failed")
	}
	metrics.RecordAdjudicatorCall(verdict.Fallback, verdict.Latency)

	endedAt, ok := f.Deadline()
	if !ok {
		endedAt = c.now()
	}

	commit := &fight.SettlementCommit{
		FightID:   f.ID,
		SettledBy: c.lease.Holder(),
		Status:    verdict.FinalStatus,
		WinnerID:  verdict.WinnerID,
		IsDraw:    verdict.IsDraw,
		EndedAt:   endedAt,
		Results:   make([]fight.ParticipantResult, len(parts)),
	}

	verdictSource := "adjudicator"
	if verdict.Fallback {
		verdictSource = "fallback"
	}

	audits := make([]*fight.SettlementAudit, len(parts))
	for i, p := range parts {
		pct := scores[i].PnlPercent
		usdc := scores[i].TotalPnl
		count := snaps[i].TradesCount

		commit.Results[i] = fight.ParticipantResult{
			UserID:          p.UserID,
			FinalPnlPercent: pct,
			FinalScoreUsdc:  usdc,
			TradesCount:     count,
		}

		audits[i] = &fight.SettlementAudit{
			FightID:              f.ID,
			UserID:               p.UserID,
			Slot:                 p.Slot,
			SettledAt:            c.now(),
			SettledBy:            c.lease.Holder(),
			FinalStatus:          verdict.FinalStatus,
			IsWinner:             verdict.WinnerID != nil && *verdict.WinnerID == p.UserID,
			IsDraw:               verdict.IsDraw,
			RealizedPnl:          snaps[i].RealizedPnl,
			UnrealizedPnl:        snaps[i].UnrealizedPnl,
			TotalFees:            snaps[i].TotalFees,
			Margin:               snaps[i].Margin,
			PeakExposure:         snaps[i].PeakExposure,
			PnlPercent:           pct,
			ScoreUsdc:            usdc,
			TradesCount:          count,
			VerdictSource:        verdictSource,
			AdjudicatorLatencyMs: verdict.Latency.Milliseconds(),
		}
	}

	return commit, audits, nil
}

// fetchMarks loads mark prices for every symbol the fight touched.
// A degraded price source is not fatal: margin falls back to entry
// prices and unrealized PnL drops out, per the accounting rules.
func (c *Coordinator) fetchMarks(ctx context.Context, symbolSet map[string]struct{}) map[string]decimal.Decimal {
	if len(symbolSet) == 0 {
		return map[string]decimal.Decimal{}
	}

	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}

	marks, err := c.marks.GetAll(ctx, symbols)
	if err != nil {
		c.log.Warnf("Mark price lookup failed, settling on entry prices: %v", err)
		return map[string]decimal.Decimal{}
	}
	return marks
}

// afterCommit writes audit rows and publishes the settled event.
// The fight is already terminal; failures here are logged and dropped.
func (c *Coordinator) afterCommit(ctx context.Context, commit *fight.SettlementCommit, audits []*fight.SettlementAudit) {
	if c.audit != nil {
		for _, a := range audits {
			if err := c.audit.Record(ctx, a); err != nil {
				c.log.Errorw("Failed to record settlement audit",
					"fight_id", a.FightID.String(),
					"user_id", a.UserID.String(),
					"error", err,
				)
			}
		}
	}

	if c.publisher != nil {
		event := &events.FightSettled{
			FightID:     commit.FightID.String(),
			FinalStatus: commit.Status.String(),
			WinnerID:    winnerStringPtr(commit.WinnerID),
			IsDraw:      commit.IsDraw,
			SettledAt:   c.now(),
			SettledBy:   commit.SettledBy,
			Outcomes:    make([]events.ParticipantOutcome, len(commit.Results)),
		}
		for i, r := range commit.Results {
			event.Outcomes[i] = events.ParticipantOutcome{
				UserID:      r.UserID.String(),
				PnlPercent:  r.FinalPnlPercent,
				ScoreUsdc:   r.FinalScoreUsdc,
				TradesCount: r.TradesCount,
			}
		}

		if err := c.publisher.PublishFightSettled(ctx, event); err != nil {
			c.log.Errorw("Failed to publish settled event",
				"fight_id", commit.FightID.String(),
				"error", err,
			)
		}
	}
}

func winnerString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func winnerStringPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
