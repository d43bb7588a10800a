package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	kafkaadapter "arena/internal/adapters/kafka"
	"arena/internal/domain/fight"
	"arena/internal/domain/trade"
	"arena/internal/events"
	"arena/internal/metrics"
	"arena/internal/services/pnl"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// FillConsumer reads exchange fill events from Kafka and appends them
// to the fight trade ledger. The ledger is the only input of the PnL
// fold at settlement, so every fill of a live fight must land here.
type FillConsumer struct {
	consumer     *kafkaadapter.Consumer
	fights       fight.Repository
	participants fight.ParticipantRepository
	trades       trade.Repository
	log          *logger.Logger
}

// NewFillConsumer creates a new fill consumer
func NewFillConsumer(
	consumer *kafkaadapter.Consumer,
	fights fight.Repository,
	participants fight.ParticipantRepository,
	trades trade.Repository,
	log *logger.Logger,
) *FillConsumer {
	return &FillConsumer{
		consumer:     consumer,
		fights:       fights,
		participants: participants,
		trades:       trades,
		log:          log,
	}
}

// Start begins consuming fill events. Blocks until ctx is cancelled.
func (c *FillConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting fill consumer...")

	defer func() {
		c.log.Info("Closing fill consumer...")
		if err := c.consumer.Close(); err != nil {
			c.log.Error("Failed to close fill consumer", "error", err)
		} else {
			c.log.Info("✓ Fill consumer closed")
		}
	}()

	for {
		msg, err := c.consumer.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Fill consumer stopping (context cancelled)")
				return nil
			}
			c.log.Debug("Failed to read fill event", "error", err)
			continue
		}

		// Finish the in-flight message even when shutdown starts mid-way
		processCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = c.handleFill(processCtx, msg)
		cancel()

		status := "success"
		if err != nil {
			status = "error"
			c.log.Error("Failed to handle fill event",
				"topic", msg.Topic,
				"key", string(msg.Key),
				"error", err,
			)
		}
		metrics.KafkaMessages.WithLabelValues(msg.Topic, "consumed", status).Inc()

		if ctx.Err() != nil {
			c.log.Info("Fill consumer stopping after processing current message")
			return nil
		}
	}
}

// handleFill processes a single fill event
func (c *FillConsumer) handleFill(ctx context.Context, msg kafka.Message) error {
	t, err := c.parseFill(msg)
	if err != nil {
		metrics.TradesIngested.WithLabelValues("error").Inc()
		return err
	}

	f, err := c.fights.GetByID(ctx, t.FightID)
	if err != nil {
		if errors.Is(err, errors.ErrFightNotFound) {
			metrics.TradesIngested.WithLabelValues("skipped").Inc()
			c.log.Warnw("Dropping fill for unknown fight", "fight_id", t.FightID, "user_id", t.UserID)
			return nil
		}
		metrics.TradesIngested.WithLabelValues("error").Inc()
		return errors.Wrap(err, "failed to load fight")
	}

	// Fills routed before the start or after settlement are not part of
	// the competition window
	if f.Status != fight.StatusLive {
		metrics.TradesIngested.WithLabelValues("skipped").Inc()
		c.log.Debugw("Dropping fill for non-live fight",
			"fight_id", t.FightID,
			"status", f.Status.String(),
		)
		return nil
	}

	if err := c.trades.Append(ctx, t); err != nil {
		metrics.TradesIngested.WithLabelValues("error").Inc()
		return errors.Wrap(err, "failed to append fill")
	}

	// Best effort: scoring takes the max of the stored and re-folded
	// peaks, so a missed advance here cannot understate the final score
	if err := c.advanceExposure(ctx, t.FightID, t.UserID); err != nil {
		c.log.Errorw("Failed to advance exposure high-water mark",
			"fight_id", t.FightID,
			"user_id", t.UserID,
			"error", err,
		)
	}

	metrics.RecordTradeIngested(nil)

	c.log.Debugw("Fill appended",
		"fight_id", t.FightID,
		"user_id", t.UserID,
		"symbol", t.Symbol,
		"side", t.Side.String(),
		"amount", t.Amount,
		"price", t.Price,
	)

	return nil
}

// parseFill validates and maps the wire event into a ledger row
func (c *FillConsumer) parseFill(msg kafka.Message) (*trade.FightTrade, error) {
	var event events.FightTradeExecuted
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal fill event")
	}

	fightID, err := uuid.Parse(event.FightID)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bad fight_id %q", event.FightID)
	}
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bad user_id %q", event.UserID)
	}

	side := trade.Side(event.Side)
	if !side.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bad side %q", event.Side)
	}
	if event.Symbol == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "symbol is required")
	}
	if !event.Amount.IsPositive() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "amount %s must be positive", event.Amount)
	}
	if !event.Price.IsPositive() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "price %s must be positive", event.Price)
	}

	executedAt := event.ExecutedAt
	if executedAt.IsZero() {
		executedAt = msg.Time
	}

	return &trade.FightTrade{
		ID:         uuid.New(),
		FightID:    fightID,
		UserID:     userID,
		Symbol:     event.Symbol,
		Side:       side,
		Amount:     event.Amount,
		Price:      event.Price,
		Fee:        event.Fee,
		Pnl:        event.Pnl,
		Leverage:   event.Leverage,
		ExecutedAt: executedAt,
	}, nil
}

// advanceExposure re-folds the participant's ledger and pushes the
// notional high-water mark into the participant row. Folding reuses
// the exact accounting the settlement fold runs, so the stored mark
// can never disagree with the final score's denominator.
func (c *FillConsumer) advanceExposure(ctx context.Context, fightID, userID uuid.UUID) error {
	fills, err := c.trades.ListByParticipant(ctx, fightID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to list fills")
	}

	snap := pnl.Compute(fills, nil)
	if snap.PeakExposure.IsZero() {
		return nil
	}

	return c.participants.AdvanceMaxExposure(ctx, fightID, userID, snap.PeakExposure)
}
