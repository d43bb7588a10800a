package postgres

import (
	"context"

	"github.com/google/uuid"

	"arena/internal/domain/trade"
	"arena/pkg/errors"
)

// Compile-time check
var _ trade.Repository = (*TradeRepository)(nil)

// TradeRepository implements the append-only fight trade ledger using sqlx
type TradeRepository struct {
	db DBTX
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db DBTX) *TradeRepository {
	return &TradeRepository{db: db}
}

// Append inserts one fill and reads back its assigned sequence number
func (r *TradeRepository) Append(ctx context.Context, t *trade.FightTrade) error {
	query := `
		INSERT INTO fight_trades (
			id, fight_id, user_id, symbol, side,
			amount, price, fee, pnl, leverage, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING seq`

	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.FightID, t.UserID, t.Symbol, t.Side,
		t.Amount, t.Price, t.Fee, t.Pnl, t.Leverage, t.ExecutedAt,
	).Scan(&t.Seq)
	if err != nil {
		return errors.Wrap(err, "failed to append fight trade")
	}

	return nil
}

// ListByParticipant returns the participant's ledger in fold order:
// execution time, then insertion sequence for same-instant fills
func (r *TradeRepository) ListByParticipant(ctx context.Context, fightID, userID uuid.UUID) ([]*trade.FightTrade, error) {
	var trades []*trade.FightTrade

	query := `
		SELECT id, fight_id, user_id, symbol, side,
			   amount, price, fee, pnl, leverage, executed_at, seq
		FROM fight_trades
		WHERE fight_id = $1
		  AND user_id = $2
		ORDER BY executed_at ASC, seq ASC`

	err := r.db.SelectContext(ctx, &trades, query, fightID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fight trades")
	}

	return trades, nil
}

// CountByFight returns ledger row counts per user for one fight
func (r *TradeRepository) CountByFight(ctx context.Context, fightID uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT user_id, COUNT(*) AS cnt
		FROM fight_trades
		WHERE fight_id = $1
		GROUP BY user_id`

	rows, err := r.db.QueryContext(ctx, query, fightID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count fight trades")
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var userID uuid.UUID
		var cnt int
		if err := rows.Scan(&userID, &cnt); err != nil {
			return nil, errors.Wrap(err, "failed to scan trade count")
		}
		counts[userID] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate trade counts")
	}

	return counts, nil
}
