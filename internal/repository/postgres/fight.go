package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"arena/internal/domain/fight"
	"arena/pkg/errors"
)

// Compile-time check
var _ fight.Repository = (*FightRepository)(nil)

// FightRepository implements fight.Repository using PostgreSQL.
// It takes *sqlx.DB rather than DBTX because CommitSettlement opens
// its own transaction.
type FightRepository struct {
	db *sqlx.DB
}

// NewFightRepository creates a new fight repository
func NewFightRepository(db *sqlx.DB) *FightRepository {
	return &FightRepository{db: db}
}

const fightColumns = `id, status, duration_minutes, created_at, started_at, ended_at,
	   winner_id, is_draw, settling_at, settling_by`

// Create inserts the fight and its creator participant in one
// transaction, so a fight row is never visible without its slot A
// occupant.
func (r *FightRepository) Create(ctx context.Context, f *fight.Fight, creator *fight.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin create transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO fights (
			id, status, duration_minutes, created_at, started_at, ended_at,
			winner_id, is_draw, settling_at, settling_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = tx.ExecContext(ctx, query,
		f.ID, f.Status, f.DurationMinutes, f.CreatedAt, f.StartedAt, f.EndedAt,
		f.WinnerID, f.IsDraw, f.SettlingAt, f.SettlingBy,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create fight")
	}

	if err := insertParticipant(ctx, tx, creator); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit create transaction")
	}

	return nil
}

// GetByID retrieves a fight by ID
func (r *FightRepository) GetByID(ctx context.Context, id uuid.UUID) (*fight.Fight, error) {
	var f fight.Fight

	query := `SELECT ` + fightColumns + ` FROM fights WHERE id = $1`

	err := r.db.GetContext(ctx, &f, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrFightNotFound, "fight %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fight")
	}

	return &f, nil
}

// GetByStatus retrieves all fights with the given status
func (r *FightRepository) GetByStatus(ctx context.Context, status fight.Status) ([]*fight.Fight, error) {
	var fights []*fight.Fight

	query := `SELECT ` + fightColumns + ` FROM fights WHERE status = $1 ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &fights, query, status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fights by status")
	}

	return fights, nil
}

// GetSettleCandidates returns LIVE fights whose deadline plus buffer has
// passed, oldest deadline first. The lock state is intentionally not
// filtered here: acquisition decides who settles.
func (r *FightRepository) GetSettleCandidates(ctx context.Context, buffer time.Duration, limit int) ([]*fight.Fight, error) {
	if limit <= 0 {
		limit = 100 // Default limit
	}

	var fights []*fight.Fight

	query := `
		SELECT ` + fightColumns + `
		FROM fights
		WHERE status = $1
		  AND started_at IS NOT NULL
		  AND started_at + make_interval(mins => duration_minutes) + make_interval(secs => $2) < NOW()
		ORDER BY started_at ASC
		LIMIT $3`

	err := r.db.SelectContext(ctx, &fights, query, fight.StatusLive, buffer.Seconds(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get settle candidates")
	}

	return fights, nil
}

// Join transitions WAITING -> LIVE and inserts the joiner in one
// transaction. The conditional status update is the race arbiter:
// of two concurrent joiners exactly one matches the WAITING row, and
// only that one gets a participant row.
func (r *FightRepository) Join(ctx context.Context, id uuid.UUID, joiner *fight.Participant, startedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin join transaction")
	}
	defer tx.Rollback()

	query := `
		UPDATE fights SET
			status = $2,
			started_at = $3
		WHERE id = $1
		  AND status = $4`

	result, err := tx.ExecContext(ctx, query, id, fight.StatusLive, startedAt, fight.StatusWaiting)
	if err != nil {
		return errors.Wrap(err, "failed to start fight")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrFightNotJoinable, "fight %s", id)
	}

	if err := insertParticipant(ctx, tx, joiner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit join transaction")
	}

	return nil
}

// Cancel transitions WAITING -> CANCELLED
func (r *FightRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE fights SET
			status = $2,
			ended_at = NOW()
		WHERE id = $1
		  AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, fight.StatusCancelled, fight.StatusWaiting)
	if err != nil {
		return errors.Wrap(err, "failed to cancel fight")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrFightNotCancellable, "fight %s", id)
	}

	return nil
}

// TryAcquireSettlement stamps the settlement lease with one conditional
// update. The WHERE clause admits exactly one winner per race: the fight
// must still be LIVE and either unlocked or holding a lease older than
// ttl. RowsAffected reports whether this caller won.
func (r *FightRepository) TryAcquireSettlement(ctx context.Context, id uuid.UUID, holder string, now time.Time, ttl time.Duration) (bool, error) {
	query := `
		UPDATE fights SET
			settling_at = $3,
			settling_by = $2
		WHERE id = $1
		  AND status = $4
		  AND (settling_at IS NULL OR settling_at < $5)`

	result, err := r.db.ExecContext(ctx, query, id, holder, now, fight.StatusLive, now.Add(-ttl))
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire settlement lease")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return rows == 1, nil
}

// ReleaseSettlement clears the lease if still held by holder.
// A lease held by someone else is left alone.
func (r *FightRepository) ReleaseSettlement(ctx context.Context, id uuid.UUID, holder string) error {
	query := `
		UPDATE fights SET
			settling_at = NULL,
			settling_by = NULL
		WHERE id = $1
		  AND settling_by = $2`

	_, err := r.db.ExecContext(ctx, query, id, holder)
	if err != nil {
		return errors.Wrap(err, "failed to release settlement lease")
	}

	return nil
}

// CommitSettlement applies the terminal transition atomically.
//
// The fight update re-verifies LIVE status and lease ownership inside
// the transaction; losing either check means another process settled
// or stole the lease, and nothing is written. The commit also clears
// the lease, so a successful commit needs no separate release.
func (r *FightRepository) CommitSettlement(ctx context.Context, commit *fight.SettlementCommit) error {
	if !commit.Status.IsTerminal() {
		return errors.Wrapf(errors.ErrInvalidInput, "non-terminal settlement status %s", commit.Status)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin settlement transaction")
	}
	defer tx.Rollback()

	fightQuery := `
		UPDATE fights SET
			status = $3,
			winner_id = $4,
			is_draw = $5,
			ended_at = $6,
			settling_at = NULL,
			settling_by = NULL
		WHERE id = $1
		  AND status = $7
		  AND settling_by = $2`

	result, err := tx.ExecContext(ctx, fightQuery,
		commit.FightID, commit.SettledBy,
		commit.Status, commit.WinnerID, commit.IsDraw, commit.EndedAt,
		fight.StatusLive,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update fight")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return r.diagnoseCommitFailure(ctx, commit.FightID)
	}

	participantQuery := `
		UPDATE fight_participants SET
			final_pnl_percent = $3,
			final_score_usdc = $4,
			trades_count = $5
		WHERE fight_id = $1
		  AND user_id = $2`

	for _, res := range commit.Results {
		result, err := tx.ExecContext(ctx, participantQuery,
			commit.FightID, res.UserID,
			res.FinalPnlPercent, res.FinalScoreUsdc, res.TradesCount,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to write final stats for user %s", res.UserID)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if rows == 0 {
			return errors.Wrapf(errors.ErrParticipantNotFound, "fight %s user %s", commit.FightID, res.UserID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit settlement")
	}

	return nil
}

// diagnoseCommitFailure names the race that was lost. Called after the
// conditional fight update matched nothing.
func (r *FightRepository) diagnoseCommitFailure(ctx context.Context, id uuid.UUID) error {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrFightNotFound) {
			return err
		}
		return errors.Wrap(err, "failed to diagnose settlement commit failure")
	}

	if f.Status.IsTerminal() {
		return errors.Wrapf(errors.ErrAlreadySettled, "fight %s is %s", id, f.Status)
	}
	return errors.Wrapf(errors.ErrLockLost, "fight %s lease now held by %v", id, f.SettlingBy)
}
