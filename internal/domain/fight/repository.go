package fight

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for fight data access
type Repository interface {
	// Create inserts the fight and its creator participant atomically.
	Create(ctx context.Context, f *Fight, creator *Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fight, error)
	GetByStatus(ctx context.Context, status Status) ([]*Fight, error)

	// GetSettleCandidates returns LIVE fights whose deadline plus buffer
	// has passed, oldest deadline first.
	GetSettleCandidates(ctx context.Context, buffer time.Duration, limit int) ([]*Fight, error)

	// Join transitions WAITING -> LIVE and inserts the joiner in one
	// transaction. Two concurrent joiners race on the status update;
	// the loser gets ErrFightNotJoinable and no participant row.
	Join(ctx context.Context, id uuid.UUID, joiner *Participant, startedAt time.Time) error

	// Cancel transitions WAITING -> CANCELLED.
	// Returns ErrFightNotCancellable if the fight already started.
	Cancel(ctx context.Context, id uuid.UUID) error

	// TryAcquireSettlement attempts to stamp the settlement lease on a
	// LIVE fight. It succeeds when the fight is unlocked or the existing
	// lease is older than ttl. Returns false when another process holds
	// a fresh lease.
	TryAcquireSettlement(ctx context.Context, id uuid.UUID, holder string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseSettlement clears the lease if still held by holder.
	// Releasing a lease held by someone else is a no-op.
	ReleaseSettlement(ctx context.Context, id uuid.UUID, holder string) error

	// CommitSettlement applies the terminal transition and both
	// participants' final results in a single transaction. The commit
	// re-verifies that the fight is still LIVE and the lease is still
	// held by commit.SettledBy; otherwise it returns ErrLockLost or
	// ErrAlreadySettled and writes nothing.
	CommitSettlement(ctx context.Context, commit *SettlementCommit) error
}

// ParticipantRepository defines the interface for participant data access.
// Participant rows are inserted by Repository.Create and Repository.Join;
// this interface only reads and updates them.
type ParticipantRepository interface {
	Get(ctx context.Context, fightID, userID uuid.UUID) (*Participant, error)
	GetByFight(ctx context.Context, fightID uuid.UUID) ([]*Participant, error)

	// AdvanceMaxExposure raises the max_exposure_used high-water mark.
	// Values below the current mark are ignored.
	AdvanceMaxExposure(ctx context.Context, fightID, userID uuid.UUID, exposure decimal.Decimal) error
}
