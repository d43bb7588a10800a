package settlement

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"arena/internal/domain/fight"
)

// Lease is the exclusive right to settle one fight. Acquisition is a
// conditional update on the fight row itself, so two settlers racing
// for the same fight resolve at the database without coordination.
//
// A lease is not renewed. Either the holder commits within the TTL or
// the lease goes stale and any settler may take it over.
type Lease struct {
	repo   fight.Repository
	holder string
	ttl    time.Duration
	now    func() time.Time
}

// NewLease creates a lease manager identified by holder.
func NewLease(repo fight.Repository, holder string, ttl time.Duration) *Lease {
	return &Lease{
		repo:   repo,
		holder: holder,
		ttl:    ttl,
		now:    time.Now,
	}
}

// DefaultHolder builds a holder identity unique to this process.
func DefaultHolder() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}

// Acquire attempts to take the settlement lease for the fight. Returns
// false when another holder owns a fresh lease or the fight is no
// longer live. A lease older than the TTL counts as abandoned and is
// taken over.
func (l *Lease) Acquire(ctx context.Context, fightID uuid.UUID) (bool, error) {
	return l.repo.TryAcquireSettlement(ctx, fightID, l.holder, l.now(), l.ttl)
}

// Release gives the lease back without settling. Only clears the lock
// when this holder still owns it, so releasing after losing a race is
// harmless.
func (l *Lease) Release(ctx context.Context, fightID uuid.UUID) error {
	return l.repo.ReleaseSettlement(ctx, fightID, l.holder)
}

// Holder returns this process's lease identity.
func (l *Lease) Holder() string {
	return l.holder
}

// TTL returns the lease time-to-live.
func (l *Lease) TTL() time.Duration {
	return l.ttl
}
