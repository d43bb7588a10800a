package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"arena/internal/domain/fight"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// fireTimeout bounds a single timer-triggered settlement attempt.
// A fight that cannot settle in this window is left to the sweep.
const fireTimeout = 2 * time.Minute

// Settler fires one settlement attempt. Implemented by Coordinator.
type Settler interface {
	SettleFight(ctx context.Context, fightID uuid.UUID, trigger string) error
}

// TimerRegistry keeps one timer per live fight, firing settlement at
// deadline plus buffer. Timers are the low-latency path; the
// reconciliation sweep remains the correctness backstop, so a missed
// or failed timer is never fatal.
type TimerRegistry struct {
	settler Settler
	fights  fight.Repository
	buffer  time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewTimerRegistry creates a timer registry.
func NewTimerRegistry(settler Settler, fights fight.Repository, buffer time.Duration, log *logger.Logger) *TimerRegistry {
	return &TimerRegistry{
		settler: settler,
		fights:  fights,
		buffer:  buffer,
		log:     log,
		timers:  make(map[uuid.UUID]*time.Timer),
	}
}

// Start re-arms timers for every live fight. Called once at boot so
// fights that went live under a previous process keep their timers.
func (r *TimerRegistry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true
	r.mu.Unlock()

	live, err := r.fights.GetByStatus(ctx, fight.StatusLive)
	if err != nil {
		return errors.Wrap(err, "failed to load live fights")
	}

	for _, f := range live {
		r.Arm(f)
	}

	r.log.Infow("Settlement timers armed", "count", len(live))
	return nil
}

// Stop cancels all pending timers. In-flight settlements finish on
// their own deadline.
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.started = false
}

// Arm schedules settlement for one live fight. Re-arming an already
// armed fight resets its timer. Overdue fights fire immediately.
func (r *TimerRegistry) Arm(f *fight.Fight) {
	deadline, ok := f.Deadline()
	if !ok {
		r.log.Warnw("Cannot arm timer for fight without start time", "fight_id", f.ID.String())
		return
	}

	fireAt := deadline.Add(r.buffer)
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		r.log.Warnw("Timer registry not started, fight left to sweep", "fight_id", f.ID.String())
		return
	}

	if existing, ok := r.timers[f.ID]; ok {
		existing.Stop()
	}

	id := f.ID
	r.timers[id] = time.AfterFunc(delay, func() {
		r.fire(id)
	})

	r.log.Debugw("Settlement timer armed",
		"fight_id", id.String(),
		"fire_at", fireAt,
	)
}

// Disarm drops the timer for a fight, if any.
func (r *TimerRegistry) Disarm(fightID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[fightID]; ok {
		t.Stop()
		delete(r.timers, fightID)
	}
}

// Armed returns the number of pending timers.
func (r *TimerRegistry) Armed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *TimerRegistry) fire(fightID uuid.UUID) {
	r.mu.Lock()
	delete(r.timers, fightID)
	ctx := r.ctx
	r.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	fireCtx, cancel := context.WithTimeout(ctx, fireTimeout)
	defer cancel()

	if err := r.settler.SettleFight(fireCtx, fightID, "timer"); err != nil {
		// The sweep retries anything the timer could not finish
		r.log.Errorw("Timer settlement failed",
			"fight_id", fightID.String(),
			"error", err,
		)
	}
}
