package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arena/internal/domain/fight"
	"arena/pkg/logger"
)

// recordingSettler records which fights fired
type recordingSettler struct {
	mu    sync.Mutex
	fired []uuid.UUID
	done  chan struct{}
}

func newRecordingSettler(expect int) *recordingSettler {
	return &recordingSettler{done: make(chan struct{}, expect)}
}

func (s *recordingSettler) SettleFight(ctx context.Context, fightID uuid.UUID, trigger string) error {
	s.mu.Lock()
	s.fired = append(s.fired, fightID)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *recordingSettler) firedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.fired))
	copy(out, s.fired)
	return out
}

func liveFightEndingIn(remaining time.Duration) *fight.Fight {
	// Deadline lands `remaining` from now for a 1 minute fight
	started := time.Now().Add(-time.Minute).Add(remaining)
	return &fight.Fight{
		ID:              uuid.New(),
		Status:          fight.StatusLive,
		DurationMinutes: 1,
		StartedAt:       &started,
	}
}

func TestTimerRegistry_FiresAfterDeadlinePlusBuffer(t *testing.T) {
	settler := newRecordingSettler(1)
	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{}, nil)

	registry := NewTimerRegistry(settler, fights, 20*time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))
	defer registry.Stop()

	f := liveFightEndingIn(30 * time.Millisecond)
	registry.Arm(f)
	assert.Equal(t, 1, registry.Armed())

	select {
	case <-settler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	assert.Equal(t, []uuid.UUID{f.ID}, settler.firedIDs())
	assert.Equal(t, 0, registry.Armed())
}

func TestTimerRegistry_OverdueFightFiresImmediately(t *testing.T) {
	settler := newRecordingSettler(1)
	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{}, nil)

	registry := NewTimerRegistry(settler, fights, time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))
	defer registry.Stop()

	registry.Arm(liveFightEndingIn(-time.Hour))

	select {
	case <-settler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue fight did not fire")
	}
}

func TestTimerRegistry_StartRearmsLiveFights(t *testing.T) {
	settler := newRecordingSettler(2)
	f1 := liveFightEndingIn(10 * time.Millisecond)
	f2 := liveFightEndingIn(15 * time.Millisecond)

	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{f1, f2}, nil)

	registry := NewTimerRegistry(settler, fights, time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))
	defer registry.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-settler.done:
		case <-time.After(2 * time.Second):
			t.Fatal("rearmed fight did not fire")
		}
	}

	assert.ElementsMatch(t, []uuid.UUID{f1.ID, f2.ID}, settler.firedIDs())
}

func TestTimerRegistry_DisarmCancelsTimer(t *testing.T) {
	settler := newRecordingSettler(1)
	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{}, nil)

	registry := NewTimerRegistry(settler, fights, 50*time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))
	defer registry.Stop()

	f := liveFightEndingIn(50 * time.Millisecond)
	registry.Arm(f)
	registry.Disarm(f.ID)
	assert.Equal(t, 0, registry.Armed())

	select {
	case <-settler.done:
		t.Fatal("disarmed timer fired")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestTimerRegistry_StopCancelsPendingTimers(t *testing.T) {
	settler := newRecordingSettler(1)
	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{}, nil)

	registry := NewTimerRegistry(settler, fights, 50*time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))

	registry.Arm(liveFightEndingIn(50 * time.Millisecond))
	registry.Stop()

	select {
	case <-settler.done:
		t.Fatal("timer fired after stop")
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 0, registry.Armed())
}

func TestTimerRegistry_RearmResetsExistingTimer(t *testing.T) {
	settler := newRecordingSettler(2)
	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{}, nil)

	registry := NewTimerRegistry(settler, fights, 10*time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))
	defer registry.Stop()

	f := liveFightEndingIn(20 * time.Millisecond)
	registry.Arm(f)
	registry.Arm(f)
	assert.Equal(t, 1, registry.Armed())

	select {
	case <-settler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	// Only one settlement attempt despite double arm
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, settler.firedIDs(), 1)
}

func TestTimerRegistry_UnstartedFightIsNotArmed(t *testing.T) {
	settler := newRecordingSettler(1)
	fights := new(MockFightRepository)
	fights.On("GetByStatus", mock.Anything, fight.StatusLive).Return([]*fight.Fight{}, nil)

	registry := NewTimerRegistry(settler, fights, time.Millisecond, logger.Get())
	require.NoError(t, registry.Start(context.Background()))
	defer registry.Stop()

	registry.Arm(&fight.Fight{ID: uuid.New(), Status: fight.StatusWaiting, DurationMinutes: 30})
	assert.Equal(t, 0, registry.Armed())
}
