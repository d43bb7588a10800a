package fight

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arena/internal/domain/fight"
	"arena/internal/events"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// MockFightRepository is a mock for fight.Repository
type MockFightRepository struct {
	mock.Mock
}

func (m *MockFightRepository) Create(ctx context.Context, f *fight.Fight, creator *fight.Participant) error {
	args := m.Called(ctx, f, creator)
	return args.Error(0)
}

func (m *MockFightRepository) GetByID(ctx context.Context, id uuid.UUID) (*fight.Fight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fight.Fight), args.Error(1)
}

func (m *MockFightRepository) GetByStatus(ctx context.Context, status fight.Status) ([]*fight.Fight, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fight.Fight), args.Error(1)
}

func (m *MockFightRepository) GetSettleCandidates(ctx context.Context, buffer time.Duration, limit int) ([]*fight.Fight, error) {
	args := m.Called(ctx, buffer, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fight.Fight), args.Error(1)
}

func (m *MockFightRepository) Join(ctx context.Context, id uuid.UUID, joiner *fight.Participant, startedAt time.Time) error {
	args := m.Called(ctx, id, joiner, startedAt)
	return args.Error(0)
}

func (m *MockFightRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFightRepository) TryAcquireSettlement(ctx context.Context, id uuid.UUID, holder string, now time.Time, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, id, holder, now, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockFightRepository) ReleaseSettlement(ctx context.Context, id uuid.UUID, holder string) error {
	args := m.Called(ctx, id, holder)
	return args.Error(0)
}

func (m *MockFightRepository) CommitSettlement(ctx context.Context, commit *fight.SettlementCommit) error {
	args := m.Called(ctx, commit)
	return args.Error(0)
}

// MockParticipantRepository is a mock for fight.ParticipantRepository
type MockParticipantRepository struct {
	mock.Mock
}

func (m *MockParticipantRepository) Get(ctx context.Context, fightID, userID uuid.UUID) (*fight.Participant, error) {
	args := m.Called(ctx, fightID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fight.Participant), args.Error(1)
}

func (m *MockParticipantRepository) GetByFight(ctx context.Context, fightID uuid.UUID) ([]*fight.Participant, error) {
	args := m.Called(ctx, fightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fight.Participant), args.Error(1)
}

func (m *MockParticipantRepository) AdvanceMaxExposure(ctx context.Context, fightID, userID uuid.UUID, exposure decimal.Decimal) error {
	args := m.Called(ctx, fightID, userID, exposure)
	return args.Error(0)
}

// fakeTimers records arm/disarm calls.
type fakeTimers struct {
	armed    []uuid.UUID
	disarmed []uuid.UUID
}

func (t *fakeTimers) Arm(f *fight.Fight) {
	t.armed = append(t.armed, f.ID)
}

func (t *fakeTimers) Disarm(fightID uuid.UUID) {
	t.disarmed = append(t.disarmed, fightID)
}

// fakePublisher records lifecycle events.
type fakePublisher struct {
	started   []*events.FightStarted
	cancelled []*events.FightCancelled
	err       error
}

func (p *fakePublisher) PublishFightStarted(ctx context.Context, event *events.FightStarted) error {
	p.started = append(p.started, event)
	return p.err
}

func (p *fakePublisher) PublishFightCancelled(ctx context.Context, event *events.FightCancelled) error {
	p.cancelled = append(p.cancelled, event)
	return p.err
}

type fixture struct {
	fights       *MockFightRepository
	participants *MockParticipantRepository
	timers       *fakeTimers
	publisher    *fakePublisher
	svc          *Service
}

func newFixture() *fixture {
	fx := &fixture{
		fights:       &MockFightRepository{},
		participants: &MockParticipantRepository{},
		timers:       &fakeTimers{},
		publisher:    &fakePublisher{},
	}
	fx.svc = NewService(fx.fights, fx.participants, logger.Get()).
		WithTimers(fx.timers).
		WithPublisher(fx.publisher)
	return fx
}

func waitingFight(creatorID uuid.UUID) (*fight.Fight, *fight.Participant) {
	f := &fight.Fight{
		ID:              uuid.New(),
		Status:          fight.StatusWaiting,
		DurationMinutes: 30,
		CreatedAt:       time.Now().UTC().Add(-time.Minute),
	}
	creator := &fight.Participant{
		FightID:         f.ID,
		UserID:          creatorID,
		Slot:            fight.SlotA,
		MaxExposureUsed: decimal.Zero,
		JoinedAt:        f.CreatedAt,
	}
	return f, creator
}

func TestCreateFight(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesWaitingFightWithCreatorInSlotA", func(t *testing.T) {
		fx := newFixture()
		creatorID := uuid.New()

		fx.fights.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)

		f, err := fx.svc.CreateFight(ctx, CreateFightParams{
			CreatorID:       creatorID,
			DurationMinutes: 60,
			InitialPositions: map[string]fight.PositionSnapshot{
				"BTCUSDT": {Amount: decimal.RequireFromString("0.5"), EntryPrice: decimal.RequireFromString("64000")},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, fight.StatusWaiting, f.Status)
		assert.Equal(t, 60, f.DurationMinutes)
		assert.Nil(t, f.StartedAt)

		creator := fx.fights.Calls[0].Arguments.Get(2).(*fight.Participant)
		assert.Equal(t, f.ID, creator.FightID)
		assert.Equal(t, creatorID, creator.UserID)
		assert.Equal(t, fight.SlotA, creator.Slot)
		assert.True(t, creator.MaxExposureUsed.IsZero())

		snapshot, err := creator.ParseInitialPositions()
		require.NoError(t, err)
		assert.Equal(t, "0.5", snapshot["BTCUSDT"].Amount.String())
	})

	t.Run("RejectsMissingCreator", func(t *testing.T) {
		fx := newFixture()

		_, err := fx.svc.CreateFight(ctx, CreateFightParams{DurationMinutes: 30})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		fx.fights.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RejectsNonPositiveDuration", func(t *testing.T) {
		fx := newFixture()

		_, err := fx.svc.CreateFight(ctx, CreateFightParams{CreatorID: uuid.New(), DurationMinutes: 0})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))

		_, err = fx.svc.CreateFight(ctx, CreateFightParams{CreatorID: uuid.New(), DurationMinutes: -5})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	})
}

func TestJoinFight(t *testing.T) {
	ctx := context.Background()

	t.Run("TakesFightLiveAndArmsTimer", func(t *testing.T) {
		fx := newFixture()
		creatorID := uuid.New()
		joinerID := uuid.New()
		f, creator := waitingFight(creatorID)

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)
		fx.fights.On("Join", ctx, f.ID, mock.Anything, mock.Anything).Return(nil)

		joined, err := fx.svc.JoinFight(ctx, JoinFightParams{FightID: f.ID, UserID: joinerID})
		require.NoError(t, err)

		assert.Equal(t, fight.StatusLive, joined.Status)
		require.NotNil(t, joined.StartedAt)

		var joiner *fight.Participant
		for _, call := range fx.fights.Calls {
			if call.Method == "Join" {
				joiner = call.Arguments.Get(2).(*fight.Participant)
			}
		}
		require.NotNil(t, joiner)
		assert.Equal(t, joinerID, joiner.UserID)
		assert.Equal(t, fight.SlotB, joiner.Slot)

		assert.Equal(t, []uuid.UUID{f.ID}, fx.timers.armed)

		require.Len(t, fx.publisher.started, 1)
		event := fx.publisher.started[0]
		assert.Equal(t, f.ID.String(), event.FightID)
		assert.Equal(t, creatorID.String(), event.UserAID)
		assert.Equal(t, joinerID.String(), event.UserBID)
		assert.Equal(t, 30, event.DurationMinutes)
	})

	t.Run("RejectsCreatorJoiningOwnFight", func(t *testing.T) {
		fx := newFixture()
		creatorID := uuid.New()
		f, creator := waitingFight(creatorID)

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)

		_, err := fx.svc.JoinFight(ctx, JoinFightParams{FightID: f.ID, UserID: creatorID})
		assert.True(t, errors.Is(err, errors.ErrSelfJoin))
		fx.fights.AssertNotCalled(t, "Join", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, fx.timers.armed)
	})

	t.Run("RejectsLiveFight", func(t *testing.T) {
		fx := newFixture()
		f, _ := waitingFight(uuid.New())
		f.Status = fight.StatusLive

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)

		_, err := fx.svc.JoinFight(ctx, JoinFightParams{FightID: f.ID, UserID: uuid.New()})
		assert.True(t, errors.Is(err, errors.ErrFightNotJoinable))
	})

	t.Run("LosingJoinRaceSurfacesNotJoinable", func(t *testing.T) {
		fx := newFixture()
		f, creator := waitingFight(uuid.New())

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)
		fx.fights.On("Join", ctx, f.ID, mock.Anything, mock.Anything).
			Return(errors.Wrapf(errors.ErrFightNotJoinable, "fight %s", f.ID))

		_, err := fx.svc.JoinFight(ctx, JoinFightParams{FightID: f.ID, UserID: uuid.New()})
		assert.True(t, errors.Is(err, errors.ErrFightNotJoinable))
		assert.Empty(t, fx.timers.armed)
		assert.Empty(t, fx.publisher.started)
	})

	t.Run("PublishFailureDoesNotFailJoin", func(t *testing.T) {
		fx := newFixture()
		fx.publisher.err = errors.New("kafka down")
		f, creator := waitingFight(uuid.New())

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)
		fx.fights.On("Join", ctx, f.ID, mock.Anything, mock.Anything).Return(nil)

		_, err := fx.svc.JoinFight(ctx, JoinFightParams{FightID: f.ID, UserID: uuid.New()})
		assert.NoError(t, err)
		assert.Equal(t, []uuid.UUID{f.ID}, fx.timers.armed)
	})
}

func TestCancelFight(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatorCancelsWaitingFight", func(t *testing.T) {
		fx := newFixture()
		creatorID := uuid.New()
		f, creator := waitingFight(creatorID)

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)
		fx.fights.On("Cancel", ctx, f.ID).Return(nil)

		err := fx.svc.CancelFight(ctx, f.ID, creatorID)
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{f.ID}, fx.timers.disarmed)
		require.Len(t, fx.publisher.cancelled, 1)
		assert.Equal(t, f.ID.String(), fx.publisher.cancelled[0].FightID)
	})

	t.Run("NonCreatorCannotCancel", func(t *testing.T) {
		fx := newFixture()
		f, creator := waitingFight(uuid.New())

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)

		err := fx.svc.CancelFight(ctx, f.ID, uuid.New())
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		fx.fights.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
	})

	t.Run("StartedFightIsNotCancellable", func(t *testing.T) {
		fx := newFixture()
		creatorID := uuid.New()
		f, creator := waitingFight(creatorID)

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)
		fx.fights.On("Cancel", ctx, f.ID).
			Return(errors.Wrapf(errors.ErrFightNotCancellable, "fight %s", f.ID))

		err := fx.svc.CancelFight(ctx, f.ID, creatorID)
		assert.True(t, errors.Is(err, errors.ErrFightNotCancellable))
		assert.Empty(t, fx.publisher.cancelled)
	})
}

func TestGetFight(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsFightWithParticipants", func(t *testing.T) {
		fx := newFixture()
		f, creator := waitingFight(uuid.New())

		fx.fights.On("GetByID", ctx, f.ID).Return(f, nil)
		fx.participants.On("GetByFight", ctx, f.ID).Return([]*fight.Participant{creator}, nil)

		got, participants, err := fx.svc.GetFight(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, f.ID, got.ID)
		require.Len(t, participants, 1)
		assert.Equal(t, creator.UserID, participants[0].UserID)
	})

	t.Run("UnknownFight", func(t *testing.T) {
		fx := newFixture()
		id := uuid.New()

		fx.fights.On("GetByID", ctx, id).Return(nil, errors.Wrapf(errors.ErrFightNotFound, "fight %s", id))

		_, _, err := fx.svc.GetFight(ctx, id)
		assert.True(t, errors.Is(err, errors.ErrFightNotFound))
	})
}
