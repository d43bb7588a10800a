package fight

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arena/internal/domain/fight"
	"arena/internal/events"
	"arena/internal/metrics"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// Timers arms the real-time settlement path for live fights.
// Satisfied by settlement.TimerRegistry.
type Timers interface {
	Arm(f *fight.Fight)
	Disarm(fightID uuid.UUID)
}

// EventPublisher announces lifecycle transitions downstream.
type EventPublisher interface {
	PublishFightStarted(ctx context.Context, event *events.FightStarted) error
	PublishFightCancelled(ctx context.Context, event *events.FightCancelled) error
}

// Service handles the fight lifecycle up to LIVE: create, join, cancel.
// Everything after the deadline belongs to the settlement coordinator.
type Service struct {
	fights       fight.Repository
	participants fight.ParticipantRepository

	// Optional. Missing timers just means the sweep settles the fight.
	timers    Timers
	publisher EventPublisher

	log *logger.Logger
	now func() time.Time
}

// NewService creates a new fight lifecycle service
func NewService(
	fights fight.Repository,
	participants fight.ParticipantRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		fights:       fights,
		participants: participants,
		log:          log,
		now:          time.Now,
	}
}

// WithTimers attaches the real-time settlement timer registry.
func (s *Service) WithTimers(timers Timers) *Service {
	s.timers = timers
	return s
}

// WithPublisher attaches the lifecycle event publisher.
func (s *Service) WithPublisher(pub EventPublisher) *Service {
	s.publisher = pub
	return s
}

// CreateFightParams contains parameters for opening a new fight
type CreateFightParams struct {
	CreatorID        uuid.UUID
	DurationMinutes  int
	InitialPositions map[string]fight.PositionSnapshot
}

// CreateFight opens a WAITING fight with the creator in slot A. The
// fight and participant rows are written atomically; a fight is never
// observable without its creator.
func (s *Service) CreateFight(ctx context.Context, params CreateFightParams) (*fight.Fight, error) {
	if params.CreatorID == uuid.Nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "creator id is required")
	}
	if params.DurationMinutes <= 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "duration must be positive")
	}

	now := s.now().UTC()

	f := &fight.Fight{
		ID:              uuid.New(),
		Status:          fight.StatusWaiting,
		DurationMinutes: params.DurationMinutes,
		CreatedAt:       now,
	}

	creator := &fight.Participant{
		FightID:         f.ID,
		UserID:          params.CreatorID,
		Slot:            fight.SlotA,
		MaxExposureUsed: decimal.Zero,
		JoinedAt:        now,
	}
	if err := creator.SetInitialPositions(params.InitialPositions); err != nil {
		return nil, errors.Wrap(err, "failed to snapshot creator positions")
	}

	if err := s.fights.Create(ctx, f, creator); err != nil {
		return nil, errors.Wrap(err, "failed to create fight")
	}

	s.log.Infow("Fight created",
		"fight_id", f.ID,
		"creator_id", params.CreatorID,
		"duration_minutes", params.DurationMinutes,
	)

	return f, nil
}

// JoinFightParams contains parameters for joining a waiting fight
type JoinFightParams struct {
	FightID          uuid.UUID
	UserID           uuid.UUID
	InitialPositions map[string]fight.PositionSnapshot
}

// JoinFight puts the second participant in slot B and takes the fight
// LIVE, stamping started_at. The status flip and the participant row
// commit together, so two concurrent joiners cannot both get in: the
// loser reads ErrFightNotJoinable.
func (s *Service) JoinFight(ctx context.Context, params JoinFightParams) (*fight.Fight, error) {
	if params.UserID == uuid.Nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}

	f, err := s.fights.GetByID(ctx, params.FightID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fight")
	}
	if f.Status != fight.StatusWaiting {
		return nil, errors.Wrapf(errors.ErrFightNotJoinable, "fight %s is %s", f.ID, f.Status)
	}

	creator, err := s.creatorOf(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if creator.UserID == params.UserID {
		return nil, errors.Wrapf(errors.ErrSelfJoin, "fight %s", f.ID)
	}

	startedAt := s.now().UTC()

	joiner := &fight.Participant{
		FightID:         f.ID,
		UserID:          params.UserID,
		Slot:            fight.SlotB,
		MaxExposureUsed: decimal.Zero,
		JoinedAt:        startedAt,
	}
	if err := joiner.SetInitialPositions(params.InitialPositions); err != nil {
		return nil, errors.Wrap(err, "failed to snapshot joiner positions")
	}

	if err := s.fights.Join(ctx, f.ID, joiner, startedAt); err != nil {
		return nil, errors.Wrap(err, "failed to join fight")
	}

	f.Status = fight.StatusLive
	f.StartedAt = &startedAt

	metrics.FightsStarted.Inc()

	if s.timers != nil {
		s.timers.Arm(f)
	}

	if s.publisher != nil {
		event := &events.FightStarted{
			FightID:         f.ID.String(),
			UserAID:         creator.UserID.String(),
			UserBID:         params.UserID.String(),
			DurationMinutes: f.DurationMinutes,
			StartedAt:       startedAt,
		}
		if err := s.publisher.PublishFightStarted(ctx, event); err != nil {
			s.log.Errorw("Failed to publish fight started event", "fight_id", f.ID, "error", err)
		}
	}

	s.log.Infow("Fight started",
		"fight_id", f.ID,
		"user_a", creator.UserID,
		"user_b", params.UserID,
		"duration_minutes", f.DurationMinutes,
	)

	return f, nil
}

// CancelFight withdraws a WAITING fight. Only the creator can cancel,
// and only before an opponent joins; a LIVE fight runs to settlement.
func (s *Service) CancelFight(ctx context.Context, fightID, userID uuid.UUID) error {
	f, err := s.fights.GetByID(ctx, fightID)
	if err != nil {
		return errors.Wrap(err, "failed to get fight")
	}

	creator, err := s.creatorOf(ctx, f.ID)
	if err != nil {
		return err
	}
	if creator.UserID != userID {
		return errors.Wrapf(errors.ErrInvalidInput, "user %s did not create fight %s", userID, fightID)
	}

	if err := s.fights.Cancel(ctx, fightID); err != nil {
		return errors.Wrap(err, "failed to cancel fight")
	}

	metrics.FightsCancelled.Inc()

	if s.timers != nil {
		s.timers.Disarm(fightID)
	}

	if s.publisher != nil {
		event := &events.FightCancelled{
			FightID:     fightID.String(),
			CancelledAt: s.now().UTC(),
		}
		if err := s.publisher.PublishFightCancelled(ctx, event); err != nil {
			s.log.Errorw("Failed to publish fight cancelled event", "fight_id", fightID, "error", err)
		}
	}

	s.log.Infow("Fight cancelled", "fight_id", fightID, "creator_id", userID)

	return nil
}

// GetFight returns a fight with both participants (one while WAITING).
func (s *Service) GetFight(ctx context.Context, fightID uuid.UUID) (*fight.Fight, []*fight.Participant, error) {
	f, err := s.fights.GetByID(ctx, fightID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get fight")
	}

	participants, err := s.participants.GetByFight(ctx, fightID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get participants")
	}

	return f, participants, nil
}

// creatorOf returns the slot A participant.
func (s *Service) creatorOf(ctx context.Context, fightID uuid.UUID) (*fight.Participant, error) {
	participants, err := s.participants.GetByFight(ctx, fightID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get participants")
	}
	for _, p := range participants {
		if p.Slot == fight.SlotA {
			return p, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrParticipantNotFound, "fight %s has no creator", fightID)
}
