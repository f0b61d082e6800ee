package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kuri/domain/entities"
	"kuri/domain/events"
	"kuri/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// poolService implements the settlement operations for one pool instance.
// A single mutex serializes every operation, and each mutating operation
// snapshots the aggregate before touching it so a failed port call or
// persistence write restores the pre-operation state.
type poolService struct {
	mu             sync.Mutex
	pool           *entities.Pool
	authz          interfaces.AuthorizationChecker
	funds          interfaces.ValueTransferPort
	randomness     interfaces.RandomnessPort
	poolRepo       interfaces.PoolRepository
	eventPublisher interfaces.EventPublisher
	now            func() time.Time
}

// NewPoolService creates a new pool service around an existing aggregate.
// poolRepo may be nil, in which case snapshots are kept in memory only.
func NewPoolService(
	pool *entities.Pool,
	authz interfaces.AuthorizationChecker,
	funds interfaces.ValueTransferPort,
	randomness interfaces.RandomnessPort,
	poolRepo interfaces.PoolRepository,
	eventPublisher interfaces.EventPublisher,
) interfaces.PoolService {
	return &poolService{
		pool:           pool,
		authz:          authz,
		funds:          funds,
		randomness:     randomness,
		poolRepo:       poolRepo,
		eventPublisher: eventPublisher,
		now:            time.Now,
	}
}

// RequestMembership records an application while the pool is launching
func (s *poolService) RequestMembership(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	applied, err := s.pool.RequestMembership(identity, s.now())
	if err != nil {
		return err
	}
	if !applied {
		// Already accepted; requesting again is a no-op.
		return nil
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	s.publish(events.MembershipRequestedEvent{PoolID: s.pool.ID, Identity: identity})
	return nil
}

// AcceptRequest admits an applicant and assigns the next dense index
func (s *poolService) AcceptRequest(ctx context.Context, principal, identity string) (*entities.Participant, error) {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityAdmin) {
		return nil, entities.NewAuthorizationError("%s lacks the admin capability", principal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	record, err := s.pool.AcceptRequest(identity, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return nil, err
	}

	s.publish(events.MembershipAcceptedEvent{PoolID: s.pool.ID, Identity: identity, Index: record.Index})
	return record, nil
}

// RejectRequest declines an applicant
func (s *poolService) RejectRequest(ctx context.Context, principal, identity string) error {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityAdmin) {
		return entities.NewAuthorizationError("%s lacks the admin capability", principal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	if err := s.pool.RejectRequest(identity, s.now()); err != nil {
		return err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	s.publish(events.MembershipRejectedEvent{PoolID: s.pool.ID, Identity: identity})
	return nil
}

// FlagUser retires an accepted participant and removes them from future raffles
func (s *poolService) FlagUser(ctx context.Context, principal, identity string, intervalIndex int) error {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityAdmin) {
		return entities.NewAuthorizationError("%s lacks the admin capability", principal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	if err := s.pool.FlagUser(identity, intervalIndex, s.now()); err != nil {
		return err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	record := s.pool.Participants[identity]
	s.publish(events.UserFlaggedEvent{
		PoolID:        s.pool.ID,
		Identity:      identity,
		Index:         record.Index,
		IntervalIndex: intervalIndex,
	})
	return nil
}

// Initialize attempts the launch transition after the launch deadline
func (s *poolService) Initialize(ctx context.Context, principal string) (bool, error) {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityInitializer) {
		return false, entities.NewAuthorizationError("%s lacks the initializer capability", principal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	launched, err := s.pool.Initialize(s.now())
	if err != nil {
		return false, err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return false, err
	}

	if !launched {
		log.WithFields(log.Fields{
			"poolID":        s.pool.ID,
			"acceptedCount": s.pool.AcceptedCount,
			"requiredCount": s.pool.RequiredCount,
		}).Warn("pool launch failed, not enough accepted participants")
		s.publish(events.PoolLaunchFailedEvent{
			PoolID:        s.pool.ID,
			AcceptedCount: s.pool.AcceptedCount,
			RequiredCount: s.pool.RequiredCount,
		})
		return false, nil
	}

	log.WithFields(log.Fields{
		"poolID":     s.pool.ID,
		"cycleStart": s.pool.CycleStart,
		"cycleEnd":   s.pool.CycleEnd,
	}).Info("pool activated")
	s.publish(events.PoolInitializedEvent{
		PoolID:             s.pool.ID,
		ParticipantCount:   s.pool.AcceptedCount,
		CycleStart:         s.pool.CycleStart.Unix(),
		CycleEnd:           s.pool.CycleEnd.Unix(),
		NextDepositDue:     s.pool.NextDepositDue.Unix(),
		NextRaffleEligible: s.pool.NextRaffleEligible.Unix(),
		IntervalType:       string(s.pool.IntervalType),
	})
	return true, nil
}

// Deposit collects the caller's installment for the current interval. State
// is mutated and persisted before the value transfer so the external call
// cannot re-enter an uncommitted deposit; a failed transfer restores the
// snapshot.
func (s *poolService) Deposit(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	interval, err := s.pool.RecordDeposit(identity, s.now())
	if err != nil {
		return err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	share := s.pool.DepositShare()
	if err := s.funds.MoveIn(ctx, identity, share); err != nil {
		s.restore(ctx, snapshot)
		return fmt.Errorf("failed to transfer deposit into custody: %w", err)
	}

	record := s.pool.Participants[identity]
	s.publish(events.DepositMadeEvent{
		PoolID:        s.pool.ID,
		Identity:      identity,
		Index:         record.Index,
		IntervalIndex: interval,
		Amount:        share,
	})
	return nil
}

// HasPaid reports whether identity paid the given interval
func (s *poolService) HasPaid(ctx context.Context, identity string, intervalIndex int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pool.HasPaid(identity, intervalIndex)
}

// RequestRaffle issues a randomness request for the next winner draw
func (s *poolService) RequestRaffle(ctx context.Context, principal string) (uuid.UUID, error) {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityAdmin) {
		return uuid.Nil, entities.NewAuthorizationError("%s lacks the admin capability", principal)
	}
	if s.randomness == nil {
		return uuid.Nil, entities.NewStateError("no randomness source is configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.pool.CanRequestRaffle(now); err != nil {
		return uuid.Nil, err
	}

	token, err := s.randomness.Request(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to request randomness: %w", err)
	}

	snapshot := s.pool.Clone()
	if err := s.pool.AddRaffleRequest(token, now); err != nil {
		return uuid.Nil, err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return uuid.Nil, err
	}

	log.WithFields(log.Fields{
		"poolID": s.pool.ID,
		"token":  token,
	}).Info("raffle requested, awaiting randomness")
	return token, nil
}

// DeliverRandomness settles the pending raffle identified by the correlation
// token. It is invoked by the randomness port, asynchronously, at some later
// time; deliveries for unknown or already-consumed tokens are rejected.
func (s *poolService) DeliverRandomness(ctx context.Context, principal string, token uuid.UUID, values []uint64) error {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityRandomnessSubscriber) {
		return entities.NewAuthorizationError("%s lacks the randomness-subscriber capability", principal)
	}
	if len(values) == 0 {
		return entities.NewReferentialError("randomness delivery carried no values")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	winnerIndex, interval, err := s.pool.SettleRaffle(token, values[0], s.now())
	if err != nil {
		return err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	winner := s.pool.ParticipantByIndex(winnerIndex)
	log.WithFields(log.Fields{
		"poolID":      s.pool.ID,
		"winnerIndex": winnerIndex,
		"interval":    interval,
	}).Info("raffle winner selected")
	s.publish(events.WinnerSelectedEvent{
		PoolID:           s.pool.ID,
		CorrelationToken: token,
		WinnerIndex:      winnerIndex,
		WinnerIdentity:   winner.Identity,
		IntervalIndex:    interval,
		RemainingActive:  s.pool.Active.Len(),
	})
	return nil
}

// Claim pays the pooled amount out to a winner who paid the interval
func (s *poolService) Claim(ctx context.Context, identity string, intervalIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.pool.Clone()
	completed, err := s.pool.Claim(identity, intervalIndex, s.now())
	if err != nil {
		return err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}

	if err := s.funds.MoveOut(ctx, identity, s.pool.PoolAmount); err != nil {
		s.restore(ctx, snapshot)
		return fmt.Errorf("failed to transfer claim payout: %w", err)
	}

	if completed {
		log.WithField("poolID", s.pool.ID).Info("final claim settled, pool completed")
	}
	record := s.pool.Participants[identity]
	s.publish(events.SlotClaimedEvent{
		PoolID:        s.pool.ID,
		Identity:      identity,
		Index:         record.Index,
		IntervalIndex: intervalIndex,
		Amount:        s.pool.PoolAmount,
		CycleComplete: completed,
	})
	return nil
}

// Withdraw sweeps the residual custody balance after completion
func (s *poolService) Withdraw(ctx context.Context, principal string) (int64, error) {
	if !s.authz.Authorize(ctx, principal, interfaces.CapabilityAdmin) {
		return 0, entities.NewAuthorizationError("%s lacks the admin capability", principal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pool.CanWithdraw(s.now()); err != nil {
		return 0, err
	}

	balance, err := s.funds.BalanceOf(ctx, interfaces.CustodyHolder)
	if err != nil {
		return 0, fmt.Errorf("failed to read custody balance: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}
	if err := s.funds.MoveOut(ctx, principal, balance); err != nil {
		return 0, fmt.Errorf("failed to sweep custody balance: %w", err)
	}

	s.publish(events.FundsWithdrawnEvent{PoolID: s.pool.ID, Admin: principal, Amount: balance})
	return balance, nil
}

// Pool returns a deep copy of the current aggregate for read-only use
func (s *poolService) Pool() *entities.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pool.Clone()
}

// persist writes the mutated aggregate through to storage, restoring the
// snapshot when the write fails so the operation stays all-or-nothing
func (s *poolService) persist(ctx context.Context, snapshot *entities.Pool) error {
	if s.poolRepo == nil {
		return nil
	}
	if err := s.poolRepo.Save(ctx, s.pool); err != nil {
		s.pool = snapshot
		return fmt.Errorf("failed to persist pool snapshot: %w", err)
	}
	return nil
}

// restore rolls the aggregate back to the snapshot after a failed port call.
// The rolled-back state is re-persisted on a best-effort basis; a failure
// here leaves storage one operation ahead of memory and is logged for
// operator attention.
func (s *poolService) restore(ctx context.Context, snapshot *entities.Pool) {
	s.pool = snapshot
	if s.poolRepo == nil {
		return
	}
	if err := s.poolRepo.Save(ctx, s.pool); err != nil {
		log.WithError(err).WithField("poolID", s.pool.ID).Error("failed to persist rolled-back pool snapshot")
	}
}

func (s *poolService) publish(event events.Event) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(event); err != nil {
		log.WithError(err).WithField("eventType", event.Type()).Error("failed to publish event")
	}
}
