package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PoolState represents the lifecycle state of a pool
type PoolState string

const (
	PoolStateLaunching    PoolState = "launching"
	PoolStateActive       PoolState = "active"
	PoolStateCompleted    PoolState = "completed"
	PoolStateLaunchFailed PoolState = "launch_failed"
)

// IntervalType selects the deposit-collection window length
type IntervalType string

const (
	IntervalTypeWeekly  IntervalType = "weekly"
	IntervalTypeMonthly IntervalType = "monthly"
)

// RaffleDelay is the fixed grace period between a deposit window closing and
// the winner draw for that window becoming eligible.
const RaffleDelay = 72 * time.Hour

// Duration returns the deposit window length for the interval type
func (t IntervalType) Duration() time.Duration {
	if t == IntervalTypeMonthly {
		return 30 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// Valid reports whether t is a known interval type
func (t IntervalType) Valid() bool {
	return t == IntervalTypeWeekly || t == IntervalTypeMonthly
}

// PaymentKey identifies one installment: interval number x participant index
type PaymentKey struct {
	Interval int
	Index    int
}

// Pool is the aggregate holding all settlement state for one rotating-savings
// cycle. Every operation is expressed as a method that validates all of its
// preconditions before touching any field, so a returned error always means
// nothing changed.
type Pool struct {
	ID            int64        `db:"id"`
	Creator       string       `db:"creator"`
	PoolAmount    int64        `db:"pool_amount"` // full payout per raffle
	RequiredCount int          `db:"required_count"`
	AcceptedCount int          `db:"accepted_count"`
	IntervalType  IntervalType `db:"interval_type"`
	State         PoolState    `db:"state"`

	LaunchDeadline     time.Time `db:"launch_deadline"`
	CycleStart         time.Time `db:"cycle_start"`
	CycleEnd           time.Time `db:"cycle_end"`
	NextDepositDue     time.Time `db:"next_deposit_due"`
	NextRaffleEligible time.Time `db:"next_raffle_eligible"`
	CreatedAt          time.Time `db:"created_at"`

	Participants     map[string]*Participant
	Active           *ActiveSet
	Payments         map[PaymentKey]bool
	Won              map[int]bool
	Claimed          map[int]bool
	WinnerByInterval map[int]int
	PendingRaffles   map[uuid.UUID]time.Time
}

// NewPool creates a pool in the launching state. The launch period is the
// admission window measured from now.
func NewPool(creator string, poolAmount int64, requiredCount int, intervalType IntervalType, launchPeriod time.Duration, now time.Time) (*Pool, error) {
	if creator == "" {
		return nil, errors.New("creator identity cannot be empty")
	}
	if requiredCount <= 0 {
		return nil, errors.New("required participant count must be positive")
	}
	if poolAmount <= 0 {
		return nil, errors.New("pool amount must be positive")
	}
	if poolAmount%int64(requiredCount) != 0 {
		return nil, fmt.Errorf("pool amount %d is not divisible by participant count %d", poolAmount, requiredCount)
	}
	if !intervalType.Valid() {
		return nil, fmt.Errorf("unknown interval type %q", intervalType)
	}
	if launchPeriod <= 0 {
		return nil, errors.New("launch period must be positive")
	}

	return &Pool{
		Creator:          creator,
		PoolAmount:       poolAmount,
		RequiredCount:    requiredCount,
		IntervalType:     intervalType,
		State:            PoolStateLaunching,
		LaunchDeadline:   now.Add(launchPeriod),
		CreatedAt:        now,
		Participants:     make(map[string]*Participant),
		Payments:         make(map[PaymentKey]bool),
		Won:              make(map[int]bool),
		Claimed:          make(map[int]bool),
		WinnerByInterval: make(map[int]int),
		PendingRaffles:   make(map[uuid.UUID]time.Time),
	}, nil
}

// DepositShare returns the per-participant installment amount
func (p *Pool) DepositShare() int64 {
	return p.PoolAmount / int64(p.RequiredCount)
}

// IntervalDuration returns the deposit window length
func (p *Pool) IntervalDuration() time.Duration {
	return p.IntervalType.Duration()
}

// IntervalNumber derives the current interval from elapsed time. The raffle
// delay is folded into the boundary so interval N denotes the window during
// which the Nth raffle's deposits are collected. Before the cycle starts the
// interval is 0.
func (p *Pool) IntervalNumber(now time.Time) int {
	if p.CycleStart.IsZero() || now.Before(p.CycleStart) {
		return 0
	}
	elapsed := now.Sub(p.CycleStart) + RaffleDelay
	return int(elapsed / (p.IntervalDuration() + RaffleDelay))
}

// ParticipantByIndex returns the participant holding the given dense index
func (p *Pool) ParticipantByIndex(index int) *Participant {
	for _, record := range p.Participants {
		if record.Index == index {
			return record
		}
	}
	return nil
}

// RequestMembership records an application. Returns false with a nil error
// when the identity is already accepted, which is a no-op rather than a
// failure.
func (p *Pool) RequestMembership(identity string, now time.Time) (bool, error) {
	if identity == "" {
		return false, referentialError("identity cannot be empty")
	}
	if p.State != PoolStateLaunching {
		return false, stateError("membership requests are only accepted while launching, pool is %s", p.State)
	}
	if now.After(p.LaunchDeadline) {
		return false, timingError("launch period ended at %s", p.LaunchDeadline.Format(time.RFC3339))
	}

	if record, ok := p.Participants[identity]; ok {
		switch record.State {
		case ParticipantStateAccepted:
			return false, nil
		case ParticipantStateRejected:
			return false, duplicateError("membership for %s was already rejected", identity)
		default:
			return false, duplicateError("membership for %s was already requested", identity)
		}
	}

	p.Participants[identity] = &Participant{
		Identity:    identity,
		State:       ParticipantStateApplied,
		RequestedAt: now,
	}
	return true, nil
}

// AcceptRequest admits an applied participant and assigns the next dense index
func (p *Pool) AcceptRequest(identity string, now time.Time) (*Participant, error) {
	if identity == "" {
		return nil, referentialError("identity cannot be empty")
	}
	if p.State != PoolStateLaunching {
		return nil, stateError("admissions are only decided while launching, pool is %s", p.State)
	}
	if now.After(p.LaunchDeadline) {
		return nil, timingError("launch period ended at %s", p.LaunchDeadline.Format(time.RFC3339))
	}
	if p.AcceptedCount == p.RequiredCount {
		return nil, stateError("pool already has %d accepted participants", p.RequiredCount)
	}

	record, ok := p.Participants[identity]
	if !ok {
		return nil, referentialError("no membership request from %s", identity)
	}
	if record.State != ParticipantStateApplied {
		return nil, duplicateError("membership for %s already decided: %s", identity, record.State)
	}

	p.AcceptedCount++
	record.Accept(p.AcceptedCount, now)
	return record, nil
}

// RejectRequest declines an applied participant
func (p *Pool) RejectRequest(identity string, now time.Time) error {
	if identity == "" {
		return referentialError("identity cannot be empty")
	}
	if p.State != PoolStateLaunching {
		return stateError("admissions are only decided while launching, pool is %s", p.State)
	}
	if now.After(p.LaunchDeadline) {
		return timingError("launch period ended at %s", p.LaunchDeadline.Format(time.RFC3339))
	}

	record, ok := p.Participants[identity]
	if !ok {
		return referentialError("no membership request from %s", identity)
	}
	if record.State != ParticipantStateApplied {
		return duplicateError("membership for %s already decided: %s", identity, record.State)
	}

	record.Reject(now)
	return nil
}

// FlagUser retires an accepted participant and removes them from future
// raffles. A participant who already paid the given interval cannot be
// flagged for it.
func (p *Pool) FlagUser(identity string, intervalIndex int, now time.Time) error {
	record, ok := p.Participants[identity]
	if !ok {
		return referentialError("unknown participant %s", identity)
	}
	if record.State == ParticipantStateFlagged {
		return duplicateError("participant %s is already flagged", identity)
	}
	if record.State != ParticipantStateAccepted {
		return stateError("participant %s is %s, only accepted participants can be flagged", identity, record.State)
	}
	if intervalIndex > p.IntervalNumber(now) {
		return timingError("interval %d has not elapsed yet", intervalIndex)
	}
	if p.Payments[PaymentKey{Interval: intervalIndex, Index: record.Index}] {
		return stateError("participant %s already paid interval %d", identity, intervalIndex)
	}

	if p.Active != nil {
		p.Active.Remove(record.Index)
	}
	record.Flag()
	return nil
}

// Initialize attempts the Launching -> Active transition once the launch
// deadline has passed. When the pool did not fill, it transitions to
// LaunchFailed and returns false with a nil error: an expected, reportable
// outcome rather than a failure of the operation.
func (p *Pool) Initialize(now time.Time) (bool, error) {
	if p.State != PoolStateLaunching {
		return false, stateError("pool cannot be initialized from state %s", p.State)
	}
	if now.Before(p.LaunchDeadline) {
		return false, timingError("launch period is still open until %s", p.LaunchDeadline.Format(time.RFC3339))
	}

	if p.AcceptedCount != p.RequiredCount {
		p.State = PoolStateLaunchFailed
		return false, nil
	}

	interval := p.IntervalDuration()
	p.CycleStart = now
	p.NextDepositDue = now.Add(interval)
	p.NextRaffleEligible = p.NextDepositDue.Add(RaffleDelay)
	p.CycleEnd = now.Add(time.Duration(p.RequiredCount) * (interval + RaffleDelay))
	p.Active = NewActiveSet(p.RequiredCount)
	p.State = PoolStateActive
	return true, nil
}

// RecordDeposit records the caller's installment for the current interval and
// returns that interval number. The value transfer itself is the service's
// concern.
func (p *Pool) RecordDeposit(identity string, now time.Time) (int, error) {
	record, ok := p.Participants[identity]
	if !ok {
		return 0, referentialError("unknown participant %s", identity)
	}
	if record.State != ParticipantStateAccepted {
		return 0, stateError("participant %s is %s, only accepted participants can deposit", identity, record.State)
	}
	if p.State != PoolStateActive {
		return 0, stateError("deposits are only accepted while active, pool is %s", p.State)
	}
	if now.Before(p.NextDepositDue) {
		return 0, timingError("next deposit window opens at %s", p.NextDepositDue.Format(time.RFC3339))
	}

	interval := p.IntervalNumber(now)
	key := PaymentKey{Interval: interval, Index: record.Index}
	if p.Payments[key] {
		return 0, duplicateError("participant %s already paid interval %d", identity, interval)
	}

	p.Payments[key] = true
	return interval, nil
}

// HasPaid reports whether the identity paid the given interval
func (p *Pool) HasPaid(identity string, intervalIndex int) (bool, error) {
	if intervalIndex < 1 || intervalIndex > p.AcceptedCount {
		return false, referentialError("interval index %d is out of range", intervalIndex)
	}
	record, ok := p.Participants[identity]
	if !ok || record.Index == 0 {
		return false, referentialError("no index assigned to %s", identity)
	}
	return p.Payments[PaymentKey{Interval: intervalIndex, Index: record.Index}], nil
}

// CanRequestRaffle checks the raffle request preconditions without mutating.
// The service consults it before issuing the external randomness request, as
// the correlation token only exists once that request has been made.
func (p *Pool) CanRequestRaffle(now time.Time) error {
	if p.State != PoolStateActive {
		return stateError("raffles can only be requested while active, pool is %s", p.State)
	}
	if now.Before(p.NextRaffleEligible) {
		return timingError("next raffle becomes eligible at %s", p.NextRaffleEligible.Format(time.RFC3339))
	}
	if len(p.PendingRaffles) > 0 {
		return duplicateError("a raffle request is already awaiting randomness")
	}
	return nil
}

// AddRaffleRequest registers an outstanding randomness request under its
// correlation token. At most one request may be in flight.
func (p *Pool) AddRaffleRequest(token uuid.UUID, now time.Time) error {
	if err := p.CanRequestRaffle(now); err != nil {
		return err
	}

	p.PendingRaffles[token] = now
	return nil
}

// SettleRaffle consumes a pending randomness request and draws the winner for
// the interval current at delivery time. The winner index is removed from the
// active set, recorded in the winner-by-interval map, marked as won, and the
// deposit/raffle schedule advances by one interval-plus-delay.
func (p *Pool) SettleRaffle(token uuid.UUID, randomValue uint64, now time.Time) (winnerIndex, interval int, err error) {
	if p.State != PoolStateActive {
		return 0, 0, stateError("raffles can only settle while active, pool is %s", p.State)
	}
	if _, ok := p.PendingRaffles[token]; !ok {
		return 0, 0, referentialError("unknown or already-consumed correlation token %s", token)
	}
	interval = p.IntervalNumber(now)
	if _, taken := p.WinnerByInterval[interval]; taken {
		return 0, 0, duplicateError("interval %d already has a winner", interval)
	}
	if p.Active == nil || p.Active.Len() == 0 {
		return 0, 0, stateError("no eligible participants remain in the active set")
	}

	winnerIndex, err = p.Active.DrawWinner(randomValue)
	if err != nil {
		return 0, 0, err
	}
	delete(p.PendingRaffles, token)
	p.WinnerByInterval[interval] = winnerIndex
	p.Won[winnerIndex] = true

	step := p.IntervalDuration() + RaffleDelay
	p.NextDepositDue = p.NextDepositDue.Add(step)
	p.NextRaffleEligible = p.NextRaffleEligible.Add(step)
	return winnerIndex, interval, nil
}

// Claim settles a won interval for the caller. The returned flag reports
// whether this claim completed the whole cycle, which happens only for the
// final interval once the cycle end has passed.
func (p *Pool) Claim(identity string, intervalIndex int, now time.Time) (completed bool, err error) {
	record, ok := p.Participants[identity]
	if !ok || record.Index == 0 {
		return false, referentialError("no index assigned to %s", identity)
	}
	if !p.Won[record.Index] {
		return false, referentialError("participant %s has not won a raffle", identity)
	}
	if p.Claimed[record.Index] {
		return false, duplicateError("participant %s already claimed", identity)
	}
	if intervalIndex < 1 || intervalIndex > p.RequiredCount {
		return false, referentialError("interval index %d is out of range", intervalIndex)
	}
	if !p.Payments[PaymentKey{Interval: intervalIndex, Index: record.Index}] {
		return false, stateError("participant %s has no recorded payment for interval %d", identity, intervalIndex)
	}

	if intervalIndex == p.RequiredCount && !now.Before(p.CycleEnd) {
		p.State = PoolStateCompleted
		completed = true
	}
	p.Claimed[record.Index] = true
	return completed, nil
}

// CanWithdraw checks the preconditions for the admin residual sweep
func (p *Pool) CanWithdraw(now time.Time) error {
	if p.State != PoolStateCompleted {
		return stateError("residual funds can only be swept once completed, pool is %s", p.State)
	}
	if now.Before(p.CycleEnd) {
		return timingError("cycle runs until %s", p.CycleEnd.Format(time.RFC3339))
	}
	return nil
}

// Clone returns a deep copy of the pool. The service layer snapshots the
// aggregate before mutating so a failed port call or persistence write can
// restore it, keeping every operation all-or-nothing.
func (p *Pool) Clone() *Pool {
	out := *p

	out.Participants = make(map[string]*Participant, len(p.Participants))
	for identity, record := range p.Participants {
		copied := *record
		if record.DecidedAt != nil {
			decidedAt := *record.DecidedAt
			copied.DecidedAt = &decidedAt
		}
		out.Participants[identity] = &copied
	}
	if p.Active != nil {
		out.Active = p.Active.clone()
	}
	out.Payments = make(map[PaymentKey]bool, len(p.Payments))
	for key, paid := range p.Payments {
		out.Payments[key] = paid
	}
	out.Won = make(map[int]bool, len(p.Won))
	for index, won := range p.Won {
		out.Won[index] = won
	}
	out.Claimed = make(map[int]bool, len(p.Claimed))
	for index, claimed := range p.Claimed {
		out.Claimed[index] = claimed
	}
	out.WinnerByInterval = make(map[int]int, len(p.WinnerByInterval))
	for interval, index := range p.WinnerByInterval {
		out.WinnerByInterval[interval] = index
	}
	out.PendingRaffles = make(map[uuid.UUID]time.Time, len(p.PendingRaffles))
	for token, requestedAt := range p.PendingRaffles {
		out.PendingRaffles[token] = requestedAt
	}
	return &out
}
