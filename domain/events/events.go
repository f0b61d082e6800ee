package events

import "github.com/google/uuid"

// EventType represents different types of observability signals in the system
type EventType string

const (
	EventTypePoolInitialized     EventType = "pool_initialized"
	EventTypePoolLaunchFailed    EventType = "pool_launch_failed"
	EventTypeMembershipRequested EventType = "membership_requested"
	EventTypeMembershipAccepted  EventType = "membership_accepted"
	EventTypeMembershipRejected  EventType = "membership_rejected"
	EventTypeUserFlagged         EventType = "user_flagged"
	EventTypeDepositMade         EventType = "deposit_made"
	EventTypeWinnerSelected      EventType = "winner_selected"
	EventTypeSlotClaimed         EventType = "slot_claimed"
	EventTypeFundsWithdrawn      EventType = "funds_withdrawn"
)

// Event is the base interface for all events. Events are fire-and-forget
// signals mirrored into the external indexer; nothing in the settlement flow
// reads them back.
type Event interface {
	Type() EventType
}

// PoolInitializedEvent signals a successful Launching -> Active transition
type PoolInitializedEvent struct {
	PoolID             int64  `json:"pool_id"`
	ParticipantCount   int    `json:"participant_count"`
	CycleStart         int64  `json:"cycle_start"`
	CycleEnd           int64  `json:"cycle_end"`
	NextDepositDue     int64  `json:"next_deposit_due"`
	NextRaffleEligible int64  `json:"next_raffle_eligible"`
	IntervalType       string `json:"interval_type"`
}

func (e PoolInitializedEvent) Type() EventType {
	return EventTypePoolInitialized
}

// PoolLaunchFailedEvent signals that the launch deadline passed without a
// full pool
type PoolLaunchFailedEvent struct {
	PoolID        int64 `json:"pool_id"`
	AcceptedCount int   `json:"accepted_count"`
	RequiredCount int   `json:"required_count"`
}

func (e PoolLaunchFailedEvent) Type() EventType {
	return EventTypePoolLaunchFailed
}

// MembershipRequestedEvent signals a new membership application
type MembershipRequestedEvent struct {
	PoolID   int64  `json:"pool_id"`
	Identity string `json:"identity"`
}

func (e MembershipRequestedEvent) Type() EventType {
	return EventTypeMembershipRequested
}

// MembershipAcceptedEvent signals an admitted participant and its index
type MembershipAcceptedEvent struct {
	PoolID   int64  `json:"pool_id"`
	Identity string `json:"identity"`
	Index    int    `json:"index"`
}

func (e MembershipAcceptedEvent) Type() EventType {
	return EventTypeMembershipAccepted
}

// MembershipRejectedEvent signals a declined application
type MembershipRejectedEvent struct {
	PoolID   int64  `json:"pool_id"`
	Identity string `json:"identity"`
}

func (e MembershipRejectedEvent) Type() EventType {
	return EventTypeMembershipRejected
}

// UserFlaggedEvent signals an accepted participant retired by an admin
type UserFlaggedEvent struct {
	PoolID        int64  `json:"pool_id"`
	Identity      string `json:"identity"`
	Index         int    `json:"index"`
	IntervalIndex int    `json:"interval_index"`
}

func (e UserFlaggedEvent) Type() EventType {
	return EventTypeUserFlagged
}

// DepositMadeEvent signals a recorded installment
type DepositMadeEvent struct {
	PoolID        int64  `json:"pool_id"`
	Identity      string `json:"identity"`
	Index         int    `json:"index"`
	IntervalIndex int    `json:"interval_index"`
	Amount        int64  `json:"amount"`
}

func (e DepositMadeEvent) Type() EventType {
	return EventTypeDepositMade
}

// WinnerSelectedEvent signals a settled raffle
type WinnerSelectedEvent struct {
	PoolID           int64     `json:"pool_id"`
	CorrelationToken uuid.UUID `json:"correlation_token"`
	WinnerIndex      int       `json:"winner_index"`
	WinnerIdentity   string    `json:"winner_identity"`
	IntervalIndex    int       `json:"interval_index"`
	RemainingActive  int       `json:"remaining_active"`
}

func (e WinnerSelectedEvent) Type() EventType {
	return EventTypeWinnerSelected
}

// SlotClaimedEvent signals a settled claim payout
type SlotClaimedEvent struct {
	PoolID        int64  `json:"pool_id"`
	Identity      string `json:"identity"`
	Index         int    `json:"index"`
	IntervalIndex int    `json:"interval_index"`
	Amount        int64  `json:"amount"`
	CycleComplete bool   `json:"cycle_complete"`
}

func (e SlotClaimedEvent) Type() EventType {
	return EventTypeSlotClaimed
}

// FundsWithdrawnEvent signals the admin residual sweep after completion
type FundsWithdrawnEvent struct {
	PoolID int64  `json:"pool_id"`
	Admin  string `json:"admin"`
	Amount int64  `json:"amount"`
}

func (e FundsWithdrawnEvent) Type() EventType {
	return EventTypeFundsWithdrawn
}
