package entities

import "time"

// ParticipantState represents a participant's admission lifecycle state
type ParticipantState string

const (
	ParticipantStateApplied  ParticipantState = "applied"
	ParticipantStateAccepted ParticipantState = "accepted"
	ParticipantStateRejected ParticipantState = "rejected"
	ParticipantStateFlagged  ParticipantState = "flagged"
)

// Participant is one membership record in a pool. Records are created on the
// first membership request and never deleted; flagging retires the record but
// keeps its index assigned.
type Participant struct {
	Identity    string           `db:"identity"`
	State       ParticipantState `db:"state"`
	Index       int              `db:"idx"` // dense 1..N, assigned on acceptance, never reused
	RequestedAt time.Time        `db:"requested_at"`
	DecidedAt   *time.Time       `db:"decided_at"`
}

// IsAccepted reports whether the participant was admitted and not yet flagged
func (p *Participant) IsAccepted() bool {
	return p.State == ParticipantStateAccepted
}

// IsFlagged reports whether the participant has been retired by an admin
func (p *Participant) IsFlagged() bool {
	return p.State == ParticipantStateFlagged
}

// Accept admits the participant and assigns its dense index
func (p *Participant) Accept(index int, now time.Time) {
	p.State = ParticipantStateAccepted
	p.Index = index
	p.DecidedAt = &now
}

// Reject declines the application
func (p *Participant) Reject(now time.Time) {
	p.State = ParticipantStateRejected
	p.DecidedAt = &now
}

// Flag retires an accepted participant. The index stays assigned.
func (p *Participant) Flag() {
	p.State = ParticipantStateFlagged
}
