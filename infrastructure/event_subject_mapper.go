package infrastructure

import (
	"fmt"

	"kuri/domain/events"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypePoolInitialized:
		return "pool.lifecycle.initialized"
	case events.EventTypePoolLaunchFailed:
		return "pool.lifecycle.launch_failed"
	case events.EventTypeMembershipRequested:
		return "pool.membership.requested"
	case events.EventTypeMembershipAccepted:
		return "pool.membership.accepted"
	case events.EventTypeMembershipRejected:
		return "pool.membership.rejected"
	case events.EventTypeUserFlagged:
		return "pool.membership.flagged"
	case events.EventTypeDepositMade:
		return "pool.deposits.made"
	case events.EventTypeWinnerSelected:
		return "pool.raffles.winner_selected"
	case events.EventTypeSlotClaimed:
		return "pool.claims.settled"
	case events.EventTypeFundsWithdrawn:
		return "pool.funds.withdrawn"
	default:
		// Fallback for unknown event types
		return fmt.Sprintf("unknown.%s", event.Type())
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"pool.lifecycle.initialized",
		"pool.lifecycle.launch_failed",
		"pool.membership.requested",
		"pool.membership.accepted",
		"pool.membership.rejected",
		"pool.membership.flagged",
		"pool.deposits.made",
		"pool.raffles.winner_selected",
		"pool.claims.settled",
		"pool.funds.withdrawn",
	}
}
