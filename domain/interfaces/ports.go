package interfaces

import (
	"context"

	"kuri/domain/events"

	"github.com/google/uuid"
)

// Capability names a permission checked by the authorization gate
type Capability string

const (
	CapabilityAdmin                Capability = "admin"
	CapabilityInitializer          Capability = "initializer"
	CapabilityRandomnessSubscriber Capability = "randomness-subscriber"
)

// CustodyHolder is the account name under which the value transfer port keeps
// the pool's custody balance.
const CustodyHolder = "pool:custody"

// AuthorizationChecker answers whether a principal holds a capability.
// Identities are never hard-coded; every mutating operation consults this
// gate before doing anything else.
type AuthorizationChecker interface {
	Authorize(ctx context.Context, principal string, capability Capability) bool
}

// ValueTransferPort moves the fungible asset between participant accounts and
// the pool's custody. A failure from any method aborts the enclosing
// operation entirely.
type ValueTransferPort interface {
	// MoveIn transfers amount from the account into custody
	MoveIn(ctx context.Context, from string, amount int64) error

	// MoveOut transfers amount from custody to the account
	MoveOut(ctx context.Context, to string, amount int64) error

	// BalanceOf returns the balance held by an account, including CustodyHolder
	BalanceOf(ctx context.Context, holder string) (int64, error)
}

// RandomnessPort accepts a selection request and later, asynchronously,
// delivers one or more random values back to the pool service correlated by
// the returned token. The delivery is the only inbound call not initiated by
// a participant or admin.
type RandomnessPort interface {
	// Request issues a randomness request and returns its correlation token
	Request(ctx context.Context) (uuid.UUID, error)
}

// EventPublisher defines the interface for publishing observability events
type EventPublisher interface {
	Publish(event events.Event) error
}
