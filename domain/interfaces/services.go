package interfaces

import (
	"context"

	"kuri/domain/entities"

	"github.com/google/uuid"
)

// PoolService defines the settlement operations on one pool instance.
// Operations are strictly serialized: each executes to completion against a
// state consistent with the most recently completed operation, and either
// applies all of its effects or none. The only asynchronous boundary is
// between RequestRaffle returning a token and DeliverRandomness consuming it.
type PoolService interface {
	// RequestMembership records an application while the pool is launching.
	// Requesting again after acceptance is a no-op.
	RequestMembership(ctx context.Context, identity string) error

	// AcceptRequest admits an applicant and assigns the next dense index.
	// Requires the admin capability.
	AcceptRequest(ctx context.Context, principal, identity string) (*entities.Participant, error)

	// RejectRequest declines an applicant. Requires the admin capability.
	RejectRequest(ctx context.Context, principal, identity string) error

	// FlagUser retires an accepted participant and removes them from future
	// raffles. Requires the admin capability.
	FlagUser(ctx context.Context, principal, identity string, intervalIndex int) error

	// Initialize attempts the launch transition after the launch deadline.
	// Returns false when the pool did not fill; the pool is then launch-failed
	// for good. Requires the initializer capability.
	Initialize(ctx context.Context, principal string) (bool, error)

	// Deposit collects the caller's installment for the current interval
	Deposit(ctx context.Context, identity string) error

	// HasPaid reports whether identity paid the given interval
	HasPaid(ctx context.Context, identity string, intervalIndex int) (bool, error)

	// RequestRaffle issues a randomness request for the next winner draw and
	// returns its correlation token. Requires the admin capability.
	RequestRaffle(ctx context.Context, principal string) (uuid.UUID, error)

	// DeliverRandomness is invoked by the randomness port to settle the
	// pending raffle identified by the correlation token. Requires the
	// randomness-subscriber capability.
	DeliverRandomness(ctx context.Context, principal string, token uuid.UUID, values []uint64) error

	// Claim pays the pooled amount out to a winner who paid the interval.
	// The final interval's claim at or after cycle end completes the pool.
	Claim(ctx context.Context, identity string, intervalIndex int) error

	// Withdraw sweeps the residual custody balance after completion and
	// returns the swept amount. Requires the admin capability.
	Withdraw(ctx context.Context, principal string) (int64, error)

	// Pool returns a deep copy of the current aggregate for read-only use
	Pool() *entities.Pool
}
