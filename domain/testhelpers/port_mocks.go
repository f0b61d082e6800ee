package testhelpers

import (
	"context"

	"kuri/domain/entities"
	"kuri/domain/events"
	"kuri/domain/interfaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockAuthorizationChecker is a mock implementation of AuthorizationChecker
type MockAuthorizationChecker struct {
	mock.Mock
}

func (m *MockAuthorizationChecker) Authorize(ctx context.Context, principal string, capability interfaces.Capability) bool {
	args := m.Called(ctx, principal, capability)
	return args.Bool(0)
}

// MockValueTransferPort is a mock implementation of ValueTransferPort
type MockValueTransferPort struct {
	mock.Mock
}

func (m *MockValueTransferPort) MoveIn(ctx context.Context, from string, amount int64) error {
	args := m.Called(ctx, from, amount)
	return args.Error(0)
}

func (m *MockValueTransferPort) MoveOut(ctx context.Context, to string, amount int64) error {
	args := m.Called(ctx, to, amount)
	return args.Error(0)
}

func (m *MockValueTransferPort) BalanceOf(ctx context.Context, holder string) (int64, error) {
	args := m.Called(ctx, holder)
	return args.Get(0).(int64), args.Error(1)
}

// MockRandomnessPort is a mock implementation of RandomnessPort
type MockRandomnessPort struct {
	mock.Mock
}

func (m *MockRandomnessPort) Request(ctx context.Context) (uuid.UUID, error) {
	args := m.Called(ctx)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

// MockPoolRepository is a mock implementation of PoolRepository
type MockPoolRepository struct {
	mock.Mock
}

func (m *MockPoolRepository) Save(ctx context.Context, pool *entities.Pool) error {
	args := m.Called(ctx, pool)
	return args.Error(0)
}

func (m *MockPoolRepository) GetByID(ctx context.Context, id int64) (*entities.Pool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Pool), args.Error(1)
}

func (m *MockPoolRepository) Latest(ctx context.Context) (*entities.Pool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Pool), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
