package testutil

import (
	"fmt"
	"testing"
	"time"

	"kuri/domain/entities"

	"github.com/stretchr/testify/require"
)

// CreateTestPool creates a launching pool with default values
func CreateTestPool(t *testing.T, requiredCount int, now time.Time) *entities.Pool {
	t.Helper()
	pool, err := entities.NewPool(
		"creator-test",
		int64(requiredCount)*1000,
		requiredCount,
		entities.IntervalTypeWeekly,
		14*24*time.Hour,
		now,
	)
	require.NoError(t, err)
	return pool
}

// CreateTestPoolWithMembers creates a launching pool with all members admitted
func CreateTestPoolWithMembers(t *testing.T, requiredCount int, now time.Time) *entities.Pool {
	t.Helper()
	pool := CreateTestPool(t, requiredCount, now)
	for i := 1; i <= requiredCount; i++ {
		identity := fmt.Sprintf("member-%d", i)
		_, err := pool.RequestMembership(identity, now)
		require.NoError(t, err)
		_, err = pool.AcceptRequest(identity, now)
		require.NoError(t, err)
	}
	return pool
}

// CreateTestActivePool creates a fully admitted pool activated at its launch deadline
func CreateTestActivePool(t *testing.T, requiredCount int, now time.Time) *entities.Pool {
	t.Helper()
	pool := CreateTestPoolWithMembers(t, requiredCount, now)
	launched, err := pool.Initialize(pool.LaunchDeadline)
	require.NoError(t, err)
	require.True(t, launched)
	return pool
}
