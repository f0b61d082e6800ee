package entities

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

const testLaunchPeriod = 14 * 24 * time.Hour

// newTestPool returns a launching pool created at testStart
func newTestPool(t *testing.T, requiredCount int) *Pool {
	t.Helper()
	pool, err := NewPool("creator-1", int64(requiredCount)*1000, requiredCount, IntervalTypeWeekly, testLaunchPeriod, testStart)
	require.NoError(t, err)
	return pool
}

// newActivePool returns a pool with requiredCount accepted members,
// initialized exactly at its launch deadline
func newActivePool(t *testing.T, requiredCount int) *Pool {
	t.Helper()
	pool := newTestPool(t, requiredCount)
	for i := 1; i <= requiredCount; i++ {
		identity := fmt.Sprintf("member-%d", i)
		_, err := pool.RequestMembership(identity, testStart)
		require.NoError(t, err)
		_, err = pool.AcceptRequest(identity, testStart)
		require.NoError(t, err)
	}
	launched, err := pool.Initialize(pool.LaunchDeadline)
	require.NoError(t, err)
	require.True(t, launched)
	return pool
}

func TestNewPool_Validation(t *testing.T) {
	tests := []struct {
		name          string
		creator       string
		amount        int64
		count         int
		intervalType  IntervalType
		launchPeriod  time.Duration
		wantErr       bool
	}{
		{"valid weekly pool", "creator-1", 10000, 10, IntervalTypeWeekly, testLaunchPeriod, false},
		{"valid monthly pool", "creator-1", 5000, 5, IntervalTypeMonthly, testLaunchPeriod, false},
		{"empty creator", "", 10000, 10, IntervalTypeWeekly, testLaunchPeriod, true},
		{"zero amount", "creator-1", 0, 10, IntervalTypeWeekly, testLaunchPeriod, true},
		{"zero participants", "creator-1", 10000, 0, IntervalTypeWeekly, testLaunchPeriod, true},
		{"amount not divisible", "creator-1", 10001, 10, IntervalTypeWeekly, testLaunchPeriod, true},
		{"unknown interval type", "creator-1", 10000, 10, IntervalType("daily"), testLaunchPeriod, true},
		{"zero launch period", "creator-1", 10000, 10, IntervalTypeWeekly, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.creator, tt.amount, tt.count, tt.intervalType, tt.launchPeriod, testStart)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PoolStateLaunching, pool.State)
			assert.Equal(t, testStart.Add(tt.launchPeriod), pool.LaunchDeadline)
		})
	}
}

func TestPool_RequestMembership(t *testing.T) {
	t.Run("records an application", func(t *testing.T) {
		pool := newTestPool(t, 3)

		applied, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, ParticipantStateApplied, pool.Participants["member-1"].State)
	})

	t.Run("duplicate application fails", func(t *testing.T) {
		pool := newTestPool(t, 3)
		_, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)

		_, err = pool.RequestMembership("member-1", testStart)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})

	t.Run("already accepted is a no-op", func(t *testing.T) {
		pool := newTestPool(t, 3)
		_, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)
		_, err = pool.AcceptRequest("member-1", testStart)
		require.NoError(t, err)

		applied, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("already rejected fails", func(t *testing.T) {
		pool := newTestPool(t, 3)
		_, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)
		require.NoError(t, pool.RejectRequest("member-1", testStart))

		_, err = pool.RequestMembership("member-1", testStart)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})

	t.Run("past launch deadline fails", func(t *testing.T) {
		pool := newTestPool(t, 3)

		_, err := pool.RequestMembership("member-1", pool.LaunchDeadline.Add(time.Second))
		assert.Equal(t, ErrorKindTiming, KindOf(err))
	})

	t.Run("outside launching state fails", func(t *testing.T) {
		pool := newActivePool(t, 3)

		_, err := pool.RequestMembership("latecomer", pool.LaunchDeadline)
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))
	})
}

func TestPool_AcceptRequest(t *testing.T) {
	t.Run("assigns dense indices in acceptance order", func(t *testing.T) {
		pool := newTestPool(t, 4)
		for i := 1; i <= 4; i++ {
			identity := fmt.Sprintf("member-%d", i)
			_, err := pool.RequestMembership(identity, testStart)
			require.NoError(t, err)
		}

		for i := 1; i <= 4; i++ {
			identity := fmt.Sprintf("member-%d", i)
			record, err := pool.AcceptRequest(identity, testStart)
			require.NoError(t, err)
			assert.Equal(t, i, record.Index)
			assert.Equal(t, ParticipantStateAccepted, record.State)
		}
		assert.Equal(t, 4, pool.AcceptedCount)
	})

	t.Run("full pool rejects further admissions", func(t *testing.T) {
		pool := newTestPool(t, 1)
		_, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)
		_, err = pool.RequestMembership("member-2", testStart)
		require.NoError(t, err)
		_, err = pool.AcceptRequest("member-1", testStart)
		require.NoError(t, err)

		_, err = pool.AcceptRequest("member-2", testStart)
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))
	})

	t.Run("unknown applicant fails", func(t *testing.T) {
		pool := newTestPool(t, 3)

		_, err := pool.AcceptRequest("ghost", testStart)
		assert.Equal(t, ErrorKindReferential, KindOf(err))
	})

	t.Run("second decision fails", func(t *testing.T) {
		pool := newTestPool(t, 3)
		_, err := pool.RequestMembership("member-1", testStart)
		require.NoError(t, err)
		_, err = pool.AcceptRequest("member-1", testStart)
		require.NoError(t, err)

		_, err = pool.AcceptRequest("member-1", testStart)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))

		err = pool.RejectRequest("member-1", testStart)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})
}

func TestPool_Initialize(t *testing.T) {
	t.Run("full pool activates with the derived schedule", func(t *testing.T) {
		pool := newTestPool(t, 10)
		for i := 1; i <= 10; i++ {
			identity := fmt.Sprintf("member-%d", i)
			_, err := pool.RequestMembership(identity, testStart)
			require.NoError(t, err)
			_, err = pool.AcceptRequest(identity, testStart)
			require.NoError(t, err)
		}

		now := pool.LaunchDeadline
		launched, err := pool.Initialize(now)
		require.NoError(t, err)
		assert.True(t, launched)
		assert.Equal(t, PoolStateActive, pool.State)

		interval := IntervalTypeWeekly.Duration()
		assert.Equal(t, now, pool.CycleStart)
		assert.Equal(t, now.Add(interval), pool.NextDepositDue)
		assert.Equal(t, pool.NextDepositDue.Add(RaffleDelay), pool.NextRaffleEligible)
		assert.Equal(t, now.Add(10*(interval+RaffleDelay)), pool.CycleEnd)
		assert.Equal(t, 10, pool.Active.Len())
	})

	t.Run("partial pool becomes launch-failed, irrevocably", func(t *testing.T) {
		pool := newTestPool(t, 10)
		for i := 1; i <= 5; i++ {
			identity := fmt.Sprintf("member-%d", i)
			_, err := pool.RequestMembership(identity, testStart)
			require.NoError(t, err)
			_, err = pool.AcceptRequest(identity, testStart)
			require.NoError(t, err)
		}

		launched, err := pool.Initialize(pool.LaunchDeadline)
		require.NoError(t, err)
		assert.False(t, launched)
		assert.Equal(t, PoolStateLaunchFailed, pool.State)

		// No second chance
		_, err = pool.Initialize(pool.LaunchDeadline.Add(time.Hour))
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))

		// And no raffle is ever possible
		err = pool.CanRequestRaffle(pool.LaunchDeadline.Add(time.Hour))
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))
	})

	t.Run("before the launch deadline fails", func(t *testing.T) {
		pool := newTestPool(t, 3)

		_, err := pool.Initialize(pool.LaunchDeadline.Add(-time.Minute))
		assert.Equal(t, ErrorKindTiming, KindOf(err))
	})
}

func TestPool_IntervalNumber(t *testing.T) {
	pool := newActivePool(t, 10)
	start := pool.CycleStart
	interval := pool.IntervalDuration()
	step := interval + RaffleDelay

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before cycle start", start.Add(-time.Hour), 0},
		{"at cycle start", start, 0},
		{"just before first deposit due", start.Add(interval - time.Second), 0},
		{"at first deposit due", start.Add(interval), 1},
		{"during first raffle delay", start.Add(interval + RaffleDelay/2), 1},
		{"second collection window", start.Add(step + interval), 2},
		{"tenth collection window", start.Add(9*step + interval), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pool.IntervalNumber(tt.now))
		})
	}
}

func TestPool_RecordDeposit(t *testing.T) {
	t.Run("records payment for the current interval", func(t *testing.T) {
		pool := newActivePool(t, 3)
		now := pool.NextDepositDue

		interval, err := pool.RecordDeposit("member-2", now)
		require.NoError(t, err)
		assert.Equal(t, 1, interval)

		paid, err := pool.HasPaid("member-2", 1)
		require.NoError(t, err)
		assert.True(t, paid)
	})

	t.Run("second deposit in the same interval fails", func(t *testing.T) {
		pool := newActivePool(t, 3)
		now := pool.NextDepositDue
		_, err := pool.RecordDeposit("member-1", now)
		require.NoError(t, err)

		_, err = pool.RecordDeposit("member-1", now.Add(time.Hour))
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})

	t.Run("before the deposit window opens fails", func(t *testing.T) {
		pool := newActivePool(t, 3)

		_, err := pool.RecordDeposit("member-1", pool.NextDepositDue.Add(-time.Minute))
		assert.Equal(t, ErrorKindTiming, KindOf(err))
	})

	t.Run("unknown identity fails", func(t *testing.T) {
		pool := newActivePool(t, 3)

		_, err := pool.RecordDeposit("ghost", pool.NextDepositDue)
		assert.Equal(t, ErrorKindReferential, KindOf(err))
	})

	t.Run("flagged participant cannot deposit", func(t *testing.T) {
		pool := newActivePool(t, 3)
		require.NoError(t, pool.FlagUser("member-1", 0, pool.CycleStart))

		_, err := pool.RecordDeposit("member-1", pool.NextDepositDue)
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))
	})
}

func TestPool_HasPaid(t *testing.T) {
	pool := newActivePool(t, 3)

	paid, err := pool.HasPaid("member-1", 1)
	require.NoError(t, err)
	assert.False(t, paid)

	_, err = pool.HasPaid("member-1", 0)
	assert.Equal(t, ErrorKindReferential, KindOf(err))

	_, err = pool.HasPaid("member-1", 4)
	assert.Equal(t, ErrorKindReferential, KindOf(err))

	_, err = pool.HasPaid("ghost", 1)
	assert.Equal(t, ErrorKindReferential, KindOf(err))
}

func TestPool_FlagUser(t *testing.T) {
	t.Run("removes the participant from future raffles", func(t *testing.T) {
		pool := newActivePool(t, 3)
		index := pool.Participants["member-2"].Index

		require.NoError(t, pool.FlagUser("member-2", 0, pool.CycleStart))
		assert.True(t, pool.Participants["member-2"].IsFlagged())
		assert.False(t, pool.Active.Contains(index))
		assert.Equal(t, 2, pool.Active.Len())
	})

	t.Run("after paying the interval fails", func(t *testing.T) {
		pool := newActivePool(t, 3)
		now := pool.NextDepositDue
		_, err := pool.RecordDeposit("member-1", now)
		require.NoError(t, err)

		err = pool.FlagUser("member-1", 1, now)
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))
	})

	t.Run("future interval fails", func(t *testing.T) {
		pool := newActivePool(t, 3)

		err := pool.FlagUser("member-1", 2, pool.NextDepositDue)
		assert.Equal(t, ErrorKindTiming, KindOf(err))
	})

	t.Run("double flag fails", func(t *testing.T) {
		pool := newActivePool(t, 3)
		require.NoError(t, pool.FlagUser("member-1", 0, pool.CycleStart))

		err := pool.FlagUser("member-1", 0, pool.CycleStart)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})
}

func TestPool_RaffleLifecycle(t *testing.T) {
	t.Run("request and settle one raffle", func(t *testing.T) {
		pool := newActivePool(t, 5)
		token := uuid.New()
		now := pool.NextRaffleEligible

		require.NoError(t, pool.AddRaffleRequest(token, now))

		winner, interval, err := pool.SettleRaffle(token, 12, now)
		require.NoError(t, err)
		assert.Equal(t, 1, interval)
		assert.True(t, pool.Won[winner])
		assert.Equal(t, winner, pool.WinnerByInterval[1])
		assert.False(t, pool.Active.Contains(winner))
		assert.Equal(t, 4, pool.Active.Len())
		assert.Empty(t, pool.PendingRaffles)

		step := pool.IntervalDuration() + RaffleDelay
		assert.Equal(t, pool.CycleStart.Add(pool.IntervalDuration()).Add(step), pool.NextDepositDue)
	})

	t.Run("request before eligibility fails", func(t *testing.T) {
		pool := newActivePool(t, 5)

		err := pool.AddRaffleRequest(uuid.New(), pool.NextRaffleEligible.Add(-time.Minute))
		assert.Equal(t, ErrorKindTiming, KindOf(err))
	})

	t.Run("second in-flight request fails", func(t *testing.T) {
		pool := newActivePool(t, 5)
		now := pool.NextRaffleEligible
		require.NoError(t, pool.AddRaffleRequest(uuid.New(), now))

		err := pool.AddRaffleRequest(uuid.New(), now)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})

	t.Run("unknown token fails", func(t *testing.T) {
		pool := newActivePool(t, 5)

		_, _, err := pool.SettleRaffle(uuid.New(), 1, pool.NextRaffleEligible)
		assert.Equal(t, ErrorKindReferential, KindOf(err))
	})

	t.Run("consumed token cannot settle twice", func(t *testing.T) {
		pool := newActivePool(t, 5)
		token := uuid.New()
		now := pool.NextRaffleEligible
		require.NoError(t, pool.AddRaffleRequest(token, now))
		_, _, err := pool.SettleRaffle(token, 3, now)
		require.NoError(t, err)

		_, _, err = pool.SettleRaffle(token, 3, now)
		assert.Equal(t, ErrorKindReferential, KindOf(err))
	})

	t.Run("full cycle selects every participant exactly once", func(t *testing.T) {
		const count = 10
		pool := newActivePool(t, count)
		step := pool.IntervalDuration() + RaffleDelay
		randoms := []uint64{42, 7, 0, 991, 13, 5, 77, 2, 123456, 9}

		winners := make(map[int]bool)
		for i := 1; i <= count; i++ {
			token := uuid.New()
			now := pool.CycleStart.Add(time.Duration(i) * step)
			require.NoError(t, pool.AddRaffleRequest(token, now))

			winner, interval, err := pool.SettleRaffle(token, randoms[i-1], now)
			require.NoError(t, err)
			assert.Equal(t, i, interval)
			assert.False(t, winners[winner], "index %d won twice", winner)
			winners[winner] = true
		}

		assert.Equal(t, 0, pool.Active.Len())
		assert.Len(t, pool.WinnerByInterval, count)
		assert.Len(t, winners, count)
	})
}

func TestPool_Claim(t *testing.T) {
	// settleOneRaffle pays every member for interval 1 and settles one raffle
	settleOneRaffle := func(t *testing.T, pool *Pool) (winner string, interval int) {
		t.Helper()
		now := pool.NextDepositDue
		for identity := range pool.Participants {
			_, err := pool.RecordDeposit(identity, now)
			require.NoError(t, err)
		}
		token := uuid.New()
		now = pool.NextRaffleEligible
		require.NoError(t, pool.AddRaffleRequest(token, now))
		winnerIndex, interval, err := pool.SettleRaffle(token, 4, now)
		require.NoError(t, err)
		return pool.ParticipantByIndex(winnerIndex).Identity, interval
	}

	t.Run("winner with payment claims", func(t *testing.T) {
		pool := newActivePool(t, 3)
		winner, interval := settleOneRaffle(t, pool)

		completed, err := pool.Claim(winner, interval, pool.NextRaffleEligible)
		require.NoError(t, err)
		assert.False(t, completed)
		assert.True(t, pool.Claimed[pool.Participants[winner].Index])
		assert.Equal(t, PoolStateActive, pool.State)
	})

	t.Run("non-winner cannot claim", func(t *testing.T) {
		pool := newActivePool(t, 3)
		winner, interval := settleOneRaffle(t, pool)

		for identity := range pool.Participants {
			if identity == winner {
				continue
			}
			_, err := pool.Claim(identity, interval, pool.NextRaffleEligible)
			assert.Equal(t, ErrorKindReferential, KindOf(err))
		}
	})

	t.Run("second claim fails", func(t *testing.T) {
		pool := newActivePool(t, 3)
		winner, interval := settleOneRaffle(t, pool)
		_, err := pool.Claim(winner, interval, pool.NextRaffleEligible)
		require.NoError(t, err)

		_, err = pool.Claim(winner, interval, pool.NextRaffleEligible)
		assert.Equal(t, ErrorKindDuplicateAction, KindOf(err))
	})

	t.Run("claim without payment fails", func(t *testing.T) {
		pool := newActivePool(t, 3)
		token := uuid.New()
		now := pool.NextRaffleEligible
		require.NoError(t, pool.AddRaffleRequest(token, now))
		winnerIndex, interval, err := pool.SettleRaffle(token, 1, now)
		require.NoError(t, err)
		winner := pool.ParticipantByIndex(winnerIndex).Identity

		_, err = pool.Claim(winner, interval, now)
		assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))
	})

	t.Run("interval out of range fails", func(t *testing.T) {
		pool := newActivePool(t, 3)
		winner, _ := settleOneRaffle(t, pool)

		_, err := pool.Claim(winner, 4, pool.NextRaffleEligible)
		assert.Equal(t, ErrorKindReferential, KindOf(err))
	})

	t.Run("final interval claim at cycle end completes the pool", func(t *testing.T) {
		const count = 2
		pool := newActivePool(t, count)
		step := pool.IntervalDuration() + RaffleDelay

		var lastWinner string
		for i := 1; i <= count; i++ {
			depositAt := pool.NextDepositDue
			for identity := range pool.Participants {
				_, err := pool.RecordDeposit(identity, depositAt)
				require.NoError(t, err)
			}
			token := uuid.New()
			raffleAt := pool.CycleStart.Add(time.Duration(i) * step)
			require.NoError(t, pool.AddRaffleRequest(token, raffleAt))
			winnerIndex, _, err := pool.SettleRaffle(token, uint64(i), raffleAt)
			require.NoError(t, err)
			lastWinner = pool.ParticipantByIndex(winnerIndex).Identity
		}

		completed, err := pool.Claim(lastWinner, count, pool.CycleEnd)
		require.NoError(t, err)
		assert.True(t, completed)
		assert.Equal(t, PoolStateCompleted, pool.State)
	})
}

func TestPool_CanWithdraw(t *testing.T) {
	pool := newActivePool(t, 3)

	err := pool.CanWithdraw(pool.CycleEnd)
	assert.Equal(t, ErrorKindStatePrecondition, KindOf(err))

	pool.State = PoolStateCompleted
	err = pool.CanWithdraw(pool.CycleEnd.Add(-time.Minute))
	assert.Equal(t, ErrorKindTiming, KindOf(err))

	assert.NoError(t, pool.CanWithdraw(pool.CycleEnd))
}

func TestPool_Clone(t *testing.T) {
	pool := newActivePool(t, 3)
	_, err := pool.RecordDeposit("member-1", pool.NextDepositDue)
	require.NoError(t, err)
	token := uuid.New()
	require.NoError(t, pool.AddRaffleRequest(token, pool.NextRaffleEligible))

	clone := pool.Clone()

	// Mutating the original must not leak into the clone
	_, _, err = pool.SettleRaffle(token, 2, pool.NextRaffleEligible)
	require.NoError(t, err)
	require.NoError(t, pool.FlagUser("member-2", 0, pool.NextRaffleEligible))

	assert.Equal(t, 3, clone.Active.Len())
	assert.Empty(t, clone.Won)
	assert.Len(t, clone.PendingRaffles, 1)
	assert.Equal(t, ParticipantStateAccepted, clone.Participants["member-2"].State)
	assert.True(t, clone.Payments[PaymentKey{Interval: 1, Index: clone.Participants["member-1"].Index}])
}
