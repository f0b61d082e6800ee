package repository

import (
	"context"
	"fmt"
	"time"

	"kuri/database"
	"kuri/domain/entities"
	"kuri/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryable abstracts over a connection pool and a transaction so repository
// methods can run inside either
type Queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolRepository persists the pool aggregate as a full snapshot. Save rewrites
// the pool row and all of its child rows in one transaction, which keeps the
// stored state exactly as all-or-nothing as the in-memory aggregate.
type PoolRepository struct {
	db *database.DB
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *database.DB) interfaces.PoolRepository {
	return &PoolRepository{db: db}
}

// Save writes the aggregate snapshot. A pool without an ID is inserted and
// receives one; an existing pool is rewritten in place.
func (r *PoolRepository) Save(ctx context.Context, pool *entities.Pool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.savePool(ctx, tx, pool); err != nil {
		return err
	}
	if err := r.saveChildren(ctx, tx, pool); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pool snapshot: %w", err)
	}
	return nil
}

func (r *PoolRepository) savePool(ctx context.Context, q Queryable, pool *entities.Pool) error {
	var activeIndices []int32
	if pool.Active != nil {
		for _, index := range pool.Active.Indices() {
			activeIndices = append(activeIndices, int32(index))
		}
	}

	if pool.ID == 0 {
		query := `
			INSERT INTO pools (creator, pool_amount, required_count, accepted_count,
			                   interval_type, state, launch_deadline, cycle_start, cycle_end,
			                   next_deposit_due, next_raffle_eligible, active_indices, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id
		`
		err := q.QueryRow(ctx, query,
			pool.Creator,
			pool.PoolAmount,
			pool.RequiredCount,
			pool.AcceptedCount,
			pool.IntervalType,
			pool.State,
			pool.LaunchDeadline,
			nullableTime(pool.CycleStart),
			nullableTime(pool.CycleEnd),
			nullableTime(pool.NextDepositDue),
			nullableTime(pool.NextRaffleEligible),
			activeIndices,
			pool.CreatedAt,
		).Scan(&pool.ID)
		if err != nil {
			return fmt.Errorf("failed to insert pool: %w", err)
		}
		return nil
	}

	query := `
		UPDATE pools
		SET accepted_count = $2,
		    state = $3,
		    cycle_start = $4,
		    cycle_end = $5,
		    next_deposit_due = $6,
		    next_raffle_eligible = $7,
		    active_indices = $8,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		pool.ID,
		pool.AcceptedCount,
		pool.State,
		nullableTime(pool.CycleStart),
		nullableTime(pool.CycleEnd),
		nullableTime(pool.NextDepositDue),
		nullableTime(pool.NextRaffleEligible),
		activeIndices,
	)
	if err != nil {
		return fmt.Errorf("failed to update pool %d: %w", pool.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pool with ID %d not found", pool.ID)
	}
	return nil
}

func (r *PoolRepository) saveChildren(ctx context.Context, q Queryable, pool *entities.Pool) error {
	for _, table := range []string{"pool_participants", "pool_payments", "pool_winners", "pool_raffle_requests"} {
		if _, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE pool_id = $1", table), pool.ID); err != nil {
			return fmt.Errorf("failed to clear %s for pool %d: %w", table, pool.ID, err)
		}
	}

	for _, record := range pool.Participants {
		query := `
			INSERT INTO pool_participants (pool_id, identity, state, participant_index, requested_at, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := q.Exec(ctx, query,
			pool.ID, record.Identity, record.State, record.Index, record.RequestedAt, record.DecidedAt)
		if err != nil {
			return fmt.Errorf("failed to insert participant %s: %w", record.Identity, err)
		}
	}

	for key := range pool.Payments {
		query := `
			INSERT INTO pool_payments (pool_id, interval_index, participant_index)
			VALUES ($1, $2, $3)
		`
		if _, err := q.Exec(ctx, query, pool.ID, key.Interval, key.Index); err != nil {
			return fmt.Errorf("failed to insert payment %d/%d: %w", key.Interval, key.Index, err)
		}
	}

	for interval, winnerIndex := range pool.WinnerByInterval {
		query := `
			INSERT INTO pool_winners (pool_id, interval_index, participant_index, claimed)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := q.Exec(ctx, query, pool.ID, interval, winnerIndex, pool.Claimed[winnerIndex]); err != nil {
			return fmt.Errorf("failed to insert winner for interval %d: %w", interval, err)
		}
	}

	for token, requestedAt := range pool.PendingRaffles {
		query := `
			INSERT INTO pool_raffle_requests (pool_id, correlation_token, requested_at)
			VALUES ($1, $2, $3)
		`
		if _, err := q.Exec(ctx, query, pool.ID, token, requestedAt); err != nil {
			return fmt.Errorf("failed to insert raffle request %s: %w", token, err)
		}
	}

	return nil
}

// GetByID loads the pool aggregate with the given ID, or nil when absent
func (r *PoolRepository) GetByID(ctx context.Context, id int64) (*entities.Pool, error) {
	return r.loadPool(ctx, `
		SELECT id, creator, pool_amount, required_count, accepted_count, interval_type,
		       state, launch_deadline, cycle_start, cycle_end, next_deposit_due,
		       next_raffle_eligible, active_indices, created_at
		FROM pools
		WHERE id = $1
	`, id)
}

// Latest loads the most recently created pool, or nil when none exists
func (r *PoolRepository) Latest(ctx context.Context) (*entities.Pool, error) {
	return r.loadPool(ctx, `
		SELECT id, creator, pool_amount, required_count, accepted_count, interval_type,
		       state, launch_deadline, cycle_start, cycle_end, next_deposit_due,
		       next_raffle_eligible, active_indices, created_at
		FROM pools
		ORDER BY id DESC
		LIMIT 1
	`)
}

func (r *PoolRepository) loadPool(ctx context.Context, query string, args ...any) (*entities.Pool, error) {
	var (
		pool          entities.Pool
		cycleStart    *time.Time
		cycleEnd      *time.Time
		depositDue    *time.Time
		raffleDue     *time.Time
		activeIndices []int32
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&pool.ID,
		&pool.Creator,
		&pool.PoolAmount,
		&pool.RequiredCount,
		&pool.AcceptedCount,
		&pool.IntervalType,
		&pool.State,
		&pool.LaunchDeadline,
		&cycleStart,
		&cycleEnd,
		&depositDue,
		&raffleDue,
		&activeIndices,
		&pool.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}

	pool.CycleStart = derefTime(cycleStart)
	pool.CycleEnd = derefTime(cycleEnd)
	pool.NextDepositDue = derefTime(depositDue)
	pool.NextRaffleEligible = derefTime(raffleDue)

	// The active set exists from activation on, even once fully drained
	if pool.State == entities.PoolStateActive || pool.State == entities.PoolStateCompleted {
		indices := make([]int, len(activeIndices))
		for i, index := range activeIndices {
			indices[i] = int(index)
		}
		pool.Active = entities.RestoreActiveSet(indices)
	}

	if err := r.loadChildren(ctx, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *PoolRepository) loadChildren(ctx context.Context, pool *entities.Pool) error {
	pool.Participants = make(map[string]*entities.Participant)
	pool.Payments = make(map[entities.PaymentKey]bool)
	pool.Won = make(map[int]bool)
	pool.Claimed = make(map[int]bool)
	pool.WinnerByInterval = make(map[int]int)
	pool.PendingRaffles = make(map[uuid.UUID]time.Time)

	rows, err := r.db.Query(ctx, `
		SELECT identity, state, participant_index, requested_at, decided_at
		FROM pool_participants
		WHERE pool_id = $1
	`, pool.ID)
	if err != nil {
		return fmt.Errorf("failed to get participants for pool %d: %w", pool.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var record entities.Participant
		if err := rows.Scan(&record.Identity, &record.State, &record.Index, &record.RequestedAt, &record.DecidedAt); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		pool.Participants[record.Identity] = &record
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate participants: %w", err)
	}

	paymentRows, err := r.db.Query(ctx, `
		SELECT interval_index, participant_index
		FROM pool_payments
		WHERE pool_id = $1
	`, pool.ID)
	if err != nil {
		return fmt.Errorf("failed to get payments for pool %d: %w", pool.ID, err)
	}
	defer paymentRows.Close()
	for paymentRows.Next() {
		var key entities.PaymentKey
		if err := paymentRows.Scan(&key.Interval, &key.Index); err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		pool.Payments[key] = true
	}
	if err := paymentRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate payments: %w", err)
	}

	winnerRows, err := r.db.Query(ctx, `
		SELECT interval_index, participant_index, claimed
		FROM pool_winners
		WHERE pool_id = $1
	`, pool.ID)
	if err != nil {
		return fmt.Errorf("failed to get winners for pool %d: %w", pool.ID, err)
	}
	defer winnerRows.Close()
	for winnerRows.Next() {
		var (
			interval    int
			winnerIndex int
			claimed     bool
		)
		if err := winnerRows.Scan(&interval, &winnerIndex, &claimed); err != nil {
			return fmt.Errorf("failed to scan winner: %w", err)
		}
		pool.WinnerByInterval[interval] = winnerIndex
		pool.Won[winnerIndex] = true
		if claimed {
			pool.Claimed[winnerIndex] = true
		}
	}
	if err := winnerRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate winners: %w", err)
	}

	raffleRows, err := r.db.Query(ctx, `
		SELECT correlation_token, requested_at
		FROM pool_raffle_requests
		WHERE pool_id = $1
	`, pool.ID)
	if err != nil {
		return fmt.Errorf("failed to get raffle requests for pool %d: %w", pool.ID, err)
	}
	defer raffleRows.Close()
	for raffleRows.Next() {
		var (
			token       uuid.UUID
			requestedAt time.Time
		)
		if err := raffleRows.Scan(&token, &requestedAt); err != nil {
			return fmt.Errorf("failed to scan raffle request: %w", err)
		}
		pool.PendingRaffles[token] = requestedAt
	}
	if err := raffleRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate raffle requests: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
