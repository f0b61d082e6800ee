package interfaces

import (
	"context"

	"kuri/domain/entities"
)

// PoolRepository persists pool aggregate snapshots. The service writes a
// snapshot through after every successful mutating operation and loads the
// latest one at startup, so a restarted process resumes mid-cycle.
type PoolRepository interface {
	// Save persists the full aggregate, assigning pool.ID on first save
	Save(ctx context.Context, pool *entities.Pool) error

	// GetByID loads one aggregate, or nil when no such pool exists
	GetByID(ctx context.Context, id int64) (*entities.Pool, error)

	// Latest loads the most recently created aggregate, or nil when none exists
	Latest(ctx context.Context) (*entities.Pool, error)
}
