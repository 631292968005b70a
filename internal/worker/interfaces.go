package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
)

// Interfaces for dependency injection to allow testing.

// UserStore defines database access for users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListDue(ctx context.Context) ([]*models.User, error)
	UpdateLastSwept(ctx context.Context, id uuid.UUID, t time.Time) error
}

// RunStore defines database access for the prune run audit log.
type RunStore interface {
	Create(ctx context.Context, run *models.PruneRun) error
	GetLastRun(ctx context.Context, userID uuid.UUID) (*models.PruneRun, error)
}

// ItemIndex defines the index-row cleanup used after object deletion.
type ItemIndex interface {
	Delete(ctx context.Context, reference string) error
}

// PruneEngine is the retention engine surface the processor drives.
type PruneEngine interface {
	Prune(ctx context.Context, userID uuid.UUID, category models.Category, override *policy.Override) (*models.PruningResult, error)
}

// EngineFactory builds a PruneEngine for one user. Users with registered
// storage credentials get an engine over their own bucket.
type EngineFactory func(ctx context.Context, user *models.User) (PruneEngine, error)

// TaskEnqueuer is the asynq client surface the scheduler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
