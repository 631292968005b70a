package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
)

const (
	TypePruneRun = "prune:run"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// PruneRunPayload is the task payload for TypePruneRun. Override carries an
// optional per-run policy adjustment (e.g. an emergency cleanup with a
// shorter age window); nil fields fall back to the category's table entry.
type PruneRunPayload struct {
	UserID   uuid.UUID        `json:"user_id"`
	Category models.Category  `json:"category"`
	Override *policy.Override `json:"override,omitempty"`
}

// NewPruneRunTask builds a prune task. MaxRetry is pinned to zero: deletions
// must not be replayed blindly on task failure — the next scheduled sweep is
// the retry path.
func NewPruneRunTask(p PruneRunPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal PruneRun: %w", err)
	}
	return asynq.NewTask(TypePruneRun, b, asynq.Queue(QueueLow), asynq.MaxRetry(0)), nil
}

func ParsePruneRunPayload(t *asynq.Task) (PruneRunPayload, error) {
	var p PruneRunPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}
