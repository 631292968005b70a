package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/vaultsweep/vaultsweep/internal/config"
	"github.com/vaultsweep/vaultsweep/internal/db"
	"github.com/vaultsweep/vaultsweep/internal/kms"
	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/notifications"
	"github.com/vaultsweep/vaultsweep/internal/policy"
	"github.com/vaultsweep/vaultsweep/internal/queue"
	"github.com/vaultsweep/vaultsweep/internal/retention"
	"github.com/vaultsweep/vaultsweep/internal/storage"
	"github.com/vaultsweep/vaultsweep/pkg/audit"
)

// IndexedDeleter removes the object first, then its index row. If the index
// drop fails the row is re-listed on the next sweep and the (idempotent)
// object deletion retried, so the store never keeps data the index forgot.
type IndexedDeleter struct {
	Store retention.Deleter
	Index ItemIndex
}

func (d *IndexedDeleter) DeleteItem(ctx context.Context, reference string) error {
	if err := d.Store.DeleteItem(ctx, reference); err != nil {
		return err
	}
	if err := d.Index.Delete(ctx, reference); err != nil {
		return fmt.Errorf("drop index row: %w", err)
	}
	return nil
}

// NewEngineFactory wires the per-user engine assembly: users with registered
// storage credentials are swept against their own bucket, everyone else
// against the service backend. The lister source is configurable — "index"
// trusts the Postgres item index, "store" re-lists the object store itself.
func NewEngineFactory(d *db.DB, enc *kms.Encryptor, defaultBackend storage.Backend, table policy.Table, wcfg config.WorkerConfig, log *zap.Logger) EngineFactory {
	return func(ctx context.Context, user *models.User) (PruneEngine, error) {
		backend := defaultBackend
		if user.StorageCredsEnc != "" {
			creds, err := enc.OpenCreds(user.StorageCredsEnc)
			if err != nil {
				return nil, fmt.Errorf("worker: open storage creds: %w", err)
			}
			userStore, err := storage.New(ctx, config.S3Config{
				Endpoint:        creds.Endpoint,
				Region:          creds.Region,
				Bucket:          creds.Bucket,
				AccessKeyID:     creds.AccessKeyID,
				SecretAccessKey: creds.SecretAccessKey,
				ForcePathStyle:  true,
			}, "user-bucket")
			if err != nil {
				return nil, fmt.Errorf("worker: open user bucket: %w", err)
			}
			backend = userStore
		}

		var lister retention.Lister = d.Items
		if wcfg.ListSource == "store" {
			lister = backend
		}
		deleter := &IndexedDeleter{Store: backend, Index: d.Items}

		return retention.NewEngine(lister, deleter, table, log,
			retention.WithDeleteWorkers(wcfg.DeleteWorkers)), nil
	}
}

// ── PruneProcessor ────────────────────────────────────────────────────────────

// PruneProcessor handles prune:run tasks: it runs the retention engine for
// one (user, category) pair and seals the outcome into the audit chain. The
// task carries MaxRetry(0) — deletions are never replayed blindly; the next
// scheduled sweep is the retry path.
type PruneProcessor struct {
	users    UserStore
	runs     RunStore
	factory  EngineFactory
	notifier notifications.Notifier
	log      *zap.Logger
}

func NewPruneProcessor(users UserStore, runs RunStore, factory EngineFactory, notifier notifications.Notifier, log *zap.Logger) *PruneProcessor {
	return &PruneProcessor{
		users:    users,
		runs:     runs,
		factory:  factory,
		notifier: notifier,
		log:      log,
	}
}

func (p *PruneProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParsePruneRunPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	run := &models.PruneRun{
		ID:        uuid.New(),
		UserID:    payload.UserID,
		Category:  payload.Category,
		StartedAt: time.Now().UTC(),
	}

	user, err := p.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return p.failRun(ctx, run, fmt.Errorf("get user: %w", err))
	}

	engine, err := p.factory(ctx, user)
	if err != nil {
		return p.failRun(ctx, run, err)
	}

	result, err := engine.Prune(ctx, payload.UserID, payload.Category, payload.Override)
	if err != nil {
		return p.failRun(ctx, run, err)
	}

	run.Status = models.RunStatusDone
	if len(result.Errors) > 0 {
		run.Status = models.RunStatusPartial
	}
	run.ItemsScanned = result.ItemsScanned
	run.ItemsDeleted = result.ItemsDeleted
	run.BytesFreed = result.BytesFreed
	run.DuplicatesRemoved = result.DuplicatesRemoved
	run.SizeExcessBytes = result.SizeExcessBytes
	run.Errors = result.Errors
	run.FinishedAt = time.Now().UTC()

	if err := p.seal(ctx, run, result); err != nil {
		return fmt.Errorf("run %s: seal: %w", run.ID, err)
	}

	if run.Status == models.RunStatusPartial {
		p.alert(ctx, run.UserID, "warning",
			fmt.Sprintf("prune run %s finished with %d failed deletions (%s)",
				run.ID, len(run.Errors), run.Category))
	}
	return nil
}

// failRun records an aborted run (unknown category, lister down, bad creds)
// with a zero result so the audit chain still advances.
func (p *PruneProcessor) failRun(ctx context.Context, run *models.PruneRun, cause error) error {
	run.Status = models.RunStatusFailed
	run.ErrMsg = cause.Error()
	run.FinishedAt = time.Now().UTC()

	if err := p.seal(ctx, run, &models.PruningResult{}); err != nil {
		p.log.Error("record failed run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	p.alert(ctx, run.UserID, "critical",
		fmt.Sprintf("prune run %s aborted: %v", run.ID, cause))
	return cause
}

// seal chains the run to the user's previous run and persists it.
func (p *PruneProcessor) seal(ctx context.Context, run *models.PruneRun, result *models.PruningResult) error {
	digest, err := audit.ResultDigest(result)
	if err != nil {
		return err
	}
	prevHash := audit.GenesisHash
	if prev, err := p.runs.GetLastRun(ctx, run.UserID); err == nil && prev != nil {
		prevHash = prev.ChainHash
	}
	run.ChainHash = audit.ChainHash(prevHash, digest, run.ID.String())
	return p.runs.Create(ctx, run)
}

func (p *PruneProcessor) alert(ctx context.Context, userID uuid.UUID, severity, message string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.SendAlert(ctx, userID.String(), severity, message); err != nil {
		p.log.Warn("send alert failed", zap.Error(err))
	}
}

// ── SweepScheduler ────────────────────────────────────────────────────────────

// SweepScheduler periodically enqueues one prune task per category for every
// user whose sweep interval has elapsed.
type SweepScheduler struct {
	users      UserStore
	queue      TaskEnqueuer
	categories []models.Category
	log        *zap.Logger
	interval   time.Duration
}

func NewSweepScheduler(users UserStore, q TaskEnqueuer, table policy.Table, log *zap.Logger, interval time.Duration) *SweepScheduler {
	var categories []models.Category
	for _, c := range models.Categories() {
		if _, ok := table[c]; ok {
			categories = append(categories, c)
		}
	}
	return &SweepScheduler{
		users:      users,
		queue:      q,
		categories: categories,
		log:        log,
		interval:   interval,
	}
}

func (s *SweepScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.schedule(ctx)
		}
	}
}

func (s *SweepScheduler) schedule(ctx context.Context) {
	users, err := s.users.ListDue(ctx)
	if err != nil {
		s.log.Error("scheduler: list due users", zap.Error(err))
		return
	}

	for _, user := range users {
		now := time.Now().UTC()

		// The task ID is keyed on the last sweep stamp, not on "now", so a
		// crashed UpdateLastSwept cannot double-enqueue the same sweep window.
		stamp := int64(0)
		if user.LastSweptAt != nil {
			stamp = user.LastSweptAt.Unix()
		}

		enqueued := false
		for _, category := range s.categories {
			task, err := queue.NewPruneRunTask(queue.PruneRunPayload{
				UserID:   user.ID,
				Category: category,
			})
			if err != nil {
				s.log.Error("scheduler: create prune task",
					zap.String("user_id", user.ID.String()),
					zap.String("category", string(category)),
					zap.Error(err))
				continue
			}
			taskID := fmt.Sprintf("prune-%s-%s-%d", user.ID, category, stamp)
			if _, err := s.queue.EnqueueContext(ctx, task, asynq.TaskID(taskID)); err != nil {
				if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
					// Task already queued for this window – safe to skip.
					continue
				}
				s.log.Error("scheduler: enqueue prune task",
					zap.String("user_id", user.ID.String()),
					zap.String("category", string(category)),
					zap.Error(err))
				continue
			}
			enqueued = true
		}

		if enqueued {
			if err := s.users.UpdateLastSwept(ctx, user.ID, now); err != nil {
				s.log.Error("scheduler: update last swept",
					zap.String("user_id", user.ID.String()),
					zap.Error(err))
			}
		}
	}
}
