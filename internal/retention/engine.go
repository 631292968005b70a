package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
)

const defaultDeleteWorkers = 4

// Engine orchestrates classification and execution for one storage backend
// pair. It holds no state between runs: every Prune is a fresh computation
// over a freshly listed item set.
type Engine struct {
	lister  Lister
	deleter Deleter
	table   policy.Table
	log     *zap.Logger
	workers int
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithDeleteWorkers sets how many deletions run concurrently. Values below 1
// fall back to serial execution.
func WithDeleteWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithClock overrides the time source; tests pin "now" to make age
// thresholds deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an Engine over the given collaborators and policy table.
func NewEngine(lister Lister, deleter Deleter, table policy.Table, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		lister:  lister,
		deleter: deleter,
		table:   table,
		log:     log,
		workers: defaultDeleteWorkers,
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Prune runs one full retention pass for (userID, category): duplicates are
// collapsed, age/size eviction applied under the category's policy (with
// optional per-run override), and every selected target deleted through the
// Deleter. Individual delete failures do not abort the run; they are
// captured in the result. Only an unknown category or a lister failure
// returns an error, and then no PruningResult exists.
func (e *Engine) Prune(ctx context.Context, userID uuid.UUID, category models.Category, override *policy.Override) (*models.PruningResult, error) {
	pol, err := e.table.For(category)
	if err != nil {
		return nil, err
	}
	pol = pol.Apply(override)

	items, err := e.lister.ListItems(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("retention: list items: %w", err)
	}

	targets, excess := selectTargets(items, pol, e.now())

	result := &models.PruningResult{
		ItemsScanned:    len(items),
		SizeExcessBytes: excess,
	}
	e.execute(ctx, targets, result)

	e.log.Info("prune run complete",
		zap.String("user_id", userID.String()),
		zap.String("category", string(category)),
		zap.Int("scanned", result.ItemsScanned),
		zap.Int("deleted", result.ItemsDeleted),
		zap.Int64("bytes_freed", result.BytesFreed),
		zap.Int("duplicates_removed", result.DuplicatesRemoved),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// selectTargets runs the pure classification pipeline: duplicate resolution,
// then age/size selection over the survivors, unioned and deduplicated by
// reference (duplicates first). Safe to call repeatedly; same input, same
// target set.
func selectTargets(items []models.StorageItem, pol policy.Retention, now time.Time) ([]Target, int64) {
	dupTargets := ResolveDuplicates(items)

	dupRefs := make(map[string]bool, len(dupTargets))
	for _, t := range dupTargets {
		dupRefs[t.Item.Reference] = true
	}
	survivors := make([]models.StorageItem, 0, len(items)-len(dupTargets))
	for _, it := range items {
		if !dupRefs[it.Reference] {
			survivors = append(survivors, it)
		}
	}

	expTargets, excess := SelectExpired(survivors, pol, now)

	targets := make([]Target, 0, len(dupTargets)+len(expTargets))
	seen := make(map[string]bool, len(dupTargets)+len(expTargets))
	for _, t := range append(dupTargets, expTargets...) {
		if seen[t.Item.Reference] {
			continue
		}
		seen[t.Item.Reference] = true
		targets = append(targets, t)
	}
	return targets, excess
}

// execute deletes every target, fanning out across e.workers goroutines.
// Outcomes land in a per-target slot so counters and the error list are
// assembled in deterministic target order regardless of scheduling. Failed
// deletions are presumed still present and are not retried.
func (e *Engine) execute(ctx context.Context, targets []Target, result *models.PruningResult) {
	if len(targets) == 0 {
		return
	}

	errs := make([]error, len(targets))
	workers := e.workers
	if workers > len(targets) {
		workers = len(targets)
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = e.deleter.DeleteItem(ctx, targets[i].Item.Reference)
			}
		}()
	}
	for i := range targets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, t := range targets {
		if errs[i] != nil {
			e.log.Warn("delete failed",
				zap.String("reference", t.Item.Reference),
				zap.String("reason", string(t.Reason)),
				zap.Error(errs[i]),
			)
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v", t.Item.Reference, errs[i]))
			continue
		}
		result.ItemsDeleted++
		result.BytesFreed += t.Item.SizeBytes
		if t.Reason == ReasonDuplicate {
			result.DuplicatesRemoved++
		}
	}
}

// Stats reports the current storage shape for a user. With an empty category
// it aggregates across every category in the policy table; with a category
// it reports that one (unknown categories are rejected).
func (e *Engine) Stats(ctx context.Context, userID uuid.UUID, category models.Category) (*models.StorageStats, error) {
	var categories []models.Category
	if category == "" {
		for _, c := range models.Categories() {
			if _, ok := e.table[c]; ok {
				categories = append(categories, c)
			}
		}
	} else {
		if _, err := e.table.For(category); err != nil {
			return nil, err
		}
		categories = []models.Category{category}
	}

	stats := &models.StorageStats{
		ByCategory: make(map[models.Category]models.CategoryStats),
	}
	for _, c := range categories {
		items, err := e.lister.ListItems(ctx, userID, c)
		if err != nil {
			return nil, fmt.Errorf("retention: list items: %w", err)
		}
		cs := models.CategoryStats{}
		for _, it := range items {
			cs.Items++
			cs.SizeBytes += it.SizeBytes
			if stats.OldestItem == nil || it.UploadedAt.Before(stats.OldestItem.UploadedAt) {
				stats.OldestItem = &models.ItemRef{Reference: it.Reference, UploadedAt: it.UploadedAt}
			}
			if stats.NewestItem == nil || it.UploadedAt.After(stats.NewestItem.UploadedAt) {
				stats.NewestItem = &models.ItemRef{Reference: it.Reference, UploadedAt: it.UploadedAt}
			}
		}
		stats.ByCategory[c] = cs
		stats.TotalItems += cs.Items
		stats.TotalSizeBytes += cs.SizeBytes
	}
	return stats, nil
}

// SnapshotInventory partitions a category's current items by golden-snapshot
// class. Read-only; used for audit dashboards.
func (e *Engine) SnapshotInventory(ctx context.Context, userID uuid.UUID, category models.Category) (*models.SnapshotInventory, error) {
	if _, err := e.table.For(category); err != nil {
		return nil, err
	}
	items, err := e.lister.ListItems(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("retention: list items: %w", err)
	}

	inv := &models.SnapshotInventory{}
	for _, it := range items {
		switch Classify(it.UploadedAt) {
		case SnapshotQuarterly:
			inv.Quarterly = append(inv.Quarterly, it)
		case SnapshotMonthly:
			inv.Monthly = append(inv.Monthly, it)
		default:
			inv.Regular = append(inv.Regular, it)
		}
	}
	return inv, nil
}
