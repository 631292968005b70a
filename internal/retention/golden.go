// Package retention implements the pruning engine: duplicate resolution,
// golden-snapshot classification, age/size eviction selection, and the
// executor that drives deletions through injected storage collaborators.
//
// The classification half (golden.go, dedup.go, selector.go) is pure: no
// I/O, no shared state, deterministic for identical input. Only the executor
// in engine.go touches the outside world.
package retention

import (
	"time"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// SnapshotClass is the golden-snapshot classification of an item. Quarterly
// snapshots are a strict subset of monthly ones; the distinction exists for
// inventory reporting, not protection strength — the selector treats both
// identically.
type SnapshotClass int

const (
	SnapshotRegular SnapshotClass = iota
	SnapshotMonthly
	SnapshotQuarterly
)

func (c SnapshotClass) String() string {
	switch c {
	case SnapshotMonthly:
		return "monthly"
	case SnapshotQuarterly:
		return "quarterly"
	default:
		return "regular"
	}
}

// Classify returns the golden-snapshot class of an upload timestamp. The
// calendar is evaluated in UTC: sync jobs stamp uploads in UTC, and goldening
// must not depend on the prune host's zone. Content is never consulted —
// timestamps are the one piece of metadata this engine trusts.
func Classify(uploadedAt time.Time) SnapshotClass {
	t := uploadedAt.UTC()
	if t.Day() != 1 {
		return SnapshotRegular
	}
	switch t.Month() {
	case time.January, time.April, time.July, time.October:
		return SnapshotQuarterly
	default:
		return SnapshotMonthly
	}
}

// IsGolden reports whether an item is a protected periodic snapshot
// (monthly or quarterly).
func IsGolden(item models.StorageItem) bool {
	return Classify(item.UploadedAt) != SnapshotRegular
}
