package retention

import (
	"sort"
	"time"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
)

// SelectExpired decides which of the already-deduplicated items are eligible
// for deletion under the age and total-size rules of pol, evaluated at now.
// It returns the targets and the residual excess over the size ceiling that
// protections (golden snapshots, the MinKeepCount floor) forced the pass to
// leave behind. Residual excess is reported, never forced: protection wins
// over strict ceiling compliance.
func SelectExpired(items []models.StorageItem, pol policy.Retention, now time.Time) ([]Target, int64) {
	n := len(items)
	if n == 0 {
		return nil, 0
	}

	// Oldest first; ties keep original list order so selection is
	// reproducible for identical input.
	sorted := make([]models.StorageItem, n)
	copy(sorted, items)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].UploadedAt.Before(sorted[b].UploadedAt)
	})

	protected := func(it models.StorageItem) bool {
		return pol.ProtectPeriodicSnapshots && IsGolden(it)
	}
	// The MinKeepCount most-recent items are positions n-MinKeepCount..n-1.
	withinFloor := func(i int) bool {
		return i >= n-pol.MinKeepCount
	}

	marked := make([]bool, n)
	var targets []Target

	// Age pass.
	if pol.MaxAgeDays > 0 {
		maxAge := time.Duration(pol.MaxAgeDays) * 24 * time.Hour
		for i, it := range sorted {
			if withinFloor(i) || protected(it) {
				continue
			}
			if now.Sub(it.UploadedAt) > maxAge {
				marked[i] = true
				targets = append(targets, Target{Item: it, Reason: ReasonAge})
			}
		}
	}

	// Size pass over what the age pass left behind.
	var excess int64
	if pol.MaxTotalSizeBytes > 0 {
		var total int64
		for i, it := range sorted {
			if !marked[i] {
				total += it.SizeBytes
			}
		}
		for i, it := range sorted {
			if total <= pol.MaxTotalSizeBytes {
				break
			}
			if marked[i] || withinFloor(i) || protected(it) {
				continue
			}
			marked[i] = true
			total -= it.SizeBytes
			targets = append(targets, Target{Item: it, Reason: ReasonSize})
		}
		if total > pol.MaxTotalSizeBytes {
			excess = total - pol.MaxTotalSizeBytes
		}
	}

	return targets, excess
}
