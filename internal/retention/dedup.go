package retention

import (
	"sort"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// Reason records why an item was selected for deletion.
type Reason string

const (
	ReasonDuplicate Reason = "duplicate"
	ReasonAge       Reason = "age"
	ReasonSize      Reason = "size"
)

// Target is one item selected for deletion.
type Target struct {
	Item   models.StorageItem
	Reason Reason
}

// ResolveDuplicates groups items by content hash and marks redundant copies
// for deletion. For a group of two or more, the earliest upload (provenance
// anchor) and the latest (the reference current consumers resolve to) both
// survive; everything between is a target. Singleton groups are untouched.
//
// Output order is deterministic: groups in first-seen order, members in
// upload order with ties broken by original list position.
func ResolveDuplicates(items []models.StorageItem) []Target {
	groups := make(map[string][]int)
	var order []string
	for i, it := range items {
		if _, seen := groups[it.ContentHash]; !seen {
			order = append(order, it.ContentHash)
		}
		groups[it.ContentHash] = append(groups[it.ContentHash], i)
	}

	var targets []Target
	for _, hash := range order {
		idx := groups[hash]
		if len(idx) <= 2 {
			// One copy, or exactly the earliest/latest pair.
			continue
		}
		members := make([]int, len(idx))
		copy(members, idx)
		sort.SliceStable(members, func(a, b int) bool {
			return items[members[a]].UploadedAt.Before(items[members[b]].UploadedAt)
		})
		for _, i := range members[1 : len(members)-1] {
			targets = append(targets, Target{Item: items[i], Reason: ReasonDuplicate})
		}
	}
	return targets
}
