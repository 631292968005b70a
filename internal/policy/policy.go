// Package policy holds the per-category retention policy table. Policies are
// static per deployment: the compiled-in defaults below can be adjusted from
// configuration, and individual runs may carry a partial override.
package policy

import (
	"errors"
	"fmt"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// ErrUnknownCategory is returned when a category has no table entry. Pruning
// an unrecognized category is a caller error: applying a default policy to a
// data shape the engine does not understand risks over- or under-retention.
var ErrUnknownCategory = errors.New("policy: unknown category")

const (
	mib = int64(1) << 20
)

// Retention is the named set of thresholds governing eviction for one
// category. Zero values disable the corresponding rule: MaxAgeDays == 0
// means items never age out, MaxTotalSizeBytes == 0 means no size ceiling.
type Retention struct {
	// MaxAgeDays is the age beyond which an item becomes an eviction
	// candidate.
	MaxAgeDays int
	// MinKeepCount is the floor of most-recent items retained regardless of
	// age or size pressure.
	MinKeepCount int
	// ProtectPeriodicSnapshots exempts golden snapshots (first-of-month
	// uploads) from age and size eviction. Never from deduplication.
	ProtectPeriodicSnapshots bool
	// MaxTotalSizeBytes caps the total stored size; oldest unprotected items
	// are evicted until the category fits.
	MaxTotalSizeBytes int64
}

// Override supersedes individual Retention fields for a single run. Nil
// fields fall back to the table entry.
type Override struct {
	MaxAgeDays               *int   `json:"max_age_days,omitempty"`
	MinKeepCount             *int   `json:"min_keep_count,omitempty"`
	ProtectPeriodicSnapshots *bool  `json:"protect_periodic_snapshots,omitempty"`
	MaxTotalSizeBytes        *int64 `json:"max_total_size_bytes,omitempty"`
}

// Apply returns a copy of r with every non-nil override field substituted.
func (r Retention) Apply(o *Override) Retention {
	if o == nil {
		return r
	}
	if o.MaxAgeDays != nil {
		r.MaxAgeDays = *o.MaxAgeDays
	}
	if o.MinKeepCount != nil {
		r.MinKeepCount = *o.MinKeepCount
	}
	if o.ProtectPeriodicSnapshots != nil {
		r.ProtectPeriodicSnapshots = *o.ProtectPeriodicSnapshots
	}
	if o.MaxTotalSizeBytes != nil {
		r.MaxTotalSizeBytes = *o.MaxTotalSizeBytes
	}
	return r
}

// Table maps categories to their retention policies.
type Table map[models.Category]Retention

// Defaults returns the compiled-in policy table.
func Defaults() Table {
	return Table{
		models.CategoryConversationSession: {
			MaxAgeDays:               90,
			MinKeepCount:             50,
			ProtectPeriodicSnapshots: true,
			MaxTotalSizeBytes:        100 * mib,
		},
		models.CategoryContextVault: {
			MaxAgeDays:               365,
			MinKeepCount:             12,
			ProtectPeriodicSnapshots: true,
			MaxTotalSizeBytes:        50 * mib,
		},
		models.CategoryRawSnapshot: {
			MaxAgeDays:               365,
			MinKeepCount:             10,
			ProtectPeriodicSnapshots: true,
			MaxTotalSizeBytes:        300 * mib,
		},
		// Formal outputs are kept forever; only deduplication touches them.
		models.CategoryReport: {
			ProtectPeriodicSnapshots: true,
		},
		models.CategoryMonthlyAggregate: {
			ProtectPeriodicSnapshots: true,
		},
		models.CategoryQuarterlyAggregate: {
			ProtectPeriodicSnapshots: true,
		},
	}
}

// For returns the policy for category, or ErrUnknownCategory.
func (t Table) For(category models.Category) (Retention, error) {
	r, ok := t[category]
	if !ok {
		return Retention{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return r, nil
}

// Merge overlays adjustments onto t, returning a new table. Adjustment keys
// must name known categories; a Merge never introduces a new category, so an
// unknown key is a configuration error.
func (t Table) Merge(adjust map[models.Category]Retention) (Table, error) {
	out := make(Table, len(t))
	for c, r := range t {
		out[c] = r
	}
	for c, r := range adjust {
		if _, ok := out[c]; !ok {
			return nil, fmt.Errorf("%w: %q in policy config", ErrUnknownCategory, c)
		}
		out[c] = r
	}
	return out, nil
}
