package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
)

func TestDefaults_CoversEveryCategory(t *testing.T) {
	table := policy.Defaults()
	for _, c := range models.Categories() {
		_, err := table.For(c)
		assert.NoError(t, err, "category %s must have a default policy", c)
	}
}

func TestDefaults_Values(t *testing.T) {
	table := policy.Defaults()

	conv, err := table.For(models.CategoryConversationSession)
	require.NoError(t, err)
	assert.Equal(t, 90, conv.MaxAgeDays)
	assert.Equal(t, 50, conv.MinKeepCount)
	assert.True(t, conv.ProtectPeriodicSnapshots)
	assert.Equal(t, int64(100)<<20, conv.MaxTotalSizeBytes)

	report, err := table.For(models.CategoryReport)
	require.NoError(t, err)
	assert.Zero(t, report.MaxAgeDays, "reports never age out")
	assert.Zero(t, report.MaxTotalSizeBytes, "reports have no size ceiling")
}

func TestFor_UnknownCategory(t *testing.T) {
	table := policy.Defaults()
	_, err := table.For(models.Category("telemetry"))
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrUnknownCategory)
	assert.Contains(t, err.Error(), "telemetry")
}

func TestApply_Override(t *testing.T) {
	base := policy.Retention{
		MaxAgeDays:               90,
		MinKeepCount:             50,
		ProtectPeriodicSnapshots: true,
		MaxTotalSizeBytes:        1 << 30,
	}

	age, protect := 7, false
	got := base.Apply(&policy.Override{MaxAgeDays: &age, ProtectPeriodicSnapshots: &protect})

	assert.Equal(t, 7, got.MaxAgeDays)
	assert.False(t, got.ProtectPeriodicSnapshots)
	assert.Equal(t, 50, got.MinKeepCount, "unset fields fall back to the table")
	assert.Equal(t, int64(1)<<30, got.MaxTotalSizeBytes)

	// The table entry itself is untouched.
	assert.Equal(t, 90, base.MaxAgeDays)
}

func TestApply_NilOverride(t *testing.T) {
	base := policy.Retention{MaxAgeDays: 42}
	assert.Equal(t, base, base.Apply(nil))
}

func TestMerge(t *testing.T) {
	table := policy.Defaults()

	merged, err := table.Merge(map[models.Category]policy.Retention{
		models.CategoryRawSnapshot: {MaxAgeDays: 30, MinKeepCount: 5},
	})
	require.NoError(t, err)

	raw, err := merged.For(models.CategoryRawSnapshot)
	require.NoError(t, err)
	assert.Equal(t, 30, raw.MaxAgeDays)
	assert.Equal(t, 5, raw.MinKeepCount)

	// Original table keeps its defaults.
	orig, err := table.For(models.CategoryRawSnapshot)
	require.NoError(t, err)
	assert.Equal(t, 365, orig.MaxAgeDays)
}

func TestMerge_RejectsUnknownCategory(t *testing.T) {
	_, err := policy.Defaults().Merge(map[models.Category]policy.Retention{
		models.Category("made-up"): {},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrUnknownCategory)
}
