package audit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/pkg/audit"
)

func TestGenesisHash(t *testing.T) {
	assert.Len(t, audit.GenesisHash, 64, "genesis hash must be 64 hex chars")
	assert.Equal(t, strings.Repeat("0", 64), audit.GenesisHash)
}

func TestResultDigest_Deterministic(t *testing.T) {
	r := &models.PruningResult{
		ItemsScanned:      10,
		ItemsDeleted:      3,
		BytesFreed:        4096,
		DuplicatesRemoved: 2,
		Errors:            []string{"ref-x: gone"},
	}
	d1, err := audit.ResultDigest(r)
	require.NoError(t, err)
	d2, err := audit.ResultDigest(r)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "digest must be deterministic")
	assert.Len(t, d1, 64)
}

func TestResultDigest_SensitiveToCounters(t *testing.T) {
	a := &models.PruningResult{ItemsDeleted: 3}
	b := &models.PruningResult{ItemsDeleted: 4}

	da, err := audit.ResultDigest(a)
	require.NoError(t, err)
	db, err := audit.ResultDigest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestChainHash_Progression(t *testing.T) {
	d1 := strings.Repeat("1", 64)
	d2 := strings.Repeat("2", 64)
	d3 := strings.Repeat("3", 64)

	h1 := audit.ChainHash(audit.GenesisHash, d1, "run-1")
	h2 := audit.ChainHash(h1, d2, "run-2")
	h3 := audit.ChainHash(h2, d3, "run-3")

	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h2, h3)

	// Tampering mid-chain invalidates every downstream hash.
	h2Tampered := audit.ChainHash(h1, strings.Repeat("9", 64), "run-2")
	h3Tampered := audit.ChainHash(h2Tampered, d3, "run-3")
	assert.NotEqual(t, h2, h2Tampered)
	assert.NotEqual(t, h3, h3Tampered)
}

func TestVerifyLink(t *testing.T) {
	d := strings.Repeat("a", 64)
	h := audit.ChainHash(audit.GenesisHash, d, "run-1")

	require.NoError(t, audit.VerifyLink(audit.GenesisHash, d, "run-1", h))

	err := audit.VerifyLink(audit.GenesisHash, d, "run-2", h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain hash mismatch")
}
