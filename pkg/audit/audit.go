// Package audit provides a tamper-evident hash chain over pruning runs.
// Deletions are irreversible, so every run's outcome is digested and chained
// to the previous run for the same user; rewriting history after the fact
// invalidates every downstream link.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// GenesisHash is the well-known seed for the first run in a user's chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ResultDigest returns the SHA-256 of the canonical JSON encoding of a
// pruning result. Struct field order is fixed, so the encoding is stable.
func ResultDigest(r *models.PruningResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("audit: marshal result: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash computes the next link in the audit chain:
// SHA-256(prevChainHash || resultDigest || runID).
func ChainHash(prevChainHash, resultDigest, runID string) string {
	h := sha256.New()
	h.Write([]byte(prevChainHash))
	h.Write([]byte(resultDigest))
	h.Write([]byte(runID))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyLink confirms that a stored chain hash matches a recomputation from
// its inputs.
func VerifyLink(prevChainHash, resultDigest, runID, storedChainHash string) error {
	if got := ChainHash(prevChainHash, resultDigest, runID); got != storedChainHash {
		return fmt.Errorf("audit: chain hash mismatch: got %s, stored %s", got, storedChainHash)
	}
	return nil
}
