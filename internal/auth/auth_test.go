package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsweep/vaultsweep/internal/auth"
	"github.com/vaultsweep/vaultsweep/internal/models"
)

// ── API Key ───────────────────────────────────────────────────────────────────

func TestGenerateAPIKey_Format(t *testing.T) {
	plaintext, hash, prefix, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, len(plaintext) > 8, "plaintext must be non-trivial length")
	assert.NotEmpty(t, hash)
	assert.NotEmpty(t, prefix)
	assert.Contains(t, plaintext, "vs_", "key must carry vs_ prefix")
	assert.Len(t, prefix, 8, "lookup prefix must be 8 chars")
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	k1, _, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	k2, _, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2, "generated keys must be unique")
}

func TestValidateAPIKey_Valid(t *testing.T) {
	plaintext, hash, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, auth.ValidateAPIKey(plaintext, hash))
}

func TestValidateAPIKey_Invalid(t *testing.T) {
	_, hash, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	assert.False(t, auth.ValidateAPIKey("vs_wrongkey", hash))
}

func TestPrefixOf_Valid(t *testing.T) {
	plaintext, _, expectedPrefix, err := auth.GenerateAPIKey()
	require.NoError(t, err)

	prefix, err := auth.PrefixOf(plaintext)
	require.NoError(t, err)
	assert.Equal(t, expectedPrefix, prefix)
}

func TestPrefixOf_InvalidFormat(t *testing.T) {
	_, err := auth.PrefixOf("not-a-vaultsweep-key")
	require.Error(t, err)
}

func TestPrefixOf_TooShort(t *testing.T) {
	_, err := auth.PrefixOf("vs_short")
	require.Error(t, err)
}

// ── JWT ───────────────────────────────────────────────────────────────────────

func TestJWT_IssueAndVerify(t *testing.T) {
	secret := "super-secret-test-key-at-least-32-chars"
	user := &models.User{
		ID:    uuid.New(),
		Name:  "Test User",
		Email: "test@example.com",
	}

	token, err := auth.IssueJWT(secret, user, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := auth.VerifyJWT(secret, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
}

func TestJWT_WrongSecret(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	token, err := auth.IssueJWT("correct-secret-key-that-is-long-enough", user, time.Hour)
	require.NoError(t, err)

	_, err = auth.VerifyJWT("wrong-secret-key-that-is-long-enough!!", token)
	require.Error(t, err, "verification with wrong secret must fail")
}

func TestJWT_Expired(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	// Issue with -1 second TTL = already expired.
	token, err := auth.IssueJWT("secret-key-that-is-long-enough-for-test", user, -time.Second)
	require.NoError(t, err)

	_, err = auth.VerifyJWT("secret-key-that-is-long-enough-for-test", token)
	require.Error(t, err, "expired token must fail verification")
}

func TestJWT_Tampered(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	token, err := auth.IssueJWT("my-jwt-signing-secret-key-32chars!!", user, time.Hour)
	require.NoError(t, err)

	// Append garbage to the token signature.
	tampered := token + "tampered"
	_, err = auth.VerifyJWT("my-jwt-signing-secret-key-32chars!!", tampered)
	require.Error(t, err, "tampered token must fail verification")
}
