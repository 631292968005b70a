package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

const (
	keyRoot   = "vault"
	keySuffix = ".enc"
	stampFmt  = "20060102T150405Z"
)

// Item keys are self-describing so that listing a prefix yields full
// retention metadata without touching object bodies:
//
//	vault/<user>/<category>/<YYYY>/<MM>/<DD>/<stamp>_<sha256hex>.enc
//
// The date directories are a browsing aid; the stamp inside the base name is
// authoritative for UploadedAt.

// ItemPrefix returns the listing prefix for one (user, category) pair.
func ItemPrefix(userID uuid.UUID, category models.Category) string {
	return fmt.Sprintf("%s/%s/%s/", keyRoot, userID, category)
}

// BuildItemKey encodes item metadata into an object key.
func BuildItemKey(userID uuid.UUID, category models.Category, uploadedAt time.Time, contentHash string) string {
	u := uploadedAt.UTC()
	return fmt.Sprintf("%s%s/%s_%s%s",
		ItemPrefix(userID, category),
		u.Format("2006/01/02"),
		u.Format(stampFmt),
		contentHash,
		keySuffix,
	)
}

// ParseItemKey decodes an object key back into item metadata. SizeBytes is
// not part of the key; listers fill it from the object listing. Keys that do
// not follow the layout (foreign objects under the prefix) return an error
// and are skipped by listers.
func ParseItemKey(key string) (models.StorageItem, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 7 || parts[0] != keyRoot {
		return models.StorageItem{}, fmt.Errorf("storage: malformed item key: %s", key)
	}
	category := models.Category(parts[2])

	base := strings.TrimSuffix(parts[6], keySuffix)
	if base == parts[6] {
		return models.StorageItem{}, fmt.Errorf("storage: missing %s suffix: %s", keySuffix, key)
	}
	stamp, hash, ok := strings.Cut(base, "_")
	if !ok || len(hash) != 64 {
		return models.StorageItem{}, fmt.Errorf("storage: malformed item name: %s", key)
	}
	uploadedAt, err := time.Parse(stampFmt, stamp)
	if err != nil {
		return models.StorageItem{}, fmt.Errorf("storage: bad upload stamp in %s: %w", key, err)
	}

	return models.StorageItem{
		Reference:   key,
		ContentHash: hash,
		Category:    category,
		UploadedAt:  uploadedAt,
	}, nil
}
