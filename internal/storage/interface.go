package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// Backend is the object-store contract for vault items. Payloads are
// encrypted before they reach this layer and are never inspected; everything
// the retention engine needs travels in the object key and size, so a full
// listing costs one paginated scan with no per-object round trips.
//
// Backend satisfies retention.Lister and retention.Deleter.
type Backend interface {
	// ListItems returns every stored item for a user and category.
	ListItems(ctx context.Context, userID uuid.UUID, category models.Category) ([]models.StorageItem, error)

	// PutItem stores an encrypted payload and returns its reference. The
	// content hash is computed by the uploader over the plaintext; this
	// layer only records it.
	PutItem(ctx context.Context, userID uuid.UUID, category models.Category, uploadedAt time.Time, contentHash string, payload []byte) (reference string, err error)

	// DeleteItem removes one item by reference (used by the pruning
	// executor).
	DeleteItem(ctx context.Context, reference string) error

	// Provider returns the name of the storage provider (e.g. "s3", "fs").
	Provider() string
}
