package retention

import (
	"context"

	"github.com/google/uuid"
	"github.com/vaultsweep/vaultsweep/internal/models"
)

// Collaborator interfaces for dependency injection. The engine knows nothing
// about how references map to remote storage, encryption, or authentication;
// the owning application supplies both sides.

// Lister returns every stored item for a user and category. A lister failure
// is fatal to the whole prune run: without the candidate set no deletion may
// be attempted.
type Lister interface {
	ListItems(ctx context.Context, userID uuid.UUID, category models.Category) ([]models.StorageItem, error)
}

// Deleter removes one item by reference. Deleter failures are non-fatal and
// recorded per item; a failed deletion is never retried by the engine because
// delete idempotency is a collaborator-specific contract.
type Deleter interface {
	DeleteItem(ctx context.Context, reference string) error
}
