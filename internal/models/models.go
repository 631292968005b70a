package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is the logical data type of a stored object. It selects which
// retention policy applies. Unknown categories are rejected at the policy
// boundary, never silently defaulted.
type Category string

const (
	CategoryConversationSession Category = "conversation-session"
	CategoryContextVault        Category = "context-vault"
	CategoryRawSnapshot         Category = "raw-snapshot"
	CategoryReport              Category = "report"
	CategoryMonthlyAggregate    Category = "monthly-aggregate"
	CategoryQuarterlyAggregate  Category = "quarterly-aggregate"
)

// Categories lists every known category in stable order.
func Categories() []Category {
	return []Category{
		CategoryConversationSession,
		CategoryContextVault,
		CategoryRawSnapshot,
		CategoryReport,
		CategoryMonthlyAggregate,
		CategoryQuarterlyAggregate,
	}
}

// StorageItem is one persisted, immutable vault object. The payload itself is
// encrypted and opaque to this service; only the metadata below is ever
// consulted. Reference is unique across the store and is the key for
// deletion. ContentHash digests the plaintext before encryption, so two items
// with equal hash are the same content re-uploaded under a new reference.
type StorageItem struct {
	Reference   string    `db:"reference"    json:"reference"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	Category    Category  `db:"category"     json:"category"`
	UploadedAt  time.Time `db:"uploaded_at"  json:"uploaded_at"`
	SizeBytes   int64     `db:"size_bytes"   json:"size_bytes"`
}

// PruningResult summarizes one prune execution. Errors holds one entry per
// failed deletion in target order; absence of errors does not mean every
// target was attempted successfully — compare ItemsDeleted against the
// target count. SizeExcessBytes is the residue left above the size ceiling
// when golden or floor protections bound first.
type PruningResult struct {
	ItemsScanned      int      `json:"items_scanned"`
	ItemsDeleted      int      `json:"items_deleted"`
	BytesFreed        int64    `json:"bytes_freed"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	SizeExcessBytes   int64    `json:"size_excess_bytes"`
	Errors            []string `json:"errors,omitempty"`
}

// CategoryStats is the per-category slice of StorageStats.
type CategoryStats struct {
	Items     int   `json:"items"`
	SizeBytes int64 `json:"size_bytes"`
}

// ItemRef points at one item for stats reporting.
type ItemRef struct {
	Reference  string    `json:"reference"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// StorageStats reports the current shape of a user's vault without deleting
// anything.
type StorageStats struct {
	TotalItems     int                        `json:"total_items"`
	TotalSizeBytes int64                      `json:"total_size_bytes"`
	ByCategory     map[Category]CategoryStats `json:"by_category"`
	OldestItem     *ItemRef                   `json:"oldest_item,omitempty"`
	NewestItem     *ItemRef                   `json:"newest_item,omitempty"`
}

// SnapshotInventory partitions a category's items by golden-snapshot
// classification for audit and reporting. Quarterly items do not repeat in
// Monthly.
type SnapshotInventory struct {
	Quarterly []StorageItem `json:"quarterly"`
	Monthly   []StorageItem `json:"monthly"`
	Regular   []StorageItem `json:"regular"`
}

// User is a tenant whose vault is swept. StorageCredsEnc holds the user's
// object-store credentials encrypted with the service master key; empty means
// the service-wide bucket is used. SweepIntervalSecs and LastSweptAt drive
// the background scheduler.
type User struct {
	ID                uuid.UUID  `db:"id"                  json:"id"`
	Name              string     `db:"name"                json:"name"`
	Email             string     `db:"email"               json:"email"`
	StorageCredsEnc   string     `db:"storage_creds_enc"   json:"-"`
	SweepIntervalSecs int        `db:"sweep_interval_secs" json:"sweep_interval_secs"`
	LastSweptAt       *time.Time `db:"last_swept_at"       json:"last_swept_at,omitempty"`
	Active            bool       `db:"active"              json:"active"`
	CreatedAt         time.Time  `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"          json:"updated_at"`
}

// APIKey is a hashed bearer token for a user.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	UserID     uuid.UUID  `db:"user_id"      json:"user_id"`
	Prefix     string     `db:"prefix"       json:"prefix"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	Label      string     `db:"label"        json:"label"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at"   json:"revoked_at,omitempty"`
}

// RunStatus is the lifecycle state of a recorded prune run.
type RunStatus string

const (
	RunStatusDone    RunStatus = "done"
	RunStatusPartial RunStatus = "partial" // finished with per-item errors
	RunStatusFailed  RunStatus = "failed"  // aborted before execution (lister/policy)
)

// PruneRun is the persisted record of one prune execution, chained into the
// tamper-evident audit log. ChainHash links to the previous run for the same
// user.
type PruneRun struct {
	ID                uuid.UUID `db:"id"                 json:"id"`
	UserID            uuid.UUID `db:"user_id"            json:"user_id"`
	Category          Category  `db:"category"           json:"category"`
	Status            RunStatus `db:"status"             json:"status"`
	ItemsScanned      int       `db:"items_scanned"      json:"items_scanned"`
	ItemsDeleted      int       `db:"items_deleted"      json:"items_deleted"`
	BytesFreed        int64     `db:"bytes_freed"        json:"bytes_freed"`
	DuplicatesRemoved int       `db:"duplicates_removed" json:"duplicates_removed"`
	SizeExcessBytes   int64     `db:"size_excess_bytes"  json:"size_excess_bytes"`
	Errors            []string  `db:"errors"             json:"errors,omitempty"`
	ErrMsg            string    `db:"err_msg"            json:"err_msg,omitempty"`
	ChainHash         string    `db:"chain_hash"         json:"chain_hash"`
	StartedAt         time.Time `db:"started_at"         json:"started_at"`
	FinishedAt        time.Time `db:"finished_at"        json:"finished_at"`
}
