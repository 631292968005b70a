package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultsweep/vaultsweep/internal/models"
)

// ── UserRepository ────────────────────────────────────────────────────────────

type UserRepository struct{ db *pgxpool.Pool }

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users
		(id,name,email,storage_creds_enc,sweep_interval_secs,active,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING created_at,updated_at`
	return r.db.QueryRow(ctx, q,
		u.ID, u.Name, u.Email, u.StorageCredsEnc, u.SweepIntervalSecs, u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id,name,email,storage_creds_enc,sweep_interval_secs,last_swept_at,active,created_at,updated_at
		FROM users WHERE id=$1`
	u := &models.User{}
	err := r.db.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.StorageCredsEnc, &u.SweepIntervalSecs,
		&u.LastSweptAt, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("user get: %w", err)
	}
	return u, nil
}

// ListDue returns active users whose sweep interval has elapsed since their
// last sweep.
func (r *UserRepository) ListDue(ctx context.Context) ([]*models.User, error) {
	const q = `SELECT id,name,email,storage_creds_enc,sweep_interval_secs,last_swept_at,active,created_at,updated_at
		FROM users
		WHERE active=true
		  AND (last_swept_at IS NULL OR
		       last_swept_at < now() - (sweep_interval_secs || ' seconds')::interval)`
	return r.scanUsers(ctx, q)
}

func (r *UserRepository) UpdateLastSwept(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_swept_at=$2, updated_at=now() WHERE id=$1`, id, t)
	return err
}

func (r *UserRepository) UpdateStorageCreds(ctx context.Context, id uuid.UUID, credsEnc string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET storage_creds_enc=$2, updated_at=now() WHERE id=$1`, id, credsEnc)
	return err
}

func (r *UserRepository) scanUsers(ctx context.Context, q string, args ...interface{}) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.StorageCredsEnc, &u.SweepIntervalSecs,
			&u.LastSweptAt, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ── APIKeyRepository ──────────────────────────────────────────────────────────

type APIKeyRepository struct{ db *pgxpool.Pool }

func NewAPIKeyRepository(db *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, k *models.APIKey) error {
	const q = `INSERT INTO api_keys(id,user_id,prefix,key_hash,label,created_at)
		VALUES($1,$2,$3,$4,$5,now()) RETURNING created_at`
	return r.db.QueryRow(ctx, q, k.ID, k.UserID, k.Prefix, k.KeyHash, k.Label).Scan(&k.CreatedAt)
}

func (r *APIKeyRepository) GetByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	const q = `SELECT id,user_id,prefix,key_hash,label,created_at,last_used_at,revoked_at
		FROM api_keys WHERE prefix=$1 AND revoked_at IS NULL`
	rows, err := r.db.Query(ctx, q, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.APIKey
	for rows.Next() {
		k := &models.APIKey{}
		if err := rows.Scan(&k.ID, &k.UserID, &k.Prefix, &k.KeyHash, &k.Label,
			&k.CreatedAt, &k.LastUsedAt, &k.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	const q = `SELECT id,user_id,prefix,key_hash,label,created_at,last_used_at,revoked_at
		FROM api_keys WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.APIKey
	for rows.Next() {
		k := &models.APIKey{}
		if err := rows.Scan(&k.ID, &k.UserID, &k.Prefix, &k.KeyHash, &k.Label,
			&k.CreatedAt, &k.LastUsedAt, &k.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// GetByUserAndID is the ownership check used before revocation.
func (r *APIKeyRepository) GetByUserAndID(ctx context.Context, userID, id uuid.UUID) (*models.APIKey, error) {
	const q = `SELECT id,user_id,prefix,key_hash,label,created_at,last_used_at,revoked_at
		FROM api_keys WHERE user_id=$1 AND id=$2`
	k := &models.APIKey{}
	err := r.db.QueryRow(ctx, q, userID, id).Scan(&k.ID, &k.UserID, &k.Prefix, &k.KeyHash,
		&k.Label, &k.CreatedAt, &k.LastUsedAt, &k.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("api_key get: %w", err)
	}
	return k, nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at=now() WHERE id=$1`, id)
	return err
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET revoked_at=now() WHERE id=$1`, id)
	return err
}

// ── ItemRepository ────────────────────────────────────────────────────────────

// ItemRepository is the owning application's metadata index over stored
// objects. It is the canonical retention.Lister: unlike the object store, it
// knows the exact plaintext content hash and size the uploader recorded.
type ItemRepository struct{ db *pgxpool.Pool }

func NewItemRepository(db *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{db: db}
}

// Upsert records or refreshes one item's metadata. Uploads are idempotent by
// reference; metadata never changes once written, so conflicts are no-ops.
func (r *ItemRepository) Upsert(ctx context.Context, userID uuid.UUID, it *models.StorageItem) error {
	const q = `INSERT INTO items(reference,user_id,content_hash,category,uploaded_at,size_bytes)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (reference) DO NOTHING`
	_, err := r.db.Exec(ctx, q,
		it.Reference, userID, it.ContentHash, it.Category, it.UploadedAt, it.SizeBytes)
	return err
}

// ListItems implements retention.Lister over the index.
func (r *ItemRepository) ListItems(ctx context.Context, userID uuid.UUID, category models.Category) ([]models.StorageItem, error) {
	const q = `SELECT reference,content_hash,category,uploaded_at,size_bytes
		FROM items WHERE user_id=$1 AND category=$2
		ORDER BY uploaded_at ASC, reference ASC`
	rows, err := r.db.Query(ctx, q, userID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StorageItem
	for rows.Next() {
		var it models.StorageItem
		if err := rows.Scan(&it.Reference, &it.ContentHash, &it.Category,
			&it.UploadedAt, &it.SizeBytes); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Delete drops one index row after its object has been removed.
func (r *ItemRepository) Delete(ctx context.Context, reference string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM items WHERE reference=$1`, reference)
	return err
}

// ── PruneRunRepository ────────────────────────────────────────────────────────

type PruneRunRepository struct{ db *pgxpool.Pool }

func NewPruneRunRepository(db *pgxpool.Pool) *PruneRunRepository {
	return &PruneRunRepository{db: db}
}

func (r *PruneRunRepository) Create(ctx context.Context, run *models.PruneRun) error {
	const q = `INSERT INTO prune_runs
		(id,user_id,category,status,items_scanned,items_deleted,bytes_freed,
		 duplicates_removed,size_excess_bytes,errors,err_msg,chain_hash,started_at,finished_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.db.Exec(ctx, q,
		run.ID, run.UserID, run.Category, run.Status,
		run.ItemsScanned, run.ItemsDeleted, run.BytesFreed,
		run.DuplicatesRemoved, run.SizeExcessBytes, run.Errors, run.ErrMsg,
		run.ChainHash, run.StartedAt, run.FinishedAt,
	)
	return err
}

func (r *PruneRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PruneRun, error) {
	const q = `SELECT id,user_id,category,status,items_scanned,items_deleted,bytes_freed,
			duplicates_removed,size_excess_bytes,errors,err_msg,chain_hash,started_at,finished_at
		FROM prune_runs WHERE id=$1`
	run := &models.PruneRun{}
	err := r.db.QueryRow(ctx, q, id).Scan(
		&run.ID, &run.UserID, &run.Category, &run.Status,
		&run.ItemsScanned, &run.ItemsDeleted, &run.BytesFreed,
		&run.DuplicatesRemoved, &run.SizeExcessBytes, &run.Errors, &run.ErrMsg,
		&run.ChainHash, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("prune_run get: %w", err)
	}
	return run, nil
}

// GetLastRun returns the most recent run for a user, or nil when the chain
// has not started yet.
func (r *PruneRunRepository) GetLastRun(ctx context.Context, userID uuid.UUID) (*models.PruneRun, error) {
	const q = `SELECT id,user_id,category,status,items_scanned,items_deleted,bytes_freed,
			duplicates_removed,size_excess_bytes,errors,err_msg,chain_hash,started_at,finished_at
		FROM prune_runs WHERE user_id=$1
		ORDER BY finished_at DESC, id DESC LIMIT 1`
	run := &models.PruneRun{}
	err := r.db.QueryRow(ctx, q, userID).Scan(
		&run.ID, &run.UserID, &run.Category, &run.Status,
		&run.ItemsScanned, &run.ItemsDeleted, &run.BytesFreed,
		&run.DuplicatesRemoved, &run.SizeExcessBytes, &run.Errors, &run.ErrMsg,
		&run.ChainHash, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *PruneRunRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PruneRun, error) {
	const q = `SELECT id,user_id,category,status,items_scanned,items_deleted,bytes_freed,
			duplicates_removed,size_excess_bytes,errors,err_msg,chain_hash,started_at,finished_at
		FROM prune_runs WHERE user_id=$1
		ORDER BY finished_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.PruneRun
	for rows.Next() {
		run := &models.PruneRun{}
		if err := rows.Scan(
			&run.ID, &run.UserID, &run.Category, &run.Status,
			&run.ItemsScanned, &run.ItemsDeleted, &run.BytesFreed,
			&run.DuplicatesRemoved, &run.SizeExcessBytes, &run.Errors, &run.ErrMsg,
			&run.ChainHash, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
