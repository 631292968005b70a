// Package storage provides object-store adapters for encrypted vault items.
// The S3 store works with any S3-compatible provider: AWS, Garage, Hetzner
// Object Storage, Cloudflare R2, MinIO, etc. MultiStore layers multi-provider
// redundancy on top: listings come from the first provider that answers,
// deletions fan out to every provider so a pruned item does not survive on a
// replica.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vaultsweep/vaultsweep/internal/config"
	"github.com/vaultsweep/vaultsweep/internal/models"
)

// Store wraps an S3 client for a specific bucket / provider.
type Store struct {
	client   *s3.Client
	bucket   string
	provider string
}

// New creates a Store from config. Works with any S3-compatible endpoint.
func New(ctx context.Context, cfg config.S3Config, provider string) (*Store, error) {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	store := &Store{client: client, bucket: cfg.Bucket, provider: provider}
	if err := store.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure bucket exists: %w", err)
	}
	return store, nil
}

// ensureBucketExists checks if the bucket exists and creates it if it
// doesn't. HeadBucket failure is treated as "missing"; CreateBucket then
// surfaces real permission problems.
func (s *Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Provider returns the human-readable provider label.
func (s *Store) Provider() string { return s.provider }

// ListItems pages through every object under the (user, category) prefix and
// decodes retention metadata from the keys. Objects with foreign key shapes
// under the prefix are skipped; this engine only manages what it can
// classify.
func (s *Store) ListItems(ctx context.Context, userID uuid.UUID, category models.Category) ([]models.StorageItem, error) {
	prefix := ItemPrefix(userID, category)

	var items []models.StorageItem
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			item, err := ParseItemKey(aws.ToString(obj.Key))
			if err != nil {
				continue
			}
			item.SizeBytes = aws.ToInt64(obj.Size)
			items = append(items, item)
		}
	}
	return items, nil
}

// PutItem uploads an encrypted payload under a deterministic key, so a
// duplicate upload of the same content at the same instant is idempotent.
func (s *Store) PutItem(ctx context.Context, userID uuid.UUID, category models.Category, uploadedAt time.Time, contentHash string, payload []byte) (string, error) {
	key := BuildItemKey(userID, category, uploadedAt, contentHash)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      map[string]string{"content-hash": contentHash},
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return key, nil
}

// DeleteItem removes an object (called by the pruning executor).
func (s *Store) DeleteItem(ctx context.Context, reference string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(reference),
	})
	if err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// ── Multi-provider redundancy ─────────────────────────────────────────────────

// MultiStore tries providers in order. Listings and uploads return on first
// success; deletions go to every provider, because a pruned item must not
// stay resolvable through a replica.
type MultiStore struct {
	providers []Backend
}

// NewMultiStore creates a MultiStore from a list of stores (primary first).
func NewMultiStore(providers ...Backend) *MultiStore {
	return &MultiStore{providers: providers}
}

// Provider returns the primary provider's label.
func (m *MultiStore) Provider() string {
	if len(m.providers) == 0 {
		return ""
	}
	return m.providers[0].Provider()
}

func (m *MultiStore) ListItems(ctx context.Context, userID uuid.UUID, category models.Category) ([]models.StorageItem, error) {
	var lastErr error
	for _, p := range m.providers {
		items, err := p.ListItems(ctx, userID, category)
		if err == nil {
			return items, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("storage: all providers failed: %w", lastErr)
}

func (m *MultiStore) PutItem(ctx context.Context, userID uuid.UUID, category models.Category, uploadedAt time.Time, contentHash string, payload []byte) (string, error) {
	var lastErr error
	for _, p := range m.providers {
		ref, err := p.PutItem(ctx, userID, category, uploadedAt, contentHash, payload)
		if err == nil {
			return ref, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("storage: all providers failed: %w", lastErr)
}

// DeleteItem deletes from all providers (best-effort; last error wins).
func (m *MultiStore) DeleteItem(ctx context.Context, reference string) error {
	var lastErr error
	for _, p := range m.providers {
		if err := p.DeleteItem(ctx, reference); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
