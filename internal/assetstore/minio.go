package assetstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// MetadataStore tracks uploaded objects so the sweep can reclaim
// anything whose per-request cleanup never ran.
type MetadataStore interface {
	Insert(ctx context.Context, asset domain.TemporaryAsset) error
	Delete(ctx context.Context, key string) error
	ListOlderThan(ctx context.Context, horizon time.Time, limit int) ([]domain.TemporaryAsset, error)
}

// Options configures the MinIO-backed temporary asset store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

// Store uploads images to a short-lived public location so URL-based
// providers can fetch them, and deletes them on demand.
type Store struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
	meta   MetadataStore
	logger zerolog.Logger
}

// NewStore connects to the object store and ensures the bucket exists.
func NewStore(ctx context.Context, opts Options, meta MetadataStore, logger zerolog.Logger) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("assetstore: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("assetstore: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("assetstore: create bucket: %w", err)
		}
	}

	ttl := opts.URLTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{client: client, bucket: opts.Bucket, urlTTL: ttl, meta: meta, logger: logger}, nil
}

// Upload stores one image and returns its key plus a presigned URL a
// provider can fetch it from.
func (s *Store) Upload(ctx context.Context, data []byte, mime, owner string) (domain.TemporaryAsset, error) {
	key := fmt.Sprintf("uploads/%s/%s%s", sanitizeOwner(owner), uuid.NewString(), extForMIME(mime))
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mime,
	})
	if err != nil {
		return domain.TemporaryAsset{}, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, nil)
	if err != nil {
		// The object exists but is unreachable; remove it rather than leak.
		_ = s.client.RemoveObject(context.WithoutCancel(ctx), s.bucket, key, minio.RemoveObjectOptions{})
		return domain.TemporaryAsset{}, fmt.Errorf("%w: presign: %v", domain.ErrUploadFailed, err)
	}

	asset := domain.TemporaryAsset{Key: key, URL: url.String(), Owner: owner, CreatedAt: time.Now()}
	if err := s.meta.Insert(ctx, asset); err != nil {
		// Metadata is the sweep's safety net, not a precondition.
		s.logger.Warn().Err(err).Str("key", key).Msg("assetstore: metadata insert failed")
	}
	return asset, nil
}

// UploadBatch uploads all sources as an unordered concurrent batch. On
// failure it returns the assets that did get uploaded so the caller can
// clean them up, along with the first error.
func (s *Store) UploadBatch(ctx context.Context, sources []domain.SourceImage, owner string) ([]domain.TemporaryAsset, error) {
	results := make([]domain.TemporaryAsset, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			asset, err := s.Upload(gCtx, src.Data, src.MIME, owner)
			if err != nil {
				return err
			}
			results[i] = asset
			return nil
		})
	}
	err := g.Wait()

	uploaded := make([]domain.TemporaryAsset, 0, len(results))
	for _, asset := range results {
		if asset.Key != "" {
			uploaded = append(uploaded, asset)
		}
	}
	if err != nil {
		return uploaded, err
	}
	return uploaded, nil
}

// Delete removes one object and its metadata row.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("assetstore: remove %s: %w", key, err)
	}
	if err := s.meta.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("assetstore: metadata delete failed")
	}
	return nil
}

func sanitizeOwner(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, owner)
}

func extForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
