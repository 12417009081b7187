package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	appconfig "storefront/internal/config"
	"storefront/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "products/"

var (
	ErrStorageNotConfigured = errors.New("image storage is not configured")
	ErrUnsupportedImageType = errors.New("only JPEG, PNG, WEBP and GIF images are allowed")
)

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageStore keeps product images with the object storage provider
type ImageStore interface {
	Upload(ctx context.Context, body io.Reader, filename, contentType string) (*domain.Image, error)
	Delete(ctx context.Context, publicID string) error
}

// objectAPI is the part of the S3 client used here
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Store struct {
	client  objectAPI
	bucket  string
	baseURL string
	logger  *zap.Logger
}

// NewS3Store loads the default AWS configuration for the configured region
func NewS3Store(ctx context.Context, cfg appconfig.StorageConfig, logger *zap.Logger) (ImageStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrStorageNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return newS3Store(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

func newS3Store(client objectAPI, cfg appconfig.StorageConfig, logger *zap.Logger) *s3Store {
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &s3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Upload stores the image under products/<uuid><ext>. The object key is the public id.
func (s *s3Store) Upload(ctx context.Context, body io.Reader, filename, contentType string) (*domain.Image, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedImageType
	}
	if fileExt := strings.ToLower(path.Ext(filename)); fileExt != "" {
		ext = fileExt
	}

	key := keyPrefix + uuid.NewString() + ext
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.Info("Image uploaded", zap.String("key", key))
	return &domain.Image{URL: s.baseURL + "/" + key, PublicID: key}, nil
}

// Delete removes the object. Keys outside the products prefix are rejected.
func (s *s3Store) Delete(ctx context.Context, publicID string) error {
	if !strings.HasPrefix(publicID, keyPrefix) {
		return fmt.Errorf("refusing to delete object %q outside %s", publicID, keyPrefix)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}
