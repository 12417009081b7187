package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"storefront/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeObjects struct {
	objects map[string]string
	types   map[string]string
	failPut bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = string(body)
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_UploadAndDelete(t *testing.T) {
	objects := newFakeObjects()
	store := newS3Store(objects, config.StorageConfig{Bucket: "assets", Region: "ap-south-1", PublicBaseURL: "https://cdn.example.com/"}, zap.NewNop())
	ctx := context.Background()

	img, err := store.Upload(ctx, strings.NewReader("png-bytes"), "Masala.PNG", "image/png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(img.PublicID, "products/"))
	assert.True(t, strings.HasSuffix(img.PublicID, ".png"))
	assert.Equal(t, "https://cdn.example.com/"+img.PublicID, img.URL)
	assert.Equal(t, "png-bytes", objects.objects[img.PublicID])
	assert.Equal(t, "image/png", objects.types[img.PublicID])

	require.NoError(t, store.Delete(ctx, img.PublicID))
	assert.Empty(t, objects.objects)
}

func TestS3Store_DefaultURLAndExtension(t *testing.T) {
	store := newS3Store(newFakeObjects(), config.StorageConfig{Bucket: "assets", Region: "ap-south-1"}, zap.NewNop())

	img, err := store.Upload(context.Background(), strings.NewReader("x"), "blob", "image/webp")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img.URL, "https://assets.s3.ap-south-1.amazonaws.com/products/"))
	assert.True(t, strings.HasSuffix(img.PublicID, ".webp"))
}

func TestS3Store_Rejections(t *testing.T) {
	objects := newFakeObjects()
	store := newS3Store(objects, config.StorageConfig{Bucket: "assets"}, zap.NewNop())
	ctx := context.Background()

	_, err := store.Upload(ctx, strings.NewReader("x"), "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedImageType)

	assert.Error(t, store.Delete(ctx, "invoices/2024.pdf"))

	objects.failPut = true
	_, err = store.Upload(ctx, strings.NewReader("x"), "a.jpg", "image/jpeg")
	assert.ErrorContains(t, err, "failed to upload image")
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{Region: "ap-south-1"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
}
