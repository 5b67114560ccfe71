package library

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const locationScheme = "s3://"

// ObjectConfig configures an S3 compatible bucket.
type ObjectConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// ObjectLibrary stores files in an S3 compatible bucket. Locations have the
// form s3://<bucket>/<key><ext>.
type ObjectLibrary struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewObjectLibrary connects to the endpoint and creates the bucket when missing.
func NewObjectLibrary(ctx context.Context, config ObjectConfig, logger *zap.Logger) (*ObjectLibrary, error) {
	if config.Endpoint == "" || config.Bucket == "" {
		return nil, errors.New("object library requires endpoint and bucket")
	}

	endpoint := config.Endpoint
	secure := config.UseSSL
	if u, err := url.Parse(config.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = secure || u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: secure,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &ObjectLibrary{
		client: client,
		bucket: config.Bucket,
		logger: logger.Named("library"),
	}, nil
}

// Store uploads srcPath and returns its s3:// location. The local file is left
// in place; it lives in a workspace that is removed afterwards.
func (l *ObjectLibrary) Store(ctx context.Context, srcPath, key string) (string, error) {
	objectKey := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(key)), "/")
	if key == "" || objectKey == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	objectKey += filepath.Ext(srcPath)

	info, err := l.client.FPutObject(ctx, l.bucket, objectKey, srcPath, minio.PutObjectOptions{
		ContentType: contentType(srcPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	l.logger.Debug("Uploaded file",
		zap.String("bucket", l.bucket),
		zap.String("key", objectKey),
		zap.Int64("size", info.Size))

	return locationScheme + l.bucket + "/" + objectKey, nil
}

// Exists reports whether the object behind location is present.
func (l *ObjectLibrary) Exists(ctx context.Context, location string) bool {
	bucket, key, ok := ParseLocation(location)
	if !ok {
		return false
	}

	_, err := l.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// ParseLocation splits an s3://bucket/key location.
func ParseLocation(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, locationScheme)
	if !found {
		return "", "", false
	}

	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func contentType(srcPath string) string {
	switch strings.ToLower(filepath.Ext(srcPath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
