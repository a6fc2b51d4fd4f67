package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// ErrMirrorFailed is returned by S3Storage.Save when the local write
// succeeded but the upload did not. The returned Object is still valid
// locally.
var ErrMirrorFailed = errors.New("storage: mirror to S3 failed")

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage wraps LocalStorage and mirrors every saved object to S3.
// Reads are always served from local disk.
type S3Storage struct {
	*LocalStorage
	client   *s3.Client
	bucket   string
	region   string
	endpoint string
}

// NewS3Storage creates a new S3Storage instance rooted locally at root.
func NewS3Storage(root string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(root)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Storage{
		LocalStorage: local,
		client:       client,
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// Save stores data locally, then uploads the file to the bucket under the
// same key and sets Object.URL.
func (s *S3Storage) Save(ctx context.Context, key string, data io.Reader) (Object, error) {
	obj, err := s.LocalStorage.Save(ctx, key, data)
	if err != nil {
		return Object{}, err
	}

	url, err := s.upload(ctx, obj)
	if err != nil {
		return obj, fmt.Errorf("%w: %w", ErrMirrorFailed, err)
	}
	obj.URL = url
	return obj, nil
}

func (s *S3Storage) upload(ctx context.Context, obj Object) (string, error) {
	f, err := os.Open(obj.Path) // #nosec G304 - path was just written by LocalStorage
	if err != nil {
		return "", fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = f.Close() }()

	contentType := "application/octet-stream"
	if m, err := mimetype.DetectFile(obj.Path); err == nil {
		contentType = m.String()
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(obj.Key),
		Body:          f,
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	return s.objectURL(obj.Key), nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// Delete removes the keys locally and from the bucket.
func (s *S3Storage) Delete(ctx context.Context, keys []string) error {
	firstErr := s.LocalStorage.Delete(ctx, keys)
	for _, k := range keys {
		clean, err := sanitizeKey(k)
		if err != nil {
			continue
		}
		_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(clean),
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete from S3 %s: %w", clean, err)
		}
	}
	return firstErr
}

var _ Storage = (*S3Storage)(nil)
