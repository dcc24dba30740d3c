// Package media uploads conversation media files to S3-compatible object
// storage, keyed by content hash so identical files land on one key.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/starford/ansuz/internal/checksum"
)

// Options configures the object store connection. Endpoint is optional
// and overrides the AWS default for S3-compatible servers.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Store uploads media objects into one bucket.
type Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewStore builds a Store from static credentials.
func NewStore(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// Put uploads one object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("media: put %s: %w", key, err)
	}
	return nil
}

// PutFile uploads a local file under its SHA-256 content hash and returns
// the key. The hash key makes re-uploads of the same content idempotent
// on the store side.
func (s *Store) PutFile(ctx context.Context, path string) (string, error) {
	key, err := checksum.SHA256File(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("media: open %s: %w", path, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.Put(ctx, key, f, contentType); err != nil {
		return "", err
	}

	s.logger.Info("uploaded media file",
		slog.String("file", filepath.Base(path)),
		slog.String("key", key),
		slog.String("content_type", contentType))
	return key, nil
}
