// Package publish uploads run artifacts to S3-compatible object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vk/regimerun/internal/ctxlog"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "auto"

// S3Config holds the bucket location and credentials.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3 uploads files into a bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 publisher. A custom endpoint switches the client to
// path-style addressing for S3-compatible stores.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(strings.TrimSuffix(cfg.Endpoint, "/"+cfg.Bucket))
		opts.UsePathStyle = true
	}

	return &S3{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key returns the object key a local file is stored under.
func (p *S3) Key(file string) string {
	return path.Join(p.prefix, filepath.Base(file))
}

// Publish uploads every file and returns the object keys in order.
func (p *S3) Publish(ctx context.Context, files ...string) ([]string, error) {
	logger := ctxlog.FromContext(ctx).With("bucket", p.bucket)

	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := p.Key(file)
		if err := p.upload(ctx, file, key); err != nil {
			return keys, err
		}
		logger.Info("Uploaded artifact.", "source", file, "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *S3) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open artifact '%s': %w", file, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", file, err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload '%s' to s3://%s/%s: %w", file, p.bucket, key, err)
	}
	return nil
}

func contentType(file string) string {
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".ipynb":
		return "application/x-ipynb+json"
	case ".json":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}
