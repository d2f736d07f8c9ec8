// Package s3 provides the S3 object store backing the remote cache tier.
package s3

import (
	"bytes"
	"context"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stratamedia/strata/pkg/errors"
)

var errBucketRequired = errors.New(errors.ErrCodeInvalidConfig, "s3 bucket name cannot be empty")

// Metrics tracks object store operation counts.
type Metrics struct {
	BytesUploaded   int64
	BytesDownloaded int64
	Operations      int64
	Errors          int64
}

// Client implements the cache.ObjectStore contract on top of AWS S3.
type Client struct {
	api    *awss3.Client
	bucket string
	cfg    *Config
	logger *slog.Logger

	mu      sync.Mutex
	metrics Metrics
}

// New creates an S3 client for the configured bucket.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Client{
		api:    api,
		bucket: cfg.Bucket,
		cfg:    cfg,
		logger: slog.Default().With("component", "s3-store", "bucket", cfg.Bucket),
	}, nil
}

// Get downloads an object. Missing objects yield ErrCodeObjectNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.recordError()
		return nil, c.translateError(err, "GetObject", key)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		c.recordError()
		return nil, errors.Wrap(errors.ErrCodeStorageRead, "failed to read object body", err).
			WithComponent("s3-store", "GetObject")
	}

	c.mu.Lock()
	c.metrics.Operations++
	c.metrics.BytesDownloaded += int64(len(data))
	c.mu.Unlock()

	return data, nil
}

// Put uploads an object.
func (c *Client) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		c.recordError()
		return c.translateError(err, "PutObject", key)
	}

	c.mu.Lock()
	c.metrics.Operations++
	c.metrics.BytesUploaded += int64(len(data))
	c.mu.Unlock()

	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.recordError()
		return c.translateError(err, "DeleteObject", key)
	}

	c.mu.Lock()
	c.metrics.Operations++
	c.mu.Unlock()

	return nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// GetMetrics returns a snapshot of operation counters.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) recordError() {
	c.mu.Lock()
	c.metrics.Errors++
	c.mu.Unlock()
}

func (c *Client) translateError(err error, operation, key string) error {
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return errors.Wrap(errors.ErrCodeObjectNotFound, fmt.Sprintf("object not found: %s", key), err).
			WithComponent("s3-store", operation)
	case isErrorType[*s3types.NoSuchBucket](err):
		return errors.Wrap(errors.ErrCodeBucketNotFound, fmt.Sprintf("bucket not found: %s", c.bucket), err).
			WithComponent("s3-store", operation)
	case stderr.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.ErrCodeConnectionTimeout, fmt.Sprintf("%s timed out for %s", operation, key), err).
			WithComponent("s3-store", operation)
	default:
		se := errors.Wrap(errors.ErrCodeNetworkError, fmt.Sprintf("%s failed for %s", operation, key), err).
			WithComponent("s3-store", operation)
		se.Retryable = errors.IsTransient(err)
		return se
	}
}

// isErrorType checks if an error is of a specific type.
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
