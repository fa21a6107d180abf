// Package objectstore archives each fetched weather payload as a JSON object in S3.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/retry"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// DefaultStorageDomain is the host suffix used to build object URLs.
const DefaultStorageDomain = "s3.amazonaws.com"

// keyTimeLayout is filesystem and URL safe: no colons.
const keyTimeLayout = "2006-01-02T15-04-05Z"

// PutObjectAPI is the subset of the S3 client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures a Client.
type Options struct {
	Bucket        string
	StorageDomain string
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint     string
	UsePathStyle bool
	Retry        retry.Policy
}

// Client uploads weather payloads and returns their public URLs.
type Client struct {
	api    PutObjectAPI
	bucket string
	domain string
	retry  retry.Policy
	logger *zap.Logger
	now    func() time.Time
}

// New builds an S3-backed Client from cfg. SDK retries are disabled; opts.Retry
// decides how often an upload is attempted.
func New(cfg aws.Config, opts Options, logger *zap.Logger) (*Client, error) {
	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewWithAPI(api, opts, logger)
}

// NewWithAPI returns a Client over an existing PutObject implementation.
func NewWithAPI(api PutObjectAPI, opts Options, logger *zap.Logger) (*Client, error) {
	if opts.Bucket == "" {
		return nil, apperrors.Configuration("new object store", fmt.Errorf("bucket name is required"))
	}
	if opts.StorageDomain == "" {
		opts.StorageDomain = DefaultStorageDomain
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:    api,
		bucket: opts.Bucket,
		domain: opts.StorageDomain,
		retry:  opts.Retry,
		logger: logger,
		now:    time.Now,
	}, nil
}

// ObjectKey returns the object name for a payload fetched for city at t.
func ObjectKey(city string, t time.Time) string {
	return fmt.Sprintf("%s_%s.json", city, t.UTC().Format(keyTimeLayout))
}

// URL returns the public URL of key in the client's bucket.
func (c *Client) URL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", c.bucket, c.domain, key)
}

// Save uploads record under a timestamped key for city and returns its URL.
// Two saves for the same city within one second share a key and the later wins.
func (c *Client) Save(ctx context.Context, city string, record models.WeatherRecord) (string, error) {
	const op = "save weather object"

	if err := validation.ValidateCity(city); err != nil {
		return "", err
	}
	body, err := json.Marshal(record)
	if err != nil {
		return "", apperrors.Permanent(op, fmt.Errorf("encode record: %w", err))
	}

	key := ObjectKey(city, c.now())
	logger := observability.LoggerFromContext(ctx, c.logger).With(
		zap.String("city", city),
		zap.String("bucket", c.bucket),
		zap.String("key", key),
	)

	err = retry.Do(ctx, c.retry, op, func(ctx context.Context) error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		return err
	}, func(attempt int, err error) {
		observability.RetriesTotal.WithLabelValues("object_store").Inc()
		logger.Warn("object upload failed, retrying",
			append(observability.AWSErrorFields(err), zap.Int("retry", attempt), zap.Error(err))...)
	})
	observability.ObjectStoreWritesTotal.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		logger.Error("object upload failed", append(observability.AWSErrorFields(err), zap.Error(err))...)
		return "", err
	}

	url := c.URL(key)
	logger.Info("weather object stored", zap.String("url", url))
	return url, nil
}
