// Package s3 implements S3-backed storage for FITS products.
//
// Keys map directly to object keys in a single bucket. Reads are
// materialized through the temp cache so repeated access to the same
// product does not re-download it; writes upload staged local files.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/storage"
	"github.com/skyforge/fitsflow/pkg/storage/tempcache"
)

// Client is the subset of the AWS S3 client the provider uses.
// Tests substitute an in-memory fake.
type Client interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *awss3.CopyObjectInput, optFns ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Presigner generates presigned GET URLs. Satisfied by *s3.PresignClient.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Metrics receives storage operation outcomes. A nil Metrics disables
// instrumentation.
type Metrics interface {
	Operation(op string, err error)
	BytesDownloaded(n int64)
	BytesUploaded(n int64)
}

// Config configures the S3 provider.
type Config struct {
	// Bucket is the S3 bucket name (required)
	Bucket string

	// Endpoint is the S3 endpoint URL (empty for AWS)
	Endpoint string

	// PublicEndpoint, when set, replaces Endpoint in presigned URLs so
	// clients outside the service network can reach them
	PublicEndpoint string

	// Cache materializes reads locally (required)
	Cache *tempcache.Cache

	// Metrics receives operation outcomes (optional)
	Metrics Metrics
}

// Provider implements storage.Provider against an S3-compatible backend.
type Provider struct {
	client         Client
	presigner      Presigner
	bucket         string
	endpoint       string
	publicEndpoint string
	cache          *tempcache.Cache
	metrics        Metrics
}

// NewClient creates an AWS S3 client from connection parameters.
// Empty credentials fall back to the default AWS credential chain.
func NewClient(ctx context.Context, endpoint, region, accessKey, secretKey string, forcePathStyle bool) (*awss3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})
	return client, nil
}

// New creates an S3 provider. The bucket must already exist.
func New(client Client, presigner Presigner, cfg Config) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("temp cache is required")
	}

	return &Provider{
		client:         client,
		presigner:      presigner,
		bucket:         cfg.Bucket,
		endpoint:       cfg.Endpoint,
		publicEndpoint: cfg.PublicEndpoint,
		cache:          cfg.Cache,
		metrics:        cfg.Metrics,
	}, nil
}

func (p *Provider) observe(op string, err error) {
	if p.metrics != nil {
		p.metrics.Operation(op, err)
	}
}

// Name returns "s3".
func (p *Provider) Name() string {
	return "s3"
}

// Bucket returns the configured bucket name.
func (p *Provider) Bucket() string {
	return p.bucket
}

// ReadToTemp materializes the object at key through the temp cache and
// returns the cached path.
func (p *Provider) ReadToTemp(ctx context.Context, key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}

	if path, ok := p.cache.Get(key); ok {
		// The cache may have evicted the file between index lookup and
		// use; verify and fall through to a re-download if so
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		p.cache.Remove(key)
	}

	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	p.observe("get_object", err)
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to get s3://%s/%s: %w", p.bucket, key, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(p.cache.Dir(), ".download-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.ReadFrom(out.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to download s3://%s/%s: %w", p.bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	path, err := p.cache.Put(key, tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to cache %s: %w", key, err)
	}

	if p.metrics != nil {
		if info, statErr := os.Stat(path); statErr == nil {
			p.metrics.BytesDownloaded(info.Size())
		}
	}

	logger.DebugCtx(ctx, "materialized s3 object",
		logger.KeyKey, key,
		logger.KeyBucket, p.bucket,
		logger.KeyLocalPath, path)
	return path, nil
}

// WriteFromPath uploads the local file at srcPath under key.
func (p *Provider) WriteFromPath(ctx context.Context, key string, srcPath string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	_, err = p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	p.observe("put_object", err)
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", p.bucket, key, err)
	}
	if p.metrics != nil {
		p.metrics.BytesUploaded(info.Size())
	}
	return nil
}

// WriteFromBytes uploads data under key.
func (p *Provider) WriteFromBytes(ctx context.Context, key string, data []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	_, err := p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	p.observe("put_object", err)
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", p.bucket, key, err)
	}
	if p.metrics != nil {
		p.metrics.BytesUploaded(int64(len(data)))
	}
	return nil
}

// Exists reports whether key exists in the bucket.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns object size and last-modified time.
func (p *Provider) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	if err := storage.ValidateKey(key); err != nil {
		return storage.ObjectInfo{}, err
	}

	out, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	p.observe("head_object", err)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return storage.ObjectInfo{}, fmt.Errorf("failed to head s3://%s/%s: %w", p.bucket, key, err)
	}
	return storage.ObjectInfo{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes the object at key and invalidates any cached copy.
// S3 delete is idempotent.
func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	p.cache.Remove(key)

	_, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	p.observe("delete_object", err)
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", p.bucket, key, err)
	}
	return nil
}

// List returns the keys under prefix.
func (p *Provider) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		if err := storage.ValidateKey(prefix); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
	}

	keys := []string{}
	var token *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", p.bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

// Rename copies the object to newKey and deletes the original.
// Not atomic; S3 has no native rename.
func (p *Provider) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := storage.ValidateKey(oldKey); err != nil {
		return err
	}
	if err := storage.ValidateKey(newKey); err != nil {
		return err
	}

	// Validated keys contain only URL-safe characters, no escaping needed
	source := p.bucket + "/" + oldKey
	_, err := p.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(newKey),
		CopySource: aws.String(source),
	})
	p.observe("copy_object", err)
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, oldKey)
		}
		return fmt.Errorf("failed to copy s3://%s/%s: %w", p.bucket, oldKey, err)
	}

	p.cache.Remove(oldKey)

	if _, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(oldKey),
	}); err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s after copy: %w", p.bucket, oldKey, err)
	}
	return nil
}

// PresignedURL returns a time-limited GET URL for key. When a public
// endpoint is configured, the internal endpoint is rewritten so the URL
// works from outside the service network.
func (p *Provider) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	if p.presigner == nil {
		return "", storage.ErrUnsupported
	}

	req, err := p.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, func(o *awss3.PresignOptions) {
		o.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", p.bucket, key, err)
	}

	signed := req.URL
	if p.publicEndpoint != "" && p.endpoint != "" {
		signed = strings.Replace(signed, p.endpoint, p.publicEndpoint, 1)
	}
	return signed, nil
}

// ResolveLocalPath is not supported; S3 objects have no stable local path.
func (p *Provider) ResolveLocalPath(key string) (string, error) {
	return "", storage.ErrUnsupported
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}
	return false
}

// Ensure Provider implements storage.Provider.
var _ storage.Provider = (*Provider)(nil)
