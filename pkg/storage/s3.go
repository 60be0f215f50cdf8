package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	Bucket string

	// Prefix is prepended to every key.
	Prefix string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	OperationTimeout time.Duration
}

// DefaultS3Config returns sensible defaults for S3 configuration.
func DefaultS3Config(bucket, region string) S3Config {
	return S3Config{
		Bucket:           bucket,
		Region:           region,
		OperationTimeout: 30 * time.Second,
	}
}

// s3API is the subset of the S3 client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Storage implements ObjectStorage on an S3 bucket.
type S3Storage struct {
	cfg    S3Config
	client s3API
}

// NewS3Storage creates a new S3 backed store.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3Storage(cfg, s3.NewFromConfig(awsCfg, s3Opts...)), nil
}

func newS3Storage(cfg S3Config, client s3API) *S3Storage {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	return &S3Storage{cfg: cfg, client: client}
}

// Scheme returns "s3".
func (s *S3Storage) Scheme() string {
	return "s3"
}

// Bucket returns the bucket name.
func (s *S3Storage) Bucket() string {
	return s.cfg.Bucket
}

func (s *S3Storage) key(p string) string {
	return path.Join(s.cfg.Prefix, p)
}

// Put uploads the object in a single request. Datasets are small, so no
// multipart upload is needed.
func (s *S3Storage) Put(ctx context.Context, p string, data io.Reader, opts PutOptions) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	if opts.IfNotExists {
		exists, err := s.Exists(ctx, p)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("object already exists: %s", p)
		}
	}

	body, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.key(p)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", s.cfg.Bucket, s.key(p), err)
	}
	return nil
}

// Get returns a reader for the object.
func (s *S3Storage) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		cancel()
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", s.cfg.Bucket, s.key(p), err)
	}

	return &cancelOnCloseReader{ReadCloser: output.Body, cancel: cancel}, nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}

// Head returns object metadata.
func (s *S3Storage) Head(ctx context.Context, p string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return ObjectInfo{}, fmt.Errorf("failed to head object %s/%s: %w", s.cfg.Bucket, s.key(p), err)
	}

	return ObjectInfo{
		Path:         p,
		Size:         aws.ToInt64(output.ContentLength),
		LastModified: aws.ToTime(output.LastModified),
		ETag:         aws.ToString(output.ETag),
		ContentType:  aws.ToString(output.ContentType),
		Metadata:     output.Metadata,
	}, nil
}

// Exists checks if an object exists.
func (s *S3Storage) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Head(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List lists all objects under prefix, following continuation tokens.
func (s *S3Storage) List(ctx context.Context, prefix string, opts ListOptions) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	var continuationToken *string
	base := s.key("")
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(base + prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range output.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), base)
			if !strings.HasSuffix(rel, opts.Suffix) {
				continue
			}
			objects = append(objects, ObjectInfo{
				Path:         rel,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
			if opts.MaxKeys > 0 && len(objects) >= opts.MaxKeys {
				return objects, nil
			}
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return objects, nil
}

var _ ObjectStorage = (*S3Storage)(nil)
