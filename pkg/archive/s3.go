package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of *s3.Client the archive uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	Bucket         string        `env:"ARCHIVE_S3_BUCKET"`
	Region         string        `env:"ARCHIVE_S3_REGION" envDefault:"eu-central-1"`
	Endpoint       string        `env:"ARCHIVE_S3_ENDPOINT"` // S3-compatible services such as MinIO
	AccessKeyID    string        `env:"ARCHIVE_S3_ACCESS_KEY"`
	SecretKey      string        `env:"ARCHIVE_S3_SECRET_KEY"`
	Prefix         string        `env:"ARCHIVE_S3_PREFIX" envDefault:"callbacks/"`
	ForcePathStyle bool          `env:"ARCHIVE_S3_FORCE_PATH_STYLE" envDefault:"false"`
	Timeout        time.Duration `env:"ARCHIVE_S3_TIMEOUT" envDefault:"5s"`
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// S3 stores entries as JSON objects in a bucket.
type S3 struct {
	client  S3Client
	bucket  string
	prefix  string
	timeout time.Duration
}

type S3Option func(*s3Options)

type s3Options struct {
	client     S3Client
	loadOpts   []func(*awsconfig.LoadOptions) error
	clientOpts []func(*s3.Options)
}

// WithS3Client injects a preconfigured client, mainly for tests.
func WithS3Client(c S3Client) S3Option {
	return func(o *s3Options) { o.client = c }
}

func WithClientOption(opt func(*s3.Options)) S3Option {
	return func(o *s3Options) { o.clientOpts = append(o.clientOpts, opt) }
}

func WithLoadOption(opt func(*awsconfig.LoadOptions) error) S3Option {
	return func(o *s3Options) { o.loadOpts = append(o.loadOpts, opt) }
}

func NewS3(ctx context.Context, cfg Config, opts ...S3Option) (*S3, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket and region are required", ErrInvalidConfig)
	}
	var o s3Options
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		loadOpts := append([]func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}, o.loadOpts...)
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Join(ErrInvalidConfig, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
			for _, fn := range o.clientOpts {
				fn(so)
			}
		})
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix, timeout: cfg.Timeout}, nil
}

func (s *S3) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *S3) Put(ctx context.Context, e Entry) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := Key(s.prefix, e)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(e.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"reference":  e.Reference,
			"invoice-id": e.InvoiceID,
		},
	})
	if err != nil {
		return "", classify(err, "put")
	}
	return key, nil
}

func (s *S3) List(ctx context.Context, reference string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		keys  []string
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(referencePrefix(s.prefix, reference)),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify(err, "list")
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

func classify(err error, op string) error {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("%w: %s: bucket does not exist", ErrNotFound, op)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied":
			return fmt.Errorf("%w: %s", ErrAccessDenied, op)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, apiErr.ErrorCode())
		case "NoSuchBucket", "NoSuchKey":
			return fmt.Errorf("%w: %s", ErrNotFound, op)
		}
		return fmt.Errorf("archive %s failed (code: %s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("archive %s failed: %w", op, err)
}
