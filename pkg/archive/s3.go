// Package archive copies result snapshots to S3 for long-term retention
// beyond the local results directory's sweep window.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/adlens/adlens/pkg/aggregate"
)

// Config holds S3 archiver configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Bucket is the archive bucket name
	Bucket string

	// Prefix is prepended to every object key (e.g., "snapshots/")
	Prefix string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string

	// UploadTimeout bounds each archive write
	UploadTimeout time.Duration
}

// Archiver writes snapshots to one bucket.
type Archiver struct {
	cfg    Config
	client *s3.Client
}

// New creates an archiver using the default AWS credential chain unless
// static credentials are configured.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = time.Minute
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
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

	return &Archiver{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// key builds the object key for one job's snapshot, partitioned by day so
// bucket listings stay navigable.
func (a *Archiver) key(res *aggregate.Result) string {
	day := res.ProcessedAt.UTC().Format("2006/01/02")
	return path.Join(a.cfg.Prefix, day, res.FileID+".json")
}

// ArchiveResult uploads one snapshot. Intended to run after the local result
// is persisted; failure here never fails the job.
func (a *Archiver) ArchiveResult(ctx context.Context, res *aggregate.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.UploadTimeout)
	defer cancel()

	key := a.key(res)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}

	log.Printf("[archive] uploaded s3://%s/%s", a.cfg.Bucket, key)
	return nil
}
