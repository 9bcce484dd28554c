package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for the S3 storage backend.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Enabled reports whether enough is configured to upload exports.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// ExportStore keeps exported disk archives in S3-compatible object storage.
type ExportStore struct {
	client *s3.Client
	bucket string
}

// NewExportStore creates an export store. Static credentials are used when
// an access key is configured; otherwise the default AWS credential chain
// (environment, shared config, instance role) applies.
func NewExportStore(cfg S3Config) (*ExportStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	configure := func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}

	var client *s3.Client
	if cfg.AccessKeyID != "" {
		client = s3.New(s3.Options{
			Region: cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			),
		}, configure)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
		)
		if err != nil {
			return nil, fmt.Errorf("storage: failed to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg, configure)
	}

	return &ExportStore{client: client, bucket: cfg.Bucket}, nil
}

// ExportKey returns the object key for a new archive of build id.
func ExportKey(buildID string, now time.Time) string {
	return fmt.Sprintf("exports/%s/%d.sparse.zst", buildID, now.Unix())
}

// Upload copies the archive at localPath to key and returns its size.
func (s *ExportStore) Upload(ctx context.Context, key, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open export archive: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat export archive: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String("application/zstd"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload export to S3: %w", err)
	}
	return stat.Size(), nil
}

// Delete removes an archive from S3.
func (s *ExportStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete export from S3: %w", err)
	}
	return nil
}
