package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/corpushq/corpus/pkg/storage"
)

var s3Tracer = otel.Tracer("corpus.storage.s3")

// deleteBatchSize is the S3 DeleteObjects limit per request
const deleteBatchSize = 1000

// S3Client handles object storage operations for the datastores/ tree
type S3Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	config  storage.Config
}

// NewS3Client creates a new S3 client
func NewS3Client(cfg storage.Config) (*S3Client, error) {
	ctx := context.Background()

	var awsConfig aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials (MinIO or AWS with explicit keys)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:  s3Client,
		presign: s3.NewPresignClient(s3Client),
		bucket:  cfg.S3Bucket,
		config:  cfg,
	}, nil
}

// DeleteFolder removes every object under the given prefix and returns the
// number of objects deleted. The prefix must be non-blank: an empty prefix
// would address the whole bucket.
func (c *S3Client) DeleteFolder(ctx context.Context, prefix string) (int, error) {
	ctx, span := s3Tracer.Start(ctx, "S3.DeleteFolder",
		trace.WithAttributes(
			attribute.String("s3.operation", "DeleteFolder"),
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.prefix", prefix),
		),
	)
	defer span.End()

	if strings.TrimSpace(prefix) == "" {
		err := fmt.Errorf("refusing to delete empty prefix")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty prefix")
		return 0, err
	}

	deleted := 0
	var continuation *string

	for {
		page, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to list objects")
			return deleted, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}

		if len(page.Contents) == 0 {
			break
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}

		for start := 0; start < len(objects); start += deleteBatchSize {
			end := start + deleteBatchSize
			if end > len(objects) {
				end = len(objects)
			}

			out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(c.bucket),
				Delete: &s3types.Delete{
					Objects: objects[start:end],
					Quiet:   aws.Bool(true),
				},
			})
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to delete objects")
				return deleted, fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
			}
			if len(out.Errors) > 0 {
				first := out.Errors[0]
				err := fmt.Errorf("failed to delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message))
				span.RecordError(err)
				span.SetStatus(codes.Error, "partial delete failure")
				return deleted, err
			}
			deleted += end - start
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}

	span.SetAttributes(attribute.Int("s3.objects_deleted", deleted))
	span.SetStatus(codes.Ok, "folder deleted")
	return deleted, nil
}

// ListFolders returns the immediate child prefixes under the given prefix
func (c *S3Client) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var folders []string
	var continuation *string

	for {
		page, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list folders under %s: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			folders = append(folders, aws.ToString(cp.Prefix))
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}

	return folders, nil
}

// PresignPutObject returns a time-limited upload URL for a key
func (c *S3Client) PresignPutObject(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("presign key must not be empty")
	}

	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}

	return req.URL, nil
}

// HealthCheck verifies S3 connectivity
func (c *S3Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})

	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}

	return nil
}
