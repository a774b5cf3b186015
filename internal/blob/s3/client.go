// Package s3 exports resolved market history to S3-compatible object
// storage. Archives are JSONL snapshots; they are write-only from the
// engine's perspective and never read back.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tdeu/truthmarket/internal/domain"
)

// Config holds object storage parameters. Endpoint is set for MinIO and
// other S3-compatible backends; empty means AWS.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Client wraps the S3 client and upload manager.
type Client struct {
	bucket   string
	uploader *manager.Uploader
	logger   *slog.Logger
}

// NewClient builds the S3 client from static or ambient credentials.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		bucket:   cfg.Bucket,
		uploader: manager.NewUploader(client),
		logger:   logger.With(slog.String("component", "s3")),
	}, nil
}

// Put implements domain.BlobWriter.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := c.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w", path, err)
	}
	c.logger.DebugContext(ctx, "object uploaded",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

var _ domain.BlobWriter = (*Client)(nil)
