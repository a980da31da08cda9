// Package r2 talks to a Cloudflare R2 bucket through its S3-compatible API.
package r2

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/karmi/pn-transcriptions/internal/common"
)

// Config for the R2 client.
type Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
}

type Client struct {
	s3      *s3.Client
	presign *s3.PresignClient
	logger  *slog.Logger
}

// NewClient builds an S3 client pinned to the account's R2 endpoint. R2 has a
// single "auto" region.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "incomplete R2 credentials", common.ErrConfig)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, common.WrapError(err, "load aws config")
	}

	s3c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	logger.Info("objstore.connect", "endpoint", endpoint)

	return &Client{
		s3:      s3c,
		presign: s3.NewPresignClient(s3c),
		logger:  logger,
	}, nil
}

// List returns every object key under prefix, following continuation tokens.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	start := time.Now()

	var keys []string
	p := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			c.logger.Error("objstore.list.error",
				"bucket", bucket, "prefix", prefix, "error", err)
			return nil, common.WrapError(err, "list bucket "+bucket)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	c.logger.Info("objstore.list.ok",
		"bucket", bucket,
		"prefix", prefix,
		"keys", len(keys),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return keys, nil
}

// PresignGet returns a time-limited GET URL for one object.
func (c *Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		c.logger.Error("objstore.presign.error",
			"bucket", bucket, "key", key, "error", err)
		return "", common.WrapError(err, "presign "+key)
	}

	c.logger.Info("objstore.presign.ok",
		"bucket", bucket,
		"key", key,
		"ttl_s", int(ttl.Seconds()),
	)
	return req.URL, nil
}
