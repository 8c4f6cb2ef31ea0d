// Package archive stores superseded training workflows in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/myrjola/ruckplan/internal/plan"
)

// DefaultPresignExpiry is how long download links stay valid when Config.PresignExpiry is unset.
const DefaultPresignExpiry = 15 * time.Minute

// Config locates the bucket. Endpoint is set for S3-compatible services such as MinIO and switches to path-style
// addressing. Without static keys the default AWS credential chain is used.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	PresignExpiry   time.Duration
}

// S3Archiver implements [plan.Archiver] on an S3 bucket.
type S3Archiver struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
	logger  *slog.Logger
}

// NewS3Archiver creates an archiver for the configured bucket.
func NewS3Archiver(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "workflow archive ready",
		slog.String("bucket", cfg.Bucket), slog.String("endpoint", cfg.Endpoint))
	return &S3Archiver{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		expiry:  expiry,
		logger:  logger,
	}, nil
}

// ObjectKey is where the workflow of a session is stored.
func ObjectKey(prefix, sessionID, workflowID string) string {
	return path.Join(prefix, "workflows", sessionID, workflowID+".json")
}

// Archive uploads the workflow as JSON.
func (a *S3Archiver) Archive(ctx context.Context, w plan.GeneratedWorkflow) error {
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", w.ID, err)
	}
	key := ObjectKey(a.prefix, w.SessionID, w.ID)
	if _, err = a.client.PutObject(ctx, &s3.PutObjectInput{ //nolint:exhaustruct // optional object settings
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "archived workflow",
		slog.String("key", key), slog.Int("bytes", len(body)))
	return nil
}

// PresignedURL returns a time-limited GET link for an archived workflow.
func (a *S3Archiver) PresignedURL(ctx context.Context, sessionID, workflowID string) (string, error) {
	key := ObjectKey(a.prefix, sessionID, workflowID)
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{ //nolint:exhaustruct // optional object settings
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
