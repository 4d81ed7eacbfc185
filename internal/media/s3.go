// Package media hands uploaded files off to S3-compatible object storage
// and returns a remote-resource descriptor. Callers only ever persist the
// resulting URL.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/streamhive/account-service/internal/config"
)

// Resource describes an uploaded remote file.
type Resource struct {
	URL string `json:"url"`
}

// Uploader stores a file and returns its public descriptor.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (Resource, error)
}

// S3Uploader implements Uploader against any S3-compatible endpoint
// (AWS, MinIO).
type S3Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader builds the client from static credentials and an optional
// custom endpoint.
func NewS3Uploader(ctx context.Context, cfg config.Config) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := strings.TrimSuffix(cfg.S3PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}

	return &S3Uploader{client: client, bucket: cfg.S3Bucket, publicBaseURL: publicBase}, nil
}

// Upload streams body to object storage under a date-partitioned random key.
func (u *S3Uploader) Upload(ctx context.Context, filename, contentType string, body io.Reader) (Resource, error) {
	key := storageKey(filename)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Resource{}, fmt.Errorf("put object: %w", err)
	}

	return Resource{URL: u.publicBaseURL + "/" + key}, nil
}

func storageKey(filename string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("media/%d/%02d/%02d/%s%s",
		now.Year(), now.Month(), now.Day(), uuid.New(), strings.ToLower(path.Ext(filename)))
}
