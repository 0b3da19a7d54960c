// Package backup uploads periodic SQLite snapshots to an S3-compatible
// bucket (Cloudflare R2 in production), grounded on the reference R2 backup
// service's checksum-then-upload pattern but simplified to the Control
// Store's single-database file.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader pushes backup archives to one S3-compatible bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewUploader builds an Uploader with the default AWS credential chain and
// S3 endpoint resolution; NewUploaderWithCredentials takes an explicit
// R2-compatible endpoint and static credentials instead.
func NewUploader(ctx context.Context, bucket, prefix string, log zerolog.Logger) (*Uploader, error) {
	return NewUploaderWithCredentials(ctx, bucket, prefix, "", "", "", log)
}

// NewUploaderWithCredentials is NewUploader with explicit R2 endpoint and
// static credentials, used when the control store config supplies them.
func NewUploaderWithCredentials(ctx context.Context, bucket, prefix, endpoint, accessKey, secretKey string, log zerolog.Logger) (*Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &Uploader{
		client: client, bucket: bucket, prefix: prefix,
		log: log.With().Str("component", "backup_uploader").Logger(),
	}, nil
}

// UploadSnapshot uploads dbPath under {prefix}/{timestamp}-ats.db and returns
// the object key plus the uploaded file's sha256 checksum.
func (u *Uploader) UploadSnapshot(ctx context.Context, dbPath string) (key, checksum string, err error) {
	checksum, err = sha256File(dbPath)
	if err != nil {
		return "", "", fmt.Errorf("checksum backup file: %w", err)
	}

	f, err := os.Open(dbPath)
	if err != nil {
		return "", "", fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()

	key = fmt.Sprintf("%s/%s-ats.db", u.prefix, time.Now().UTC().Format("2006-01-02T150405Z"))
	uploader := manager.NewUploader(u.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
		Metadata: map[string]string{
			"sha256": checksum,
		},
	}); err != nil {
		return "", "", fmt.Errorf("upload backup: %w", err)
	}

	u.log.Info().Str("key", key).Str("checksum", checksum).Msg("database snapshot uploaded")
	return key, checksum, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
