// Package archive stores raw import files so an import can be audited or
// replayed after the fact.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/trade-ledger/internal/config"
)

// Uploader is the subset of the S3 upload manager the archive uses
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archive writes import payloads to an S3 bucket
type S3Archive struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3Archive creates an archive backed by the given uploader
func NewS3Archive(uploader Uploader, bucket, prefix string) *S3Archive {
	return &S3Archive{uploader: uploader, bucket: bucket, prefix: prefix}
}

// New builds an S3 archive from the default AWS credential chain
func New(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	uploader := manager.NewUploader(s3.NewFromConfig(awsCfg))
	return NewS3Archive(uploader, cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for a file of an import
func (a *S3Archive) Key(userID uint, importID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload.csv"
	}
	return a.prefix + path.Join(fmt.Sprintf("%d", userID), importID, name)
}

// Store uploads one file and returns its object key
func (a *S3Archive) Store(ctx context.Context, userID uint, importID, fileName string, body []byte) (string, error) {
	key := a.Key(userID, importID, fileName)

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// Noop discards every file. It is used when archiving is disabled.
type Noop struct{}

func (Noop) Store(ctx context.Context, userID uint, importID, fileName string, body []byte) (string, error) {
	return "", nil
}
