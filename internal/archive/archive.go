// Package archive mirrors stored canonical records to object storage.
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
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/foodhakhq/foodhak-health-data/internal/domain"
)

// Archiver mirrors a stored record. Failures never affect the stored-count summary.
type Archiver interface {
	Archive(ctx context.Context, record domain.CanonicalRecord) error
}

// Noop discards records. It is used when no bucket is configured.
type Noop struct{}

// Archive implements Archiver.
func (Noop) Archive(context.Context, domain.CanonicalRecord) error { return nil }

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 mirror.
type S3Config struct {
	Region   string
	Bucket   string
	Prefix   string
	Endpoint string
}

// S3Archiver writes each record as a JSON object under
// {prefix}/{user}/{provider}/{schema}/{date}/payload_{unix_ms}.json.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	logger *log.Logger
}

// NewS3Archiver loads the default AWS credential chain for cfg.Region. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func NewS3Archiver(ctx context.Context, cfg S3Config, logger *log.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string, logger *log.Logger) *S3Archiver {
	if logger == nil {
		logger = log.New(log.Writer(), "[archive] ", log.LstdFlags|log.Lshortfile)
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

type archivedRecord struct {
	UserID       string          `json:"user_id"`
	ProviderType string          `json:"provider_type"`
	SchemaType   string          `json:"schema_type"`
	Timestamp    time.Time       `json:"timestamp"`
	Date         string          `json:"date"`
	Data         json.RawMessage `json:"data"`
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, record domain.CanonicalRecord) error {
	body, err := json.Marshal(archivedRecord{
		UserID:       record.UserID,
		ProviderType: string(record.ProviderType),
		SchemaType:   string(record.SchemaType),
		Timestamp:    record.Timestamp.UTC(),
		Date:         record.Date.Format(domain.DateLayout),
		Data:         record.Data,
	})
	if err != nil {
		return err
	}

	key := ObjectKey(a.prefix, record)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Printf("archived %s record for user=%s provider=%s", record.SchemaType, record.UserID, record.ProviderType)
	return nil
}

// ObjectKey returns the object key for record under prefix.
func ObjectKey(prefix string, record domain.CanonicalRecord) string {
	name := fmt.Sprintf("payload_%d.json", record.Timestamp.UnixMilli())
	return path.Join(prefix, record.UserID, string(record.ProviderType), string(record.SchemaType), record.Date.Format(domain.DateLayout), name)
}
