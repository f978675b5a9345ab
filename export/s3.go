package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/oklog/ulid/v2"
)

// S3Config holds the bucket and credentials used by S3Exporter
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint for compatible stores, optional
	Endpoint string
}

// S3Exporter uploads snapshots to an S3 bucket
type S3Exporter struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	now      func() time.Time
}

// NewS3Exporter returns an exporter uploading to the configured bucket
func NewS3Exporter(cfg S3Config) (*S3Exporter, error) {

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID,
			cfg.SecretAccessKey, "")
	}

	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)

	if err != nil {
		return nil, fmt.Errorf("error creating aws session: %w", err)
	}

	return newS3Exporter(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

func newS3Exporter(uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Exporter {
	return &S3Exporter{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
	}
}

// Key returns the object key for a snapshot name, a ULID keeps keys unique
// and sorted by time when several snapshots share the same second
func (e *S3Exporter) Key(name string) string {
	id := ulid.MustNew(ulid.Timestamp(e.now()), ulid.DefaultEntropy())
	return path.Join(e.prefix, fmt.Sprintf("%s-%s", id.String(), name))
}

// Export uploads data and returns the object location
func (e *S3Exporter) Export(ctx context.Context, name string, data []byte) (string, error) {

	out, err := e.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(e.Key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})

	if err != nil {
		return "", fmt.Errorf("error uploading snapshot: %w", err)
	}

	return out.Location, nil
}
