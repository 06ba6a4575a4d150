// Package archive exports terminal run records for long-term retention.
// Export is best-effort: the runner logs and discards archiver errors.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"site-orchestrator/internal/config"
	"site-orchestrator/internal/runlog"
)

// S3 uploads run records as JSON objects keyed by date and run ID.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 builds the archiver from config.
func NewS3(ctx context.Context, cfg config.Config) (*S3, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &S3{client: client, bucket: cfg.ArchiveS3Bucket}, nil
}

func newClient(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveS3Region),
	}
	if cfg.ArchiveS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ArchiveS3Endpoint,
					HostnameImmutable: cfg.ArchiveS3PathStyle,
					SigningRegion:     cfg.ArchiveS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ArchiveS3PathStyle
	}), nil
}

// ArchiveRun implements runlog.Archiver.
func (a *S3) ArchiveRun(ctx context.Context, rec *runlog.Record) error {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	key := objectKey(rec)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put run %s: %w", key, err)
	}
	return nil
}

func objectKey(rec *runlog.Record) string {
	return fmt.Sprintf("runs/%s/%s-%s.json", rec.StartedAt.UTC().Format("2006/01/02"), rec.Job, rec.ID)
}
