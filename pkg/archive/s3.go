package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the bucket that receives archive exports. Credentials
// come from the default AWS chain.
type S3Config struct {
	Bucket    string
	Region    string // Default us-east-1
	Endpoint  string // Optional, for S3-compatible stores such as MinIO
	Prefix    string
	PathStyle bool
}

// S3Sink uploads exports to a bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates a sink from cfg.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3SinkFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkFromClient wraps an existing client.
func NewS3SinkFromClient(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads the export and returns its s3:// URI.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.prefix, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// NewSink picks the export sink configured in cfg: S3 when a bucket is set,
// a local directory when ExportDir is set, otherwise nil.
func NewSink(ctx context.Context, cfg *ArchiveConfig) (Sink, error) {
	switch {
	case cfg.S3.Bucket != "":
		sink, err := NewS3Sink(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case cfg.ExportDir != "":
		return FileSink{Dir: cfg.ExportDir}, nil
	}
	return nil, nil
}
