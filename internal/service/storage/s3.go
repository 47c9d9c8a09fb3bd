package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"model-publisher/internal/domain"
)

var _ ObjectLister = (*S3Lister)(nil)

// s3API is the subset of the S3 client used by S3Lister.
type s3API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, opts ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Lister lists S3 (or S3-compatible) buckets and objects.
type S3Lister struct {
	client s3API
}

// NewS3Lister creates a lister using static credentials from cfg.
func NewS3Lister(cfg domain.S3Config) *S3Lister {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
		),
		UsePathStyle: cfg.URLStyle == "path",
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}
	return &S3Lister{client: s3.New(opts)}
}

// ListBuckets returns the names of all buckets visible to the credentials.
func (l *S3Lister) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := l.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list S3 buckets: %w", err)
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

// ListObjects returns s3:// URIs for every object under prefix.
func (l *S3Lister) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(l.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, fmt.Sprintf("s3://%s/%s", bucket, aws.ToString(obj.Key)))
		}
	}
	return keys, nil
}
