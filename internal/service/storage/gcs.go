package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"model-publisher/internal/domain"
)

var _ ObjectLister = (*GCSLister)(nil)

// GCSLister lists Google Cloud Storage buckets and objects.
type GCSLister struct {
	client    *storage.Client
	projectID string
}

// NewGCSLister creates a lister authenticated with the config's service account key.
// The project whose buckets are listed is read from the key.
func NewGCSLister(ctx context.Context, cfg domain.GCSConfig) (*GCSLister, error) {
	if cfg.ServiceAccountKeyJSON == "" {
		return nil, domain.ErrValidation("serviceAccountKeyJson is required to list GCS buckets")
	}
	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(cfg.ServiceAccountKeyJSON), &key); err != nil {
		return nil, domain.ErrValidation("invalid service account key: %v", err)
	}

	client, err := storage.NewClient(ctx, option.WithAuthCredentialsJSON(option.ServiceAccount, []byte(cfg.ServiceAccountKeyJSON)))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSLister{client: client, projectID: key.ProjectID}, nil
}

// ListBuckets returns the names of the project's buckets.
func (l *GCSLister) ListBuckets(ctx context.Context) ([]string, error) {
	var names []string
	it := l.client.Buckets(ctx, l.projectID)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS buckets: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// ListObjects returns gs:// URIs for every object under prefix.
func (l *GCSLister) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	it := l.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		keys = append(keys, fmt.Sprintf("gs://%s/%s", bucket, attrs.Name))
	}
	return keys, nil
}

// Close releases the underlying client.
func (l *GCSLister) Close() error {
	return l.client.Close()
}
