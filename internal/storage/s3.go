package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotFound is returned by Fetch when the URL dereferences to a 404.
var ErrNotFound = errors.New("object not found")

// BlobStore persists binary payloads and hands back stable public URLs.
type BlobStore struct {
	client        *s3.Client
	httpClient    *http.Client
	bucket        string
	publicBaseURL string
}

// NewBlobStore builds an S3-backed store. The bucket is expected to serve
// objects publicly under publicBaseURL.
func NewBlobStore(ctx context.Context, bucket, region, publicBaseURL string) (*BlobStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BlobStore{
		client:        s3.NewFromConfig(cfg),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Store uploads data under key and returns its public URL. A failed upload
// means no durable copy exists; callers decide whether to fall back or abort.
func (b *BlobStore) Store(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return b.publicBaseURL + "/" + key, nil
}

// Fetch downloads the payload behind a public URL (ours or the provider's).
func (b *BlobStore) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create fetch request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %q: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read body of %q: %w", url, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
