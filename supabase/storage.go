package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return bytes.NewReader(data), nil
}

// Storage returns the object storage client.
func (c *Client) Storage() *Storage { return &Storage{client: c} }

// Storage accesses the project's storage buckets.
type Storage struct {
	client *Client
}

// From returns a handle on one bucket.
func (s *Storage) From(bucket string) *Bucket {
	return &Bucket{client: s.client, bucket: bucket}
}

// Bucket uploads and serves objects from one storage bucket.
type Bucket struct {
	client *Client
	bucket string
}

func (b *Bucket) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, path)
}

// Upload stores data at path within the bucket.
func (b *Bucket) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return b.client.do(req, nil)
}

// Download fetches the object at path.
func (b *Bucket) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.objectURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req)

	resp, err := b.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return buf.Bytes(), nil
}

// Remove deletes the objects at the given paths.
func (b *Bucket) Remove(ctx context.Context, paths []string) error {
	payload := map[string][]string{"prefixes": paths}
	body, err := jsonBody(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/storage/v1/object/%s", b.client.baseURL, b.bucket), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.client.do(req, nil)
}

// PublicURL returns the public serving URL for path. The bucket must be
// marked public on the backend for the URL to resolve.
func (b *Bucket) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, path)
}
