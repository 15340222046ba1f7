// Package blob provides object storage with signed-URL retrieval for
// generated images.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store writes blobs and returns a retrievable URL for each.
type Store interface {
	// Put stores data under key and returns a URL a client can fetch.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// URL returns a retrievable URL for an already-stored key.
	URL(ctx context.Context, key string) (string, error)
}

// signedURLTTL is how long presigned links stay valid.
const signedURLTTL = 24 * time.Hour

// S3 stores blobs in an S3-compatible bucket and returns presigned URLs.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// NewS3 creates an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// Put uploads data and returns a presigned GET URL.
func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	return s.URL(ctx, key)
}

// URL presigns a GET for an already-stored key. Uploads happen out of
// band (the upload surface is external), so the key is not verified here.
func (s *S3) URL(ctx context.Context, key string) (string, error) {
	signed, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(signedURLTTL))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return signed.URL, nil
}

// Memory is an in-process Store for tests and development.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory creates an in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Put stores data and returns a synthetic URL.
func (m *Memory) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[key] = cp
	return "memory://" + key, nil
}

// URL returns the synthetic URL for a stored key.
func (m *Memory) URL(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return "", fmt.Errorf("blob %s not found", key)
	}
	return "memory://" + key, nil
}

// Get returns stored bytes, for test assertions.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	return data, ok
}
