// Package objectstore wraps the S3 client behind the narrow interface this
// core needs: put/delete/head plus public URL construction. The store is
// append-mostly: request handling always writes new keys; overwriting is
// reserved for explicit backfill tooling.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/shareloom/core/internal/config"
)

// Store is the object storage surface consumed by the job pipeline and the
// synchronous materializer.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// S3Store implements Store on an S3-compatible backend.
type S3Store struct {
	client       *s3.Client
	bucket       string
	customDomain string
	endpoint     string
	region       string
	pathStyle    bool
}

// NewS3 builds an S3Store from config. Custom endpoints (MinIO, R2, ...)
// default to path-style addressing.
func NewS3(opts config.S3Options) (*S3Store, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	region := strings.TrimSpace(opts.Region)
	if bucket == "" || region == "" {
		return nil, fmt.Errorf("objectstore: bucket and region are required")
	}
	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		return nil, fmt.Errorf("objectstore: credentials are required")
	}

	endpoint := strings.TrimSuffix(strings.TrimSpace(opts.Endpoint), "/")
	pathStyle := opts.PathStyleAccess
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		pathStyle = true
	}

	clientOpts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		UsePathStyle: pathStyle,
	}
	if endpoint != "" {
		clientOpts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Store{
		client:       s3.New(clientOpts),
		bucket:       bucket,
		customDomain: strings.TrimRight(strings.TrimSpace(opts.CustomDomain), "/"),
		endpoint:     endpoint,
		region:       region,
		pathStyle:    pathStyle,
	}, nil
}

// Put uploads body under key and returns the durable public URL.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("objectstore: invalid object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// Delete removes an object. Deleting an absent key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(normalizeKey(key)),
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// Head reports whether an object exists.
func (s *S3Store) Head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(normalizeKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("objectstore: head %s: %w", key, err)
	}
	return true, nil
}

// PublicURL builds the durable URL for an uploaded key.
func (s *S3Store) PublicURL(key string) string {
	key = encodeKey(normalizeKey(key))
	if s.customDomain != "" {
		return s.customDomain + "/" + key
	}
	if s.endpoint != "" {
		return s.endpoint + "/" + s.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}

func encodeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
