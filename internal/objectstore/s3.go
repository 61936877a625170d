// Package objectstore wraps the S3-compatible blob store used to hold
// uploaded wallpaper bytes (spec §4.B, §6). Keys are content-addressed by
// wallpaper ID rather than filesystem path.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"wallpaperdb/internal/store"
)

// ObjectStore is the blob storage contract consumed by the ingest pipeline
// and the orphaned-blobs reconciler.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Head(ctx context.Context, key string) (Metadata, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Metadata is the subset of S3 HeadObject fields the reconcilers need to
// re-derive a stuck upload's size/content-type without holding the body in
// memory (DESIGN.md Open Question 1).
type Metadata struct {
	SizeBytes   int64
	ContentType string
}

type Config struct {
	Endpoint       string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Bucket         string
	ForcePathStyle bool
}

type s3Store struct {
	client *s3.Client
	bucket string
}

// New builds an S3-compatible client from static credentials, mirroring the
// teacher's dependency-injected client construction pattern.
func New(ctx context.Context, cfg Config) (ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &s3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classify("put", err)
	}
	return nil
}

func (s *s3Store) Head(ctx context.Context, key string) (Metadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return Metadata{}, store.ErrNotFound
		}
		return Metadata{}, classify("head", err)
	}

	m := Metadata{}
	if out.ContentLength != nil {
		m.SizeBytes = *out.ContentLength
	}
	if out.ContentType != nil {
		m.ContentType = *out.ContentType
	}
	return m, nil
}

func (s *s3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get", err)
	}
	return out.Body, nil
}

// Delete is idempotent: deleting a missing key is treated as success, which
// is what the orphaned-blobs reconciler relies on when racing a concurrent
// cleanup from another instance.
func (s *s3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", err)
	}
	return nil
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("list", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// classify maps S3 SDK errors onto the transient/permanent taxonomy shared
// across adapters (spec §4.B). Every S3 failure is classified transient;
// none is reported as permanent.
func classify(op string, err error) error {
	return store.Transient(op, err)
}
