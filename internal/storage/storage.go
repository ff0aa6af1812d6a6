// Package storage commits finished artifacts to their destination. A
// destination is either a local file path or a gs://bucket/object URI.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	gcsclient "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/JakeFAU/serial-epub/internal/storage/gcs"
	"github.com/JakeFAU/serial-epub/internal/storage/local"
)

const gcsScheme = "gs://"

// BlobStore writes an object atomically: either the whole object becomes
// visible at path or nothing does.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Output is an opened destination for a single artifact.
type Output struct {
	Store BlobStore
	Path  string
	close func() error
}

// Put writes the artifact to the destination and returns its URI.
func (o *Output) Put(ctx context.Context, contentType string, r io.Reader) (string, error) {
	uri, err := o.Store.PutObject(ctx, o.Path, contentType, r)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", o.Path, err)
	}
	return uri, nil
}

// Close releases any client held by the destination.
func (o *Output) Close() error {
	if o == nil || o.close == nil {
		return nil
	}
	return o.close()
}

// ParseGCSURI splits gs://bucket/object. ok is false when out is not a GCS URI.
func ParseGCSURI(out string) (bucket, object string, ok bool, err error) {
	rest, found := strings.CutPrefix(out, gcsScheme)
	if !found {
		return "", "", false, nil
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || strings.TrimSpace(object) == "" {
		return "", "", true, fmt.Errorf("gcs output %q must be gs://bucket/object", out)
	}
	return bucket, object, true, nil
}

// Open resolves out to a destination. GCS clients are built with opts and
// the bucket is checked before returning.
func Open(ctx context.Context, out string, opts ...option.ClientOption) (*Output, error) {
	if strings.TrimSpace(out) == "" {
		return nil, errors.New("output path is required")
	}
	bucket, object, isGCS, err := ParseGCSURI(out)
	if err != nil {
		return nil, err
	}
	if isGCS {
		client, err := gcsclient.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(ctx, client, gcs.Config{Bucket: bucket, VerifyBucket: true})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Output{Store: store, Path: object, close: client.Close}, nil
	}

	abs, err := filepath.Abs(out)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return nil, err
	}
	return &Output{Store: store, Path: filepath.Base(abs)}, nil
}
