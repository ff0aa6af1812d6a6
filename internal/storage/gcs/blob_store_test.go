package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(
		context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	const (
		bucket = "books"
		object = "serial/long-road.epub"
	)
	payload := []byte("epub-bytes")
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucket))
		assert.Equal(t, object, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(payload))
		assert.Contains(t, string(body), "application/epub+zip")

		fmt.Fprintf(w, `{"bucket": %q, "name": %q}`, bucket, object)
	}))

	store, err := New(context.Background(), client, Config{Bucket: bucket})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), object, "application/epub+zip", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "gs://books/serial/long-road.epub", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	store, err := New(context.Background(), client, Config{Bucket: "books"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.epub", "", strings.NewReader("data"))
	require.Error(t, err)
}

func TestPutObjectReaderError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	store, err := New(context.Background(), client, Config{Bucket: "books"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.epub", "", io.MultiReader(
		strings.NewReader("partial"),
		errReader{err: errors.New("source broke")},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy object")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(context.Background(), client, Config{})
	require.Error(t, err)

	_, err = New(context.Background(), client, Config{Bucket: "missing", VerifyBucket: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestNewVerifiesBucket(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/books")
		fmt.Fprint(w, `{"name": "books"}`)
	}))
	_, err := New(context.Background(), client, Config{Bucket: "books", VerifyBucket: true})
	require.NoError(t, err)
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}
