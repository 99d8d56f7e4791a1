package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeUploads records multipart uploads against the GCS JSON API.
type fakeUploads struct {
	mu     sync.Mutex
	names  []string
	bodies []string
	status int
}

func (f *fakeUploads) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.names = append(f.names, r.URL.Query().Get("name"))
	f.bodies = append(f.bodies, string(body))
	status := f.status
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	fmt.Fprintf(w, `{"name": %q, "bucket": "test-bucket"}`, r.URL.Query().Get("name"))
}

func newTestStore(t *testing.T, handler http.Handler, prefix string) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: prefix})
	require.NoError(t, err)
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	fake := &fakeUploads{}
	store := newTestStore(t, fake, "/crawls/")

	uri, err := store.PutObject(context.Background(), "run-1/items.jsonl", "application/x-ndjson",
		bytes.NewReader([]byte(`{"text":"hello"}`)))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/crawls/run-1/items.jsonl", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, []string{"crawls/run-1/items.jsonl"}, fake.names)
	require.Contains(t, fake.bodies[0], `{"text":"hello"}`)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeUploads{status: http.StatusInternalServerError}, "")
	_, err := store.PutObject(context.Background(), "items.jsonl", "", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestPutObjectRequiresName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeUploads{}, "")
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.EqualError(t, err, "path is required")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.EqualError(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.EqualError(t, err, "bucket name is required")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a/b", (&BlobStore{}).ObjectName("/a/b"))
	require.Equal(t, "p/a/b", (&BlobStore{prefix: "p"}).ObjectName("a/b"))
}
