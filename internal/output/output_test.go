package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webspider/internal/publisher/memory"
	blobmemory "github.com/JakeFAU/webspider/internal/storage/memory"
)

type quote struct {
	Text string `json:"text"`
}

func TestJSONLinesWritesOneLinePerItem(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewJSONLines(&buf)
	require.NoError(t, w.Write(context.Background(), quote{Text: "a"}))
	require.NoError(t, w.Write(context.Background(), quote{Text: "b"}))
	require.NoError(t, w.Close(context.Background()))

	require.Equal(t, "{\"text\":\"a\"}\n{\"text\":\"b\"}\n", buf.String())
}

func TestJSONLinesEncodeError(t *testing.T) {
	t.Parallel()

	w := NewJSONLines(io.Discard)
	err := w.Write(context.Background(), make(chan int))
	require.Error(t, err)
	require.Contains(t, err.Error(), "encode item")
}

func TestBlobUploadsOnClose(t *testing.T) {
	t.Parallel()

	store := blobmemory.NewBlobStore()
	w, err := NewBlob(store, "run-1/items.jsonl")
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), quote{Text: "a"}))
	require.Empty(t, store.Paths())

	require.NoError(t, w.Close(context.Background()))
	require.Equal(t, "memory://run-1/items.jsonl", w.URI())
	obj, ok := store.Get("run-1/items.jsonl")
	require.True(t, ok)
	require.Equal(t, ContentType, obj.ContentType)
	require.Equal(t, "{\"text\":\"a\"}\n", string(obj.Data))
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestBlobUploadError(t *testing.T) {
	t.Parallel()

	w, err := NewBlob(failingStore{}, "items.jsonl")
	require.NoError(t, err)
	err = w.Close(context.Background())
	require.EqualError(t, err, "upload items: bucket gone")

	_, err = NewBlob(nil, "x")
	require.Error(t, err)
	_, err = NewBlob(failingStore{}, "")
	require.Error(t, err)
}

func TestPublishSendsEveryItem(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	w, err := NewPublish(pub, map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), quote{Text: "a"}))
	require.NoError(t, w.Write(context.Background(), quote{Text: "b"}))
	require.NoError(t, w.Close(context.Background()))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, quote{Text: "b"}, msgs[1].Payload)
	require.Equal(t, "r1", msgs[0].Attributes["run_id"])

	_, err = NewPublish(nil, nil)
	require.Error(t, err)
}
