// Package output delivers crawled items to their destination.
package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ContentType is the content type of a JSON-lines dump.
const ContentType = "application/x-ndjson"

// Writer receives every item of a run. Close flushes whatever is buffered.
type Writer interface {
	Write(ctx context.Context, item any) error
	Close(ctx context.Context) error
}

// BlobStore uploads one object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher sends one message per item.
type Publisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// JSONLines writes one JSON document per line.
type JSONLines struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONLines wraps w.
func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	return &JSONLines{w: bw, enc: json.NewEncoder(bw)}
}

// Write encodes item on its own line.
func (j *JSONLines) Write(_ context.Context, item any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(item); err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	return nil
}

// Flush writes buffered lines to the underlying writer.
func (j *JSONLines) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flush items: %w", err)
	}
	return nil
}

// Close flushes buffered lines.
func (j *JSONLines) Close(context.Context) error {
	return j.Flush()
}

// Blob buffers a JSON-lines dump and uploads it on Close.
type Blob struct {
	store BlobStore
	path  string
	buf   bytes.Buffer
	lines *JSONLines
	uri   string
}

// NewBlob returns a Writer that uploads to path on store.
func NewBlob(store BlobStore, path string) (*Blob, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if path == "" {
		return nil, errors.New("blob path is required")
	}
	b := &Blob{store: store, path: path}
	b.lines = NewJSONLines(&b.buf)
	return b, nil
}

// Write buffers item.
func (b *Blob) Write(ctx context.Context, item any) error {
	return b.lines.Write(ctx, item)
}

// Close uploads the dump.
func (b *Blob) Close(ctx context.Context) error {
	if err := b.lines.Flush(); err != nil {
		return err
	}
	uri, err := b.store.PutObject(ctx, b.path, ContentType, bytes.NewReader(b.buf.Bytes()))
	if err != nil {
		return fmt.Errorf("upload items: %w", err)
	}
	b.uri = uri
	return nil
}

// URI returns the location of the uploaded dump, after Close.
func (b *Blob) URI() string {
	return b.uri
}

// Publish sends each item as its own message.
type Publish struct {
	pub   Publisher
	attrs map[string]string
}

// NewPublish returns a Writer that publishes every item with attrs.
func NewPublish(pub Publisher, attrs map[string]string) (*Publish, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	return &Publish{pub: pub, attrs: attrs}, nil
}

// Write publishes item.
func (p *Publish) Write(ctx context.Context, item any) error {
	if _, err := p.pub.Publish(ctx, item, p.attrs); err != nil {
		return fmt.Errorf("publish item: %w", err)
	}
	return nil
}

// Close is a no-op; every Write already waited for the server.
func (p *Publish) Close(context.Context) error {
	return nil
}
