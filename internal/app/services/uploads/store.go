package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/campusmess/messhall/internal/app/core"
)

// Object is a stored blob as the rest of the system sees it.
type Object struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ObjectStore persists binary uploads.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// GCSStore writes objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	publicBase string
}

// NewGCSStore opens a GCS client. An empty credentialsFile uses application
// default credentials. publicBase defaults to the bucket's public URL.
func NewGCSStore(ctx context.Context, bucket, credentialsFile, publicBase string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{client: client, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Put implements ObjectStore.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, body io.Reader) (Object, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return Object{}, core.Unavailable("upload object", fmt.Errorf("copy to gs://%s/%s: %w", s.bucket, key, err))
	}
	if err := w.Close(); err != nil {
		return Object{}, core.Unavailable("upload object", fmt.Errorf("close gs://%s/%s: %w", s.bucket, key, err))
	}
	return Object{ID: key, URL: s.publicBase + "/" + key}, nil
}

// Delete implements ObjectStore. Deleting a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return core.Unavailable("delete object", err)
	}
	return nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// MemoryStore keeps objects in process and serves them over HTTP. It backs
// development runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	base    string
}

type memoryObject struct {
	contentType string
	data        []byte
}

// NewMemoryStore returns an empty store whose URLs start with base.
func NewMemoryStore(base string) *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), base: strings.TrimRight(base, "/")}
}

// Put implements ObjectStore.
func (s *MemoryStore) Put(_ context.Context, key, contentType string, body io.Reader) (Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Object{}, err
	}
	s.mu.Lock()
	s.objects[key] = memoryObject{contentType: contentType, data: data}
	s.mu.Unlock()
	return Object{ID: key, URL: s.base + "/" + key}, nil
}

// Delete implements ObjectStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ServeHTTP serves an object by the path below the store's base.
func (s *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, s.base+"/")
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	http.ServeContent(w, r, key, zeroTime, bytes.NewReader(obj.data))
}
