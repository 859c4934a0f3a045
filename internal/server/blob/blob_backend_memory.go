package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	etag         string
	lastModified time.Time
}

// MemoryBackend keeps objects in a map. Used by tests and local development.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]*memoryObject)}
}

func (m *MemoryBackend) Name() string {
	return BackendMemory
}

func (m *MemoryBackend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	if !ValidateKey(key) {
		return nil, ErrInvalidKey
	}

	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return &GetObjectResponse{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ETag:         obj.etag,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	data, err := io.ReadAll(io.LimitReader(params.Body, params.Size))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != params.Size {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, len(data), params.Size)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	obj := &memoryObject{
		data:         data,
		etag:         hex.EncodeToString(sum[:]),
		lastModified: time.Now().UTC(),
	}

	m.mu.Lock()
	m.objects[params.Key] = obj
	m.mu.Unlock()

	return &PutObjectResponse{
		Key:          params.Key,
		Size:         params.Size,
		ETag:         obj.etag,
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, key string) (bool, error) {
	if !ValidateKey(key) {
		return false, ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}

// Keys returns the stored keys. Tests use it to assert what was written.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

var _ Backend = (*MemoryBackend)(nil)
