// Package memory is an in-process object store used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aliskhannn/thumbnailer/internal/storage"
)

type object struct {
	data        []byte
	contentType string
}

// Storage keeps objects in a map keyed by bucket and key.
type Storage struct {
	mu      sync.RWMutex
	objects map[string]object
	puts    int
}

// New creates an empty Storage.
func New() *Storage {
	return &Storage{objects: make(map[string]object)}
}

func id(bucket, key string) string {
	return bucket + "/" + key
}

// Get returns a copy of the stored bytes.
func (s *Storage) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("failed to load object %s: %w", key, storage.ErrObjectNotFound)
	}

	return append([]byte(nil), obj.data...), nil
}

// Put replaces the object atomically.
func (s *Storage) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[id(bucket, key)] = object{data: append([]byte(nil), data...), contentType: contentType}
	s.puts++

	return nil
}

// Delete removes the object if it exists.
func (s *Storage) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, id(bucket, key))

	return nil
}

// ContentType returns the content type the object was stored with.
func (s *Storage) ContentType(bucket, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id(bucket, key)]

	return obj.contentType, ok
}

// Puts returns the number of successful writes.
func (s *Storage) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.puts
}
