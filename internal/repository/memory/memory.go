// Package memory provides in-process status and audit stores for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/repository/status"
)

// StatusStore keeps the latest status per key and the full write history.
type StatusStore struct {
	mu      sync.RWMutex
	records map[string]model.ProcessingStatus
	history map[string][]model.Status
}

// NewStatusStore creates an empty StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		records: make(map[string]model.ProcessingStatus),
		history: make(map[string][]model.Status),
	}
}

// Set overwrites the record for st.Key.
func (s *StatusStore) Set(_ context.Context, st model.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[st.Key] = st
	s.history[st.Key] = append(s.history[st.Key], st.Status)

	return nil
}

// Get returns the record for key or status.ErrNotFound.
func (s *StatusStore) Get(_ context.Context, key string) (model.ProcessingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.records[key]
	if !ok {
		return model.ProcessingStatus{}, status.ErrNotFound
	}

	return st, nil
}

// History returns every status written for key, oldest first.
func (s *StatusStore) History(key string) []model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Status(nil), s.history[key]...)
}

// AuditLog keeps appended entries in order.
type AuditLog struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

// NewAuditLog creates an empty AuditLog.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append stores the entry.
func (a *AuditLog) Append(_ context.Context, e model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, e)

	return nil
}

// Entries returns a copy of every entry appended so far.
func (a *AuditLog) Entries() []model.AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return append([]model.AuditEntry(nil), a.entries...)
}
