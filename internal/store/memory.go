package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore — Store в памяти процесса.
//
// Используется в тестах и в локальной симуляции grid.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Get возвращает документ или ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}

	doc.Body = slices.Clone(doc.Body)
	return doc, nil
}

// Put записывает документ при совпадении etag.
func (s *MemoryStore) Put(_ context.Context, id string, body []byte, expected Etag) (Etag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.docs[id].Etag
	if current != expected {
		return EmptyEtag, &ConflictError{ID: id, Current: current, Expected: expected}
	}

	etag := NextEtag(current, body)
	s.docs[id] = Document{ID: id, Etag: etag, Body: slices.Clone(body)}
	return etag, nil
}

// ListIDsWithPrefix возвращает отсортированные ids с префиксом.
func (s *MemoryStore) ListIDsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id := range s.docs {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)
	return ids, nil
}

// Clear удаляет все документы (имитация потери хранилища).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]Document)
}
