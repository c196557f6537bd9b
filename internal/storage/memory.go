package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/models"
)

// MemoryStore is a process-local RecordStore and ObjectStore, used by tests
// and single-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.EnrollmentRecord
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.EnrollmentRecord),
		objects: make(map[string][]byte),
	}
}

func (m *MemoryStore) Close() {}
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func copyRecord(r models.EnrollmentRecord) models.EnrollmentRecord {
	r.Descriptor = slices.Clone(r.Descriptor)
	return r
}

func (m *MemoryStore) Get(ctx context.Context, identity string) (*models.EnrollmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[identity]
	if !ok {
		return nil, ErrRecordNotFound
	}
	r = copyRecord(r)
	return &r, nil
}

func (m *MemoryStore) Put(ctx context.Context, rec *models.EnrollmentRecord) error {
	r := copyRecord(*rec)
	if r.EnrolledAt.IsZero() {
		r.EnrolledAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.records[r.Identity] = r
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]models.EnrollmentRecord, error) {
	m.mu.RLock()
	out := make([]models.EnrollmentRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, copyRecord(r))
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.EnrollmentRecord) int {
		if c := a.EnrolledAt.Compare(b.EnrolledAt); c != 0 {
			return c
		}
		switch {
		case a.Identity < b.Identity:
			return -1
		case a.Identity > b.Identity:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[identity]; !ok {
		return ErrRecordNotFound
	}
	delete(m.records, identity)
	return nil
}

func (m *MemoryStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	m.objects[key] = slices.Clone(data)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return slices.Clone(data), nil
}

func (m *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// ListObjects returns the keys under prefix in lexical order.
func (m *MemoryStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *MemoryStore) DeleteObjects(ctx context.Context, keys []string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	m.mu.Unlock()
	return nil
}
