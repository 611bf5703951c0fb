package leads

import (
	"context"
	"sync"
	"time"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps attributes and records in process memory. It is meant for tests and
// ephemeral services.
type MemoryBackend struct {
	mu      sync.RWMutex
	attrs   []AttributeDefinition
	records []StoredRecord
	nextID  int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{nextID: 1}
}

func (m *MemoryBackend) LoadAttributes(ctx context.Context) ([]AttributeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AttributeDefinition, len(m.attrs))
	copy(out, m.attrs)
	return out, nil
}

func (m *MemoryBackend) InsertAttribute(ctx context.Context, def AttributeDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attrs {
		if a.Key() == def.Key() {
			return newError(CodeDuplicateAttribute, def.Name, "column %q already exists", def.Name)
		}
	}
	m.attrs = append(m.attrs, def)
	return nil
}

func (m *MemoryBackend) DeleteAttribute(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, a := range m.attrs {
		if a.Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newError(CodeUnknownAttribute, key, "column %q does not exist", key)
	}
	m.attrs = append(m.attrs[:idx:idx], m.attrs[idx+1:]...)
	for i := range m.records {
		delete(m.records[i].Values, key)
	}
	return nil
}

func (m *MemoryBackend) Insert(ctx context.Context, submitterID int64, createdAt time.Time, values map[string]string) (StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := StoredRecord{
		ID:          m.nextID,
		SubmitterID: submitterID,
		CreatedAt:   createdAt.UTC(),
		Status:      StatusPending,
		Values:      copyValues(values),
	}
	m.nextID++
	m.records = append(m.records, rec)
	return cloneRecord(rec), nil
}

func (m *MemoryBackend) ListAll(ctx context.Context) ([]StoredRecord, error) {
	return m.list(func(StoredRecord) bool { return true }), nil
}

func (m *MemoryBackend) ListBySubmitter(ctx context.Context, submitterID int64) ([]StoredRecord, error) {
	return m.list(func(r StoredRecord) bool { return r.SubmitterID == submitterID }), nil
}

func (m *MemoryBackend) Detail(ctx context.Context, id int64) (StoredRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.ID == id {
			return cloneRecord(r), true, nil
		}
	}
	return StoredRecord{}, false, nil
}

func (m *MemoryBackend) UpdateStatus(ctx context.Context, id int64, status Status, approverID int64, at time.Time) (StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID != id {
			continue
		}
		approver := approverID
		stamp := at.UTC()
		m.records[i].Status = status
		m.records[i].ApprovedBy = &approver
		m.records[i].ApprovedAt = &stamp
		return cloneRecord(m.records[i]), nil
	}
	return StoredRecord{}, newError(CodeUnknownRecord, "", "lead %d does not exist", id)
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) list(keep func(StoredRecord) bool) []StoredRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []StoredRecord{}
	for _, r := range m.records {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sortRecords(out)
	return out
}

func cloneRecord(r StoredRecord) StoredRecord {
	r.Values = copyValues(r.Values)
	if r.ApprovedBy != nil {
		v := *r.ApprovedBy
		r.ApprovedBy = &v
	}
	if r.ApprovedAt != nil {
		v := *r.ApprovedAt
		r.ApprovedAt = &v
	}
	return r
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
