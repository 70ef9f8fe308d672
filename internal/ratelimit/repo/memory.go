package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/entity"
)

// MemoryRepo keeps windows in a map; same semantics as Repo.Hit.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]entity.Record
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]entity.Record{}}
}

func (m *MemoryRepo) Hit(_ context.Context, key string, now time.Time, window time.Duration) (entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return entity.Record{}, m.Err
	}
	rec, ok := m.records[key]
	if !ok || rec.Expired(now) {
		rec = entity.Record{Key: key, Count: 1, ResetAt: now.Add(window)}
	} else {
		rec.Count++
	}
	m.records[key] = rec
	return rec, nil
}

func (m *MemoryRepo) Sweep(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for k, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// Len is the number of stored windows, expired ones included.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
