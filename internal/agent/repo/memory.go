package repo

import (
	"context"
	"sync"

	"github.com/tonagent/server/internal/agent/model"
)

// MemoryHistoryRepository is the default, process-lifetime history store: a
// bounded per-session log guarded by one mutex. Appends within a session are
// applied in call order; the oldest entry is evicted once capacity is hit.
// Nothing survives a restart, which is acceptable for a best-effort context
// aid.
type MemoryHistoryRepository struct {
	mu       sync.Mutex
	capacity int
	sessions map[string][]model.HistoryEntry
}

func NewMemoryHistoryRepository(capacity int) *MemoryHistoryRepository {
	if capacity <= 0 {
		capacity = 5
	}
	return &MemoryHistoryRepository{
		capacity: capacity,
		sessions: make(map[string][]model.HistoryEntry),
	}
}

func (r *MemoryHistoryRepository) Append(_ context.Context, sessionKey string, entry model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := append(r.sessions[sessionKey], entry)
	if len(entries) > r.capacity {
		entries = entries[len(entries)-r.capacity:]
	}
	r.sessions[sessionKey] = entries
	return nil
}

func (r *MemoryHistoryRepository) Recent(_ context.Context, sessionKey string) ([]model.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.sessions[sessionKey]
	out := make([]model.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *MemoryHistoryRepository) Clear(_ context.Context, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionKey)
	return nil
}

func (r *MemoryHistoryRepository) Count(_ context.Context, sessionKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions[sessionKey]), nil
}

var _ model.HistoryRepository = (*MemoryHistoryRepository)(nil)
