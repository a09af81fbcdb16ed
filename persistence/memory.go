// persistence/memory.go
package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/tagserver/models"
)

// MemoryDatabase keeps archives in process. Used when database.driver is "memory" and in tests.
type MemoryDatabase struct {
	mu      sync.RWMutex
	records map[string]models.GameRecord
	closed  bool
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{records: make(map[string]models.GameRecord)}
}

func (m *MemoryDatabase) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records[record.ID] = record
	return nil
}

func (m *MemoryDatabase) LoadGameRecord(ctx context.Context, gameID string) (models.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[gameID]
	if !ok {
		return models.GameRecord{}, ErrRecordNotFound
	}
	return record, nil
}

func (m *MemoryDatabase) ListPlayerGames(ctx context.Context, playerID string, limit int) ([]models.GameRecord, error) {
	m.mu.RLock()
	var out []models.GameRecord
	for _, r := range m.records {
		if _, ok := r.Player(playerID); ok {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].EndedAt, out[j].EndedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryDatabase) GetPlayerStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := models.PlayerStats{PlayerID: playerID}
	for _, r := range m.records {
		stats.Accumulate(r)
	}
	return stats, nil
}

func (m *MemoryDatabase) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
