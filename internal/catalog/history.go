package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// HistoryFilter narrows GetHistory results. Zero values mean "no constraint".
type HistoryFilter struct {
	Sport string
	Since time.Time
	Limit int
}

// HistoryStore holds retired records. Moves into history are one-directional;
// nothing ever deletes from it.
type HistoryStore interface {
	Store(ctx context.Context, rec *models.UnifiedRecord) error
	Contains(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, filter HistoryFilter) ([]models.UnifiedRecord, error)
	Close() error
}

// MemoryHistory is the embedded history store used when no Postgres DSN is
// configured, and in tests.
type MemoryHistory struct {
	mu      sync.RWMutex
	records map[string]*models.UnifiedRecord
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{records: make(map[string]*models.UnifiedRecord)}
}

func (h *MemoryHistory) Store(ctx context.Context, rec *models.UnifiedRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[rec.KeyString] = rec.Clone()
	return nil
}

func (h *MemoryHistory) Contains(ctx context.Context, key string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.records[key]
	return ok, nil
}

func (h *MemoryHistory) List(ctx context.Context, filter HistoryFilter) ([]models.UnifiedRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.UnifiedRecord, 0, len(h.records))
	for _, rec := range h.records {
		if filter.Sport != "" && rec.SportName != filter.Sport {
			continue
		}
		if !filter.Since.IsZero() && rec.RetiredAt.Before(filter.Since) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyString < out[j].KeyString })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (h *MemoryHistory) Close() error { return nil }
