package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Hook is invoked once per published aggregation pass with the new snapshot.
// Hooks run synchronously on the publishing goroutine and must not block.
type Hook func(*Snapshot)

// Store holds the current active snapshot and the history partition. The
// snapshot pointer is swapped atomically on publish; readers never observe a
// partially updated catalog.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
	hooks   []Hook
	history HistoryStore
}

func NewStore(history HistoryStore) *Store {
	if history == nil {
		history = NewMemoryHistory()
	}
	return &Store{
		current: NewSnapshot(),
		history: history,
	}
}

// Current returns the last published snapshot. Never nil.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish validates and installs a new snapshot, then notifies subscribers.
// Validation and the pointer swap happen under the same lock Retire holds, so
// a sweep can never land between the exclusivity check and the swap. An entry
// whose key was retired while the pass assembled the snapshot is dropped
// rather than failing the whole pass: the rest of the pass's updates still
// reach consumers, and the next pass re-keys that event to a fresh occurrence.
func (s *Store) Publish(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	for key := range snap.Active {
		inHistory, err := s.history.Contains(ctx, key)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to verify history exclusivity: %w", err)
		}
		if inHistory {
			slog.Warn("Catalog: dropping entry retired mid-pass", "key", key)
			delete(snap.Active, key)
		}
	}

	snap.MergedAt = time.Now().UTC()
	s.current = snap
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(snap)
	}
	return nil
}

// Subscribe registers a change-notification hook for push-to-client fan-out.
func (s *Store) Subscribe(hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// GetActive returns the active records of the current snapshot, sorted by key.
func (s *Store) GetActive() []models.UnifiedRecord {
	return s.Current().Records()
}

// GetHistory queries the history partition.
func (s *Store) GetHistory(ctx context.Context, filter HistoryFilter) ([]models.UnifiedRecord, error) {
	return s.history.List(ctx, filter)
}

// Retire moves the given keys from Active into History. The new active
// snapshot and the history writes happen under the store lock so no reader
// ever sees a key in both partitions. Returns how many records moved.
func (s *Store) Retire(ctx context.Context, keys []string, retiredAt time.Time) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	moved := 0
	for _, key := range keys {
		rec, ok := next.Active[key]
		if !ok {
			continue
		}
		rec.RetiredAt = retiredAt.UTC()
		if err := s.history.Store(ctx, rec); err != nil {
			// Keep the record active rather than lose it; the next sweep
			// retries.
			slog.Error("Catalog: failed to store history record, keeping active", "key", key, "error", err)
			continue
		}
		delete(next.Active, key)
		moved++
	}
	if moved > 0 {
		next.MergedAt = s.current.MergedAt
		next.PassID = s.current.PassID
		s.current = next
	}
	return moved, nil
}

// InHistory reports whether a key was ever retired. The merge engine uses it
// to open a new occurrence instead of resurrecting a retired record.
func (s *Store) InHistory(ctx context.Context, key string) (bool, error) {
	return s.history.Contains(ctx, key)
}

// OccurrenceKey returns the first key variant not yet present in history:
// the base key itself, then "base#2", "base#3", and so on. A retired event
// that a source reports again becomes a distinct occurrence.
func (s *Store) OccurrenceKey(ctx context.Context, base string) (string, error) {
	key := base
	for n := 2; ; n++ {
		inHistory, err := s.history.Contains(ctx, key)
		if err != nil {
			return "", err
		}
		if !inHistory {
			return key, nil
		}
		key = fmt.Sprintf("%s#%d", base, n)
	}
}

// Close releases the history store.
func (s *Store) Close() error {
	return s.history.Close()
}
