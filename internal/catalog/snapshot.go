package catalog

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Snapshot is the immutable view of the active catalog produced by one
// aggregation pass. Consumers always see a complete snapshot; the next pass
// works on its own copy and the store swaps the pointer on publish.
type Snapshot struct {
	PassID   uuid.UUID
	MergedAt time.Time
	Active   map[string]*models.UnifiedRecord // key string -> record
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		PassID: uuid.New(),
		Active: make(map[string]*models.UnifiedRecord),
	}
}

// Clone deep-copies the snapshot into a mutable working set for the next pass.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		PassID: uuid.New(),
		Active: make(map[string]*models.UnifiedRecord, len(s.Active)),
	}
	for key, rec := range s.Active {
		out.Active[key] = rec.Clone()
	}
	return out
}

// Records returns the active records sorted by key so every emission of the
// same snapshot is byte-identical.
func (s *Snapshot) Records() []models.UnifiedRecord {
	keys := make([]string, 0, len(s.Active))
	for key := range s.Active {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]models.UnifiedRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, *s.Active[key])
	}
	return out
}

// MarshalStable serializes the active set deterministically (sorted keys,
// stable field order). Two snapshots built from identical inputs marshal to
// identical bytes.
func (s *Snapshot) MarshalStable() ([]byte, error) {
	return json.Marshal(s.Records())
}
