package canon

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EntityType partitions the alias space: a team name never matches a league.
type EntityType string

const (
	EntityTeam   EntityType = "team"
	EntityLeague EntityType = "league"
	EntitySport  EntityType = "sport"
)

// Provenance records where a learned alias came from.
type Provenance struct {
	SourceID   string    `json:"source_id"`
	ResolvedAt time.Time `json:"resolved_at"`
	Score      float64   `json:"score"` // similarity that justified the alias; 1.0 for exact/new
}

// Entity is one resolved identity with every raw spelling known for it.
type Entity struct {
	Type          EntityType            `json:"type"`
	CanonicalName string                `json:"canonical_name"`
	Aliases       map[string]Provenance `json:"aliases"`
	FirstSeen     time.Time             `json:"first_seen"`
	LastSeen      time.Time             `json:"last_seen"`
}

// AliasStore persists learned aliases so a restarted engine does not relearn
// them. Failures are non-fatal; the cache keeps working from memory.
type AliasStore interface {
	SaveAlias(ctx context.Context, entityType EntityType, alias, canonical string, prov Provenance) error
	LoadAliases(ctx context.Context) (map[EntityType]map[string]string, error)
	Close() error
}

// Cache resolves raw entity names to stable canonical identities and learns
// new aliases as it goes. Reads are safe under concurrent access; learning
// writes are serialized behind a writer lock so a rename is never partially
// visible.
type Cache struct {
	mu        sync.RWMutex
	threshold float64
	entities  map[EntityType]map[string]*Entity // canonical name -> entity
	aliases   map[EntityType]map[string]string  // raw or normalized form -> canonical name
	store     AliasStore
	now       func() time.Time
}

// NewCache builds an empty cache. threshold is the minimum similarity score
// for attaching a raw name to an existing entity; below it a new entity is
// registered. store may be nil.
func NewCache(threshold float64, store AliasStore) *Cache {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Cache{
		threshold: threshold,
		entities:  make(map[EntityType]map[string]*Entity),
		aliases:   make(map[EntityType]map[string]string),
		store:     store,
		now:       time.Now,
	}
}

// WarmStart preloads aliases from the store. Entities are reconstructed with
// the canonical name as its own alias; provenance of preloaded aliases is not
// tracked beyond the store itself.
func (c *Cache) WarmStart(ctx context.Context) {
	if c.store == nil {
		return
	}
	loaded, err := c.store.LoadAliases(ctx)
	if err != nil {
		slog.Warn("Canonicalization cache: warm start failed, continuing empty", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for et, m := range loaded {
		for alias, canonical := range m {
			c.ensureEntityLocked(et, canonical, Provenance{ResolvedAt: c.now().UTC(), Score: 1})
			c.addAliasLocked(et, alias, canonical, Provenance{ResolvedAt: c.now().UTC(), Score: 1}, false)
			n++
		}
	}
	slog.Info("Canonicalization cache: warm start complete", "aliases", n)
}

// Resolve maps a raw name to its canonical form, learning on a miss:
//  1. exact alias lookup
//  2. deterministic normalization
//  3. lookup on the normalized form
//  4. similarity scan against known canonical names; best score >= threshold
//     registers the raw name as a new alias of that entity
//  5. otherwise the normalized form becomes a brand-new entity
func (c *Cache) Resolve(rawName string, entityType EntityType, sourceID string) string {
	raw := rawName
	if raw == "" {
		return ""
	}

	// Fast path: known alias under read lock.
	c.mu.RLock()
	if canonical, ok := c.aliases[entityType][raw]; ok {
		c.mu.RUnlock()
		return canonical
	}
	normalized := Normalize(raw)
	if canonical, ok := c.aliases[entityType][normalized]; ok {
		c.mu.RUnlock()
		// Learn the raw spelling too so the next lookup is an O(1) hit.
		c.learnAlias(entityType, raw, canonical, Provenance{SourceID: sourceID, ResolvedAt: c.now().UTC(), Score: 1})
		return canonical
	}
	c.mu.RUnlock()

	if normalized == "" {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another resolver may have learned this name while we waited.
	if canonical, ok := c.aliases[entityType][raw]; ok {
		return canonical
	}
	if canonical, ok := c.aliases[entityType][normalized]; ok {
		c.addAliasLocked(entityType, raw, canonical, Provenance{SourceID: sourceID, ResolvedAt: c.now().UTC(), Score: 1}, true)
		return canonical
	}

	prov := Provenance{SourceID: sourceID, ResolvedAt: c.now().UTC()}

	if canonical, score, ok := c.bestMatchLocked(entityType, normalized); ok {
		prov.Score = score
		c.addAliasLocked(entityType, raw, canonical, prov, true)
		if normalized != raw {
			c.addAliasLocked(entityType, normalized, canonical, prov, true)
		}
		return canonical
	}

	// No candidate cleared the threshold: the normalized form becomes its own
	// canonical entity.
	prov.Score = 1
	c.ensureEntityLocked(entityType, normalized, prov)
	c.addAliasLocked(entityType, normalized, normalized, prov, true)
	if raw != normalized {
		c.addAliasLocked(entityType, raw, normalized, prov, true)
	}
	return normalized
}

// bestMatchLocked scans known canonical names for the given type. Candidates
// are visited in sorted order so score ties resolve deterministically to the
// lexicographically first name.
func (c *Cache) bestMatchLocked(entityType EntityType, normalized string) (string, float64, bool) {
	ents := c.entities[entityType]
	if len(ents) == 0 {
		return "", 0, false
	}
	names := make([]string, 0, len(ents))
	for name := range ents {
		names = append(names, name)
	}
	sort.Strings(names)

	bestName, bestScore := "", 0.0
	for _, name := range names {
		if score := Similarity(normalized, name); score > bestScore {
			bestName, bestScore = name, score
		}
	}
	if bestScore >= c.threshold {
		return bestName, bestScore, true
	}
	return "", 0, false
}

// learnAlias records an alias discovered on the read path.
func (c *Cache) learnAlias(entityType EntityType, alias, canonical string, prov Provenance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.aliases[entityType][alias]; ok {
		return
	}
	c.addAliasLocked(entityType, alias, canonical, prov, true)
}

func (c *Cache) ensureEntityLocked(entityType EntityType, canonical string, prov Provenance) *Entity {
	if c.entities[entityType] == nil {
		c.entities[entityType] = make(map[string]*Entity)
	}
	ent, ok := c.entities[entityType][canonical]
	if !ok {
		ent = &Entity{
			Type:          entityType,
			CanonicalName: canonical,
			Aliases:       make(map[string]Provenance),
			FirstSeen:     prov.ResolvedAt,
		}
		c.entities[entityType][canonical] = ent
	}
	ent.LastSeen = prov.ResolvedAt
	return ent
}

func (c *Cache) addAliasLocked(entityType EntityType, alias, canonical string, prov Provenance, persist bool) {
	if c.aliases[entityType] == nil {
		c.aliases[entityType] = make(map[string]string)
	}
	c.aliases[entityType][alias] = canonical

	ent := c.ensureEntityLocked(entityType, canonical, prov)
	ent.Aliases[alias] = prov

	if persist && c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.store.SaveAlias(ctx, entityType, alias, canonical, prov); err != nil {
			slog.Warn("Canonicalization cache: failed to persist alias",
				"type", entityType, "alias", alias, "canonical", canonical, "error", err)
		}
	}
}

// Entities returns a sorted copy of all entities of one type, for the ops
// introspection endpoint. Safe to call while merge passes run.
func (c *Cache) Entities(entityType EntityType) []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ents := c.entities[entityType]
	out := make([]Entity, 0, len(ents))
	for _, ent := range ents {
		cp := *ent
		cp.Aliases = make(map[string]Provenance, len(ent.Aliases))
		for a, p := range ent.Aliases {
			cp.Aliases[a] = p
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

// Stats summarizes cache size per entity type.
func (c *Cache) Stats() map[EntityType]CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[EntityType]CacheStats, len(c.entities))
	for et, ents := range c.entities {
		out[et] = CacheStats{
			Entities: len(ents),
			Aliases:  len(c.aliases[et]),
		}
	}
	return out
}

type CacheStats struct {
	Entities int `json:"entities"`
	Aliases  int `json:"aliases"`
}
