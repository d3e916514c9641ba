package canon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAliasStore persists learned aliases in Redis so a restarted engine
// starts with everything it already learned. Key format:
// "canon:alias:<type>:<alias>" -> JSON {canonical, provenance}.
type RedisAliasStore struct {
	client *redis.Client
}

type storedAlias struct {
	Canonical  string     `json:"canonical"`
	Provenance Provenance `json:"provenance"`
}

func NewRedisAliasStore(addr, password string, db int) (*RedisAliasStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAliasStore{client: client}, nil
}

func aliasKey(entityType EntityType, alias string) string {
	return fmt.Sprintf("canon:alias:%s:%s", entityType, alias)
}

// SaveAlias writes one learned alias. No TTL: aliases are the audit trail of
// every resolution the cache ever made.
func (s *RedisAliasStore) SaveAlias(ctx context.Context, entityType EntityType, alias, canonical string, prov Provenance) error {
	data, err := json.Marshal(storedAlias{Canonical: canonical, Provenance: prov})
	if err != nil {
		return fmt.Errorf("failed to marshal alias: %w", err)
	}
	return s.client.Set(ctx, aliasKey(entityType, alias), data, 0).Err()
}

// LoadAliases scans every stored alias, grouped by entity type.
func (s *RedisAliasStore) LoadAliases(ctx context.Context) (map[EntityType]map[string]string, error) {
	out := make(map[EntityType]map[string]string)

	iter := s.client.Scan(ctx, 0, "canon:alias:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// canon:alias:<type>:<alias>; the alias itself may contain colons.
		parts := strings.SplitN(key, ":", 4)
		if len(parts) != 4 {
			continue
		}
		et, alias := EntityType(parts[2]), parts[3]

		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue // key expired or unreadable, skip
		}
		var stored storedAlias
		if err := json.Unmarshal([]byte(data), &stored); err != nil {
			continue
		}
		if out[et] == nil {
			out[et] = make(map[string]string)
		}
		out[et][alias] = stored.Canonical
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan aliases: %w", err)
	}
	return out, nil
}

func (s *RedisAliasStore) Close() error {
	return s.client.Close()
}
