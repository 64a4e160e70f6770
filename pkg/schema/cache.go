// Package schema caches introspected database metadata as immutable,
// atomically swapped snapshots.
package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/apperrors"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/database"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
)

// RelationshipKey indexes relationships by their two endpoints.
type RelationshipKey struct {
	ConstrainedTable string
	ReferredTable    string
}

// Snapshot is one immutable generation of introspected metadata. Readers
// holding a snapshot keep a consistent view even while a refresh swaps in
// a newer one: entities and relationships in a snapshot always belong to
// the same introspection pass.
type Snapshot struct {
	Tables        map[string]*models.SchemaEntity
	Relationships map[RelationshipKey][]models.Relationship
	TableOrder    []string
	LoadedAt      time.Time
}

// Get returns the named table, or nil if the snapshot does not have it.
func (s *Snapshot) Get(name string) *models.SchemaEntity {
	return s.Tables[name]
}

// Neighbors returns the tables one relationship hop from the given table,
// in either direction.
func (s *Snapshot) Neighbors(table string) []string {
	var neighbors []string
	seen := map[string]bool{table: true}
	for key := range s.Relationships {
		var other string
		switch table {
		case key.ConstrainedTable:
			other = key.ReferredTable
		case key.ReferredTable:
			other = key.ConstrainedTable
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			neighbors = append(neighbors, other)
		}
	}
	return neighbors
}

// Cache holds the current schema snapshot and refreshes it on demand or
// when the TTL elapses. Refresh failures keep the previous snapshot
// servable; only a cache with no snapshot at all reports unavailable.
type Cache struct {
	db     database.RelationalDatabase
	ttl    time.Duration
	logger *zap.Logger

	snapshot atomic.Pointer[Snapshot]
	mu       sync.Mutex // serializes refreshes, not reads

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a schema cache over db. The first Load introspects.
func NewCache(db database.RelationalDatabase, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		db:     db,
		ttl:    ttl,
		logger: logger.Named("schema.cache"),
	}
}

// Load returns the current snapshot, introspecting first if none exists,
// the TTL elapsed, or forceRefresh is set. When introspection fails and a
// prior snapshot exists, that snapshot is returned with no error: a stale
// schema beats no schema.
func (c *Cache) Load(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	if snap := c.snapshot.Load(); snap != nil && !forceRefresh && !c.expired(snap) {
		c.hits.Add(1)
		return snap, nil
	}
	c.misses.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited on the lock.
	if snap := c.snapshot.Load(); snap != nil && !forceRefresh && !c.expired(snap) {
		return snap, nil
	}

	entities, err := c.db.IntrospectSchema(ctx)
	if err != nil {
		if prev := c.snapshot.Load(); prev != nil {
			c.logger.Warn("introspection failed, serving previous snapshot",
				zap.Time("loaded_at", prev.LoadedAt),
				zap.Error(err))
			return prev, nil
		}
		return nil, apperrors.ErrCacheUnavailable
	}

	snap := buildSnapshot(entities)
	c.snapshot.Store(snap)

	c.logger.Info("schema snapshot refreshed",
		zap.Int("tables", len(snap.Tables)),
		zap.Int("relationship_keys", len(snap.Relationships)))

	return snap, nil
}

func (c *Cache) expired(snap *Snapshot) bool {
	return c.ttl > 0 && time.Since(snap.LoadedAt) > c.ttl
}

func buildSnapshot(entities []models.SchemaEntity) *Snapshot {
	snap := &Snapshot{
		Tables:        make(map[string]*models.SchemaEntity, len(entities)),
		Relationships: make(map[RelationshipKey][]models.Relationship),
		TableOrder:    make([]string, 0, len(entities)),
		LoadedAt:      time.Now(),
	}

	for i := range entities {
		e := &entities[i]
		snap.Tables[e.Name] = e
		snap.TableOrder = append(snap.TableOrder, e.Name)
		for _, rel := range e.Relationships {
			key := RelationshipKey{
				ConstrainedTable: rel.ConstrainedTable,
				ReferredTable:    rel.ReferredTable,
			}
			snap.Relationships[key] = append(snap.Relationships[key], rel)
		}
	}

	return snap
}

// Get returns the named table from the current snapshot, loading one if
// needed.
func (c *Cache) Get(ctx context.Context, tableName string) (*models.SchemaEntity, error) {
	snap, err := c.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	entity := snap.Get(tableName)
	if entity == nil {
		return nil, apperrors.ErrNotFound
	}
	return entity, nil
}

// Stats reports cache and pool telemetry. Counters are approximate; they
// are read without locking.
func (c *Cache) Stats() models.CacheStats {
	stats := models.CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Pool:   c.db.PoolStats(),
	}
	if snap := c.snapshot.Load(); snap != nil {
		stats.TablesCached = len(snap.Tables)
		for _, rels := range snap.Relationships {
			stats.RelationshipsCached += len(rels)
		}
		stats.Age = time.Since(snap.LoadedAt)
	}
	return stats
}
