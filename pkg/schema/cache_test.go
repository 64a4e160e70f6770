package schema

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/apperrors"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/database"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
)

func testEntities() []models.SchemaEntity {
	return []models.SchemaEntity{
		{
			Name: "customers",
			Columns: []models.Column{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "name", DataType: "text"},
			},
		},
		{
			Name: "orders",
			Columns: []models.Column{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "customer_id", DataType: "bigint", IsForeignKey: true},
			},
			Relationships: []models.Relationship{
				{
					ConstrainedTable:   "orders",
					ConstrainedColumns: []string{"customer_id"},
					ReferredTable:      "customers",
					ReferredColumns:    []string{"id"},
				},
			},
		},
	}
}

func TestCache_LoadAndReuse(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return testEntities(), nil
		},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	snap, err := cache.Load(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Tables) != 2 {
		t.Errorf("expected 2 tables, got %d", len(snap.Tables))
	}
	if snap.Get("orders") == nil {
		t.Error("expected orders table in snapshot")
	}

	if _, err := cache.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	if db.IntrospectCalls != 1 {
		t.Errorf("expected 1 introspection, got %d", db.IntrospectCalls)
	}
}

func TestCache_ForceRefresh(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return testEntities(), nil
		},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	if _, err := cache.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load(ctx, true); err != nil {
		t.Fatal(err)
	}
	if db.IntrospectCalls != 2 {
		t.Errorf("expected 2 introspections, got %d", db.IntrospectCalls)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return testEntities(), nil
		},
	}
	cache := NewCache(db, time.Millisecond, zap.NewNop())

	if _, err := cache.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	if db.IntrospectCalls != 2 {
		t.Errorf("expected TTL expiry to re-introspect, got %d calls", db.IntrospectCalls)
	}
}

func TestCache_StaleSnapshotOnFailure(t *testing.T) {
	ctx := context.Background()
	failing := false
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			if failing {
				return nil, errors.New("connection lost")
			}
			return testEntities(), nil
		},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	first, err := cache.Load(ctx, false)
	if err != nil {
		t.Fatal(err)
	}

	failing = true
	snap, err := cache.Load(ctx, true)
	if err != nil {
		t.Fatalf("expected stale snapshot, got error %v", err)
	}
	if snap != first {
		t.Error("expected the previous snapshot to be served")
	}
}

func TestCache_UnavailableWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return nil, errors.New("connection lost")
		},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	_, err := cache.Load(ctx, false)
	if !errors.Is(err, apperrors.ErrCacheUnavailable) {
		t.Errorf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestCache_Get(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return testEntities(), nil
		},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	entity, err := cache.Get(ctx, "customers")
	if err != nil {
		t.Fatal(err)
	}
	if entity.Name != "customers" {
		t.Errorf("unexpected entity: %s", entity.Name)
	}

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshot_Neighbors(t *testing.T) {
	snap := buildSnapshot(testEntities())

	neighbors := snap.Neighbors("customers")
	if len(neighbors) != 1 || neighbors[0] != "orders" {
		t.Errorf("expected [orders], got %v", neighbors)
	}

	neighbors = snap.Neighbors("orders")
	if len(neighbors) != 1 || neighbors[0] != "customers" {
		t.Errorf("expected [customers], got %v", neighbors)
	}

	if got := snap.Neighbors("unrelated"); len(got) != 0 {
		t.Errorf("expected no neighbors, got %v", got)
	}
}

func TestCache_ConcurrentReadsSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return testEntities(), nil
		},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(force bool) {
			defer wg.Done()
			snap, err := cache.Load(ctx, force)
			if err != nil {
				t.Errorf("load failed: %v", err)
				return
			}
			// A snapshot's table order always matches its table map.
			names := make([]string, 0, len(snap.Tables))
			for name := range snap.Tables {
				names = append(names, name)
			}
			sort.Strings(names)
			ordered := append([]string(nil), snap.TableOrder...)
			sort.Strings(ordered)
			if len(names) != len(ordered) {
				t.Errorf("inconsistent snapshot: %v vs %v", names, ordered)
			}
		}(i%5 == 0)
	}
	wg.Wait()
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return testEntities(), nil
		},
		Stats: models.PoolStats{TotalConns: 3, IdleConns: 2},
	}
	cache := NewCache(db, time.Hour, zap.NewNop())

	if _, err := cache.Load(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load(ctx, false); err != nil {
		t.Fatal(err)
	}

	stats := cache.Stats()
	if stats.TablesCached != 2 {
		t.Errorf("expected 2 tables cached, got %d", stats.TablesCached)
	}
	if stats.RelationshipsCached != 1 {
		t.Errorf("expected 1 relationship cached, got %d", stats.RelationshipsCached)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.Pool.TotalConns != 3 {
		t.Errorf("expected pool stats to pass through, got %+v", stats.Pool)
	}
}
