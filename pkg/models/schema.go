package models

import "time"

// Column describes a single column of an introspected table.
type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	IsForeignKey bool   `json:"is_foreign_key"`
}

// Relationship describes a foreign key edge between two tables.
type Relationship struct {
	ConstrainedTable   string   `json:"constrained_table"`
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

// SchemaEntity is an introspected table: its columns in ordinal order and
// the foreign key relationships it participates in as the constrained side.
// Instances are immutable once a snapshot is built; refresh replaces the
// whole snapshot rather than editing entities in place.
type SchemaEntity struct {
	Name           string         `json:"name"`
	Columns        []Column       `json:"columns"`
	Relationships  []Relationship `json:"relationships,omitempty"`
	IndexedColumns []string       `json:"indexed_columns,omitempty"`
}

// HasIndexOn reports whether the table has an index whose leading column
// is the given column.
func (e *SchemaEntity) HasIndexOn(name string) bool {
	for _, c := range e.IndexedColumns {
		if c == name {
			return true
		}
	}
	return false
}

// HasColumn reports whether the table has a column with the given name.
func (e *SchemaEntity) HasColumn(name string) bool {
	for _, c := range e.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// CacheStats summarizes the state of the schema cache and its backing pool.
type CacheStats struct {
	TablesCached        int           `json:"tables_cached"`
	RelationshipsCached int           `json:"relationships_cached"`
	Age                 time.Duration `json:"age"`
	Hits                uint64        `json:"hits"`
	Misses              uint64        `json:"misses"`
	Pool                PoolStats     `json:"pool"`
}

// PoolStats is a point-in-time view of connection pool telemetry.
// Counters are approximate; they are read without locking.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}
