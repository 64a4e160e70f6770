// Package database provides schema introspection and bounded query
// execution against the target relational database.
package database

import (
	"context"
	"time"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
)

// ExecuteResult holds the bounded result of running a query.
type ExecuteResult struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
	Elapsed  time.Duration
}

// RelationalDatabase is the engine's view of the target database: it
// introspects schema metadata and executes generated SQL with a row limit
// and timeout. Implementations must be safe for concurrent use.
type RelationalDatabase interface {
	// IntrospectSchema returns every user table with columns, foreign
	// keys, and index metadata.
	IntrospectSchema(ctx context.Context) ([]models.SchemaEntity, error)

	// Execute runs a SELECT with a hard row limit and elapsed-time cap.
	Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) (*ExecuteResult, error)

	// PoolStats returns point-in-time connection pool telemetry.
	PoolStats() models.PoolStats

	// Close releases the connection pool.
	Close()
}
