package database

import (
	"context"
	"sync"
	"time"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
)

// MockDatabase is a configurable mock for testing against a fake schema.
// Set the function fields to control behavior in tests. Call counters
// are safe to bump from concurrent requests.
type MockDatabase struct {
	mu sync.Mutex

	// IntrospectSchemaFunc is called when IntrospectSchema is invoked.
	// If nil, returns an empty schema and nil error.
	IntrospectSchemaFunc func(ctx context.Context) ([]models.SchemaEntity, error)

	// ExecuteFunc is called when Execute is invoked.
	// If nil, returns an empty result and nil error.
	ExecuteFunc func(ctx context.Context, sql string, rowLimit int, timeout time.Duration) (*ExecuteResult, error)

	// Stats is returned by PoolStats.
	Stats models.PoolStats

	// Call tracking for verification
	IntrospectCalls int
	ExecuteCalls    int
}

// IntrospectSchema implements RelationalDatabase.
func (m *MockDatabase) IntrospectSchema(ctx context.Context) ([]models.SchemaEntity, error) {
	m.mu.Lock()
	m.IntrospectCalls++
	m.mu.Unlock()
	if m.IntrospectSchemaFunc != nil {
		return m.IntrospectSchemaFunc(ctx)
	}
	return nil, nil
}

// Execute implements RelationalDatabase.
func (m *MockDatabase) Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) (*ExecuteResult, error) {
	m.mu.Lock()
	m.ExecuteCalls++
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, sql, rowLimit, timeout)
	}
	return &ExecuteResult{}, nil
}

// PoolStats implements RelationalDatabase.
func (m *MockDatabase) PoolStats() models.PoolStats {
	return m.Stats
}

// Close implements RelationalDatabase.
func (m *MockDatabase) Close() {}

// Ensure MockDatabase implements RelationalDatabase at compile time.
var _ RelationalDatabase = (*MockDatabase)(nil)
