package advisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/database"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/schema"
)

func fixture(t *testing.T) *Advisor {
	t.Helper()
	db := &database.MockDatabase{
		IntrospectSchemaFunc: func(ctx context.Context) ([]models.SchemaEntity, error) {
			return []models.SchemaEntity{
				{
					Name: "orders",
					Columns: []models.Column{
						{Name: "id", DataType: "bigint", IsPrimaryKey: true},
						{Name: "status", DataType: "text"},
						{Name: "customer_id", DataType: "bigint", IsForeignKey: true},
					},
					IndexedColumns: []string{"id", "customer_id"},
				},
			}, nil
		},
	}
	cache := schema.NewCache(db, time.Hour, zap.NewNop())
	return New(cache, zap.NewNop())
}

func findSuggestion(suggestions []models.OptimizationSuggestion, typ string) *models.OptimizationSuggestion {
	for i := range suggestions {
		if suggestions[i].Type == typ {
			return &suggestions[i]
		}
	}
	return nil
}

func TestAdvise_SelectStarWithoutLimit(t *testing.T) {
	adv := fixture(t)

	suggestions := adv.Advise(context.Background(), "SELECT * FROM orders", nil)

	star := findSuggestion(suggestions, TypeSelectStar)
	if star == nil {
		t.Error("expected select_star suggestion")
	}
	limit := findSuggestion(suggestions, TypeMissingLimit)
	if limit == nil {
		t.Fatal("expected missing_limit suggestion")
	}
	// Unbounded star scan is the worst case.
	if limit.Priority != models.PriorityHigh {
		t.Errorf("expected high priority for unbounded star, got %s", limit.Priority)
	}
}

func TestAdvise_BoundedExplicitQueryIsQuiet(t *testing.T) {
	adv := fixture(t)

	suggestions := adv.Advise(context.Background(),
		"SELECT id FROM orders WHERE customer_id = 7 LIMIT 10", nil)

	if len(suggestions) != 0 {
		t.Errorf("expected no suggestions, got %+v", suggestions)
	}
}

func TestAdvise_UnindexedFilter(t *testing.T) {
	adv := fixture(t)

	suggestions := adv.Advise(context.Background(),
		"SELECT id FROM orders WHERE status = 'open' LIMIT 10", nil)

	s := findSuggestion(suggestions, TypeUnindexedFilter)
	if s == nil {
		t.Fatal("expected unindexed_filter suggestion for status")
	}
	if s.Priority != models.PriorityHigh {
		t.Errorf("expected high priority, got %s", s.Priority)
	}
}

func TestAdvise_IndexedFilterNotFlagged(t *testing.T) {
	adv := fixture(t)

	suggestions := adv.Advise(context.Background(),
		"SELECT id FROM orders WHERE customer_id = 7 LIMIT 10", nil)

	if findSuggestion(suggestions, TypeUnindexedFilter) != nil {
		t.Error("indexed column must not be flagged")
	}
}

func TestAdvise_RepeatedSubquery(t *testing.T) {
	adv := fixture(t)

	sql := "SELECT id FROM orders WHERE customer_id = (SELECT max(id) FROM orders) " +
		"OR id = (SELECT max(id) FROM orders) LIMIT 5"
	suggestions := adv.Advise(context.Background(), sql, nil)

	if findSuggestion(suggestions, TypeRepeatedSubquery) == nil {
		t.Error("expected repeated_subquery suggestion")
	}
}

func TestAdvise_SlowExecution(t *testing.T) {
	adv := fixture(t)

	report := &models.ValidationReport{
		Execution: &models.ExecutionSample{RowCount: 10, Elapsed: 5 * time.Second},
	}
	suggestions := adv.Advise(context.Background(),
		"SELECT id FROM orders WHERE customer_id = 7 LIMIT 10", report)

	s := findSuggestion(suggestions, TypeSlowExecution)
	if s == nil {
		t.Fatal("expected slow_execution suggestion")
	}
	if s.Priority != models.PriorityHigh {
		t.Errorf("expected high priority, got %s", s.Priority)
	}
}

func TestAdvise_PriorityOrdering(t *testing.T) {
	adv := fixture(t)

	// select_star (medium), missing_limit (high because of the star), and
	// unindexed filter (high).
	suggestions := adv.Advise(context.Background(),
		"SELECT * FROM orders WHERE status = 'open'", nil)

	if len(suggestions) < 3 {
		t.Fatalf("expected at least 3 suggestions, got %d", len(suggestions))
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Priority.Rank() > suggestions[i-1].Priority.Rank() {
			t.Errorf("suggestions out of priority order at %d: %+v", i, suggestions)
		}
	}
}
