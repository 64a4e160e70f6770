// Package advisor inspects validated SQL and produces optimization
// suggestions. Suggestions are advisory only; they never block a run.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/schema"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/sqlcheck"
)

// Suggestion types emitted by the advisor.
const (
	TypeSelectStar       = "select_star"
	TypeMissingLimit     = "missing_limit"
	TypeUnindexedFilter  = "unindexed_filter"
	TypeRepeatedSubquery = "repeated_subquery"
	TypeSlowExecution    = "slow_execution"
)

// slowThreshold flags sampled executions worth a closer look.
const slowThreshold = 2 * time.Second

// Advisor derives index and query-shape advice from a statement and its
// validation report.
type Advisor struct {
	cache  *schema.Cache
	logger *zap.Logger
}

// New creates an advisor over the schema cache.
func New(cache *schema.Cache, logger *zap.Logger) *Advisor {
	return &Advisor{cache: cache, logger: logger.Named("advisor")}
}

// Advise analyzes sql and the optional validation report and returns
// suggestions ordered by priority descending. Equal priorities keep the
// order the heuristics found them in. report may be nil.
func (a *Advisor) Advise(ctx context.Context, sql string, report *models.ValidationReport) []models.OptimizationSuggestion {
	var suggestions []models.OptimizationSuggestion

	if sqlcheck.HasSelectStar(sql) {
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Type:     TypeSelectStar,
			Priority: models.PriorityMedium,
			Impact:   "transfers every column even when few are needed",
			Message:  "replace SELECT * with an explicit column list",
		})
	}

	if !sqlcheck.HasLimit(sql) {
		priority := models.PriorityLow
		if sqlcheck.HasSelectStar(sql) {
			priority = models.PriorityHigh
		}
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Type:     TypeMissingLimit,
			Priority: priority,
			Impact:   "result set size is unbounded",
			Message:  "add a LIMIT clause to bound the result set",
		})
	}

	suggestions = append(suggestions, a.unindexedFilters(ctx, sql)...)
	suggestions = append(suggestions, repeatedSubqueries(sql)...)

	if report != nil && report.Execution != nil && report.Execution.Error == "" &&
		report.Execution.Elapsed > slowThreshold {
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Type:     TypeSlowExecution,
			Priority: models.PriorityHigh,
			Impact:   fmt.Sprintf("sampled execution took %s", report.Execution.Elapsed.Round(time.Millisecond)),
			Message:  "the statement is slow even with a row limit; review its access paths",
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Priority.Rank() > suggestions[j].Priority.Rank()
	})

	a.logger.Debug("advice produced", zap.Int("suggestions", len(suggestions)))

	return suggestions
}

// unindexedFilters flags filter columns that no referenced table has a
// leading index on. Schema unavailability silently skips the heuristic;
// advice is best effort.
func (a *Advisor) unindexedFilters(ctx context.Context, sql string) []models.OptimizationSuggestion {
	snap, err := a.cache.Load(ctx, false)
	if err != nil {
		return nil
	}

	tables := sqlcheck.ExtractTables(sql)
	var suggestions []models.OptimizationSuggestion

	for _, column := range sqlcheck.ExtractFilterColumns(sql) {
		owner := ""
		indexed := false
		for _, table := range tables {
			entity := snap.Get(table)
			if entity == nil || !entity.HasColumn(column) {
				continue
			}
			owner = table
			if entity.HasIndexOn(column) {
				indexed = true
				break
			}
		}
		if owner == "" || indexed {
			continue
		}
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Type:     TypeUnindexedFilter,
			Priority: models.PriorityHigh,
			Impact:   fmt.Sprintf("filtering on %s.%s forces a sequential scan", owner, column),
			Message:  fmt.Sprintf("consider an index on %s(%s)", owner, column),
		})
	}

	return suggestions
}

// repeatedSubqueries flags identical parenthesized SELECT blocks that
// appear more than once; they are candidates for a CTE.
func repeatedSubqueries(sql string) []models.OptimizationSuggestion {
	counts := make(map[string]int)
	var order []string

	upper := strings.ToUpper(sql)
	for i := 0; i < len(sql); i++ {
		if sql[i] != '(' {
			continue
		}
		rest := strings.TrimLeft(upper[i+1:], " \t\n\r")
		if !strings.HasPrefix(rest, "SELECT") {
			continue
		}
		end := matchParen(sql, i)
		if end < 0 {
			break
		}
		body := normalizeWhitespace(sql[i+1 : end])
		if counts[body] == 0 {
			order = append(order, body)
		}
		counts[body]++
		i = end
	}

	var suggestions []models.OptimizationSuggestion
	for _, body := range order {
		if counts[body] < 2 {
			continue
		}
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Type:     TypeRepeatedSubquery,
			Priority: models.PriorityMedium,
			Impact:   fmt.Sprintf("the same subquery runs %d times", counts[body]),
			Message:  "hoist the repeated subquery into a WITH clause so it runs once",
		})
	}

	return suggestions
}

// matchParen returns the index of the ')' closing the '(' at start,
// skipping string literals, or -1 if unbalanced.
func matchParen(sql string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(sql); i++ {
		c := sql[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
