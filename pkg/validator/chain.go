// Package validator applies layered checks to generated SQL: syntax,
// security, business compliance, and optional sampled execution.
package validator

import (
	"context"
	"fmt"
	"strings"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/apperrors"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/database"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/schema"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/sqlcheck"
)

// Stage names as they appear on reports and failure errors.
const (
	StageSyntax    = "syntax"
	StageSecurity  = "security"
	StageBusiness  = "business"
	StageExecution = "execution"
)

// Options controls a validation pass.
type Options struct {
	// Execute runs the statement with a row limit and timeout after all
	// other stages pass. Execution errors are captured, not raised.
	Execute bool

	// AllowModification permits INSERT/UPDATE/DELETE when the request's
	// declared intent allows writes. DDL is never permitted.
	AllowModification bool

	// RequiredJoins are literal join predicates asserted by matched
	// concepts. When both sides of a predicate are referenced by the
	// statement, the predicate must appear in it.
	RequiredJoins []string
}

// Chain validates SQL in fixed stage order. Only a syntax failure
// short-circuits: the later stages need a parseable statement.
type Chain struct {
	cache    *schema.Cache
	db       database.RelationalDatabase
	rowLimit int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChain creates a validator chain. db may be nil when execution is
// never requested.
func NewChain(cache *schema.Cache, db database.RelationalDatabase, rowLimit int, timeout time.Duration, logger *zap.Logger) *Chain {
	return &Chain{
		cache:    cache,
		db:       db,
		rowLimit: rowLimit,
		timeout:  timeout,
		logger:   logger.Named("validator"),
	}
}

// Validate runs the chain over sqlText and reports each stage's outcome.
// With Execute false the pass is pure: the same text always yields the
// same flags.
func (c *Chain) Validate(ctx context.Context, sqlText string, opts Options) *models.ValidationReport {
	report := &models.ValidationReport{}

	// Syntax first; everything downstream assumes a parseable statement.
	normalized := sqlcheck.ValidateAndNormalize(sqlText)
	candidate := normalized.NormalizedSQL
	if normalized.Error != nil {
		// Multi-statement input: syntax-check the first statement so the
		// security stage can reject the stray terminator explicitly.
		candidate = strings.TrimSpace(sqlText)
	}

	report.StagesEvaluated = append(report.StagesEvaluated, StageSyntax)
	if err := sqlcheck.CheckSyntax(candidate); err != nil {
		report.SyntaxValid = false
		report.Errors = append(report.Errors, fmt.Sprintf("syntax: %v", err))
		c.logger.Debug("syntax stage failed", zap.Error(err))
		return report
	}
	report.SyntaxValid = true

	report.StagesEvaluated = append(report.StagesEvaluated, StageSecurity)
	if err := c.checkSecurity(candidate, normalized.Error, opts); err != nil {
		report.SecurityValid = false
		report.Errors = append(report.Errors, fmt.Sprintf("security: %v", err))
		c.logger.Info("security stage rejected statement", zap.Error(err))
		return report
	}
	report.SecurityValid = true

	report.StagesEvaluated = append(report.StagesEvaluated, StageBusiness)
	if err := c.checkBusiness(ctx, candidate, opts.RequiredJoins); err != nil {
		report.BusinessCompliant = false
		report.Errors = append(report.Errors, fmt.Sprintf("business: %v", err))
		c.logger.Info("business stage rejected statement", zap.Error(err))
		return report
	}
	report.BusinessCompliant = true

	if opts.Execute && c.db != nil {
		report.StagesEvaluated = append(report.StagesEvaluated, StageExecution)
		report.Execution = c.execute(ctx, candidate)
	}

	return report
}

// checkSecurity rejects destructive statements and injection patterns.
func (c *Chain) checkSecurity(sql string, normalizeErr error, opts Options) error {
	if normalizeErr != nil {
		return normalizeErr
	}

	stmtType := sqlcheck.DetectType(sql)
	switch stmtType {
	case sqlcheck.TypeDDL:
		return fmt.Errorf("DDL statements (CREATE, ALTER, DROP, TRUNCATE) are not allowed")
	case sqlcheck.TypeUnknown:
		if sqlcheck.IsModifyingCTE(sql) {
			return fmt.Errorf("data-modifying CTE is not allowed")
		}
		return fmt.Errorf("unrecognized statement type")
	}

	if sqlcheck.IsModifying(stmtType) {
		if !opts.AllowModification {
			return fmt.Errorf("%s requires modification intent", stmtType)
		}
		if stmtType == sqlcheck.TypeDelete && !sqlcheck.HasWhereClause(sql) {
			return fmt.Errorf("DELETE without WHERE clause is not allowed")
		}
	}

	// Injection patterns hide in string literals; the statement structure
	// itself was produced by the generator and checked above.
	for _, literal := range stringLiterals(sql) {
		if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
			return fmt.Errorf("injection pattern in string literal (fingerprint %s)", fingerprint)
		}
	}

	return nil
}

// stringLiterals returns the contents of single-quoted literals.
func stringLiterals(sql string) []string {
	var literals []string
	var current strings.Builder
	inString := false
	prev := rune(0)

	for _, char := range sql {
		if inString {
			if char == '\'' && prev != '\\' {
				inString = false
				literals = append(literals, current.String())
				current.Reset()
			} else {
				current.WriteRune(char)
			}
		} else if char == '\'' {
			inString = true
		}
		prev = char
	}

	return literals
}

// checkBusiness verifies the statement references only known tables and
// columns, and carries every required join whose tables it touches.
func (c *Chain) checkBusiness(ctx context.Context, sql string, requiredJoins []string) error {
	snap, err := c.cache.Load(ctx, false)
	if err != nil {
		return fmt.Errorf("schema unavailable: %w", err)
	}

	tables := sqlcheck.ExtractTables(sql)
	for _, table := range tables {
		if snap.Get(table) == nil {
			return fmt.Errorf("unknown table %q", table)
		}
	}

	for _, column := range sqlcheck.ExtractFilterColumns(sql) {
		if !columnKnown(snap, tables, column) {
			return fmt.Errorf("unknown column %q in referenced tables", column)
		}
	}

	referenced := make(map[string]bool, len(tables))
	for _, t := range tables {
		referenced[t] = true
	}
	for _, join := range requiredJoins {
		joinTables := predicateTables(join)
		if !allReferenced(referenced, joinTables) {
			continue
		}
		if !containsPredicate(sql, join) {
			return fmt.Errorf("required join missing: %s", join)
		}
	}

	return nil
}

func columnKnown(snap *schema.Snapshot, tables []string, column string) bool {
	for _, table := range tables {
		if entity := snap.Get(table); entity != nil && entity.HasColumn(column) {
			return true
		}
	}
	return false
}

// predicateTables pulls table names out of a join predicate like
// "orders.customer_id = customers.id".
func predicateTables(predicate string) []string {
	var tables []string
	seen := make(map[string]bool)
	for _, part := range strings.FieldsFunc(predicate, func(r rune) bool {
		return r == '=' || r == ' ' || r == '\t'
	}) {
		if idx := strings.Index(part, "."); idx > 0 {
			name := strings.ToLower(part[:idx])
			if !seen[name] {
				seen[name] = true
				tables = append(tables, name)
			}
		}
	}
	return tables
}

func allReferenced(referenced map[string]bool, tables []string) bool {
	if len(tables) == 0 {
		return false
	}
	for _, t := range tables {
		if !referenced[t] {
			return false
		}
	}
	return true
}

// containsPredicate checks for the join predicate with whitespace and
// case folded.
func containsPredicate(sql, predicate string) bool {
	return strings.Contains(foldSpace(sql), foldSpace(predicate))
}

func foldSpace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// execute runs the statement bounded by row limit and timeout. Failures
// are captured on the sample; a query that will not run is still valid.
func (c *Chain) execute(ctx context.Context, sql string) *models.ExecutionSample {
	result, err := c.db.Execute(ctx, sql, c.rowLimit, c.timeout)
	if err != nil {
		execErr := &apperrors.ExecutionError{Cause: err}
		c.logger.Warn("sampled execution failed", zap.Error(execErr))
		return &models.ExecutionSample{Error: execErr.Error()}
	}

	return &models.ExecutionSample{
		RowCount: result.RowCount,
		Rows:     result.Rows,
		Elapsed:  result.Elapsed,
	}
}
