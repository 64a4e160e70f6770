// Package coordinator assembles generation context and drives the
// language model to produce a single SQL statement. It never executes
// what it generates; that is the validator's decision.
package coordinator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/apperrors"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/llm"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/retry"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/schema"
)

// Coordinator turns a query plus recognition and concept context into a
// generation prompt, calls the model with bounded retry, and returns the
// parsed statement. Transient provider failures are retried up to the
// configured cap; a malformed envelope is terminal on first sight.
type Coordinator struct {
	service  *llm.Service
	cache    *schema.Cache
	retryCfg *retry.Config
	logger   *zap.Logger
}

// New creates a coordinator. retryCfg nil means retry defaults.
func New(service *llm.Service, cache *schema.Cache, retryCfg *retry.Config, logger *zap.Logger) *Coordinator {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Coordinator{
		service:  service,
		cache:    cache,
		retryCfg: retryCfg,
		logger:   logger.Named("coordinator"),
	}
}

// Generate produces SQL for queryText using the recognized entities'
// schema slices and the matched concepts' instructions. The returned
// query records how many model calls it took. On failure the error is a
// *apperrors.GenerationError carrying the attempt count and cause.
func (c *Coordinator) Generate(ctx context.Context, queryText string, recognition *models.RecognitionResult, match *models.ConceptMatch) (*models.GeneratedQuery, error) {
	prompt, entityNames, conceptNames, err := c.buildPrompt(ctx, queryText, recognition, match)
	if err != nil {
		return nil, &apperrors.GenerationError{Attempts: 0, Cause: err}
	}

	attempts := 0
	envelope, err := retry.DoWithResult(ctx, c.retryCfg, func() (*llm.SQLEnvelope, error) {
		attempts++
		return c.service.GenerateSQL(ctx, prompt)
	})
	if err != nil {
		c.logger.Warn("sql generation failed",
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, &apperrors.GenerationError{Attempts: attempts, Cause: err}
	}

	c.logger.Info("sql generated",
		zap.Int("attempts", attempts),
		zap.Strings("entities", entityNames),
		zap.Strings("concepts", conceptNames))

	return &models.GeneratedQuery{
		SQL:            envelope.SQL,
		ValidationHint: envelope.ValidationHint,
		Entities:       entityNames,
		Concepts:       conceptNames,
		Attempts:       attempts,
	}, nil
}

// buildPrompt renders the question, the schema slice of every recognized
// entity, and the business instructions of every matched concept.
// Instructions are included verbatim; the coordinator does not rewrite
// curated guidance.
func (c *Coordinator) buildPrompt(ctx context.Context, queryText string, recognition *models.RecognitionResult, match *models.ConceptMatch) (string, []string, []string, error) {
	snap, err := c.cache.Load(ctx, false)
	if err != nil {
		return "", nil, nil, err
	}

	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(queryText)
	b.WriteString("\n\nRelevant tables:\n")

	var entityNames []string
	if recognition != nil {
		for _, entity := range recognition.Entities {
			table := snap.Get(entity.Name)
			if table == nil {
				continue
			}
			entityNames = append(entityNames, entity.Name)
			renderTable(&b, table)
		}
	}
	if len(entityNames) == 0 {
		// Nothing recognized: give the model the table inventory so it can
		// still attempt an answer rather than hallucinate names.
		b.WriteString("  (no tables matched the question; full table list: ")
		b.WriteString(strings.Join(snap.TableOrder, ", "))
		b.WriteString(")\n")
	}

	var conceptNames []string
	if match != nil && len(match.Instructions) > 0 {
		b.WriteString("\nBusiness instructions:\n")
		for _, instruction := range match.Instructions {
			conceptNames = append(conceptNames, instruction.Concept)
			fmt.Fprintf(&b, "- [%s] %s\n", instruction.Concept, instruction.Instructions)
			if len(instruction.RequiredJoins) > 0 {
				fmt.Fprintf(&b, "  Required joins: %s\n", strings.Join(instruction.RequiredJoins, "; "))
			}
			if len(instruction.TargetTables) > 0 {
				fmt.Fprintf(&b, "  Target tables: %s\n", strings.Join(instruction.TargetTables, ", "))
			}
		}
	}

	b.WriteString("\nProduce exactly one SQL statement answering the question.")

	return b.String(), entityNames, conceptNames, nil
}

// renderTable writes one table's schema slice: columns with types and
// key markers, then outbound relationships.
func renderTable(b *strings.Builder, table *models.SchemaEntity) {
	fmt.Fprintf(b, "  %s:\n", table.Name)
	for _, col := range table.Columns {
		var markers []string
		if col.IsPrimaryKey {
			markers = append(markers, "PK")
		}
		if col.IsForeignKey {
			markers = append(markers, "FK")
		}
		if !col.IsNullable {
			markers = append(markers, "NOT NULL")
		}
		suffix := ""
		if len(markers) > 0 {
			suffix = " [" + strings.Join(markers, ", ") + "]"
		}
		fmt.Fprintf(b, "    %s %s%s\n", col.Name, col.DataType, suffix)
	}
	for _, rel := range table.Relationships {
		fmt.Fprintf(b, "    -> %s(%s) references %s(%s)\n",
			rel.ConstrainedTable, strings.Join(rel.ConstrainedColumns, ", "),
			rel.ReferredTable, strings.Join(rel.ReferredColumns, ", "))
	}
}
