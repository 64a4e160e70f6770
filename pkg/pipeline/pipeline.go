// Package pipeline orchestrates a query's path from natural language to
// validated SQL: recognition, concept matching, generation, validation,
// and optimization advice.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/advisor"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/apperrors"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/concepts"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/coordinator"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/recognizer"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/validator"
)

// Stage names reported on failed runs.
const (
	stageRecognition = "entity_recognition"
	stageConcepts    = "concept_matching"
	stageGeneration  = "sql_generation"
	stageValidation  = "validation"
)

// Request is one natural language query submitted to the pipeline.
type Request struct {
	// Query is the natural language question. Required.
	Query string

	// IntentHint optionally names what the caller believes the query is
	// about; recognition gives matching tables a small confidence bonus.
	IntentHint string

	// Execute samples the validated statement against the database.
	Execute bool

	// AllowModification declares write intent. Without it any
	// INSERT/UPDATE/DELETE fails security validation.
	AllowModification bool
}

// Pipeline wires the stages together. Each Run is independent; the
// pipeline itself is safe for concurrent use.
type Pipeline struct {
	recognizer  *recognizer.Recognizer
	matcher     *concepts.Matcher
	coordinator *coordinator.Coordinator
	validator   *validator.Chain
	advisor     *advisor.Advisor
	maxEntities int
	maxConcepts int
	logger      *zap.Logger
}

// New assembles a pipeline from its stages.
func New(
	rec *recognizer.Recognizer,
	matcher *concepts.Matcher,
	coord *coordinator.Coordinator,
	chain *validator.Chain,
	adv *advisor.Advisor,
	maxEntities, maxConcepts int,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		recognizer:  rec,
		matcher:     matcher,
		coordinator: coord,
		validator:   chain,
		advisor:     adv,
		maxEntities: maxEntities,
		maxConcepts: maxConcepts,
		logger:      logger.Named("pipeline"),
	}
}

// Run executes every stage in order and returns the aggregated result.
// A failing stage marks the run failed but keeps everything computed
// before it: a validation report with a rejected statement still shows
// which stages passed. Degraded concept matching is not a failure.
func (p *Pipeline) Run(ctx context.Context, req Request) *models.PipelineResult {
	started := time.Now()
	result := &models.PipelineResult{
		RunID: uuid.New(),
		Query: req.Query,
		State: models.StateReceived,
	}
	logger := p.logger.With(zap.String("run_id", result.RunID.String()))
	logger.Info("pipeline run started", zap.String("query", req.Query))

	defer func() {
		result.Elapsed = time.Since(started)
		logger.Info("pipeline run finished",
			zap.String("state", string(result.State)),
			zap.Bool("success", result.Success),
			zap.Duration("elapsed", result.Elapsed))
	}()

	if err := ctx.Err(); err != nil {
		return fail(result, stageRecognition, err)
	}

	recognition, err := p.recognizer.Recognize(ctx, req.Query, req.IntentHint, p.maxEntities)
	if err != nil {
		return fail(result, stageRecognition, err)
	}
	result.Recognition = recognition
	result.State = models.StateEntityRecognized

	if err := ctx.Err(); err != nil {
		return fail(result, stageConcepts, err)
	}

	// Concept matching degrades rather than fails; generation proceeds
	// without curated guidance when embeddings are unavailable.
	match := p.matcher.Match(ctx, req.Query, p.maxConcepts)
	result.Concepts = match
	result.State = models.StateConceptsMatched
	if match.Degraded {
		logger.Warn("concept matching degraded, continuing without business context")
	}

	if err := ctx.Err(); err != nil {
		return fail(result, stageGeneration, err)
	}

	generated, err := p.coordinator.Generate(ctx, req.Query, recognition, match)
	if err != nil {
		return fail(result, stageGeneration, err)
	}
	result.Generated = generated
	result.State = models.StateSQLGenerated

	if err := ctx.Err(); err != nil {
		return fail(result, stageValidation, err)
	}

	report := p.validator.Validate(ctx, generated.SQL, validator.Options{
		Execute:           req.Execute,
		AllowModification: req.AllowModification,
		RequiredJoins:     requiredJoins(match),
	})
	result.Validation = report
	result.State = models.StateValidated

	if !report.SyntaxValid || !report.SecurityValid || !report.BusinessCompliant {
		failure := validationFailure(report)
		result.State = models.StateFailed
		result.FailedStage = failure.Stage
		result.Error = failure.Error()
		return result
	}

	result.Suggestions = p.advisor.Advise(ctx, generated.SQL, report)
	result.State = models.StateCompleted
	result.Success = true

	return result
}

func fail(result *models.PipelineResult, stage string, err error) *models.PipelineResult {
	result.State = models.StateFailed
	result.FailedStage = stage
	result.Error = (&apperrors.StageError{Stage: stage, Err: err}).Error()
	return result
}

// validationFailure names the validation sub-stage that rejected the
// statement. The report's stage flags are authoritative; the message is
// the stage's recorded error with its prefix stripped.
func validationFailure(report *models.ValidationReport) *apperrors.ValidationFailure {
	stage := validator.StageBusiness
	switch {
	case !report.SyntaxValid:
		stage = validator.StageSyntax
	case !report.SecurityValid:
		stage = validator.StageSecurity
	}

	var message string
	if len(report.Errors) > 0 {
		message = strings.TrimPrefix(report.Errors[len(report.Errors)-1], stage+": ")
	}

	return &apperrors.ValidationFailure{Stage: stage, Message: message}
}

// requiredJoins flattens the join predicates of every matched concept.
func requiredJoins(match *models.ConceptMatch) []string {
	if match == nil {
		return nil
	}
	var joins []string
	for _, instruction := range match.Instructions {
		joins = append(joins, instruction.RequiredJoins...)
	}
	return joins
}
