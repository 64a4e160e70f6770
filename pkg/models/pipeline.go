package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineState identifies where a pipeline run is in its lifecycle.
type PipelineState string

const (
	StateReceived         PipelineState = "received"
	StateEntityRecognized PipelineState = "entity_recognized"
	StateConceptsMatched  PipelineState = "concepts_matched"
	StateSQLGenerated     PipelineState = "sql_generated"
	StateValidated        PipelineState = "validated"
	StateCompleted        PipelineState = "completed"
	StateFailed           PipelineState = "failed"
)

// RecognizedEntity is one schema table scored against a query.
type RecognizedEntity struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// RecognitionResult is the ordered outcome of entity recognition,
// confidence descending. An empty Entities slice is valid: no applicable
// tables were found.
type RecognitionResult struct {
	Entities []RecognizedEntity `json:"entities"`
}

// GeneratedQuery is the SQL produced by the coordinator along with the
// context that was supplied to generate it.
type GeneratedQuery struct {
	SQL            string   `json:"sql"`
	ValidationHint string   `json:"validation_hint,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	Concepts       []string `json:"concepts,omitempty"`
	Attempts       int      `json:"attempts"`
}

// ExecutionSample holds the bounded result of optionally executing a
// validated query.
type ExecutionSample struct {
	RowCount int              `json:"row_count"`
	Rows     []map[string]any `json:"rows,omitempty"`
	Elapsed  time.Duration    `json:"elapsed"`
	Error    string           `json:"error,omitempty"`
}

// ValidationReport records the outcome of each validation stage.
// BusinessCompliant and SecurityValid are only meaningful when
// SyntaxValid is true; an invalid parse skips the later stages.
type ValidationReport struct {
	SyntaxValid       bool             `json:"syntax_valid"`
	SecurityValid     bool             `json:"security_valid"`
	BusinessCompliant bool             `json:"business_compliant"`
	StagesEvaluated   []string         `json:"stages_evaluated"`
	Errors            []string         `json:"errors,omitempty"`
	PerformanceIssues []string         `json:"performance_issues,omitempty"`
	Execution         *ExecutionSample `json:"execution,omitempty"`
}

// SuggestionPriority orders optimization suggestions.
type SuggestionPriority string

const (
	PriorityLow    SuggestionPriority = "low"
	PriorityMedium SuggestionPriority = "medium"
	PriorityHigh   SuggestionPriority = "high"
)

// Rank returns a sortable weight for the priority, higher first.
func (p SuggestionPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// OptimizationSuggestion is one piece of advice from the optimizer.
type OptimizationSuggestion struct {
	Type     string             `json:"type"`
	Priority SuggestionPriority `json:"priority"`
	Impact   string             `json:"impact"`
	Message  string             `json:"message"`
}

// PipelineResult aggregates everything one pipeline run produced.
// A failed run still carries whatever fields were computed before the
// failing stage, so partial diagnostics are never discarded.
type PipelineResult struct {
	RunID        uuid.UUID                `json:"run_id"`
	Query        string                   `json:"query"`
	State        PipelineState            `json:"state"`
	Success      bool                     `json:"success"`
	FailedStage  string                   `json:"failed_stage,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Recognition  *RecognitionResult       `json:"recognition,omitempty"`
	Concepts     *ConceptMatch            `json:"concepts,omitempty"`
	Generated    *GeneratedQuery          `json:"generated,omitempty"`
	Validation   *ValidationReport        `json:"validation,omitempty"`
	Suggestions  []OptimizationSuggestion `json:"suggestions,omitempty"`
	Elapsed      time.Duration            `json:"elapsed"`
}
