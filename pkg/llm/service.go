package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SQLEnvelope is the strict response schema for SQL generation. The model
// must return a JSON object with at least a non-empty "sql" field; anything
// else is a malformed envelope and is not retried.
type SQLEnvelope struct {
	SQL            string `json:"sql"`
	ValidationHint string `json:"validation_hint,omitempty"`
}

// TableDoc is the strict response schema for table documentation.
type TableDoc struct {
	BusinessPurpose string         `json:"business_purpose"`
	SchemaData      map[string]any `json:"schema_data,omitempty"`
}

// InstructionOp is the strict response schema for instruction
// interpretation.
type InstructionOp struct {
	Operation string         `json:"operation"`
	Target    string         `json:"target"`
	Data      map[string]any `json:"data,omitempty"`
}

// Service exposes the typed language model calls the pipeline consumes.
// Each call sends one prompt and parses one strict JSON envelope; a
// response that does not match the envelope is rejected, never
// best-effort parsed.
type Service struct {
	client      Client
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewService wraps a provider client with typed envelope parsing. Every
// provider call is bounded by timeout; zero means no per-call deadline.
func NewService(client Client, temperature float64, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		client:      client,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger.Named("llm.service"),
	}
}

// callContext bounds one provider call with the configured timeout.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

const generateSQLSystem = `You are a SQL generation assistant. Given a natural language question, ` +
	`relevant schema tables, and business instructions, produce a single SQL statement. ` +
	`Respond with a JSON object: {"sql": "<statement>", "validation_hint": "<optional note>"}. ` +
	`Do not include any other text.`

// GenerateSQL sends one generation request and parses the SQL envelope.
// A transient provider failure surfaces as a retryable error; a malformed
// envelope surfaces as a non-retryable ErrorTypeEnvelope error.
func (s *Service) GenerateSQL(ctx context.Context, prompt string) (*SQLEnvelope, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	response, err := s.client.GenerateResponse(ctx, prompt, generateSQLSystem, s.temperature)
	if err != nil {
		return nil, err
	}

	envelope, err := ParseJSONResponse[SQLEnvelope](response)
	if err != nil {
		s.logger.Warn("malformed SQL envelope", zap.Error(err))
		return nil, NewError(ErrorTypeEnvelope, "malformed SQL envelope", false, err)
	}

	if strings.TrimSpace(envelope.SQL) == "" {
		return nil, NewError(ErrorTypeEnvelope, "envelope has empty sql field", false, nil)
	}

	return &envelope, nil
}

const documentTableSystem = `You document database tables for business users. ` +
	`Respond with a JSON object: {"business_purpose": "<one paragraph>", "schema_data": {...}}. ` +
	`Do not include any other text.`

// DocumentTable asks the model to describe a table's business purpose
// given a schema slice rendered as text.
func (s *Service) DocumentTable(ctx context.Context, tableName, schemaSlice string) (*TableDoc, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	prompt := "Table: " + tableName + "\n\nSchema:\n" + schemaSlice
	response, err := s.client.GenerateResponse(ctx, prompt, documentTableSystem, s.temperature)
	if err != nil {
		return nil, err
	}

	doc, err := ParseJSONResponse[TableDoc](response)
	if err != nil {
		return nil, NewError(ErrorTypeEnvelope, "malformed table doc envelope", false, err)
	}
	if strings.TrimSpace(doc.BusinessPurpose) == "" {
		return nil, NewError(ErrorTypeEnvelope, "envelope has empty business_purpose field", false, nil)
	}

	return &doc, nil
}

const interpretInstructionSystem = `You translate free-text catalog instructions into a structured operation. ` +
	`Respond with a JSON object: {"operation": "<verb>", "target": "<table or concept>", "data": {...}}. ` +
	`Do not include any other text.`

// InterpretInstruction asks the model to turn a free-text instruction
// into a structured operation.
func (s *Service) InterpretInstruction(ctx context.Context, instruction string) (*InstructionOp, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	response, err := s.client.GenerateResponse(ctx, instruction, interpretInstructionSystem, s.temperature)
	if err != nil {
		return nil, err
	}

	op, err := ParseJSONResponse[InstructionOp](response)
	if err != nil {
		return nil, NewError(ErrorTypeEnvelope, "malformed instruction envelope", false, err)
	}
	if op.Operation == "" || op.Target == "" {
		return nil, NewError(ErrorTypeEnvelope, "envelope missing operation or target", false, nil)
	}

	return &op, nil
}
