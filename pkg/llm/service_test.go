package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGenerateSQL(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		responseErr  error
		expectedSQL  string
		expectedHint string
		wantErr      bool
		wantEnvelope bool
	}{
		{
			name:        "valid envelope",
			response:    `{"sql": "SELECT * FROM orders LIMIT 10"}`,
			expectedSQL: "SELECT * FROM orders LIMIT 10",
		},
		{
			name:         "envelope with hint",
			response:     `{"sql": "SELECT count(*) FROM users", "validation_hint": "verify users table"}`,
			expectedSQL:  "SELECT count(*) FROM users",
			expectedHint: "verify users table",
		},
		{
			name:        "envelope with prose around it",
			response:    "Sure! ```json\n{\"sql\": \"SELECT 1\"}\n```",
			expectedSQL: "SELECT 1",
		},
		{
			name:         "no json at all",
			response:     "I'd be happy to help with that query.",
			wantErr:      true,
			wantEnvelope: true,
		},
		{
			name:         "empty sql field",
			response:     `{"sql": "  "}`,
			wantErr:      true,
			wantEnvelope: true,
		},
		{
			name:        "provider failure passes through",
			responseErr: errors.New("connection refused"),
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockClient()
			mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
				return tt.response, tt.responseErr
			}
			service := NewService(mock, 0.1, 0, zap.NewNop())

			envelope, err := service.GenerateSQL(context.Background(), "how many orders?")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantEnvelope {
					var llmErr *Error
					if !errors.As(err, &llmErr) || llmErr.Type != ErrorTypeEnvelope {
						t.Errorf("expected envelope error, got %v", err)
					}
					if llmErr != nil && llmErr.Retryable {
						t.Error("envelope errors must not be retryable")
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if envelope.SQL != tt.expectedSQL {
				t.Errorf("expected sql %q, got %q", tt.expectedSQL, envelope.SQL)
			}
			if envelope.ValidationHint != tt.expectedHint {
				t.Errorf("expected hint %q, got %q", tt.expectedHint, envelope.ValidationHint)
			}
		})
	}
}

func TestGenerateSQL_ProviderContextCarriesDeadline(t *testing.T) {
	deadlineSet := false
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		_, deadlineSet = ctx.Deadline()
		return `{"sql": "SELECT 1"}`, nil
	}
	service := NewService(mock, 0.1, 30*time.Second, zap.NewNop())

	if _, err := service.GenerateSQL(context.Background(), "anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deadlineSet {
		t.Error("provider call must carry the configured deadline")
	}
}

func TestGenerateSQL_HungProviderTimesOut(t *testing.T) {
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	service := NewService(mock, 0.1, 10*time.Millisecond, zap.NewNop())

	if _, err := service.GenerateSQL(context.Background(), "anything"); err == nil {
		t.Fatal("expected timeout error from a hung provider")
	}
}

func TestGenerateSQL_ZeroTimeoutMeansNoDeadline(t *testing.T) {
	deadlineSet := false
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		_, deadlineSet = ctx.Deadline()
		return `{"sql": "SELECT 1"}`, nil
	}
	service := NewService(mock, 0.1, 0, zap.NewNop())

	if _, err := service.GenerateSQL(context.Background(), "anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deadlineSet {
		t.Error("zero timeout must not impose a deadline")
	}
}

func TestDocumentTable(t *testing.T) {
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"business_purpose": "Tracks customer orders.", "schema_data": {"rows": 100}}`, nil
	}
	service := NewService(mock, 0.1, 0, zap.NewNop())

	doc, err := service.DocumentTable(context.Background(), "orders", "orders:\n  id bigint [PK]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.BusinessPurpose != "Tracks customer orders." {
		t.Errorf("unexpected purpose: %q", doc.BusinessPurpose)
	}
}

func TestDocumentTable_EmptyPurpose(t *testing.T) {
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"business_purpose": ""}`, nil
	}
	service := NewService(mock, 0.1, 0, zap.NewNop())

	if _, err := service.DocumentTable(context.Background(), "orders", "schema"); err == nil {
		t.Fatal("expected envelope error for empty business_purpose")
	}
}

func TestInterpretInstruction(t *testing.T) {
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"operation": "add_join", "target": "orders", "data": {"to": "customers"}}`, nil
	}
	service := NewService(mock, 0.1, 0, zap.NewNop())

	op, err := service.InterpretInstruction(context.Background(), "orders always join to customers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Operation != "add_join" || op.Target != "orders" {
		t.Errorf("unexpected op: %+v", op)
	}
}

func TestInterpretInstruction_MissingFields(t *testing.T) {
	mock := NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"operation": "", "target": "orders"}`, nil
	}
	service := NewService(mock, 0.1, 0, zap.NewNop())

	if _, err := service.InterpretInstruction(context.Background(), "anything"); err == nil {
		t.Fatal("expected envelope error for missing operation")
	}
}
