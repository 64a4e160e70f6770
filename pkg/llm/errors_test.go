package llm

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedType  ErrorType
		wantRetryable bool
	}{
		{
			name:          "unauthorized",
			err:           errors.New("401 Unauthorized"),
			expectedType:  ErrorTypeAuth,
			wantRetryable: false,
		},
		{
			name:          "invalid api key",
			err:           errors.New("invalid api key provided"),
			expectedType:  ErrorTypeAuth,
			wantRetryable: false,
		},
		{
			name:          "model not found",
			err:           errors.New("the model 'gpt-9' does not exist"),
			expectedType:  ErrorTypeModel,
			wantRetryable: false,
		},
		{
			name:          "endpoint 404",
			err:           errors.New("404 page not found"),
			expectedType:  ErrorTypeEndpoint,
			wantRetryable: false,
		},
		{
			name:          "connection refused",
			err:           errors.New("dial tcp 127.0.0.1:8080: connection refused"),
			expectedType:  ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "timeout",
			err:           errors.New("context deadline exceeded"),
			expectedType:  ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "rate limited",
			err:           errors.New("429 Too Many Requests"),
			expectedType:  ErrorTypeUnknown,
			wantRetryable: true,
		},
		{
			name:          "server error",
			err:           errors.New("502 Bad Gateway"),
			expectedType:  ErrorTypeEndpoint,
			wantRetryable: true,
		},
		{
			name:          "unclassified",
			err:           errors.New("something odd"),
			expectedType:  ErrorTypeUnknown,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			if classified.Type != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, classified.Type)
			}
			if classified.Retryable != tt.wantRetryable {
				t.Errorf("expected retryable=%v, got %v", tt.wantRetryable, classified.Retryable)
			}
			if !errors.Is(classified, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil input")
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	original := NewError(ErrorTypeEnvelope, "malformed", false, nil)
	if got := ClassifyError(original); got != original {
		t.Error("structured errors should pass through unchanged")
	}
}

func TestErrorRetryableInterface(t *testing.T) {
	retryable := NewError(ErrorTypeEndpoint, "timeout", true, nil)
	if !retryable.IsRetryable() {
		t.Error("expected retryable")
	}
	if !IsRetryable(retryable) {
		t.Error("IsRetryable should honor the flag")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable provider errors")
	}
}
