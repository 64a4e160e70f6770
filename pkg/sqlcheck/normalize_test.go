package sqlcheck

import (
	"errors"
	"testing"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select without semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon stripped",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon and whitespace",
			input:    "SELECT * FROM orders;  ",
			expected: "SELECT * FROM orders",
		},
		{
			name:     "leading and trailing whitespace",
			input:    "  SELECT id FROM customers  ",
			expected: "SELECT id FROM customers",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM users WHERE name = 'a;b'",
			expected: "SELECT * FROM users WHERE name = 'a;b'",
		},
		{
			name:     "semicolon inside double quoted identifier",
			input:    `SELECT * FROM "odd;name"`,
			expected: `SELECT * FROM "odd;name"`,
		},
		{
			name:     "empty input",
			input:    "   ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Fatalf("expected no error, got %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result.NormalizedSQL)
			}
		})
	}
}

func TestValidateAndNormalize_MultipleStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "two statements",
			input: "SELECT 1; SELECT 2",
		},
		{
			name:  "stacked injection",
			input: "SELECT * FROM users; DROP TABLE users",
		},
		{
			name:  "semicolon mid statement with trailing terminator",
			input: "SELECT 1; DELETE FROM orders;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if !errors.Is(result.Error, ErrMultipleStatements) {
				t.Errorf("expected ErrMultipleStatements, got %v", result.Error)
			}
		})
	}
}
