// Package sqlcheck provides lightweight SQL analysis: normalization,
// statement classification, and reference extraction. It is not a full
// parser; generated statements get a structural check here and a real
// parse only if they are executed.
package sqlcheck

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates the query contains multiple SQL
// statements.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// NormalizeResult contains the normalized SQL and any validation error.
type NormalizeResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize strips the trailing semicolon, then rejects any
// remaining semicolons outside string literals as multi-statement input.
func ValidateAndNormalize(sqlQuery string) NormalizeResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return NormalizeResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return NormalizeResult{Error: ErrMultipleStatements}
	}

	return NormalizeResult{NormalizedSQL: normalized}
}

// hasSemicolonOutsideStrings returns true if the SQL contains any
// semicolon outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handles both backslash escape (\') and SQL doubled quote ('').
			// A doubled quote exits and immediately re-enters the string state,
			// which keeps the scan correct.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and surrounding
// whitespace.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
